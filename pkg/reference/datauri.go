package reference

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/commontoolsinc/loom/pkg/types"
)

// InvalidDataURIError reports a malformed data URI.
type InvalidDataURIError struct {
	URI    string
	Reason string
}

func (e *InvalidDataURIError) Error() string {
	return fmt.Sprintf("invalid data URI %q: %s", truncate(e.URI, 64), e.Reason)
}

// UnsupportedMediaTypeError reports a media type the core cannot
// decode at the requested address.
type UnsupportedMediaTypeError struct {
	Got  types.MediaType
	Want types.MediaType
}

func (e *UnsupportedMediaTypeError) Error() string {
	return fmt.Sprintf("unsupported media type %q, address expects %q", e.Got, e.Want)
}

// DataURI is the decoded form of a "data:" entity id.
type DataURI struct {
	MediaType types.MediaType
	Payload   []byte
}

// ParseDataURI decodes a data URI of the form
// "data:<media>[;base64],<payload>".
func ParseDataURI(uri string) (*DataURI, error) {
	body, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, &InvalidDataURIError{URI: uri, Reason: "missing data: scheme"}
	}
	meta, payload, ok := strings.Cut(body, ",")
	if !ok {
		return nil, &InvalidDataURIError{URI: uri, Reason: "missing payload separator"}
	}
	media, encoded := meta, false
	if trimmed, found := strings.CutSuffix(meta, ";base64"); found {
		media, encoded = trimmed, true
	}
	if media == "" {
		media = "text/plain"
	}
	data := []byte(payload)
	if encoded {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, &InvalidDataURIError{URI: uri, Reason: "bad base64 payload"}
		}
		data = decoded
	}
	return &DataURI{MediaType: types.MediaType(media), Payload: data}, nil
}

// DecodeDataValue parses a data URI and unmarshals its JSON payload,
// enforcing that the URI's media type matches the address's type.
func DecodeDataValue(uri string, want types.MediaType) (any, error) {
	parsed, err := ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	if parsed.MediaType != want {
		return nil, &UnsupportedMediaTypeError{Got: parsed.MediaType, Want: want}
	}
	if want != types.ApplicationJSON {
		return nil, &UnsupportedMediaTypeError{Got: parsed.MediaType, Want: types.ApplicationJSON}
	}
	var value any
	if err := json.Unmarshal(parsed.Payload, &value); err != nil {
		return nil, &InvalidDataURIError{URI: uri, Reason: "payload is not valid JSON"}
	}
	return value, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
