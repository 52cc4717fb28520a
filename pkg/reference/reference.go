package reference

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/commontoolsinc/loom/pkg/types"
)

// refPrefix tags rendered references so they are recognisable in logs
// and wire payloads.
const refPrefix = "ref:"

// Refer computes the stable content hash of a value. Two values that
// normalise to the same canonical form produce the same reference
// regardless of key order, integer/float representation, or nil-valued
// object entries.
func Refer(value any) types.Reference {
	sum := sha256.Sum256(canonical(value))
	return types.Reference(refPrefix + hex.EncodeToString(sum[:]))
}

// ReferFact computes the hash identifying a fact: the canonical hash
// of its wire form { the, of, is?, cause? }.
func ReferFact(fact types.Fact) types.Reference {
	form := map[string]any{
		"the": string(fact.The),
		"of":  string(fact.Of),
	}
	if fact.Is != nil {
		form["is"] = fact.Is
	}
	if fact.Cause != "" {
		form["cause"] = string(fact.Cause)
	}
	return Refer(form)
}

// Normalize returns the canonical shape of a value: object entries
// with nil values removed, numbers widened to float64, and link sigils
// reduced to their identifying (id, path, space) tuple. Normalize is
// idempotent.
func Normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if link, ok := ParseLink(v); ok {
			return link.identity()
		}
		out := make(map[string]any, len(v))
		for key, entry := range v {
			if entry == nil {
				continue
			}
			out[key] = Normalize(entry)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			// Array slots cannot be dropped; a nil entry stays null.
			if entry == nil {
				out[i] = nil
				continue
			}
			out[i] = Normalize(entry)
		}
		return out
	default:
		return normalizeScalar(v)
	}
}

func normalizeScalar(value any) any {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	default:
		return v
	}
}

// canonical renders the normalised value with sorted object keys and
// minimal number formatting, suitable for hashing.
func canonical(value any) []byte {
	var buf bytes.Buffer
	encodeCanonical(&buf, Normalize(value))
	return buf.Bytes()
}

func encodeCanonical(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case float64:
		encodeNumber(buf, v)
	case string:
		encoded, _ := json.Marshal(v)
		buf.Write(encoded)
	case []any:
		buf.WriteByte('[')
		for i, entry := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeCanonical(buf, entry)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encoded, _ := json.Marshal(key)
			buf.Write(encoded)
			buf.WriteByte(':')
			encodeCanonical(buf, v[key])
		}
		buf.WriteByte('}')
	default:
		// Values outside the JSON model hash by their printed form.
		encoded, _ := json.Marshal(fmt.Sprintf("%v", v))
		buf.Write(encoded)
	}
}

func encodeNumber(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteString("null")
		return
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}
