package attestation

import (
	"github.com/commontoolsinc/loom/pkg/types"
)

// Attestation pairs an address with the value that address resolves
// to. It is the unit of transactional claim: reads return attestations
// and writes produce new ones without mutating the prior value.
type Attestation struct {
	Address types.Address
	Value   any
}

// New builds an attestation for the whole fact value at an address.
func New(address types.Address, value any) Attestation {
	return Attestation{Address: address, Value: value}
}

// Read resolves a further path under the attestation, returning an
// attestation for the sub-value. An empty path returns the receiver.
// A missing final key succeeds with a nil value; a missing or
// mistyped intermediate step fails naming the last valid prefix.
func (a Attestation) Read(path types.Path) (Attestation, error) {
	if len(path) == 0 {
		return a, nil
	}
	value, err := resolve(a.Address, a.Value, path)
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{Address: a.Address.At(path...), Value: value}, nil
}

// resolve walks value down path. The address is the base the walk
// started from; error prefixes are relative to the fact root.
func resolve(address types.Address, value any, path types.Path) (any, error) {
	current := value
	for i, segment := range path {
		prefix := address.Path.Append(path[:i]...)
		final := i == len(path)-1
		switch container := current.(type) {
		case map[string]any:
			next, found := container[segment]
			if !found {
				if final {
					return nil, nil
				}
				return nil, &NotFoundError{Address: address.At(path...), Prefix: prefix}
			}
			current = next
		case []any:
			if segment == types.LengthSegment {
				if !final {
					return nil, &TypeMismatchError{
						Address: address.At(path...),
						Prefix:  prefix.Append(segment),
						Actual:  "number",
					}
				}
				return float64(len(container)), nil
			}
			index, ok := types.Index(segment)
			if !ok {
				return nil, &TypeMismatchError{
					Address: address.At(path...),
					Prefix:  prefix,
					Actual:  JSONType(container),
				}
			}
			if index >= len(container) {
				if final {
					// Reading past the end is not an error.
					return nil, nil
				}
				return nil, &NotFoundError{Address: address.At(path...), Prefix: prefix}
			}
			current = container[index]
		default:
			if current == nil {
				// Nothing resolves below an absent value.
				return nil, &NotFoundError{Address: address.At(path...), Prefix: prefix}
			}
			return nil, &TypeMismatchError{
				Address: address.At(path...),
				Prefix:  prefix,
				Actual:  JSONType(current),
			}
		}
	}
	return current, nil
}

// JSONType names the JSON type of a Go value for error reporting.
func JSONType(value any) string {
	switch value.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
