package attestation

import (
	"reflect"

	"github.com/commontoolsinc/loom/pkg/types"
)

// Write produces a new attestation whose value has v at path. The
// original value is never mutated: containers along the affected path
// are cloned, untouched sub-trees are shared. Writing nil deletes the
// final property; writing a value equal to the current one returns the
// receiver unchanged.
func (a Attestation) Write(path types.Path, v any) (Attestation, error) {
	current, err := resolve(a.Address, a.Value, path)
	if err == nil && reflect.DeepEqual(current, v) {
		return a, nil
	}
	next, err := write(a.Address, a.Value, path, v)
	if err != nil {
		return Attestation{}, err
	}
	return Attestation{Address: a.Address, Value: next}, nil
}

func write(address types.Address, value any, path types.Path, v any) (any, error) {
	if len(path) == 0 {
		return v, nil
	}
	segment, rest := path[0], path[1:]
	prefix := address.Path

	switch container := value.(type) {
	case map[string]any:
		if len(rest) == 0 {
			return writeObjectLeaf(container, segment, v), nil
		}
		next, found := container[segment]
		if !found {
			return nil, &NotFoundError{Address: address.At(path...), Prefix: prefix}
		}
		child, err := write(address.At(segment), next, rest, v)
		if err != nil {
			return nil, err
		}
		out := cloneObject(container)
		out[segment] = child
		return out, nil
	case []any:
		if segment == types.LengthSegment {
			if len(rest) != 0 {
				return nil, &TypeMismatchError{
					Address: address.At(path...),
					Prefix:  prefix.Append(segment),
					Actual:  "number",
				}
			}
			return writeLength(address, container, path, v)
		}
		index, ok := types.Index(segment)
		if !ok {
			return nil, &TypeMismatchError{
				Address: address.At(path...),
				Prefix:  prefix,
				Actual:  JSONType(container),
			}
		}
		if len(rest) == 0 {
			return writeArrayLeaf(container, index, v), nil
		}
		if index >= len(container) {
			return nil, &NotFoundError{Address: address.At(path...), Prefix: prefix}
		}
		child, err := write(address.At(segment), container[index], rest, v)
		if err != nil {
			return nil, err
		}
		out := cloneArray(container)
		out[index] = child
		return out, nil
	default:
		return nil, &TypeMismatchError{
			Address: address.At(path...),
			Prefix:  prefix,
			Actual:  JSONType(value),
		}
	}
}

func writeObjectLeaf(container map[string]any, key string, v any) map[string]any {
	out := cloneObject(container)
	if v == nil {
		delete(out, key)
	} else {
		out[key] = v
	}
	return out
}

func writeArrayLeaf(container []any, index int, v any) []any {
	if index >= len(container) {
		if v == nil {
			// Deleting past the end leaves the array untouched.
			return container
		}
		out := make([]any, index+1)
		copy(out, container)
		out[index] = v
		return out
	}
	out := cloneArray(container)
	out[index] = v
	return out
}

func writeLength(address types.Address, container []any, path types.Path, v any) (any, error) {
	length, ok := asLength(v)
	if !ok {
		return nil, &TypeMismatchError{
			Address: address.At(path...),
			Prefix:  address.Path.Append(path...),
			Actual:  JSONType(v),
		}
	}
	if length == len(container) {
		return container, nil
	}
	out := make([]any, length)
	copy(out, container)
	return out, nil
}

func asLength(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		if i, isInt := v.(int); isInt {
			f, ok = float64(i), true
		}
	}
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func cloneObject(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneArray(in []any) []any {
	out := make([]any, len(in))
	copy(out, in)
	return out
}
