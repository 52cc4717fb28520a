package schema

import (
	"bytes"
	"encoding/json"
)

// Schema is the JSON-schema subset the runtime understands. Boolean
// schemas ("true" accepts everything, "false" nothing) are modelled
// explicitly so they survive round-trips.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	PrefixItems          []*Schema          `json:"prefixItems,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Defs                 map[string]*Schema `json:"$defs,omitempty"`
	AnyOf                []*Schema          `json:"anyOf,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`

	// Annotations. These never affect validation; they direct how the
	// runtime materialises reads and labels flows.
	AsCell   bool `json:"asCell,omitempty"`
	AsStream bool `json:"asStream,omitempty"`
	IFC      *IFC `json:"ifc,omitempty"`

	boolean *bool
}

// IFC attaches classification labels to the position the schema
// describes.
type IFC struct {
	Classification []string `json:"classification,omitempty"`
}

// True returns the schema accepting every value.
func True() *Schema {
	t := true
	return &Schema{boolean: &t}
}

// False returns the schema accepting no value.
func False() *Schema {
	f := false
	return &Schema{boolean: &f}
}

// IsTrue reports whether the schema accepts everything, ignoring
// internal annotations (asCell, asStream, ifc).
func (s *Schema) IsTrue() bool {
	if s == nil {
		return true
	}
	if s.boolean != nil {
		return *s.boolean
	}
	return s.Type == "" && len(s.Properties) == 0 && s.AdditionalProperties == nil &&
		s.Items == nil && len(s.PrefixItems) == 0 && len(s.Required) == 0 &&
		s.Ref == "" && len(s.AnyOf) == 0 && len(s.OneOf) == 0
}

// IsFalse reports whether the schema rejects everything.
func (s *Schema) IsFalse() bool {
	return s != nil && s.boolean != nil && !*s.boolean
}

// MarshalJSON renders boolean schemas as JSON booleans.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s.boolean != nil {
		return json.Marshal(*s.boolean)
	}
	type plain Schema
	return json.Marshal((*plain)(s))
}

// UnmarshalJSON accepts both boolean and object schemas.
func (s *Schema) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("true")) {
		t := true
		*s = Schema{boolean: &t}
		return nil
	}
	if bytes.Equal(trimmed, []byte("false")) {
		f := false
		*s = Schema{boolean: &f}
		return nil
	}
	type plain Schema
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Schema(p)
	return nil
}

// Parse decodes a schema from its JSON form. A nil input yields the
// true schema.
func Parse(raw any) (*Schema, error) {
	if raw == nil {
		return True(), nil
	}
	if s, ok := raw.(*Schema); ok {
		return s, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Form returns the canonical JSON encoding of the schema, used to
// dedupe anyOf branches.
func (s *Schema) Form() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(data)
}
