package templates

import (
	"errors"
	"fmt"
	"strings"
)

type DocumentType string

const (
	TypeLease           DocumentType = "lease"
	TypeAgreement       DocumentType = "agreement"
	TypePowerOfAttorney DocumentType = "power-of-attorney"
)

// FieldKind hints which extraction heuristics apply to a field.
type FieldKind string

const (
	KindPerson  FieldKind = "person"
	KindAmount  FieldKind = "amount"
	KindAddress FieldKind = "address"
	KindPeriod  FieldKind = "period"
	KindDate    FieldKind = "date"
	KindText    FieldKind = "text"
)

var ErrTemplateNotFound = errors.New("template not found")

// Field is one document parameter. Name is the canonical Korean key,
// Variable the identifier used inside the HTML template.
type Field struct {
	Name        string    `json:"name"`
	Variable    string    `json:"variable"`
	Required    bool      `json:"required"`
	Kind        FieldKind `json:"kind"`
	Aliases     []string  `json:"aliases,omitempty"`
	Description string    `json:"description,omitempty"`
}

type Schema struct {
	Type        DocumentType `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Keywords    []string     `json:"keywords"`
	Tags        []string     `json:"tags"`
	Fields      []Field      `json:"fields"`
}

// RequiredKeys returns the canonical names of required fields in declaration order.
func (s *Schema) RequiredKeys() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.Required {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

func (s *Schema) OptionalKeys() []string {
	var keys []string
	for _, f := range s.Fields {
		if !f.Required {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// KeyMapping maps every canonical name to its template variable.
func (s *Schema) KeyMapping() map[string]string {
	m := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = f.Variable
	}
	return m
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Resolve finds the field a user-facing label refers to. Labels may be the
// canonical name, the template variable or one of the aliases.
func (s *Schema) Resolve(label string) (Field, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == label || strings.EqualFold(f.Variable, label) {
			return f, true
		}
		for _, a := range f.Aliases {
			if a == label {
				return f, true
			}
		}
	}
	return Field{}, false
}

// Missing lists required keys with no value in collected, in declaration order.
func (s *Schema) Missing(collected map[string]string) []string {
	var missing []string
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if collected[f.Name] == "" && collected[f.Variable] == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Narrow returns a copy restricted to the named fields, all marked required.
func (s *Schema) Narrow(names []string) *Schema {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := s.Clone()
	out.Fields = out.Fields[:0]
	for _, f := range s.Fields {
		if want[f.Name] {
			f.Required = true
			f.Aliases = append([]string(nil), f.Aliases...)
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

func (s *Schema) Clone() *Schema {
	out := *s
	out.Keywords = append([]string(nil), s.Keywords...)
	out.Tags = append([]string(nil), s.Tags...)
	out.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		f.Aliases = append([]string(nil), f.Aliases...)
		out.Fields[i] = f
	}
	return &out
}

func (s *Schema) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("schema has no type")
	}
	if len(s.RequiredKeys()) == 0 {
		return fmt.Errorf("schema %s has no required fields", s.Type)
	}
	names := make(map[string]bool)
	vars := make(map[string]bool)
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s has a field without a name", s.Type)
		}
		if f.Variable == "" {
			return fmt.Errorf("schema %s: field %s has no template variable", s.Type, f.Name)
		}
		if names[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %s", s.Type, f.Name)
		}
		if vars[f.Variable] {
			return fmt.Errorf("schema %s: duplicate variable %s", s.Type, f.Variable)
		}
		names[f.Name] = true
		vars[f.Variable] = true
	}
	return nil
}
