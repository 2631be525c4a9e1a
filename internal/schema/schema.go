// Package schema describes the fixed shape of a canonical research report:
// ordered sections, their subsections, and the declared type and aliases of
// every field.
package schema

import (
	"encoding/json"
)

// Field types recognized for default values.
const (
	TypeString  = "string"
	TypeText    = "text"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Schema is the loaded report schema. It is read-only after Load.
type Schema struct {
	Version  string                  `yaml:"version" json:"version"`
	Sections []Section               `yaml:"sections" json:"sections"`
	Fields   map[string]FieldMapping `yaml:"fields" json:"fields"`
}

// Section is one top-level part of the report.
type Section struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Subsections []Subsection `yaml:"subsections" json:"subsections"`
}

// Subsection names the fields one presentation block needs. Columns groups
// fields side by side; it is flattened after Fields.
type Subsection struct {
	Kind    string     `yaml:"kind" json:"kind"`
	Title   string     `yaml:"title,omitempty" json:"title,omitempty"`
	Fields  []string   `yaml:"fields,omitempty" json:"fields,omitempty"`
	Columns [][]string `yaml:"columns,omitempty" json:"columns,omitempty"`
}

// FieldMapping declares a field's type and the alternate names it may appear
// under in upstream output, in lookup order.
type FieldMapping struct {
	Type    string   `yaml:"type" json:"type"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// FieldNames flattens the subsection into declaration order: fields first,
// then each column top to bottom.
func (s Subsection) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	names = append(names, s.Fields...)
	for _, col := range s.Columns {
		names = append(names, col...)
	}
	return names
}

// FieldNames returns every field of the section in declaration order.
func (s Section) FieldNames() []string {
	var names []string
	for _, sub := range s.Subsections {
		names = append(names, sub.FieldNames()...)
	}
	return names
}

// FieldCount is the total number of field slots across all sections.
func (s *Schema) FieldCount() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.FieldNames())
	}
	return n
}

// TypeDefault returns the JSON value used when field cannot be resolved.
// Unknown fields default to null.
func (s *Schema) TypeDefault(field string) json.RawMessage {
	fm, ok := s.Fields[field]
	if !ok {
		return json.RawMessage("null")
	}
	switch fm.Type {
	case TypeString, TypeText:
		return json.RawMessage(`""`)
	case TypeArray:
		return json.RawMessage("[]")
	case TypeObject:
		return json.RawMessage("{}")
	default:
		return json.RawMessage("null")
	}
}

// Aliases returns the alias table keyed by canonical field name. Fields
// without aliases are omitted.
func (s *Schema) Aliases() map[string][]string {
	out := make(map[string][]string)
	for name, fm := range s.Fields {
		if len(fm.Aliases) > 0 {
			out[name] = append([]string(nil), fm.Aliases...)
		}
	}
	return out
}

// UnmappedFields lists fields referenced by a subsection but missing from
// the field table, in first-reference order. They always default to null.
func (s *Schema) UnmappedFields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sec := range s.Sections {
		for _, name := range sec.FieldNames() {
			if _, ok := s.Fields[name]; ok || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
