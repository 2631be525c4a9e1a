// Package canonical maps merged research output onto the fixed report shape
// declared by a schema.
package canonical

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/tidwall/gjson"

	"github.com/sells-group/prospector/internal/resolve"
	"github.com/sells-group/prospector/internal/schema"
)

// FieldValue is one field slot of a report.
type FieldValue struct {
	Name     string
	Value    json.RawMessage
	Resolved bool
}

// SectionValues holds a section's fields in schema order.
type SectionValues struct {
	ID     string
	Title  string
	Fields []FieldValue
}

// Report is a canonical report. It marshals to
// {"<section id>": {"<field>": <value>}} in schema order.
type Report struct {
	Sections []SectionValues
}

// Map builds the report for merged. Every field the schema declares is
// present: resolved values are copied verbatim (compacted) and unresolved
// ones take the type default. Output depends only on the schema and merged.
func Map(s *schema.Schema, merged json.RawMessage) *Report {
	var doc gjson.Result
	if gjson.ValidBytes(merged) {
		doc = gjson.ParseBytes(merged)
	}
	r := resolve.New(s.Aliases())

	report := &Report{Sections: make([]SectionValues, 0, len(s.Sections))}
	for _, sec := range s.Sections {
		sv := SectionValues{ID: sec.ID, Title: sec.Title}
		seen := make(map[string]bool)
		for _, name := range sec.FieldNames() {
			if seen[name] {
				continue
			}
			seen[name] = true

			fv := FieldValue{Name: name, Value: s.TypeDefault(name)}
			if v, ok := r.Resolve(doc, name); ok {
				if raw, err := compact(v.Raw); err == nil {
					fv.Value = raw
					fv.Resolved = true
				}
			}
			sv.Fields = append(sv.Fields, fv)
		}
		report.Sections = append(report.Sections, sv)
	}
	return report
}

func compact(raw string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON writes sections and fields in schema order.
func (r *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sec := range r.Sections {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, sec.ID); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, f := range sec.Fields {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, f.Name); err != nil {
				return nil, err
			}
			buf.Write(f.Value)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores sections and fields in document order. Titles and
// resolution flags are not part of the JSON form and stay zero.
func (r *Report) UnmarshalJSON(data []byte) error {
	doc := gjson.ParseBytes(data)
	if doc.Type == gjson.Null {
		return nil
	}
	if !doc.IsObject() {
		return &json.UnmarshalTypeError{Value: doc.Type.String(), Type: reflect.TypeOf(r)}
	}

	r.Sections = nil
	var err error
	doc.ForEach(func(id, fields gjson.Result) bool {
		if !fields.IsObject() {
			err = &json.UnmarshalTypeError{Value: fields.Type.String(), Type: reflect.TypeOf(r), Field: id.String()}
			return false
		}
		sv := SectionValues{ID: id.String()}
		fields.ForEach(func(name, value gjson.Result) bool {
			var raw json.RawMessage
			if raw, err = compact(value.Raw); err != nil {
				return false
			}
			sv.Fields = append(sv.Fields, FieldValue{Name: name.String(), Value: raw})
			return true
		})
		r.Sections = append(r.Sections, sv)
		return err == nil
	})
	return err
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// Get returns the value of field in section.
func (r *Report) Get(section, field string) (json.RawMessage, bool) {
	for _, sec := range r.Sections {
		if sec.ID != section {
			continue
		}
		for _, f := range sec.Fields {
			if f.Name == field {
				return f.Value, true
			}
		}
	}
	return nil, false
}

// Missing lists "section.field" for every slot that fell back to its default.
func (r *Report) Missing() []string {
	var out []string
	for _, sec := range r.Sections {
		for _, f := range sec.Fields {
			if !f.Resolved {
				out = append(out, sec.ID+"."+f.Name)
			}
		}
	}
	return out
}

// Coverage is the fraction of slots resolved from source data.
func (r *Report) Coverage() float64 {
	total, resolved := 0, 0
	for _, sec := range r.Sections {
		for _, f := range sec.Fields {
			total++
			if f.Resolved {
				resolved++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(resolved) / float64(total)
}
