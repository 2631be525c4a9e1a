package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

//go:embed schema.json
var documentSchema []byte

var compiled *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(documentSchema)); err != nil {
		panic(eris.Wrap(err, "schema: add document schema"))
	}
	compiled = compiler.MustCompile("schema.json")
}

// Default returns the embedded report schema.
func Default() (*Schema, error) {
	return Parse(defaultDocument)
}

// Load reads a schema document from path. An empty path loads the embedded
// default.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: load %s", path)
	}
	return s, nil
}

// Parse decodes a YAML schema document, validates its structure and checks
// that section ids and aliases are unambiguous.
func Parse(data []byte) (*Schema, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "schema: parse yaml")
	}

	// The validator expects encoding/json shaped values.
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, eris.Wrap(err, "schema: convert yaml")
	}
	var doc any
	if err := json.Unmarshal(js, &doc); err != nil {
		return nil, eris.Wrap(err, "schema: convert yaml")
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, eris.Wrap(err, "schema: invalid document")
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "schema: decode")
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) check() error {
	ids := make(map[string]bool, len(s.Sections))
	for _, sec := range s.Sections {
		if ids[sec.ID] {
			return eris.Errorf("schema: duplicate section id %q", sec.ID)
		}
		ids[sec.ID] = true
		for i, sub := range sec.Subsections {
			if len(sub.FieldNames()) == 0 {
				return eris.Errorf("schema: section %q subsection %d declares no fields", sec.ID, i)
			}
		}
	}

	owner := make(map[string]string)
	for name, fm := range s.Fields {
		for _, alias := range fm.Aliases {
			if _, ok := s.Fields[alias]; ok {
				return eris.Errorf("schema: alias %q of field %q shadows a declared field", alias, name)
			}
			if prev, ok := owner[alias]; ok && prev != name {
				return eris.Errorf("schema: alias %q claimed by both %q and %q", alias, prev, name)
			}
			owner[alias] = name
		}
	}
	return nil
}
