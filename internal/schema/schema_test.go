package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "1", s.Version)
	require.Len(t, s.Sections, 4)
	assert.Equal(t, "overview", s.Sections[0].ID)
	assert.Equal(t, "sales_gtm", s.Sections[3].ID)
	assert.Empty(t, s.UnmappedFields())
	assert.Greater(t, s.FieldCount(), 15)
}

func TestSubsection_FieldNames(t *testing.T) {
	sub := Subsection{
		Kind:    "key_value",
		Fields:  []string{"a"},
		Columns: [][]string{{"b", "c"}, {"d"}},
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, sub.FieldNames())
	assert.Empty(t, Subsection{Kind: "text"}.FieldNames())
}

func TestSchema_TypeDefault(t *testing.T) {
	s := &Schema{Fields: map[string]FieldMapping{
		"s":   {Type: TypeString},
		"t":   {Type: TypeText},
		"a":   {Type: TypeArray},
		"o":   {Type: TypeObject},
		"n":   {Type: TypeNumber},
		"b":   {Type: TypeBoolean},
		"odd": {Type: "uuid"},
	}}

	tests := map[string]string{
		"s":       `""`,
		"t":       `""`,
		"a":       `[]`,
		"o":       `{}`,
		"n":       `null`,
		"b":       `null`,
		"odd":     `null`,
		"missing": `null`,
	}
	for field, want := range tests {
		assert.Equal(t, want, string(s.TypeDefault(field)), field)
	}
}

func TestSchema_Aliases(t *testing.T) {
	s := &Schema{Fields: map[string]FieldMapping{
		"company_name": {Type: TypeString, Aliases: []string{"name", "company"}},
		"summary":      {Type: TypeText},
	}}

	aliases := s.Aliases()
	assert.Equal(t, []string{"name", "company"}, aliases["company_name"])
	_, ok := aliases["summary"]
	assert.False(t, ok)

	// Returned slices are copies.
	aliases["company_name"][0] = "changed"
	assert.Equal(t, "name", s.Fields["company_name"].Aliases[0])
}

func TestSchema_UnmappedFields(t *testing.T) {
	s := &Schema{
		Sections: []Section{
			{ID: "a", Subsections: []Subsection{{Fields: []string{"x", "ghost"}}}},
			{ID: "b", Subsections: []Subsection{{Columns: [][]string{{"ghost", "phantom"}}}}},
		},
		Fields: map[string]FieldMapping{"x": {Type: TypeString}},
	}
	assert.Equal(t, []string{"ghost", "phantom"}, s.UnmappedFields())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad yaml",
			doc:  "sections: [",
			want: "parse yaml",
		},
		{
			name: "missing fields table",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: text
        fields: [x]
`,
			want: "invalid document",
		},
		{
			name: "unknown kind",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: carousel
        fields: [x]
fields: {}
`,
			want: "invalid document",
		},
		{
			name: "unknown field type",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: text
        fields: [x]
fields:
  x: {type: date}
`,
			want: "invalid document",
		},
		{
			name: "duplicate section",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: text
        fields: [x]
  - id: a
    title: Again
    subsections:
      - kind: text
        fields: [y]
fields: {}
`,
			want: "duplicate section id",
		},
		{
			name: "empty subsection",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: text
        fields: []
fields: {}
`,
			want: "declares no fields",
		},
		{
			name: "alias shadows field",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: text
        fields: [x, y]
fields:
  x: {type: string, aliases: [y]}
  y: {type: string}
`,
			want: "shadows a declared field",
		},
		{
			name: "alias claimed twice",
			doc: `
version: "1"
sections:
  - id: a
    title: A
    subsections:
      - kind: text
        fields: [x, y]
fields:
  x: {type: string, aliases: [z]}
  y: {type: string, aliases: [z]}
`,
			want: "claimed by both",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.yaml")
	doc := `
version: "2"
sections:
  - id: brief
    title: Brief
    subsections:
      - kind: two_column
        columns:
          - [left]
          - [right]
fields:
  left: {type: array}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", s.Version)
	assert.Equal(t, []string{"left", "right"}, s.Sections[0].FieldNames())
	assert.Equal(t, []string{"right"}, s.UnmappedFields())
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "overview", s.Sections[0].ID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema: read")
}
