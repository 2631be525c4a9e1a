package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
		want  string
		found bool
	}{
		{name: "first sibling wins", doc: `{"a":{"x":1},"b":{"x":2}}`, field: "x", want: "1", found: true},
		{name: "direct ownership beats nested", doc: `{"a":{"x":2},"x":1}`, field: "x", want: "1", found: true},
		{name: "shallow first", doc: `{"x":1,"a":{"x":2}}`, field: "x", want: "1", found: true},
		{name: "deep in first branch beats shallow in second", doc: `{"a":{"b":{"c":{"x":"deep"}}},"d":{"x":"shallow"}}`, field: "x", want: `"deep"`, found: true},
		{name: "null is skipped", doc: `{"x":null,"a":{"x":"nested"}}`, field: "x", want: `"nested"`, found: true},
		{name: "empty string counts", doc: `{"x":"","a":{"x":"nested"}}`, field: "x", want: `""`, found: true},
		{name: "false counts", doc: `{"a":{"x":false}}`, field: "x", want: "false", found: true},
		{name: "composite value returned", doc: `{"a":{"x":{"k":[1,2]}}}`, field: "x", want: `{"k":[1,2]}`, found: true},
		{name: "array elements searched in order", doc: `{"list":[{"y":1},{"x":"first"},{"x":"second"}]}`, field: "x", want: `"first"`, found: true},
		{name: "nested arrays", doc: `[[{"x":7}]]`, field: "x", want: "7", found: true},
		{name: "array index is not a field", doc: `{"a":["zero","one"]}`, field: "0", found: false},
		{name: "scalar root", doc: `"x"`, field: "x", found: false},
		{name: "number root", doc: `42`, field: "x", found: false},
		{name: "missing", doc: `{"a":{"b":1}}`, field: "x", found: false},
		{name: "only null", doc: `{"x":null,"a":{"x":null}}`, field: "x", found: false},
		{name: "duplicate key last wins", doc: `{"x":1,"x":2}`, field: "x", want: "2", found: true},
		{name: "duplicate key keeps first position", doc: `{"a":{"x":"a"},"b":{"x":"b"},"a":{"y":0}}`, field: "x", want: `"b"`, found: true},
		{name: "escaped key", doc: `{"\u0061b":1}`, field: "ab", want: "1", found: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(gjson.Parse(tt.doc), tt.field)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got.Raw)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	doc := gjson.Parse(`{"m":{"n":[{"x":3}]},"o":{"x":4},"p":{"y":{"x":5}}}`)
	first, ok := Resolve(doc, "x")
	assert.True(t, ok)
	for i := 0; i < 50; i++ {
		got, ok := Resolve(doc, "x")
		assert.True(t, ok)
		assert.Equal(t, first.Raw, got.Raw)
	}
	// Unrelated lookups in between do not change the outcome.
	Resolve(doc, "y")
	got, _ := Resolve(doc, "x")
	assert.Equal(t, "3", got.Raw)
}

func TestResolver_Aliases(t *testing.T) {
	r := New(map[string][]string{
		"company_name": {"name", "company"},
	})

	doc := gjson.Parse(`{"meta":{"company":"Acme Holdings"},"profile":{"name":"Acme"}}`)
	got, ok := r.Resolve(doc, "company_name")
	assert.True(t, ok)
	// Aliases are tried in declared order, each as a full search.
	assert.Equal(t, `"Acme"`, got.Raw)

	doc = gjson.Parse(`{"deep":{"deeper":{"company_name":"Canonical"}},"name":"Alias"}`)
	got, ok = r.Resolve(doc, "company_name")
	assert.True(t, ok)
	assert.Equal(t, `"Canonical"`, got.Raw)

	_, ok = r.Resolve(gjson.Parse(`{"other":1}`), "company_name")
	assert.False(t, ok)
}

func TestResolver_NilTable(t *testing.T) {
	r := New(nil)
	got, ok := r.Resolve(gjson.Parse(`{"x":1}`), "x")
	assert.True(t, ok)
	assert.Equal(t, "1", got.Raw)
}
