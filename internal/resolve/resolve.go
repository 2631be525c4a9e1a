// Package resolve finds named values inside arbitrarily nested JSON.
//
// The search is depth-first and order sensitive. An object that directly
// owns the field with a non-null value wins before any of its children are
// visited. Otherwise children are searched in document order, each one fully
// before the next sibling, and the first hit short-circuits. Arrays own no
// named fields; they are only descended into.
package resolve

import (
	"github.com/tidwall/gjson"
)

// Resolve returns the first value named field in doc, or false.
func Resolve(doc gjson.Result, field string) (gjson.Result, bool) {
	switch {
	case doc.IsObject():
		kids := members(doc)
		for _, m := range kids {
			if m.key == field && m.val.Type != gjson.Null {
				return m.val, true
			}
		}
		for _, m := range kids {
			if v, ok := descend(m.val, field); ok {
				return v, true
			}
		}
	case doc.IsArray():
		var hit gjson.Result
		var found bool
		doc.ForEach(func(_, v gjson.Result) bool {
			hit, found = descend(v, field)
			return !found
		})
		return hit, found
	}
	return gjson.Result{}, false
}

func descend(v gjson.Result, field string) (gjson.Result, bool) {
	if !v.IsObject() && !v.IsArray() {
		return gjson.Result{}, false
	}
	return Resolve(v, field)
}

type member struct {
	key string
	val gjson.Result
}

// members lists an object's properties in document order. A repeated key
// keeps the position of its first occurrence and the value of its last, the
// same view encoding/json gives when decoding into a map.
func members(obj gjson.Result) []member {
	var out []member
	idx := make(map[string]int)
	obj.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		if i, ok := idx[key]; ok {
			out[i].val = v
			return true
		}
		idx[key] = len(out)
		out = append(out, member{key: key, val: v})
		return true
	})
	return out
}

// Resolver resolves fields through an alias table. Each canonical field is
// tried first under its own name, then under each alias in declared order,
// every attempt being a full search of the document.
type Resolver struct {
	aliases map[string][]string
}

// New creates a Resolver. A nil table resolves canonical names only.
func New(aliases map[string][]string) *Resolver {
	return &Resolver{aliases: aliases}
}

// Resolve looks up field and then its aliases in doc.
func (r *Resolver) Resolve(doc gjson.Result, field string) (gjson.Result, bool) {
	if v, ok := Resolve(doc, field); ok {
		return v, true
	}
	for _, alias := range r.aliases[field] {
		if v, ok := Resolve(doc, alias); ok {
			return v, true
		}
	}
	return gjson.Result{}, false
}
