package research

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/sells-group/prospector/internal/model"
)

// Merge shallow-merges step outputs in order. Top-level keys keep the
// position where they first appeared and take the value of the last step
// that produced them. An output that is not an object is kept under its
// step name.
func Merge(results []model.StepResult) json.RawMessage {
	var keys []string
	values := make(map[string]json.RawMessage)

	set := func(key string, raw json.RawMessage) {
		if _, ok := values[key]; !ok {
			keys = append(keys, key)
		}
		values[key] = raw
	}

	for _, r := range results {
		doc := gjson.ParseBytes(r.Output)
		if !doc.IsObject() {
			if len(bytes.TrimSpace(r.Output)) > 0 {
				set(string(r.Step), r.Output)
			}
			continue
		}
		doc.ForEach(func(k, v gjson.Result) bool {
			set(k.String(), json.RawMessage(v.Raw))
			return true
		})
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}
