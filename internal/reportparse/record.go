package reportparse

import (
	"maps"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cast"
)

// Record is the schemaless report object returned by the model. Every field
// is optional; accessors return zero values for anything absent.
type Record struct {
	fields   map[string]any
	degraded bool
}

func NewRecord(fields map[string]any) Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return Record{fields: fields}
}

// RecordFromJSON restores a stored record. degraded is the flag persisted
// next to it; the JSON alone cannot tell a placeholder from model output.
func RecordFromJSON(data []byte, degraded bool) (Record, error) {
	fields, err := strictParse(string(data))
	if err != nil {
		return Record{}, err
	}
	rec := NewRecord(fields)
	rec.degraded = degraded
	return rec, nil
}

func newDegradedRecord(fields map[string]any) Record {
	rec := NewRecord(fields)
	rec.degraded = true
	return rec
}

// Map returns a shallow copy of the top-level fields.
func (r Record) Map() map[string]any {
	return maps.Clone(r.fields)
}

// Get resolves a dotted path such as "components.airConditioner.status".
func (r Record) Get(path string) (any, bool) {
	var cur any = r.fields
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the scalar at path as text. Objects, arrays and null yield "".
func (r Record) String(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	switch v.(type) {
	case map[string]any, []any, nil:
		return ""
	}
	return cast.ToString(v)
}

// Degraded reports whether the record is a parse-failure placeholder. Model
// output that happens to contain a rawContent key is not degraded.
func (r Record) Degraded() bool {
	return r.degraded
}

// RawText is the original completion kept by a degraded record.
func (r Record) RawText() string {
	if !r.degraded {
		return ""
	}
	return r.String(KeyRawContent)
}

func (r Record) JSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(r.fields)
}
