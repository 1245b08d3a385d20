// Package document holds the JSON document model shared by the key-value
// backed stores: encoding, predicate matching, patching and key derivation.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wencestudios/freelancehub/internal/domain"
)

var jsonNull = json.RawMessage("null")

// Doc is a document split into its top-level fields.
type Doc map[string]json.RawMessage

// Encode converts v into a Doc. v must encode to a JSON object.
func Encode(v any) (Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return Parse(raw)
}

// Parse splits a stored JSON object into a Doc.
func Parse(raw []byte) (Doc, error) {
	var d Doc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return d, nil
}

// Bytes encodes d back to a JSON object.
func (d Doc) Bytes() ([]byte, error) {
	return json.Marshal(d)
}

// Decode unmarshals d into out.
func (d Doc) Decode(out any) error {
	raw, err := d.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Clone returns a shallow copy; raw field values are never mutated in place.
func (d Doc) Clone() Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Field returns the raw JSON of field, null when absent.
func (d Doc) Field(field string) json.RawMessage {
	if v, ok := d[field]; ok {
		return v
	}
	return jsonNull
}

// Canonical returns the compact JSON encoding used for comparisons and keys.
func Canonical(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return raw, nil
}

// Matches reports whether d satisfies every condition in f.
func (d Doc) Matches(f domain.Filter) (bool, error) {
	for _, c := range f {
		ok, err := d.matchCond(c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (d Doc) matchCond(c domain.Cond) (bool, error) {
	have := d.Field(c.Field)
	switch c.Op {
	case domain.OpEq, domain.OpNe:
		want, err := Canonical(c.Value)
		if err != nil {
			return false, err
		}
		eq := bytes.Equal(have, want)
		if c.Op == domain.OpEq {
			return eq, nil
		}
		return !eq, nil
	case domain.OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("in condition on %q needs a list", c.Field)
		}
		for _, v := range values {
			want, err := Canonical(v)
			if err != nil {
				return false, err
			}
			if bytes.Equal(have, want) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported operator %d", c.Op)
	}
}

// Apply sets every field of p on d and reports whether anything changed.
func (d Doc) Apply(p domain.Patch) (bool, error) {
	changed := false
	for field, v := range p {
		raw, err := Canonical(v)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(d.Field(field), raw) {
			d[field] = raw
			changed = true
		}
	}
	return changed, nil
}

// Increment adds delta to an integer field. A missing or null field counts
// as zero. It returns false, without error, when the field holds anything
// other than an integer.
func (d Doc) Increment(field string, delta int64) (bool, error) {
	raw := d.Field(field)
	var current int64
	if !bytes.Equal(raw, jsonNull) {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return false, nil
		}
		current = n
	}
	d[field] = json.RawMessage(strconv.FormatInt(current+delta, 10))
	return true, nil
}

// IndexValue is the key fragment for field in d.
func (d Doc) IndexValue(field string) string {
	return string(d.Field(field))
}

// UniqueKey joins the values of fields. It returns false when any field is
// absent or empty so that partially filled documents are not constrained.
func (d Doc) UniqueKey(fields []string) (string, bool) {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := d.Field(f)
		if bytes.Equal(v, jsonNull) || string(v) == `""` {
			return "", false
		}
		parts = append(parts, string(v))
	}
	return strings.Join(parts, "|"), true
}

// DecodeAll unmarshals docs into out, which must point to a slice.
func DecodeAll(docs []Doc, out any) error {
	raws := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		raw, err := d.Bytes()
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	buf, err := json.Marshal(raws)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

// IndexedEq returns the first equality or membership condition on one of
// indexed, which stores use to narrow a scan.
func IndexedEq(f domain.Filter, indexed []string) (domain.Cond, bool) {
	for _, c := range f {
		if c.Op != domain.OpEq && c.Op != domain.OpIn {
			continue
		}
		for _, field := range indexed {
			if c.Field == field {
				return c, true
			}
		}
	}
	return domain.Cond{}, false
}
