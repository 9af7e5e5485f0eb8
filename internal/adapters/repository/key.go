package repository

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
)

// Canonical serializes params so that list order never affects identity.
// Objects are written with sorted keys and every array is sorted by the
// canonical encoding of its elements, recursively.
func Canonical(params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "marshal params"), ErrInvalidParams)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode params"), ErrInvalidParams)
	}
	out, err := canonicalize(v)
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidParams)
	}
	return out, nil
}

// Key is the storage key for params: hex sha256 of Canonical(params).
func Key(params any) (string, error) {
	c, err := Canonical(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(c)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalize(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := canonicalize(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []any:
		elems := make([][]byte, len(t))
		for i, e := range t {
			b, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			elems[i] = b
		}
		sort.Slice(elems, func(i, j int) bool { return bytes.Compare(elems[i], elems[j]) < 0 })
		return append(append([]byte{'['}, bytes.Join(elems, []byte{','})...), ']'), nil
	default:
		return json.Marshal(t)
	}
}
