package query

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for query fingerprints. Version suffix enables future
// algorithm migration without colliding with old cache keys.
const fingerprintDomain = "factstore/query/v1"

// MarshalCanonical produces the canonical JSON serialization of a
// value: compact, object keys sorted, no HTML escaping, strings NFC
// normalized. This is the ONLY serialization used for query
// fingerprints and for ordering boolean children during
// normalisation - standard json.Marshal output is not stable enough
// (HTML escaping, struct field order coupling).
//
// The value is first encoded with encoding/json and re-read
// generically, so anything json.Marshal accepts is accepted here.
func MarshalCanonical(v any) ([]byte, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber() // Preserve numeric literals verbatim
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalCriteria returns the canonical JSON for one criteria node,
// in its wire shape.
func CanonicalCriteria(c Criteria) ([]byte, error) {
	encoded, err := EncodeCriteria(c)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(encoded)
}

// Fingerprint computes the cache key for a request: SHA-256 over the
// canonical serialization of the normalised request, with domain
// separation (SHA256(domain + 0x00 + canonical)). Two requests that
// are equivalent under AND/OR commutativity and In/NotIn list
// reordering fingerprint identically.
func Fingerprint(req Request) (string, error) {
	normalised, err := Normalise(req)
	if err != nil {
		return "", err
	}

	canonical, err := MarshalCanonical(normalised)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00}) // Null separator prevents domain/data boundary ambiguity
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(string(val))
		return nil
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canonical marshal: unsupported type %T", v)
	}
}

// writeCanonicalString writes a JSON string with NFC normalization
// and HTML escaping disabled (< > & stay literal).
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return fmt.Errorf("canonical marshal string: %w", err)
	}

	// json.Encoder appends a trailing newline; drop it.
	out := tmp.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}
