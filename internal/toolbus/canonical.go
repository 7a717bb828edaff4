package toolbus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalJSON renders v (the decoded result of json.Unmarshal into
// interface{} — maps, slices, strings, float64, bool, nil; int and int64
// are also accepted, json.Number is not) as canonical JSON: object keys
// sorted, strings normalized to NFC, numbers rendered as integers when they
// carry no fractional part and their magnitude is below 1e15, and with the
// shortest round-trip representation otherwise. Array order is preserved.
func CanonicalJSON(v interface{}) ([]byte, error) {
	var buf strings.Builder
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func writeCanonical(buf *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeCanonicalString(buf, val)
	case float64:
		buf.WriteString(canonicalNumber(val))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case map[string]interface{}:
		return writeCanonicalObject(buf, val)
	case []interface{}:
		return writeCanonicalArray(buf, val)
	default:
		return fmt.Errorf("toolbus: unsupported value type %T for canonical encoding", v)
	}
	return nil
}

func writeCanonicalObject(buf *strings.Builder, obj map[string]interface{}) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeCanonicalArray(buf *strings.Builder, arr []interface{}) error {
	buf.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalString(buf *strings.Builder, s string) {
	normalized := norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// canonicalNumber renders an integer-valued float below 1e15 in magnitude
// without a fractional part, and otherwise uses Go's shortest round-trip
// float formatting.
func canonicalNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// RequestHash computes SHA-256(tool_name || 0x1F || canonical_json(args)),
// hex-lowercase. Logically-equivalent argument maps produce the same hash
// regardless of key order or number formatting in the original request.
func RequestHash(toolName string, args map[string]interface{}) (string, error) {
	canonical, err := CanonicalJSON(args)
	if err != nil {
		return "", err
	}
	return hashCanonical(toolName, canonical), nil
}

// hashCanonical hashes already-canonicalized argument bytes, so a caller
// that also needs the canonical form for logging doesn't encode it twice.
func hashCanonical(toolName string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0x1F})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
