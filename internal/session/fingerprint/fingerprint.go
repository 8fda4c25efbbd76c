// Package fingerprint computes the deterministic identity hash of a tool
// call. The hash is the join key between a denied tool call and its later
// one-shot pre-approval: the resumed engine re-issues the same call, and
// the gate matches it by this value.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Compute returns the hex-encoded SHA-256 of the tool name and the
// canonicalized tool input. Canonicalization sorts object keys recursively
// and uses a compact, whitespace-free encoding, so two inputs with the same
// content but different key order or formatting hash identically.
func Compute(toolName string, input map[string]any) string {
	h := sha256.New()
	_, _ = io.WriteString(h, toolName)
	h.Write([]byte{0})
	writeCanonical(h, input)
	return hex.EncodeToString(h.Sum(nil))
}

// writeCanonical streams a canonical encoding of v into w. The encoding is
// JSON-like but not required to be valid JSON; it only needs to be
// deterministic and injective over distinct values.
func writeCanonical(w io.Writer, v any) {
	switch val := v.(type) {
	case nil:
		_, _ = io.WriteString(w, "null")
	case bool:
		_, _ = io.WriteString(w, strconv.FormatBool(val))
	case string:
		_, _ = io.WriteString(w, strconv.Quote(val))
	case float64:
		_, _ = io.WriteString(w, strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		_, _ = io.WriteString(w, strconv.FormatFloat(float64(val), 'g', -1, 64))
	case int:
		_, _ = io.WriteString(w, strconv.Itoa(val))
	case int64:
		_, _ = io.WriteString(w, strconv.FormatInt(val, 10))
	case uint64:
		_, _ = io.WriteString(w, strconv.FormatUint(val, 10))
	case []any:
		_, _ = io.WriteString(w, "[")
		for i, item := range val {
			if i > 0 {
				_, _ = io.WriteString(w, ",")
			}
			writeCanonical(w, item)
		}
		_, _ = io.WriteString(w, "]")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = io.WriteString(w, "{")
		for i, k := range keys {
			if i > 0 {
				_, _ = io.WriteString(w, ",")
			}
			_, _ = io.WriteString(w, strconv.Quote(k))
			_, _ = io.WriteString(w, ":")
			writeCanonical(w, val[k])
		}
		_, _ = io.WriteString(w, "}")
	default:
		// Inputs come from JSON decoding, so this branch only fires for
		// values injected by in-process callers (tests, fakes).
		_, _ = fmt.Fprintf(w, "%#v", val)
	}
}
