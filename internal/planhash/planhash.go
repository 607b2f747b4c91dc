// Package planhash computes the canonical digest binding a command's
// intent to the args the vehicle will actually execute.
package planhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Compute returns the stable hex digest over (cmd, args). args is decoded
// from its wire JSON into a canonical form — key-sorted objects, numbers
// normalized by Go's own float formatting — before hashing, so that two
// enqueues with identical semantic intent (different key order, "30" vs
// "30.0") produce identical hashes.
func Compute(cmd string, args []byte) (string, error) {
	var decoded interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return "", fmt.Errorf("planhash: invalid args: %w", err)
		}
	}

	canonical, err := canonicalize(decoded)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(cmd))
	h.Write([]byte{0})
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalize re-marshals a decoded JSON value with map keys sorted, which
// encoding/json already does for map[string]interface{} — this function
// exists to make that guarantee explicit and to normalize numeric values
// decoded as float64 consistently regardless of their original spelling.
func canonicalize(v interface{}) ([]byte, error) {
	normalized := normalize(v)
	return json.Marshal(normalized)
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(val))
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	default:
		return val
	}
}
