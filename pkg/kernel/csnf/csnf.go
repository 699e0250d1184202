// Package csnf implements the Canonical Sub-object Normal Form used when
// hashing arbitrary nested values for Merkle leaf construction: it rejects
// values that cannot be marshaled to JSON (functions, channels) with an
// error and normalizes numbers so that json.Marshal on the result is stable
// regardless of how the caller produced the original value (float64 vs
// json.Number vs int).
package csnf

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

func hashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Canonicalize recursively normalizes v into a form built only of
// map[string]interface{}, []interface{}, string, bool, json.Number, and nil,
// suitable for deterministic json.Marshal (Go sorts map keys by default).
func Canonicalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("csnf: pre-marshal failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("csnf: canonical decode failed: %w", err)
	}

	return normalize(generic), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			out[k] = normalize(t[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// Hash returns the SHA-256 hex digest of the canonical JSON form of v.
func Hash(v interface{}) (string, error) {
	can, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(can)
	if err != nil {
		return "", fmt.Errorf("csnf: marshal failed: %w", err)
	}
	return hashHex(data), nil
}
