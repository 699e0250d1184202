package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// TransformJCS produces RFC 8785 canonical JSON bytes for v using the
// gowebpki/jcs reference transform, replacing the hand-rolled CanonicalMarshal
// for artifacts that must be bit-exact across implementations: receipts,
// audit records, and decision cards.
func TransformJCS(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// HashJCS returns the SHA-256 hex digest of the JCS-canonical form of v.
func HashJCS(v interface{}) (string, error) {
	canonical, err := TransformJCS(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
