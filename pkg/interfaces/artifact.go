// Package interfaces holds small shared value types referenced across
// package boundaries (canonicalize, executor, evidence) to avoid import
// cycles between them.
package interfaces

// Artifact is a canonicalized, content-addressed piece of data produced or
// consumed anywhere in the pipeline: tool output, evidence payload, receipt
// attachment. SchemaID identifies the shape of the payload; Digest is a
// "sha256:<hex>" multihash of CanonicalBytes.
type Artifact struct {
	SchemaID       string            `json:"schema_id"`
	ContentType    string            `json:"content_type"`
	CanonicalBytes []byte            `json:"-"`
	Digest         string            `json:"digest"`
	Preview        string            `json:"preview,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
