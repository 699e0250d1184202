package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mapleaiorg/substrate/pkg/contracts"
	"github.com/mapleaiorg/substrate/pkg/crypto"
	"github.com/mapleaiorg/substrate/pkg/provenance"
)

// Bundle is a sealed, signed export of evidence records for an external
// reviewer: the records, an optional chain-of-custody envelope describing
// how they came to be, and a signature over the canonical bytes.
type Bundle struct {
	BundleID  string                `json:"bundle_id"`
	Subject   string                `json:"subject"`
	CreatedAt time.Time             `json:"created_at"`
	Items     []*contracts.Evidence `json:"items"`
	Custody   *provenance.Envelope  `json:"custody,omitempty"`

	ContentHash string `json:"content_hash"`
	KeyID       string `json:"key_id,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// Exporter seals evidence bundles for external consumption.
type Exporter struct {
	signer crypto.Signer
	keyID  string
	clock  func() time.Time
}

// NewExporter creates an exporter signing with the given key. signer may be
// nil for unsigned bundles.
func NewExporter(signer crypto.Signer, keyID string) *Exporter {
	return &Exporter{signer: signer, keyID: keyID, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export seals the given evidence records into a bundle about subject
// (typically a commitment id or worldline).
func (e *Exporter) Export(ctx context.Context, subject string, items []*contracts.Evidence, custody *provenance.Envelope) (*Bundle, error) {
	_ = ctx
	if len(items) == 0 {
		return nil, fmt.Errorf("evidence: nothing to export for %s", subject)
	}

	bundle := &Bundle{
		BundleID:  "bundle-" + uuid.New().String(),
		Subject:   subject,
		CreatedAt: e.clock().UTC(),
		Items:     items,
		Custody:   custody,
	}

	if err := sealBundle(bundle, e.signer, e.keyID); err != nil {
		return nil, err
	}
	return bundle, nil
}

// VerifyBundle recomputes a bundle's content hash and, when both a public
// key and a signature are present, checks the signature. A signed bundle
// checked without a key reports false; an unsigned bundle is judged by its
// hash alone.
func VerifyBundle(bundle *Bundle, pubKeyHex string) (bool, error) {
	hash, err := bundleHash(bundle)
	if err != nil {
		return false, err
	}
	if hash != bundle.ContentHash {
		return false, nil
	}
	if pubKeyHex == "" || bundle.Signature == "" {
		return bundle.Signature == "", nil
	}
	return crypto.Verify(pubKeyHex, bundle.Signature, []byte(bundle.ContentHash))
}

func sealBundle(bundle *Bundle, signer crypto.Signer, keyID string) error {
	hash, err := bundleHash(bundle)
	if err != nil {
		return err
	}
	bundle.ContentHash = hash

	if signer == nil {
		return nil
	}
	sig, err := signer.Sign([]byte(bundle.ContentHash))
	if err != nil {
		return fmt.Errorf("evidence: bundle signing failed: %w", err)
	}
	bundle.Signature = sig
	bundle.KeyID = keyID
	return nil
}

func bundleHash(bundle *Bundle) (string, error) {
	unsealed := *bundle
	unsealed.ContentHash = ""
	unsealed.Signature = ""
	unsealed.KeyID = ""
	hash, err := crypto.HashJCS(unsealed)
	if err != nil {
		return "", fmt.Errorf("evidence: bundle hashing failed: %w", err)
	}
	return hash, nil
}
