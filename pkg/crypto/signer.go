package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mapleaiorg/substrate/pkg/contracts"
)

// Signer is the minimal signing capability components depend on: identity
// continuity entries, decision records, and evidence bundles all sign
// through it.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
	PublicKeyBytes() []byte
}

// Ed25519Signer implementation.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	KeyID   string
}

func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  pub,
		KeyID:   keyID,
	}, nil
}

func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		KeyID:   keyID,
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privKey, data)
	return hex.EncodeToString(sig), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

func (s *Ed25519Signer) PublicKeyBytes() []byte {
	return s.pubKey
}

// Verify verifies a signature against a public key.
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}

	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size")
	}

	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig), nil
}

func (s *Ed25519Signer) Verify(message []byte, signature []byte) bool {
	return ed25519.Verify(s.pubKey, message, signature)
}

// SignDecision signs a DecisionRecord over its canonical JCS bytes with the
// signature fields blanked.
func (s *Ed25519Signer) SignDecision(d *contracts.DecisionRecord) error {
	payload, err := canonicalDecisionBytes(d)
	if err != nil {
		return err
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return err
	}
	d.Signer = s.KeyID
	d.Signature = sig
	d.SignatureType = SigPrefixEd25519 + SigSeparator + s.KeyID
	return nil
}

// VerifyDecision verifies a DecisionRecord signature against this signer's
// own key.
func (s *Ed25519Signer) VerifyDecision(d *contracts.DecisionRecord) (bool, error) {
	if d.Signature == "" {
		return false, fmt.Errorf("missing signature")
	}
	payload, err := canonicalDecisionBytes(d)
	if err != nil {
		return false, err
	}
	return Verify(s.PublicKey(), d.Signature, payload)
}

// canonicalDecisionBytes is the byte string a decision signature covers:
// the record's JCS-canonical form with signature fields excluded.
func canonicalDecisionBytes(d *contracts.DecisionRecord) ([]byte, error) {
	unsigned := *d
	unsigned.Signer = ""
	unsigned.Signature = ""
	unsigned.SignatureType = ""
	return TransformJCS(unsigned)
}
