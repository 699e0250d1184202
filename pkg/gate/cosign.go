package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CoSignCollector tracks which of a commitment's required co-signers have
// signed, grounded on the same pending/resolved lifecycle escalation.Manager
// uses for human-approval intents — but scoped to co-signature quorum
// rather than a single approver decision.
type CoSignCollector struct {
	mu     sync.Mutex
	quora  map[string]*quorum
	secret []byte
}

type quorum struct {
	required []string
	signed   map[string]bool
}

// NewCoSignCollector creates a collector whose bearer tokens are signed
// with the given HMAC secret.
func NewCoSignCollector(secret []byte) *CoSignCollector {
	return &CoSignCollector{quora: make(map[string]*quorum), secret: secret}
}

// Open registers the set of identities that must co-sign a commitment
// before it can proceed.
func (c *CoSignCollector) Open(commitmentID string, required []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quora[commitmentID] = &quorum{required: required, signed: make(map[string]bool)}
}

// Require merges signers into a commitment's quorum, opening it if needed.
// Idempotent: re-requiring an already-required signer is a no-op, and
// signatures already cast are preserved.
func (c *CoSignCollector) Require(commitmentID string, signers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quora[commitmentID]
	if !ok {
		q = &quorum{signed: make(map[string]bool)}
		c.quora[commitmentID] = q
	}
	for _, s := range signers {
		present := false
		for _, have := range q.required {
			if have == s {
				present = true
				break
			}
		}
		if !present {
			q.required = append(q.required, s)
		}
	}
}

// IssueToken mints a bearer token an affected party presents to cast their
// co-signature out of band (e.g. via an approval API), binding the token to
// exactly one commitment and signer so it can't be replayed elsewhere.
func (c *CoSignCollector) IssueToken(commitmentID, signerID string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"commitment_id": commitmentID,
		"signer_id":     signerID,
		"exp":           expiresAt.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

// RedeemToken validates a bearer token and, if valid, records the
// co-signature it authorizes.
func (c *CoSignCollector) RedeemToken(tokenString string) error {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return fmt.Errorf("gate: invalid co-signature token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("gate: malformed co-signature token claims")
	}
	commitmentID, _ := claims["commitment_id"].(string)
	signerID, _ := claims["signer_id"].(string)
	return c.Sign(commitmentID, signerID)
}

// Sign records a co-signature directly (bypassing the token, for
// in-process callers that already authenticated the signer).
func (c *CoSignCollector) Sign(commitmentID, signerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quora[commitmentID]
	if !ok {
		return fmt.Errorf("gate: no open co-signature quorum for commitment %s", commitmentID)
	}
	found := false
	for _, r := range q.required {
		if r == signerID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("gate: %s is not an authorized co-signer for commitment %s", signerID, commitmentID)
	}
	q.signed[signerID] = true
	return nil
}

// Satisfied reports whether every required signer has signed, and which
// ones remain outstanding.
func (c *CoSignCollector) Satisfied(commitmentID string) (bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quora[commitmentID]
	if !ok {
		return false, nil
	}
	var missing []string
	for _, r := range q.required {
		if !q.signed[r] {
			missing = append(missing, r)
		}
	}
	return len(missing) == 0, missing
}
