package gate

import (
	"fmt"
	"sync"
	"time"
)

// ReviewStatus is the lifecycle of a human review request, grounded on the
// same pending/approved/denied/timed-out shape escalation.Manager uses for
// judgment-call approvals.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewDenied   ReviewStatus = "DENIED"
	ReviewExpired  ReviewStatus = "EXPIRED"
)

// HumanReviewQueue tracks commitments suspended awaiting a human reviewer's
// judgment call.
type HumanReviewQueue struct {
	mu      sync.Mutex
	pending map[string]*reviewEntry
}

type reviewEntry struct {
	status    ReviewStatus
	rationale string
	expiresAt time.Time
}

// NewHumanReviewQueue creates an empty review queue.
func NewHumanReviewQueue() *HumanReviewQueue {
	return &HumanReviewQueue{pending: make(map[string]*reviewEntry)}
}

// Submit opens a review request with the rationale the risk/policy stage
// recorded for why a human must decide.
func (q *HumanReviewQueue) Submit(commitmentID, rationale string, expiresAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[commitmentID] = &reviewEntry{status: ReviewPending, rationale: rationale, expiresAt: expiresAt}
}

// Decide records a reviewer's verdict.
func (q *HumanReviewQueue) Decide(commitmentID string, approve bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[commitmentID]
	if !ok {
		return fmt.Errorf("gate: no pending review for commitment %s", commitmentID)
	}
	if e.status != ReviewPending {
		return fmt.Errorf("gate: review for commitment %s already resolved as %s", commitmentID, e.status)
	}
	if approve {
		e.status = ReviewApproved
	} else {
		e.status = ReviewDenied
	}
	return nil
}

// Status reports the current status of a review request, expiring it first
// if its deadline has passed.
func (q *HumanReviewQueue) Status(commitmentID string, now time.Time) ReviewStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[commitmentID]
	if !ok {
		return ""
	}
	if e.status == ReviewPending && !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		e.status = ReviewExpired
	}
	return e.status
}
