package envelope

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViolationType categorizes ladder violations the router detected.
type ViolationType string

const (
	ViolationEscalation ViolationType = "ESCALATION"
	ViolationIntegrity  ViolationType = "INTEGRITY"
	ViolationOrigin     ViolationType = "ORIGIN_MISMATCH"
)

// Violation is one recorded routing violation, kept in a separately
// queryable stream so escalation attempts can be reviewed independent of
// the main audit log.
type Violation struct {
	ViolationID string        `json:"violation_id"`
	Type        ViolationType `json:"type"`
	Origin      string        `json:"origin"`
	From        ResonanceType `json:"from,omitempty"`
	To          ResonanceType `json:"to,omitempty"`
	DetectedAt  time.Time     `json:"detected_at"`
}

// Stats is a snapshot of the router's counters.
type Stats struct {
	Delivered   uint64 `json:"delivered"`
	Rejected    uint64 `json:"rejected"`
	Quarantined uint64 `json:"quarantined"`
	Expired     uint64 `json:"expired"`
	Escalations uint64 `json:"escalations"`
}

// Monitor tracks router throughput and keeps the escalation violation
// stream.
type Monitor struct {
	mu         sync.Mutex
	stats      Stats
	violations []Violation
	clock      func() time.Time
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *Monitor) WithClock(clock func() time.Time) *Monitor {
	m.clock = clock
	return m
}

func (m *Monitor) countDelivered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Delivered++
}

func (m *Monitor) countRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Rejected++
}

func (m *Monitor) countQuarantined() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Quarantined++
}

func (m *Monitor) countExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Expired++
}

func (m *Monitor) recordEscalation(env *Envelope, v EscalationViolation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Rejected++
	m.stats.Escalations++
	m.violations = append(m.violations, Violation{
		ViolationID: uuid.New().String(),
		Type:        ViolationEscalation,
		Origin:      env.Header.Origin,
		From:        v.From,
		To:          v.To,
		DetectedAt:  m.clock(),
	})
}

// Stats returns a snapshot of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Violations returns a copy of the recorded violation stream.
func (m *Monitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Violation, len(m.violations))
	copy(out, m.violations)
	return out
}
