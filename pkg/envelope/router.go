package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mapleaiorg/substrate/pkg/kernel"
	"github.com/mapleaiorg/substrate/pkg/store"
)

// Sink is a routing destination class. Meaning and Intent envelopes may
// only ever reach cognition; Commitment candidates go to the gate; only the
// execution layer's own Consequence envelopes reach the consequence surface.
type Sink string

const (
	SinkCognition Sink = "cognition"
	SinkGate      Sink = "gate"
	SinkExecutor  Sink = "executor"
)

// sinkLevel is the exact ladder rung a sink accepts.
var sinkLevel = map[Sink]ResonanceType{
	SinkCognition: Intent, // accepts Meaning and Intent (anything at or below)
	SinkGate:      Commitment,
	SinkExecutor:  Consequence,
}

// DecisionKind classifies the router's verdict on an envelope.
type DecisionKind string

const (
	DeliverToCognition   DecisionKind = "DELIVER_TO_COGNITION"
	RouteToGate          DecisionKind = "ROUTE_TO_GATE"
	DeliverAsConsequence DecisionKind = "DELIVER_AS_CONSEQUENCE"
	Reject               DecisionKind = "REJECT"
	Quarantine           DecisionKind = "QUARANTINE"
	Expired              DecisionKind = "EXPIRED"
)

// Decision is the router's verdict for one envelope.
type Decision struct {
	Kind       DecisionKind `json:"kind"`
	Recipients []string     `json:"recipients,omitempty"`
	Origin     string       `json:"origin,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// EscalationViolation records an attempt to route an envelope above its
// ladder rung.
type EscalationViolation struct {
	From ResonanceType `json:"from"`
	To   ResonanceType `json:"to"`
}

func (e EscalationViolation) Error() string {
	return fmt.Sprintf("escalation violation: %s envelope aimed at %s level", e.From, e.To)
}

// ConsequenceBinding resolves which executor identity is bound to a
// commitment, so a Consequence envelope claiming to settle it can be
// checked against the identity that actually ran it.
type ConsequenceBinding interface {
	ExecutorIdentityFor(commitmentID string) (string, bool)
}

// Admission is the router's backpressure check for gate-bound envelopes.
type Admission interface {
	// Admit reserves a slot in the gate's pending queue; false means the
	// router must quarantine rather than enqueue.
	Admit() bool
	// Done releases a previously admitted slot.
	Done()
}

// RateAdmission combines a token-bucket rate limit with a pending-queue
// high-water mark. Either limit being hit quarantines new commitments.
type RateAdmission struct {
	limiter   *rate.Limiter
	highWater int64
	pending   atomic.Int64
}

// NewRateAdmission builds an admission controller allowing perSecond new
// gate-bound envelopes (burst-capped at burst) and at most highWater
// commitments pending in the gate at once.
func NewRateAdmission(perSecond float64, burst int, highWater int64) *RateAdmission {
	return &RateAdmission{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
		highWater: highWater,
	}
}

func (a *RateAdmission) Admit() bool {
	if a.pending.Load() >= a.highWater {
		return false
	}
	if !a.limiter.Allow() {
		return false
	}
	a.pending.Add(1)
	return true
}

func (a *RateAdmission) Done() {
	if a.pending.Add(-1) < 0 {
		a.pending.Store(0)
	}
}

// Pending reports the current pending-queue depth.
func (a *RateAdmission) Pending() int64 { return a.pending.Load() }

// Router classifies inbound envelopes and enforces the ladder invariants.
// Every rejection, quarantine, and expiry leaves an audit record — the
// router never drops an envelope silently.
type Router struct {
	validator *Validator
	binding   ConsequenceBinding
	audit     *store.AuditStore
	monitor   *Monitor
	admission Admission
	eventLog  kernel.TotalOrderLog
	cognition []string
	clock     func() time.Time
}

// NewRouter builds a router. binding may be nil if no executor is wired
// (all Consequence envelopes are then rejected). audit may be nil to skip
// incident records (tests only); admission may be nil for unbounded intake.
func NewRouter(validator *Validator, binding ConsequenceBinding, audit *store.AuditStore, admission Admission) *Router {
	if validator == nil {
		validator = NewValidator()
	}
	return &Router{
		validator: validator,
		binding:   binding,
		audit:     audit,
		monitor:   NewMonitor(),
		admission: admission,
		clock:     time.Now,
	}
}

// WithClock overrides the router's clock for deterministic tests.
func (r *Router) WithClock(clock func() time.Time) *Router {
	r.clock = clock
	return r
}

// WithCognitionSinks registers the cognition recipients Meaning/Intent
// envelopes are delivered to.
func (r *Router) WithCognitionSinks(recipients ...string) *Router {
	r.cognition = recipients
	return r
}

// WithEventLog commits every routing decision to a totally ordered event
// log, fixing a single dispatch order across concurrent intake.
func (r *Router) WithEventLog(log kernel.TotalOrderLog) *Router {
	r.eventLog = log
	return r
}

// Monitor exposes the router's violation and throughput monitor.
func (r *Router) Monitor() *Monitor { return r.monitor }

// Accept classifies an envelope aimed at the given sink and returns the
// routing decision.
func (r *Router) Accept(env *Envelope, target Sink) Decision {
	d := r.accept(env, target)
	r.commitDispatch(env, target, d)
	return d
}

func (r *Router) accept(env *Envelope, target Sink) Decision {
	now := r.clock()

	if env.Expired(now) {
		r.monitor.countExpired()
		r.incident(env, "expired", "envelope ttl exceeded")
		return Decision{Kind: Expired, Reason: "ttl exceeded"}
	}

	if res := r.validator.Validate(env); !res.Valid {
		r.monitor.countRejected()
		reason := res.Errors[0].Error()
		r.incident(env, "integrity_failure", reason)
		return Decision{Kind: Reject, Reason: reason}
	}

	if reason, denied := r.constraintDenies(env, target); denied {
		r.monitor.countRejected()
		r.incident(env, "constraint_denied", reason)
		return Decision{Kind: Reject, Reason: reason}
	}

	required, ok := sinkLevel[target]
	if !ok {
		r.monitor.countRejected()
		reason := fmt.Sprintf("unknown sink %q", target)
		r.incident(env, "unknown_sink", reason)
		return Decision{Kind: Reject, Reason: reason}
	}

	// Non-escalation: an envelope below the sink's rung is an escalation
	// attempt; one above it is a misroute. Neither is transformed.
	lvl := env.Header.ResonanceType.Level()
	switch {
	case lvl < required.Level() && target != SinkCognition:
		violation := EscalationViolation{From: env.Header.ResonanceType, To: required}
		r.monitor.recordEscalation(env, violation)
		r.incident(env, "escalation_violation", violation.Error())
		return Decision{Kind: Reject, Reason: violation.Error()}
	case lvl > required.Level():
		r.monitor.countRejected()
		reason := fmt.Sprintf("%s envelope may not descend to %s", env.Header.ResonanceType, target)
		r.incident(env, "misroute", reason)
		return Decision{Kind: Reject, Reason: reason}
	}

	switch target {
	case SinkCognition:
		r.monitor.countDelivered()
		return Decision{Kind: DeliverToCognition, Recipients: r.cognition}

	case SinkGate:
		if r.admission != nil && !r.admission.Admit() {
			r.monitor.countQuarantined()
			r.incident(env, "overloaded", "gate pending queue at high-water mark")
			return Decision{Kind: Quarantine, Reason: "OVERLOADED"}
		}
		r.monitor.countDelivered()
		return Decision{Kind: RouteToGate}

	case SinkExecutor:
		return r.acceptConsequence(env)
	}

	r.monitor.countRejected()
	r.incident(env, "unroutable", "no route for sink")
	return Decision{Kind: Reject, Reason: "unroutable"}
}

// acceptConsequence enforces origin integrity: the envelope's origin must
// be the executor identity bound to the commitment it claims to settle.
func (r *Router) acceptConsequence(env *Envelope) Decision {
	var payload ConsequencePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		r.monitor.countRejected()
		r.incident(env, "malformed_consequence", err.Error())
		return Decision{Kind: Reject, Reason: "malformed consequence payload"}
	}
	if payload.CommitmentID == "" {
		r.monitor.countRejected()
		r.incident(env, "unbound_consequence", "consequence carries no commitment_id")
		return Decision{Kind: Reject, Reason: "consequence must reference the commitment it settled"}
	}
	if r.binding == nil {
		r.monitor.countRejected()
		r.incident(env, "no_executor_bound", "no executor bound")
		return Decision{Kind: Reject, Reason: "no executor bound"}
	}
	executorID, ok := r.binding.ExecutorIdentityFor(payload.CommitmentID)
	if !ok || executorID != env.Header.Origin {
		r.monitor.countRejected()
		reason := fmt.Sprintf("origin %q is not the executor bound to commitment %s", env.Header.Origin, payload.CommitmentID)
		r.incident(env, "origin_mismatch", reason)
		return Decision{Kind: Reject, Reason: reason}
	}
	r.monitor.countDelivered()
	return Decision{Kind: DeliverAsConsequence, Origin: env.Header.Origin}
}

// constraintDenies evaluates the envelope's routing constraints against the
// target, most-restrictive-first: deny constraints are checked before only
// constraints, so a contradiction resolves to denial.
func (r *Router) constraintDenies(env *Envelope, target Sink) (string, bool) {
	constraints := append([]string{}, env.Header.RoutingConstraints...)
	sort.Slice(constraints, func(i, j int) bool {
		di := strings.HasPrefix(constraints[i], "deny:")
		dj := strings.HasPrefix(constraints[j], "deny:")
		if di != dj {
			return di
		}
		return constraints[i] < constraints[j]
	})
	for _, c := range constraints {
		switch {
		case strings.HasPrefix(c, "deny:"):
			if Sink(strings.TrimPrefix(c, "deny:")) == target {
				return fmt.Sprintf("constraint %q forbids sink %s", c, target), true
			}
		case strings.HasPrefix(c, "only:"):
			if Sink(strings.TrimPrefix(c, "only:")) != target {
				return fmt.Sprintf("constraint %q restricts routing away from %s", c, target), true
			}
		}
	}
	return "", false
}

// commitDispatch appends the decision to the total-order dispatch log.
// Append failures do not affect the decision; the log is a record, not a
// gate.
func (r *Router) commitDispatch(env *Envelope, target Sink, d Decision) {
	if r.eventLog == nil {
		return
	}
	_, _ = r.eventLog.Commit(context.Background(), kernel.DispatchRecord{
		Origin:        env.Header.Origin,
		ResonanceType: string(env.Header.ResonanceType),
		Anchor:        env.Anchor.String(),
		Target:        string(target),
		Decision:      string(d.Kind),
	}, "router")
}

func (r *Router) incident(env *Envelope, action, reason string) {
	if r.audit == nil {
		return
	}
	_, _ = r.audit.Append(store.EntryTypeViolation, env.Header.Origin, action, map[string]string{
		"resonance_type": string(env.Header.ResonanceType),
		"reason":         reason,
		"anchor":         env.Anchor.String(),
	}, nil)
}
