package envelope

import (
	"context"
	"sync/atomic"

	"github.com/mapleaiorg/substrate/pkg/kernel"
)

// LimiterAdmission is an Admission backed by a kernel.LimiterStore, so
// multi-process deployments can share one token bucket (Redis) while the
// high-water mark stays per-process.
type LimiterAdmission struct {
	store     kernel.LimiterStore
	policy    kernel.BackpressurePolicy
	highWater int64
	pending   atomic.Int64
}

// NewLimiterAdmission wraps a limiter store. The bucket is keyed "gate".
func NewLimiterAdmission(store kernel.LimiterStore, policy kernel.BackpressurePolicy, highWater int64) *LimiterAdmission {
	return &LimiterAdmission{store: store, policy: policy, highWater: highWater}
}

func (a *LimiterAdmission) Admit() bool {
	if a.pending.Load() >= a.highWater {
		return false
	}
	allowed, err := a.store.Allow(context.Background(), "gate", a.policy, 1)
	if err != nil || !allowed {
		// A broken limiter store quarantines rather than admits.
		return false
	}
	a.pending.Add(1)
	return true
}

func (a *LimiterAdmission) Done() {
	if a.pending.Add(-1) < 0 {
		a.pending.Store(0)
	}
}
