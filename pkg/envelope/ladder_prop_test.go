package envelope

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allTypes = []ResonanceType{Meaning, Intent, Commitment, Consequence}
var allSinks = []Sink{SinkCognition, SinkGate, SinkExecutor}

// Non-escalation holds for every (type, sink) pair: no delivery ever lands
// at a sink whose rung exceeds the envelope's level, and accepted
// envelopes always have declared type equal to their resonance type.
func TestLadderProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no envelope is delivered above its rung", prop.ForAll(
		func(typeIdx, sinkIdx int) bool {
			rt := allTypes[typeIdx%len(allTypes)]
			sink := allSinks[sinkIdx%len(allSinks)]

			env, err := New(rt, "wl:origin", map[string]string{"k": "v"}, testAnchor(), time.Minute)
			if err != nil {
				return false
			}
			r := NewRouter(nil, staticBinding{}, nil, nil).WithClock(fixedClock)
			d := r.Accept(env, sink)

			delivered := d.Kind == DeliverToCognition || d.Kind == RouteToGate || d.Kind == DeliverAsConsequence
			if !delivered {
				return true
			}
			// Delivery implies the envelope's level fits the sink exactly
			// (cognition admits anything at or below Intent).
			if sink == SinkCognition {
				return rt.Level() <= Intent.Level()
			}
			return rt.Level() == sinkLevel[sink].Level()
		},
		gen.IntRange(0, 1<<10), gen.IntRange(0, 1<<10),
	))

	properties.Property("declared-type mismatch is never delivered", prop.ForAll(
		func(typeIdx, declaredIdx, sinkIdx int) bool {
			rt := allTypes[typeIdx%len(allTypes)]
			declared := allTypes[declaredIdx%len(allTypes)]
			sink := allSinks[sinkIdx%len(allSinks)]

			env, err := New(rt, "wl:origin", map[string]string{"k": "v"}, testAnchor(), time.Minute)
			if err != nil {
				return false
			}
			env.Header.DeclaredType = declared
			if err := env.Seal(); err != nil {
				return false
			}

			r := NewRouter(nil, staticBinding{}, nil, nil).WithClock(fixedClock)
			d := r.Accept(env, sink)
			delivered := d.Kind == DeliverToCognition || d.Kind == RouteToGate || d.Kind == DeliverAsConsequence
			if declared != rt {
				return !delivered
			}
			return true
		},
		gen.IntRange(0, 1<<10), gen.IntRange(0, 1<<10), gen.IntRange(0, 1<<10),
	))

	properties.TestingRun(t)
}
