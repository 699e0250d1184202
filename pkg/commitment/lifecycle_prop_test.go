package commitment

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allStatuses = []Status{
	StatusDeclared, StatusApproved, StatusDenied, StatusAwaitingCoSign,
	StatusAwaitingHuman, StatusExecuting, StatusExecuted, StatusFailed,
	StatusSettled, StatusExpired,
}

func genStatus() gopter.Gen {
	return gen.IntRange(0, len(allStatuses)-1).Map(func(i int) Status { return allStatuses[i] })
}

// Terminal states admit no transition to anything.
func TestTerminalStatesAreAbsorbing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no transition leaves a terminal state", prop.ForAll(
		func(from, to Status) bool {
			if !Terminal(from) {
				return true
			}
			return !CanTransition(from, to)
		},
		genStatus(), genStatus(),
	))

	properties.TestingRun(t)
}

// Every sequence of allowed transitions from Declared ends in a known
// status, and any sequence reaching a terminal status can go no further —
// lifecycle transitions always form a path in the allowed state graph.
func TestRandomWalksStayInsideStateGraph(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("walks follow only allowed edges", prop.ForAll(
		func(choices []int) bool {
			current := StatusDeclared
			for _, c := range choices {
				var nexts []Status
				for _, s := range allStatuses {
					if CanTransition(current, s) {
						nexts = append(nexts, s)
					}
				}
				if len(nexts) == 0 {
					// Only terminal states are dead ends.
					return Terminal(current)
				}
				next := nexts[c%len(nexts)]
				if !CanTransition(current, next) {
					return false
				}
				current = next
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 16)),
	))

	properties.TestingRun(t)
}

// The documented lifecycle edges are exactly the allowed ones.
func TestAllowedEdgesAreClosed(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusDeclared, StatusApproved}:       true,
		{StatusDeclared, StatusDenied}:         true,
		{StatusDeclared, StatusAwaitingCoSign}: true,
		{StatusDeclared, StatusAwaitingHuman}:  true,
		{StatusDeclared, StatusExpired}:        true,
		{StatusAwaitingCoSign, StatusApproved}: true,
		{StatusAwaitingCoSign, StatusDenied}:   true,
		{StatusAwaitingCoSign, StatusExpired}:  true,
		{StatusAwaitingHuman, StatusApproved}:  true,
		{StatusAwaitingHuman, StatusDenied}:    true,
		{StatusAwaitingHuman, StatusExpired}:   true,
		{StatusApproved, StatusExecuting}:      true,
		{StatusExecuting, StatusExecuted}:      true,
		{StatusExecuting, StatusFailed}:        true,
		{StatusExecuted, StatusSettled}:        true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}
