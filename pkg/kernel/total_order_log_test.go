package kernel

import (
	"context"
	"testing"
	"time"
)

func dispatchRecord(origin, decision string) DispatchRecord {
	return DispatchRecord{
		Origin:        origin,
		ResonanceType: "COMMITMENT",
		Anchor:        "1700000000000:0:node-0",
		Target:        "gate",
		Decision:      decision,
	}
}

func fixedLog() *InMemoryTotalOrderLog {
	base := time.Unix(1_700_000_000, 0).UTC()
	n := 0
	return NewInMemoryTotalOrderLog().WithClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	})
}

func TestDispatchLogBasics(t *testing.T) {
	log := fixedLog()
	ctx := context.Background()

	if log.Len() != 0 {
		t.Error("empty log should have length 0")
	}
	if _, err := log.Head(ctx); err == nil {
		t.Error("Head of empty log should error")
	}

	event, err := log.Commit(ctx, dispatchRecord("wl:alpha", "ROUTE_TO_GATE"), "router")
	if err != nil {
		t.Fatal(err)
	}
	if event.OrderPosition != 0 {
		t.Errorf("first event position = %d, want 0", event.OrderPosition)
	}
	if event.PreviousHash != "genesis" {
		t.Errorf("first event previous hash = %q, want genesis", event.PreviousHash)
	}
	if log.Len() != 1 {
		t.Error("Len should be 1")
	}

	head, err := log.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head.CommitHash != event.CommitHash {
		t.Error("Head should match committed event")
	}

	got, err := log.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Record.Origin != "wl:alpha" {
		t.Errorf("record origin = %q", got.Record.Origin)
	}
	if _, err := log.Get(ctx, 7); err == nil {
		t.Error("Get beyond head should error")
	}
}

func TestDispatchLogChainAndVerify(t *testing.T) {
	log := fixedLog()
	ctx := context.Background()

	var hashes []string
	for i, decision := range []string{"ROUTE_TO_GATE", "REJECT", "QUARANTINE"} {
		event, err := log.Commit(ctx, dispatchRecord("wl:alpha", decision), "router")
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && event.PreviousHash != hashes[i-1] {
			t.Errorf("event %d does not chain onto its predecessor", i)
		}
		hashes = append(hashes, event.CommitHash)
	}

	ok, err := log.Verify(ctx, 0, log.Len())
	if err != nil || !ok {
		t.Fatalf("intact chain failed verification: %v", err)
	}

	// Rewriting a committed decision breaks verification.
	log.events[1].Record.Decision = "ROUTE_TO_GATE"
	ok, err = log.Verify(ctx, 0, log.Len())
	if ok {
		t.Fatal("tampered chain must not verify")
	}
	if err == nil {
		t.Fatal("tampered chain should report what broke")
	}
}

func TestDispatchLogRange(t *testing.T) {
	log := fixedLog()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := log.Commit(ctx, dispatchRecord("wl:alpha", "ROUTE_TO_GATE"), "router"); err != nil {
			t.Fatal(err)
		}
	}

	events, err := log.Range(ctx, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("range len = %d, want 3", len(events))
	}
	if events[0].OrderPosition != 1 {
		t.Errorf("range start position = %d, want 1", events[0].OrderPosition)
	}

	if events, _ := log.Range(ctx, 9, 12); events != nil {
		t.Error("out-of-bounds range should be empty")
	}
}

// Identical records committed in the same order under the same clock
// produce identical commit hashes, so a replayed router run is
// byte-comparable against the original log.
func TestDispatchLogDeterministicReplay(t *testing.T) {
	records := []DispatchRecord{
		dispatchRecord("wl:alpha", "ROUTE_TO_GATE"),
		dispatchRecord("wl:beta", "REJECT"),
		dispatchRecord("wl:alpha", "EXPIRED"),
	}

	run := func() []string {
		log := fixedLog()
		var hashes []string
		for _, rec := range records {
			event, err := log.Commit(context.Background(), rec, "router")
			if err != nil {
				t.Fatal(err)
			}
			hashes = append(hashes, event.CommitHash)
		}
		return hashes
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("replay diverged at position %d", i)
		}
	}
}
