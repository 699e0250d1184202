package policyloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

func writeBundle(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "finance.json", `{
		"version": "1.2.0",
		"name": "finance-rules",
		"rules": [
			{"id":"F-001","domain":"finance","expression":"size(targets) <= 3","on_deny":"DENY","priority":100,"enabled":true},
			{"id":"F-002","domain":"finance","expression":"domain == 'finance'","on_deny":"REQUIRE_CO_SIGNATURE","priority":50,"enabled":true},
			{"id":"F-off","domain":"finance","expression":"true","priority":10,"enabled":false}
		]
	}`)

	loader := NewLoader(dir)
	if err := loader.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	b, ok := loader.GetBundle("finance-rules")
	if !ok {
		t.Fatal("bundle not found")
	}
	if b.Version != "1.2.0" {
		t.Errorf("version = %q, want 1.2.0", b.Version)
	}
	if b.Hash == "" {
		t.Error("expected content hash to be stamped")
	}
	if len(b.Rules) != 3 {
		t.Errorf("rules count = %d, want 3", len(b.Rules))
	}
}

func TestLoader_RejectsNonSemverVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "bad.json", `{"version":"not-a-version","name":"bad","rules":[]}`)
	if err := NewLoader(dir).LoadFile(path); err == nil {
		t.Fatal("expected semver validation to fail")
	}
}

func TestLoader_LoadAllHandlesYAMLAndIgnoresOthers(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, "a.json", `{"version":"1.0.0","name":"a","rules":[{"id":"1","domain":"data","expression":"true","priority":1,"enabled":true}]}`)
	writeBundle(t, dir, "b.yaml", "version: 2.0.0\nname: b\nrules:\n  - id: \"2\"\n    domain: communication\n    expression: \"true\"\n    priority: 1\n    enabled: true\n")
	writeBundle(t, dir, "readme.txt", "ignore")

	loader := NewLoader(dir)
	if err := loader.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := len(loader.AllBundles()); got != 2 {
		t.Errorf("bundles = %d, want 2", got)
	}
	if v := loader.Version(); v != "2.0.0" {
		t.Errorf("version = %q, want 2.0.0", v)
	}
}

func TestLoader_RulesGroupedByDomainAndPrioritized(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "mixed.json", `{
		"version": "1.0.0",
		"name": "mixed",
		"rules": [
			{"id":"lo","domain":"finance","expression":"true","priority":1,"enabled":true},
			{"id":"hi","domain":"finance","expression":"true","priority":100,"enabled":true},
			{"id":"comm","domain":"communication","expression":"true","priority":1,"enabled":true},
			{"id":"off","domain":"finance","expression":"true","priority":200,"enabled":false}
		]
	}`)

	loader := NewLoader(dir)
	if err := loader.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	rules := loader.Rules()
	fin := rules[commitment.DomainFinance]
	if len(fin) != 2 {
		t.Fatalf("finance rules = %d, want 2 (disabled excluded)", len(fin))
	}
	if fin[0].ID != "hi" || fin[1].ID != "lo" {
		t.Errorf("priority order wrong: %s, %s", fin[0].ID, fin[1].ID)
	}
	if len(rules[commitment.DomainCommunication]) != 1 {
		t.Errorf("communication rules missing")
	}

	// The rule map feeds the CEL provider directly.
	if _, err := governance.NewCELPolicyProvider(rules, loader.Version()); err != nil {
		t.Fatalf("provider construction: %v", err)
	}
}

func TestLoader_OnReload(t *testing.T) {
	dir := t.TempDir()
	path := writeBundle(t, dir, "cb.json", `{"version":"1.0.0","name":"callback-test","rules":[]}`)

	loader := NewLoader(dir)

	var called bool
	loader.OnReload(func(b *PolicyBundle) {
		called = true
		if b.Name != "callback-test" {
			t.Errorf("reload bundle name = %q, want callback-test", b.Name)
		}
	})

	if err := loader.LoadFile(path); err != nil {
		t.Fatal(err)
	}

	if !called {
		t.Error("OnReload callback not invoked")
	}
}
