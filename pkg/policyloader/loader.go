// Package policyloader loads external policy bundles: versioned files of
// CEL rules keyed by effect domain, feeding the gate's policy provider so
// policy changes ship without code deployments. Bundles are JSON or YAML.
package policyloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/crypto"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

// PolicyRule represents a single CEL governance rule.
type PolicyRule struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Domain      string `json:"domain" yaml:"domain"`
	Expression  string `json:"expression" yaml:"expression"`
	// OnDeny is the decision recorded when the rule evaluates false:
	// DENY, REQUIRE_CO_SIGNATURE, or REQUIRE_HUMAN_REVIEW. Empty means DENY.
	OnDeny   string `json:"on_deny,omitempty" yaml:"on_deny,omitempty"`
	Priority int    `json:"priority" yaml:"priority"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// PolicyBundle is a versioned collection of CEL rules.
type PolicyBundle struct {
	Version   string       `json:"version" yaml:"version"`
	Name      string       `json:"name" yaml:"name"`
	Rules     []PolicyRule `json:"rules" yaml:"rules"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	Hash      string       `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// Loader loads and manages policy bundles from external sources.
type Loader struct {
	mu        sync.RWMutex
	bundles   map[string]*PolicyBundle // name -> bundle
	bundleDir string
	onReload  func(bundle *PolicyBundle)
}

// NewLoader creates a policy bundle loader watching the given directory.
func NewLoader(bundleDir string) *Loader {
	return &Loader{
		bundles:   make(map[string]*PolicyBundle),
		bundleDir: bundleDir,
	}
}

// OnReload registers a callback invoked when a bundle is loaded or reloaded.
func (l *Loader) OnReload(fn func(bundle *PolicyBundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .json/.yaml bundle file from the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("policyloader: read dir %s: %w", l.bundleDir, err)
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".json" && ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(l.bundleDir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			return fmt.Errorf("policyloader: load %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// LoadFile loads a single policy bundle from a JSON or YAML file.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var bundle PolicyBundle
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &bundle)
	default:
		err = json.Unmarshal(data, &bundle)
	}
	if err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	if bundle.Name == "" {
		bundle.Name = filepath.Base(path)
	}
	if bundle.Version == "" {
		return fmt.Errorf("bundle %s has no version", bundle.Name)
	}
	if _, err := semver.NewVersion(bundle.Version); err != nil {
		return fmt.Errorf("bundle %s version %q is not semver: %w", bundle.Name, bundle.Version, err)
	}
	hash, err := crypto.HashJCS(struct {
		Version string       `json:"version"`
		Name    string       `json:"name"`
		Rules   []PolicyRule `json:"rules"`
	}{bundle.Version, bundle.Name, bundle.Rules})
	if err != nil {
		return fmt.Errorf("hash bundle: %w", err)
	}
	bundle.Hash = hash

	l.mu.Lock()
	l.bundles[bundle.Name] = &bundle
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(&bundle)
	}

	return nil
}

// GetBundle returns a loaded bundle by name.
func (l *Loader) GetBundle(name string) (*PolicyBundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[name]
	return b, ok
}

// AllBundles returns all loaded bundles.
func (l *Loader) AllBundles() []*PolicyBundle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*PolicyBundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		result = append(result, b)
	}
	return result
}

// Rules assembles the enabled rules across all bundles into the per-domain
// rule map the CEL policy provider is built from, priority-ordered within
// each domain.
func (l *Loader) Rules() map[commitment.EffectDomain][]governance.Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()

	type prioritized struct {
		rule     governance.Rule
		priority int
	}
	byDomain := make(map[commitment.EffectDomain][]prioritized)
	for _, b := range l.bundles {
		for _, r := range b.Rules {
			if !r.Enabled {
				continue
			}
			byDomain[commitment.EffectDomain(r.Domain)] = append(byDomain[commitment.EffectDomain(r.Domain)], prioritized{
				rule: governance.Rule{
					ID:         r.ID,
					Expression: r.Expression,
					OnDeny:     governance.Decision(r.OnDeny),
				},
				priority: r.Priority,
			})
		}
	}

	out := make(map[commitment.EffectDomain][]governance.Rule, len(byDomain))
	for domain, rules := range byDomain {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].priority > rules[j].priority })
		for _, p := range rules {
			out[domain] = append(out[domain], p.rule)
		}
	}
	return out
}

// Version returns the highest semantic version across loaded bundles, for
// stamping onto decision cards. Defaults to 0.0.0 when nothing is loaded.
func (l *Loader) Version() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	best := semver.MustParse("0.0.0")
	for _, b := range l.bundles {
		if v, err := semver.NewVersion(b.Version); err == nil && v.GreaterThan(best) {
			best = v
		}
	}
	return best.String()
}
