package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GovernanceProfile is the operator-facing YAML describing a deployment's
// risk thresholds and co-signer roster. Profiles are named by environment
// code (profile_prod.yaml, profile_staging.yaml).
type GovernanceProfile struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`

	Risk      RiskProfile      `yaml:"risk" json:"risk"`
	CoSigners CoSignerRoster   `yaml:"co_signers" json:"co_signers"`
	Retention RetentionProfile `yaml:"retention" json:"retention"`
}

// RiskProfile maps risk classes to escalation requirements. Classes are the
// gate's LOW/MEDIUM/HIGH/CRITICAL; the mapping pattern (co-sign below
// human) is fixed by the gate, only the boundaries move.
type RiskProfile struct {
	CoSignAt string  `yaml:"co_sign_at" json:"co_sign_at"`
	HumanAt  string  `yaml:"human_at" json:"human_at"`
	// MaxAggregate bounds windowed aggregate risk; zero disables the
	// aggregate ceiling.
	MaxAggregate  float64 `yaml:"max_aggregate" json:"max_aggregate"`
	WindowMinutes int     `yaml:"window_minutes" json:"window_minutes"`
}

// CoSignerRoster lists the identities eligible to co-sign per effect
// domain.
type CoSignerRoster struct {
	// Default applies to domains with no explicit entry.
	Default []string            `yaml:"default" json:"default"`
	Domains map[string][]string `yaml:"domains,omitempty" json:"domains,omitempty"`
}

// Signers returns the roster for a domain.
func (r CoSignerRoster) Signers(domain string) []string {
	if signers, ok := r.Domains[domain]; ok {
		return signers
	}
	return r.Default
}

// RetentionProfile defines audit retention policy. The core never rotates
// or deletes; these values drive the operator export/compaction commands.
type RetentionProfile struct {
	AuditLogDays  int `yaml:"audit_log_days" json:"audit_log_days"`
	EvidenceDays  int `yaml:"evidence_days" json:"evidence_days"`
	CheckpointAge int `yaml:"checkpoint_age_days" json:"checkpoint_age_days"`
}

// LoadProfile loads a governance profile YAML by environment code. It
// searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*GovernanceProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile GovernanceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles
// directory, keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*GovernanceProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*GovernanceProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile GovernanceProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}
