package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/triad/pkg/shadow"
)

// GateProfile is a YAML deployment profile. Unset fields leave the
// environment configuration untouched.
type GateProfile struct {
	Name                string          `yaml:"name" json:"name"`
	MaxAgeMs            *int64          `yaml:"max_age_ms,omitempty" json:"max_age_ms,omitempty"`
	MaxFailures         *int            `yaml:"max_failures,omitempty" json:"max_failures,omitempty"`
	FailureWindowMs     *int64          `yaml:"failure_window_ms,omitempty" json:"failure_window_ms,omitempty"`
	NonceRetentionMs    *int64          `yaml:"nonce_retention_ms,omitempty" json:"nonce_retention_ms,omitempty"`
	RequiredPermissions []string        `yaml:"required_permissions,omitempty" json:"required_permissions,omitempty"`
	Sanitizer           SanitizerConfig `yaml:"sanitizer" json:"sanitizer"`
	Shadow              *shadow.Profile `yaml:"shadow,omitempty" json:"shadow,omitempty"`
}

// SanitizerConfig lists the keys whose values Mirror redacts.
type SanitizerConfig struct {
	SecretKeys []string `yaml:"secret_keys,omitempty" json:"secret_keys,omitempty"`
}

// LoadProfile reads and validates a gate profile.
func LoadProfile(path string) (*GateProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}

	var profile GateProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}

	for field, v := range map[string]*int64{
		"max_age_ms":         profile.MaxAgeMs,
		"failure_window_ms":  profile.FailureWindowMs,
		"nonce_retention_ms": profile.NonceRetentionMs,
	} {
		if v == nil {
			continue
		}
		if _, err := millis(*v); err != nil {
			return nil, fmt.Errorf("profile %q: %s: %w", path, field, err)
		}
	}

	if profile.Shadow != nil {
		if err := profile.Shadow.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", path, err)
		}
	}
	return &profile, nil
}

// ApplyProfile overlays the fields p sets.
func (c *Config) ApplyProfile(p *GateProfile) {
	if p.MaxAgeMs != nil {
		c.MaxAge = time.Duration(*p.MaxAgeMs) * time.Millisecond
	}
	if p.MaxFailures != nil {
		c.MaxFailures = *p.MaxFailures
	}
	if p.FailureWindowMs != nil {
		c.FailureWindow = time.Duration(*p.FailureWindowMs) * time.Millisecond
	}
	if p.NonceRetentionMs != nil {
		c.NonceRetention = time.Duration(*p.NonceRetentionMs) * time.Millisecond
	}
	if len(p.RequiredPermissions) > 0 {
		c.RequiredPermissions = p.RequiredPermissions
	}
	if len(p.Sanitizer.SecretKeys) > 0 {
		c.SanitizerKeys = p.Sanitizer.SecretKeys
	}
	if p.Shadow != nil {
		c.ShadowProfile = p.Shadow
	}
}
