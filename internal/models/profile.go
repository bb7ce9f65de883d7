// Package models defines data structures and domain types.
package models

import (
	"time"
)

// SourceKind identifies one of the independent credential sources a
// profile may carry.
type SourceKind string

const (
	// SourceWeb is a browser session credential.
	SourceWeb SourceKind = "web"
	// SourceAPIConsole is an API console key credential.
	SourceAPIConsole SourceKind = "api_console"
	// SourceCLIOAuth is a CLI OAuth token credential.
	SourceCLIOAuth SourceKind = "cli_oauth"
)

// SourceKinds lists all credential source kinds in merge order.
var SourceKinds = []SourceKind{SourceWeb, SourceAPIConsole, SourceCLIOAuth}

// CredentialSource is a tagged credential variant: the kind of source
// plus an opaque handle the fetcher knows how to use. The core never
// inspects the handle.
type CredentialSource struct {
	Kind   SourceKind `json:"kind"`
	Handle string     `json:"handle"`
}

// Usable reports whether the source carries a non-empty handle.
func (c CredentialSource) Usable() bool {
	return c.Handle != ""
}

// NotificationConfig holds per-profile alerting settings.
type NotificationConfig struct {
	Enabled    bool      `json:"enabled"`
	Thresholds []float64 `json:"thresholds,omitempty"`
}

// Profile represents one tracked account. Created and deleted by the
// configuration layer; the coordinator only updates the cached tier and
// reading fields.
type Profile struct {
	LastUsed         time.Time          `json:"lastUsed"`
	AddedAt          time.Time          `json:"addedAt"`
	Tier             *AccountTier       `json:"tier,omitempty"`
	LastReading      *UsageReading      `json:"lastReading,omitempty"`
	MonthlyBudget    *float64           `json:"monthlyBudget,omitempty"`
	ID               string             `json:"id"`
	Name             string             `json:"name,omitempty"`
	Credentials      []CredentialSource `json:"credentials,omitempty"`
	Notifications    NotificationConfig `json:"notifications"`
	BudgetThresholds []float64          `json:"budgetThresholds,omitempty"`
	RefreshInterval  time.Duration      `json:"refreshInterval"`
	AutoStartSession bool               `json:"autoStartSession,omitempty"`
	AutoRotate       bool               `json:"autoRotate,omitempty"`
	CheckOverage     bool               `json:"checkOverage,omitempty"`
	ActiveForDisplay bool               `json:"activeForDisplay,omitempty"`
}

// Credential returns the credential for the given source kind, if present.
func (p *Profile) Credential(kind SourceKind) (CredentialSource, bool) {
	for _, c := range p.Credentials {
		if c.Kind == kind {
			return c, true
		}
	}
	return CredentialSource{}, false
}

// HasUsableCredentials reports whether any credential source is usable.
func (p *Profile) HasUsableCredentials() bool {
	for _, c := range p.Credentials {
		if c.Usable() {
			return true
		}
	}
	return false
}

// HasUsableSessionCredentials reports whether a source that serves the
// session window (web or CLI OAuth) is usable.
func (p *Profile) HasUsableSessionCredentials() bool {
	for _, c := range p.Credentials {
		if (c.Kind == SourceWeb || c.Kind == SourceCLIOAuth) && c.Usable() {
			return true
		}
	}
	return false
}

// TierWeight returns the resolved tier's capacity weight, or the free
// weight when the tier has not been resolved yet.
func (p *Profile) TierWeight() float64 {
	if p.Tier == nil {
		return TierFree.Weight()
	}
	return p.Tier.Weight()
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() Profile {
	clone := *p
	if p.Credentials != nil {
		clone.Credentials = make([]CredentialSource, len(p.Credentials))
		copy(clone.Credentials, p.Credentials)
	}
	if p.Notifications.Thresholds != nil {
		clone.Notifications.Thresholds = make([]float64, len(p.Notifications.Thresholds))
		copy(clone.Notifications.Thresholds, p.Notifications.Thresholds)
	}
	if p.BudgetThresholds != nil {
		clone.BudgetThresholds = make([]float64, len(p.BudgetThresholds))
		copy(clone.BudgetThresholds, p.BudgetThresholds)
	}
	if p.Tier != nil {
		tier := *p.Tier
		clone.Tier = &tier
	}
	if p.LastReading != nil {
		reading := p.LastReading.Clone()
		clone.LastReading = &reading
	}
	if p.MonthlyBudget != nil {
		budget := *p.MonthlyBudget
		clone.MonthlyBudget = &budget
	}
	return clone
}
