package profiles

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/j-veylop/usagewatch/internal/models"
)

// Older builds wrote profiles in two earlier shapes: version 0 was a bare
// JSON array, version 1 stored each credential as its own named field.
// Migration runs once at load; decode-time default-filling is not
// scattered across call sites.

// profileV1 is the version-1 on-disk profile with field-per-source
// credentials.
type profileV1 struct {
	LastUsed         time.Time                 `json:"lastUsed"`
	AddedAt          time.Time                 `json:"addedAt"`
	MonthlyBudget    *float64                  `json:"monthlyBudget,omitempty"`
	ID               string                    `json:"id"`
	Name             string                    `json:"name,omitempty"`
	WebSession       string                    `json:"webSession,omitempty"`
	APIConsoleKey    string                    `json:"apiConsoleKey,omitempty"`
	CLIOAuthToken    string                    `json:"cliOauthToken,omitempty"`
	Notifications    models.NotificationConfig `json:"notifications"`
	BudgetThresholds []float64                 `json:"budgetThresholds,omitempty"`
	RefreshInterval  time.Duration             `json:"refreshInterval"`
	AutoStartSession bool                      `json:"autoStartSession,omitempty"`
	AutoRotate       bool                      `json:"autoRotate,omitempty"`
	CheckOverage     bool                      `json:"checkOverage,omitempty"`
	ActiveForDisplay bool                      `json:"activeForDisplay,omitempty"`
}

type profilesFileV1 struct {
	Profiles      []profileV1 `json:"profiles"`
	ActiveProfile string      `json:"activeProfile,omitempty"`
	Version       int         `json:"version,omitempty"`
}

// parseProfilesFile decodes a profiles file of any known schema version
// and migrates it to the current shape.
func parseProfilesFile(data []byte) (*ProfilesFile, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// A bare array fails the object probe: try version 0.
		return migrateV0(data)
	}

	switch probe.Version {
	case CurrentSchemaVersion:
		var file ProfilesFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse profiles file: %w", err)
		}
		return applyDefaults(&file), nil
	case 1:
		return migrateV1(data)
	case 0:
		return migrateV0(data)
	default:
		return nil, fmt.Errorf("unsupported profiles schema version %d", probe.Version)
	}
}

// migrateV0 handles the legacy bare-array format.
func migrateV0(data []byte) (*ProfilesFile, error) {
	var legacy []profileV1
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: invalid format")
	}

	v1 := profilesFileV1{Profiles: legacy, Version: 1}
	if len(legacy) > 0 {
		v1.ActiveProfile = legacy[0].ID
	}
	return migrateFromV1(v1), nil
}

// migrateV1 handles the version-1 object format.
func migrateV1(data []byte) (*ProfilesFile, error) {
	var v1 profilesFileV1
	if err := json.Unmarshal(data, &v1); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}
	return migrateFromV1(v1), nil
}

func migrateFromV1(v1 profilesFileV1) *ProfilesFile {
	file := &ProfilesFile{
		ActiveProfile: v1.ActiveProfile,
		Version:       CurrentSchemaVersion,
		Profiles:      make([]models.Profile, len(v1.Profiles)),
	}

	for i, old := range v1.Profiles {
		profile := models.Profile{
			ID:               old.ID,
			Name:             old.Name,
			LastUsed:         old.LastUsed,
			AddedAt:          old.AddedAt,
			MonthlyBudget:    old.MonthlyBudget,
			Notifications:    old.Notifications,
			BudgetThresholds: old.BudgetThresholds,
			RefreshInterval:  old.RefreshInterval,
			AutoStartSession: old.AutoStartSession,
			AutoRotate:       old.AutoRotate,
			CheckOverage:     old.CheckOverage,
			ActiveForDisplay: old.ActiveForDisplay,
		}

		// Fold the per-field credentials into the tagged variant list.
		if old.WebSession != "" {
			profile.Credentials = append(profile.Credentials,
				models.CredentialSource{Kind: models.SourceWeb, Handle: old.WebSession})
		}
		if old.APIConsoleKey != "" {
			profile.Credentials = append(profile.Credentials,
				models.CredentialSource{Kind: models.SourceAPIConsole, Handle: old.APIConsoleKey})
		}
		if old.CLIOAuthToken != "" {
			profile.Credentials = append(profile.Credentials,
				models.CredentialSource{Kind: models.SourceCLIOAuth, Handle: old.CLIOAuthToken})
		}

		file.Profiles[i] = profile
	}

	return applyDefaults(file)
}

func applyDefaults(file *ProfilesFile) *ProfilesFile {
	for i := range file.Profiles {
		if file.Profiles[i].RefreshInterval == 0 {
			file.Profiles[i].RefreshInterval = 30 * time.Second
		}
	}
	if file.ActiveProfile == "" && len(file.Profiles) > 0 {
		file.ActiveProfile = file.Profiles[0].ID
	}
	return file
}
