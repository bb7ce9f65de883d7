package config

import (
	"errors"
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	key := "TEST_ENV_STRING"
	val := "test_value"
	t.Setenv(key, val)

	if got := getEnvString(key, "default"); got != val {
		t.Errorf("getEnvString() = %q, want %q", got, val)
	}

	if got := getEnvString("NON_EXISTENT", "default"); got != "default" {
		t.Errorf("getEnvString() = %q, want %q", got, "default")
	}
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_ENV_DURATION"

	tests := []struct {
		name   string
		envVal string
		want   time.Duration
	}{
		{"WithUnit", "45s", 45 * time.Second},
		{"Minutes", "2m", 2 * time.Minute},
		{"BareSeconds", "15", 15 * time.Second},
		{"Garbage", "nope", 30 * time.Second},
		{"Empty", "", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.envVal)
			if got := getEnvDuration(key, 30*time.Second); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_ENV_INT"
	t.Setenv(key, "7")
	if got := getEnvInt(key, 3); got != 7 {
		t.Errorf("getEnvInt() = %d, want 7", got)
	}
	t.Setenv(key, "bad")
	if got := getEnvInt(key, 3); got != 3 {
		t.Errorf("getEnvInt() = %d, want default 3", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_ENV_BOOL"

	tests := []struct {
		name   string
		envVal string
		want   bool
	}{
		{"True", "true", true},
		{"One", "1", true},
		{"False", "false", false},
		{"Garbage", "maybe", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.envVal)
			if got := getEnvBool(key, false); got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRefreshInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		wantErr  bool
	}{
		{"Minimum", 5 * time.Second, false},
		{"Default", 30 * time.Second, false},
		{"Maximum", 120 * time.Second, false},
		{"TooShort", 4 * time.Second, true},
		{"TooLong", 121 * time.Second, true},
		{"Zero", 0, true},
		{"Negative", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRefreshInterval(tt.interval)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRefreshInterval(%v) error = %v, wantErr %v", tt.interval, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIntervalOutOfRange) {
				t.Errorf("Expected ErrIntervalOutOfRange, got %v", err)
			}
		})
	}
}

func TestValidateThresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []float64
		wantErr    error
	}{
		{"Defaults", []float64{75, 90, 95}, nil},
		{"Budget", []float64{50, 75, 90}, nil},
		{"Single", []float64{100}, nil},
		{"Empty", nil, ErrNoThresholds},
		{"Zero", []float64{0, 50}, ErrThresholdOutOfRange},
		{"Negative", []float64{-5}, ErrThresholdOutOfRange},
		{"Over100", []float64{50, 101}, ErrThresholdOutOfRange},
		{"Descending", []float64{90, 75}, ErrThresholdsNotAscending},
		{"Duplicate", []float64{75, 75}, ErrThresholdsNotAscending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThresholds(tt.thresholds)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateThresholds(%v) = %v, want nil", tt.thresholds, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateThresholds(%v) = %v, want %v", tt.thresholds, err, tt.wantErr)
			}
		})
	}
}
