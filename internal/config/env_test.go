// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name     string
		setEnv   bool
		envValue string
		def      string
		want     string
	}{
		{"unset returns default", false, "", "fallback", "fallback"},
		{"set returns value", true, "custom", "fallback", "custom"},
		{"empty returns default", true, "", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("SIFT_TEST_STRING", tt.envValue)
			}
			if got := ParseString("SIFT_TEST_STRING", tt.def); got != tt.want {
				t.Errorf("ParseString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name     string
		setEnv   bool
		envValue string
		def      int
		want     int
	}{
		{"unset returns default", false, "", 42, 42},
		{"valid value", true, "7", 42, 7},
		{"negative value", true, "-3", 42, -3},
		{"invalid falls back", true, "seven", 42, 42},
		{"empty falls back", true, "", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("SIFT_TEST_INT", tt.envValue)
			}
			if got := ParseInt("SIFT_TEST_INT", tt.def); got != tt.want {
				t.Errorf("ParseInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		name     string
		setEnv   bool
		envValue string
		def      bool
		want     bool
	}{
		{"unset returns default", false, "", true, true},
		{"true", true, "true", false, true},
		{"one", true, "1", false, true},
		{"yes", true, "YES", false, true},
		{"false", true, "false", true, false},
		{"zero", true, "0", true, false},
		{"no", true, "No", true, false},
		{"garbage falls back", true, "maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("SIFT_TEST_BOOL", tt.envValue)
			}
			if got := ParseBool("SIFT_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("ParseBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		setEnv   bool
		envValue string
		def      time.Duration
		want     time.Duration
	}{
		{"unset returns default", false, "", 5 * time.Second, 5 * time.Second},
		{"valid value", true, "250ms", 5 * time.Second, 250 * time.Millisecond},
		{"invalid falls back", true, "fast", 5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("SIFT_TEST_DUR", tt.envValue)
			}
			if got := ParseDuration("SIFT_TEST_DUR", tt.def); got != tt.want {
				t.Errorf("ParseDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name     string
		setEnv   bool
		envValue string
		def      float64
		want     float64
	}{
		{"unset returns default", false, "", 0.95, 0.95},
		{"valid value", true, "0.8", 0.95, 0.8},
		{"invalid falls back", true, "most", 0.95, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv("SIFT_TEST_FLOAT", tt.envValue)
			}
			if got := ParseFloat("SIFT_TEST_FLOAT", tt.def); got != tt.want {
				t.Errorf("ParseFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStringSlice(t *testing.T) {
	t.Run("unset returns default", func(t *testing.T) {
		got := ParseStringSlice("SIFT_TEST_SLICE", []string{"a"})
		if len(got) != 1 || got[0] != "a" {
			t.Errorf("ParseStringSlice() = %v, want [a]", got)
		}
	})

	t.Run("splits and trims", func(t *testing.T) {
		t.Setenv("SIFT_TEST_SLICE", " cdn.example.com , media.example.org ,")
		got := ParseStringSlice("SIFT_TEST_SLICE", nil)
		if len(got) != 2 || got[0] != "cdn.example.com" || got[1] != "media.example.org" {
			t.Errorf("ParseStringSlice() = %v", got)
		}
	})
}
