package env

import (
	"log/slog"
	"testing"
)

func TestGet(t *testing.T) {
	t.Setenv("TEST_ENV_GET", "value")

	if got := Get("TEST_ENV_GET", "fallback"); got != "value" {
		t.Errorf("Get = %q, want %q", got, "value")
	}
	if got := Get("TEST_ENV_GET_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Get = %q, want %q", got, "fallback")
	}
}

func TestGetInt(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "42")
	t.Setenv("TEST_ENV_INT_BAD", "forty-two")

	if got := GetInt("TEST_ENV_INT", 7); got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
	if got := GetInt("TEST_ENV_INT_BAD", 7); got != 7 {
		t.Errorf("GetInt = %d, want 7 for malformed value", got)
	}
	if got := GetInt("TEST_ENV_INT_MISSING", 7); got != 7 {
		t.Errorf("GetInt = %d, want 7 for missing value", got)
	}
}

func TestGetFloat(t *testing.T) {
	t.Setenv("TEST_ENV_FLOAT", "1.2")
	t.Setenv("TEST_ENV_FLOAT_BAD", "x")

	if got := GetFloat("TEST_ENV_FLOAT", 0.5); got != 1.2 {
		t.Errorf("GetFloat = %v, want 1.2", got)
	}
	if got := GetFloat("TEST_ENV_FLOAT_BAD", 0.5); got != 0.5 {
		t.Errorf("GetFloat = %v, want 0.5 for malformed value", got)
	}
}

func TestGetBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"yes", true},
		{"0", false},
		{"false", false},
		{"no", false},
		{"anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_ENV_BOOL", tt.value)
			if got := GetBool("TEST_ENV_BOOL", false); got != tt.want {
				t.Errorf("GetBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	if got := GetBool("TEST_ENV_BOOL_MISSING", true); got != true {
		t.Error("GetBool should return the default for missing values")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.value)
			if got := ParseLogLevel(slog.LevelInfo); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
