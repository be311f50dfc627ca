package reconcile

import (
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Interval != 24*time.Hour {
		t.Errorf("Interval = %v, want %v", cfg.Interval, 24*time.Hour)
	}
	if cfg.RetryBackoff != 60*time.Second {
		t.Errorf("RetryBackoff = %v, want %v", cfg.RetryBackoff, 60*time.Second)
	}
}

func TestConfig_DefaultsPreserveExisting(t *testing.T) {
	cfg := Config{
		Interval:     30 * time.Second,
		RetryBackoff: 5 * time.Second,
	}
	cfg.ApplyDefaults()

	if cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want %v", cfg.Interval, 30*time.Second)
	}
	if cfg.RetryBackoff != 5*time.Second {
		t.Errorf("RetryBackoff = %v, want %v", cfg.RetryBackoff, 5*time.Second)
	}
}

func TestConfig_ValidateRejectsNegativeInterval(t *testing.T) {
	cfg := Config{Interval: -1 * time.Second, RetryBackoff: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for negative Interval")
	}
}

func TestConfig_ValidateRejectsSubSecondInterval(t *testing.T) {
	cfg := Config{Interval: 500 * time.Millisecond, RetryBackoff: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for sub-second Interval")
	}
}

func TestConfig_ValidateRejectsSubSecondBackoff(t *testing.T) {
	cfg := Config{Interval: time.Hour, RetryBackoff: time.Millisecond}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for sub-second RetryBackoff")
	}
}

func TestConfig_ValidateAcceptsDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
