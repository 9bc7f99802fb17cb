package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Export.MaxDataPoints = 1000
	cfg.Scheduler.Interval = 5 * time.Minute
	cfg.Aggregation.Policy = "fallback"
	cfg.Aggregation.Priority = []string{"0x", "cowswap"}
	cfg.Providers.ZeroX.Enabled = true
	cfg.Providers.ZeroX.APIKey = "key"
	cfg.Providers.Cowswap.Enabled = true
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = ":8080"
	return cfg
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config should pass: %v", err)
	}
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Aggregation.Policy = "median"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown policy should be rejected")
	}
}

func TestValidateRejectsNoProviders(t *testing.T) {
	cfg := validConfig()
	cfg.Providers.ZeroX.Enabled = false
	cfg.Providers.Cowswap.Enabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("no enabled providers should be rejected")
	}
}

func TestValidateRequiresZeroXKey(t *testing.T) {
	cfg := validConfig()
	cfg.Providers.ZeroX.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled 0x without api key should be startup-fatal")
	}
}

func TestValidateRequiresOneInchKey(t *testing.T) {
	cfg := validConfig()
	cfg.Providers.OneInch.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled 1inch without api key should be startup-fatal")
	}
}

func TestValidateRejectsUnknownPriorityEntry(t *testing.T) {
	cfg := validConfig()
	cfg.Aggregation.Priority = []string{"0x", "uniswap"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown priority entry should be rejected")
	}
}

func TestValidateTelegramCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled telegram without credentials should be rejected")
	}
}

func TestUniverseFallsBackToDefaults(t *testing.T) {
	u, err := validConfig().Universe()
	if err != nil {
		t.Fatalf("default universe should build: %v", err)
	}
	if _, ok := u.BySymbol("USDT"); !ok {
		t.Fatal("default universe should track USDT")
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ResolveMaxPoints(0); got != 1000 {
		t.Fatalf("expected config default 1000, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Fatalf("expected override 50, got %d", got)
	}
}
