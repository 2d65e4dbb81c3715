package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Dialer.PerAgentFanout != 2 {
		t.Fatalf("expected fanout default 2, got %d", c.Dialer.PerAgentFanout)
	}
	if c.Dialer.MaxAttempts != 3 {
		t.Fatalf("expected attempt cap default 3, got %d", c.Dialer.MaxAttempts)
	}
	if c.Dialer.StaleThreshold <= c.Dialer.DialTimeout {
		t.Fatalf("stale threshold default must exceed dial timeout")
	}
}

func TestValidate_RejectsAbsurdFanout(t *testing.T) {
	c := validLocal()
	c.Dialer.PerAgentFanout = 50
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for fanout > 10")
	}
}

func TestValidate_StaleThresholdMustExceedDialTimeout(t *testing.T) {
	c := validLocal()
	c.Dialer.DialTimeout = 10 * time.Minute
	c.Dialer.StaleThreshold = time.Minute
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when stale threshold <= dial timeout")
	}
}

func TestValidate_CallerIDsMustBeE164(t *testing.T) {
	c := validLocal()
	c.Dialer.CallerIDs = []string{"5551234567"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-E.164 caller id")
	}
}

func TestStatusCallbackURL(t *testing.T) {
	c := validLocal()
	c.App.PublicBaseURL = "https://dialer.example.com"
	if got := c.StatusCallbackURL(); got != "https://dialer.example.com/webhooks/telephony/status" {
		t.Fatalf("unexpected callback url %q", got)
	}
}
