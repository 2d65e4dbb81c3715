package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfigDefaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns <= 0 || c.MaxIdleConns <= 0 {
		t.Fatalf("expected pool defaults, got %+v", c)
	}
	if c.PingTimeout < time.Second {
		t.Fatalf("expected a sane ping timeout, got %v", c.PingTimeout)
	}
}

func TestPostgresPoolConfigKeepsExplicitValues(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: 10 * time.Second}.withDefaults()
	if c.MaxOpenConns != 5 {
		t.Fatalf("explicit MaxOpenConns overridden: %d", c.MaxOpenConns)
	}
	if c.PingTimeout != 10*time.Second {
		t.Fatalf("explicit PingTimeout overridden: %v", c.PingTimeout)
	}
}
