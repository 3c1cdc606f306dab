package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr = %s", cfg.HTTPAddr)
	}
	if cfg.PresenceOnlineWindow != 5*time.Minute || cfg.PresenceStaleWindow != 15*time.Minute {
		t.Fatalf("presence windows: %s / %s", cfg.PresenceOnlineWindow, cfg.PresenceStaleWindow)
	}
	if cfg.SpeedMPH != 30 {
		t.Fatalf("speed = %f", cfg.SpeedMPH)
	}
}

func TestLoadServerConfigOverridesAndValidation(t *testing.T) {
	t.Setenv("PRESENCE_ONLINE_WINDOW", "2m")
	t.Setenv("PRESENCE_STALE_WINDOW", "10m")
	t.Setenv("DISPATCH_SPEED_MPH", "25")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PresenceOnlineWindow != 2*time.Minute || cfg.SpeedMPH != 25 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	t.Setenv("PRESENCE_STALE_WINDOW", "1m") // below online window
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected validation error")
	}

	t.Setenv("PRESENCE_STALE_WINDOW", "bogus")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}
