package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Pending.MaxPending != 10 || cfg.Pending.MaxHistory != 50 {
		t.Fatalf("unexpected pending defaults: %+v", cfg.Pending)
	}
	if cfg.Display.MaxReconnectAttempts != 5 {
		t.Fatalf("expected 5 reconnect attempts, got %d", cfg.Display.MaxReconnectAttempts)
	}
	if cfg.Detector.DebounceWindowMS != 5000 {
		t.Fatalf("expected 5000ms debounce, got %d", cfg.Detector.DebounceWindowMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VERSELINK_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VERSELINK_DISPLAY_ADDRESS", "http://10.0.0.5:1025")
	t.Setenv("VERSELINK_DISPLAY_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("VERSELINK_PENDING_MAX_PENDING", "4")
	t.Setenv("VERSELINK_DETECTOR_CONSUME_PARTIALS", "true")
	t.Setenv("VERSELINK_BIBLE_DEFAULT_TRANSLATION", "WEB")
	t.Setenv("VERSELINK_EVENT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Display.Address != "http://10.0.0.5:1025" {
		t.Fatalf("expected display address override, got %q", cfg.Display.Address)
	}
	if cfg.Display.MaxReconnectAttempts != 3 {
		t.Fatalf("expected reconnect attempts override, got %d", cfg.Display.MaxReconnectAttempts)
	}
	if cfg.Pending.MaxPending != 4 {
		t.Fatalf("expected max pending override, got %d", cfg.Pending.MaxPending)
	}
	if !cfg.Detector.ConsumePartials {
		t.Fatal("expected consume partials override true")
	}
	if cfg.Bible.DefaultTranslation != "WEB" {
		t.Fatalf("expected translation override, got %q", cfg.Bible.DefaultTranslation)
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected retention mode override, got %q", cfg.EventStore.RetentionMode)
	}
}

func TestValidateDisplayAddress(t *testing.T) {
	cases := []struct {
		address string
		wantErr bool
	}{
		{"", false},
		{"http://192.168.1.20:1025", false},
		{"https://stage.local", false},
		{"ftp://192.168.1.20", true},
		{"http://", true},
		{"http://host:99999", true},
	}
	for _, tc := range cases {
		err := ValidateDisplayAddress(tc.address)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q", tc.address)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.address, err)
		}
	}
}

func TestValidateRejectsBadPending(t *testing.T) {
	cfg := Default()
	cfg.Pending.MaxPending = 0
	if err := validate(cfg); err == nil {
		t.Fatal("expected validation error for max_pending 0")
	}
}
