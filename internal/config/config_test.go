package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("WEBOS_HOST", "192.168.1.20")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3000 || cfg.ConnectTimeout != 2*time.Second || cfg.PingInterval != 20*time.Second {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.KeyStore != "file" || cfg.Listen != "127.0.0.1:8130" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("WEBOS_HOST", "tv.local")
	t.Setenv("WEBOS_PORT", "3001")
	t.Setenv("WEBOS_PING_INTERVAL", "0")
	t.Setenv("WEBOS_STANDBY", "true")
	t.Setenv("WEBOS_INPUT_RATE", "12.5")
	t.Setenv("WEBOS_KEY_STORE", "sqlite")
	t.Setenv("WEBOS_KEY_FILE", "/var/lib/webos/keys.db")
	t.Setenv("WEBOS_LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3001 || cfg.PingInterval != 0 || !cfg.Standby || cfg.InputRate != 12.5 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.KeyStore != "sqlite" || cfg.KeyFile != "/var/lib/webos/keys.db" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port", key: "WEBOS_PORT", value: "tv"},
		{name: "timeout", key: "WEBOS_CONNECT_TIMEOUT", value: "2s"},
		{name: "standby", key: "WEBOS_STANDBY", value: "maybe"},
		{name: "rate", key: "WEBOS_INPUT_RATE", value: "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without host")
	}

	cfg.Host = "tv"
	cfg.KeyStore = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown key store")
	}
}

func TestValidateBridge(t *testing.T) {
	tests := []struct {
		name    string
		listen  string
		hash    string
		totp    string
		wantErr bool
	}{
		{name: "loopback without auth", listen: "127.0.0.1:8130"},
		{name: "localhost without auth", listen: "localhost:8130"},
		{name: "public without auth", listen: "0.0.0.0:8130", wantErr: true},
		{name: "public with auth", listen: ":8130", hash: "$2a$10$abc"},
		{name: "totp without token", listen: "127.0.0.1:8130", totp: "JBSWY3DPEHPK3PXP", wantErr: true},
		{name: "bad address", listen: "8130", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Host = "tv"
			cfg.Listen = tt.listen
			cfg.TokenHash = tt.hash
			cfg.TOTPSecret = tt.totp

			err := cfg.ValidateBridge()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
