// Package config handles remote and bridge configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration.
type Config struct {
	// Device
	Host           string        // Device hostname or IP address
	Port           int           // Control socket port
	ConnectTimeout time.Duration // Socket open and ping timeout
	PingInterval   time.Duration // Keepalive interval, 0 disables
	Standby        bool          // Standby connection (device may be kept idle)
	PairingTimeout time.Duration // How long to wait for on-screen confirmation
	InputRate      float64       // Input frames per second, 0 is unlimited

	// Credentials
	KeyStore string // file, sqlite or keyring
	KeyFile  string // Key file or database path

	// Bridge
	Listen       string        // HTTP listen address
	TokenHash    string        // bcrypt hash of the API bearer token
	TOTPSecret   string        // Optional TOTP secret for command routes
	ReconnectMax time.Duration // Maximum reconnect backoff

	// Behavior
	LogLevel string // Logging level (debug, info, warn, error)
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:           3000,
		ConnectTimeout: 2 * time.Second,
		PingInterval:   20 * time.Second,
		PairingTimeout: 60 * time.Second,
		KeyStore:       "file",
		Listen:         "127.0.0.1:8130",
		ReconnectMax:   60 * time.Second,
		LogLevel:       "info",
	}
}

// LoadFromEnv loads configuration from environment variables. The host may
// also be given on the command line, so it is not required here.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Host = os.Getenv("WEBOS_HOST")

	if port := os.Getenv("WEBOS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, errors.New("WEBOS_PORT must be a number")
		}
		cfg.Port = p
	}

	var err error
	if cfg.ConnectTimeout, err = seconds("WEBOS_CONNECT_TIMEOUT", cfg.ConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.PingInterval, err = seconds("WEBOS_PING_INTERVAL", cfg.PingInterval); err != nil {
		return nil, err
	}
	if cfg.PairingTimeout, err = seconds("WEBOS_PAIRING_TIMEOUT", cfg.PairingTimeout); err != nil {
		return nil, err
	}
	if cfg.ReconnectMax, err = seconds("WEBOS_RECONNECT_MAX", cfg.ReconnectMax); err != nil {
		return nil, err
	}

	if standby := os.Getenv("WEBOS_STANDBY"); standby != "" {
		b, err := strconv.ParseBool(standby)
		if err != nil {
			return nil, errors.New("WEBOS_STANDBY must be true or false")
		}
		cfg.Standby = b
	}

	if rate := os.Getenv("WEBOS_INPUT_RATE"); rate != "" {
		r, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return nil, errors.New("WEBOS_INPUT_RATE must be a number (frames per second)")
		}
		cfg.InputRate = r
	}

	if store := os.Getenv("WEBOS_KEY_STORE"); store != "" {
		cfg.KeyStore = store
	}
	cfg.KeyFile = os.Getenv("WEBOS_KEY_FILE")

	if listen := os.Getenv("WEBOS_LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	cfg.TokenHash = os.Getenv("WEBOS_TOKEN_HASH")
	cfg.TOTPSecret = os.Getenv("WEBOS_TOTP_SECRET")

	if level := os.Getenv("WEBOS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

// seconds reads a duration given in whole seconds.
func seconds(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number (seconds)", name)
	}
	return time.Duration(n) * time.Second, nil
}

// Validate checks that the configuration can drive a client.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.ConnectTimeout < time.Second {
		return errors.New("connect timeout must be at least 1 second")
	}
	if c.PingInterval < 0 {
		return errors.New("ping interval must not be negative")
	}
	if c.PairingTimeout < time.Second {
		return errors.New("pairing timeout must be at least 1 second")
	}
	if c.InputRate < 0 {
		return errors.New("input rate must not be negative")
	}
	switch c.KeyStore {
	case "file", "sqlite", "keyring":
	default:
		return fmt.Errorf("unknown key store %q (file, sqlite or keyring)", c.KeyStore)
	}
	return nil
}

// ValidateBridge checks the bridge settings. Without a token hash the bridge
// is unauthenticated and may only listen on a loopback address.
func (c *Config) ValidateBridge() error {
	if err := c.Validate(); err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.TokenHash == "" && !loopback(host) {
		return errors.New("WEBOS_TOKEN_HASH is required when listening on a non-loopback address")
	}
	if c.TOTPSecret != "" && c.TokenHash == "" {
		return errors.New("WEBOS_TOTP_SECRET requires WEBOS_TOKEN_HASH")
	}
	if c.ReconnectMax < time.Second {
		return errors.New("reconnect backoff must be at least 1 second")
	}
	return nil
}

func loopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
