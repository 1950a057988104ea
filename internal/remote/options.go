package remote

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Defaults
const (
	DefaultPort           = 3000
	DefaultConnectTimeout = 2 * time.Second
	DefaultPingInterval   = 20 * time.Second
	DefaultPairingTimeout = 60 * time.Second
)

// CredentialStore persists pairing credentials keyed by device address.
type CredentialStore interface {
	Load(ctx context.Context, address string) (string, error)
	Save(ctx context.Context, address, key string) error
}

// Options configures a Client.
type Options struct {
	Port           int
	ConnectTimeout time.Duration
	// PingInterval of zero disables keepalive.
	PingInterval time.Duration
	// Standby keeps the connection open while the device is in standby. The
	// control socket is not pinged while no app is in the foreground.
	Standby        bool
	PairingTimeout time.Duration
	// InputRate limits input socket frames per second. Zero is unlimited.
	InputRate float64
	// Store may be nil, in which case credentials live in memory only.
	Store CredentialStore
	Log   zerolog.Logger
}

// DefaultOptions returns a fresh set of default options.
func DefaultOptions() Options {
	return Options{
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		PingInterval:   DefaultPingInterval,
		PairingTimeout: DefaultPairingTimeout,
		Log:            zerolog.Nop(),
	}
}

func (o *Options) applyDefaults() {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.PairingTimeout <= 0 {
		o.PairingTimeout = DefaultPairingTimeout
	}
	if o.PingInterval < 0 {
		o.PingInterval = 0
	}
}
