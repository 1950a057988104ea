package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	initialBackoff  = 1 * time.Second
	disconnectGrace = 5 * time.Second
)

// Connector is the session lifecycle of a remote client.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Done() <-chan struct{}
}

// Supervisor keeps a session up, reconnecting with exponential backoff.
type Supervisor struct {
	conn       Connector
	log        zerolog.Logger
	initial    time.Duration
	maxBackoff time.Duration
	backoff    time.Duration
}

// NewSupervisor creates a supervisor. maxBackoff caps the reconnect delay.
func NewSupervisor(conn Connector, maxBackoff time.Duration, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		conn:       conn,
		log:        log.With().Str("component", "supervisor").Logger(),
		initial:    initialBackoff,
		maxBackoff: maxBackoff,
		backoff:    initialBackoff,
	}
}

// Run connects and reconnects until ctx is cancelled, then disconnects.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.disconnect()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("context cancelled, stopping")
			return nil
		default:
		}

		if err := s.conn.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Dur("backoff", s.backoff).Msg("connection failed, retrying")
			s.waitBackoff(ctx)
			continue
		}

		// Connected - reset backoff
		s.backoff = s.initial

		select {
		case <-s.conn.Done():
			s.log.Warn().Dur("backoff", s.backoff).Msg("session ended, reconnecting")
		case <-ctx.Done():
			return nil
		}

		s.waitBackoff(ctx)
	}
}

func (s *Supervisor) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
	defer cancel()
	if err := s.conn.Disconnect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("disconnect did not finish")
	}
}

// waitBackoff waits for the current backoff duration, then doubles it.
func (s *Supervisor) waitBackoff(ctx context.Context) {
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	s.backoff *= 2
	if s.backoff > s.maxBackoff {
		s.backoff = s.maxBackoff
	}
}
