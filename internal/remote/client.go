// Package remote implements a persistent client for webOS devices speaking
// the ssap protocol.
//
// A Client pairs with the device, keeps a control socket and an input socket
// open, correlates requests with responses, dispatches subscription pushes
// and mirrors the device state into a state.Aggregator.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/markus-barta/webos-remote/internal/protocol"
	"github.com/markus-barta/webos-remote/internal/socket"
	"github.com/markus-barta/webos-remote/internal/state"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Client is a remote control for one device.
type Client struct {
	host    string
	opts    Options
	log     zerolog.Logger
	agg     *state.Aggregator
	limiter *rate.Limiter
	connect singleflight.Group

	mu       sync.Mutex
	key      string
	sess     *session
	cancel   context.CancelFunc
	finished chan struct{}
	// attempt cancels a connect attempt still in progress. waiters counts
	// the Connect calls sharing it.
	attempt context.CancelFunc
	waiters int
}

// New creates a client for host and loads its stored credential.
func New(ctx context.Context, host string, opts Options) (*Client, error) {
	opts.applyDefaults()

	c := &Client{
		host: host,
		opts: opts,
		log:  opts.Log.With().Str("component", "remote").Str("host", host).Logger(),
	}
	c.agg = state.NewAggregator(opts.Log)
	if opts.InputRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.InputRate), 1)
	}

	if opts.Store != nil {
		key, err := opts.Store.Load(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("load client key: %w", err)
		}
		c.key = key
	}
	return c, nil
}

// Host returns the device address.
func (c *Client) Host() string {
	return c.host
}

// ClientKey returns the pairing credential, or "" when unpaired.
func (c *Client) ClientKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// IsRegistered reports whether a pairing credential is held.
func (c *Client) IsRegistered() bool {
	return c.ClientKey() != ""
}

// IsConnected reports whether a session is live.
func (c *Client) IsConnected() bool {
	return c.current() != nil
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) url() string {
	return "ws://" + net.JoinHostPort(c.host, strconv.Itoa(c.opts.Port))
}

// Done returns a channel closed when the current session ends. Without a
// session it returns a closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.finished
}

// Connect establishes a session unless one is already live. Concurrent calls
// share one attempt. When every caller sharing the attempt has given up
// through its ctx, the attempt is cancelled and torn down. A call joining
// right after that cancellation fails with the attempt's error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.waiters++
	c.mu.Unlock()

	result := c.connect.DoChan("connect", func() (any, error) {
		return nil, c.start()
	})
	select {
	case res := <-result:
		c.leave(false)
		return res.Err
	case <-ctx.Done():
		c.leave(true)
		return ctx.Err()
	}
}

// leave drops one waiter and cancels the pending attempt when the last
// waiter abandons it.
func (c *Client) leave(abandoned bool) {
	c.mu.Lock()
	c.waiters--
	var abort context.CancelFunc
	if abandoned && c.waiters == 0 {
		abort = c.attempt
	}
	c.mu.Unlock()

	if abort != nil {
		c.log.Debug().Msg("connect abandoned by every caller")
		abort()
	}
}

func (c *Client) start() error {
	c.mu.Lock()
	live, prev := c.sess, c.finished
	c.mu.Unlock()

	if live != nil {
		return nil
	}
	// A previous session may still be closing.
	if prev != nil {
		<-prev
	}

	lifeCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	finished := make(chan struct{})

	c.mu.Lock()
	if c.waiters == 0 {
		// Every caller left while the previous session was closing.
		c.mu.Unlock()
		cancel()
		return context.Canceled
	}
	c.cancel = cancel
	c.finished = finished
	c.attempt = cancel
	c.mu.Unlock()

	go c.run(lifeCtx, ready, finished)
	err := <-ready

	c.mu.Lock()
	c.attempt = nil
	c.mu.Unlock()
	return err
}

// Disconnect ends the session and waits for teardown. If ctx ends first,
// Disconnect returns its error while teardown still runs to completion.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel, finished := c.cancel, c.finished
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one session from pairing to teardown. ready receives the
// outcome of the attempt exactly once.
func (c *Client) run(ctx context.Context, ready chan<- error, finished chan struct{}) {
	defer close(finished)

	control, err := socket.Dial(ctx, c.url(), socket.Options{
		ConnectTimeout: c.opts.ConnectTimeout,
		Inbound:        true,
		Log:            c.opts.Log,
	})
	if err != nil {
		c.agg.Reset()
		ready <- err
		return
	}

	s := newSession(control, c.log)
	w := c.agg.Begin()

	taskCtx, stop := context.WithCancel(ctx)
	g, taskCtx := errgroup.WithContext(taskCtx)
	spawn := func(name string, task func(context.Context) error) {
		g.Go(func() error {
			defer stop()
			err := task(taskCtx)
			c.log.Debug().Str("task", name).Msg("task finished")
			return err
		})
	}

	defer c.teardown(s, stop, g)

	if err := c.pair(ctx, control); err != nil {
		ready <- err
		return
	}

	spawn("router", s.route)

	if err := c.prime(taskCtx, s, w, spawn); err != nil {
		if ctx.Err() != nil || (errors.Is(err, context.Canceled) && taskCtx.Err() != nil) {
			err = fmt.Errorf("%w: session ended during setup", ErrNotConnected)
		}
		ready <- err
		return
	}

	c.mu.Lock()
	c.sess = s
	c.attempt = nil
	c.mu.Unlock()

	w.GoLive()
	c.log.Info().Msg("connected")
	ready <- nil

	<-taskCtx.Done()
}

// prime opens the input socket, starts the supervisors, fetches static info
// and establishes the state subscriptions feeding w.
func (c *Client) prime(ctx context.Context, s *session, w *state.Writer, spawn func(string, func(context.Context) error)) error {
	raw, err := s.call(ctx, protocol.TypeRequest, protocol.EndpointInputSocket, nil, nil)
	if err != nil {
		return fmt.Errorf("request input socket: %w", err)
	}
	var sock protocol.InputSocketPayload
	if err := json.Unmarshal(raw, &sock); err != nil || sock.SocketPath == "" {
		return &CommandError{URI: protocol.URI(protocol.EndpointInputSocket), Envelope: raw, Err: errors.New("missing socketPath")}
	}

	input, err := socket.Dial(ctx, sock.SocketPath, socket.Options{
		ConnectTimeout: c.opts.ConnectTimeout,
		Log:            c.opts.Log,
	})
	if err != nil {
		return fmt.Errorf("open input socket: %w", err)
	}
	s.setInput(input)

	spawn("input", func(ctx context.Context) error {
		select {
		case <-input.Done():
			c.log.Debug().Msg("input socket closed")
		case <-ctx.Done():
		}
		return nil
	})
	if c.opts.PingInterval > 0 {
		spawn("keepalive-control", func(ctx context.Context) error {
			return c.keepalive(ctx, s.control, "control", true)
		})
		spawn("keepalive-input", func(ctx context.Context) error {
			return c.keepalive(ctx, input, "input", false)
		})
	}

	var system, software json.RawMessage
	info, infoCtx := errgroup.WithContext(ctx)
	info.Go(func() (err error) {
		system, err = s.call(infoCtx, protocol.TypeRequest, protocol.EndpointGetSystemInfo, nil, nil)
		return err
	})
	info.Go(func() (err error) {
		software, err = s.call(infoCtx, protocol.TypeRequest, protocol.EndpointGetSoftwareInfo, nil, nil)
		return err
	})
	if err := info.Wait(); err != nil {
		return fmt.Errorf("fetch static info: %w", err)
	}
	w.SetStaticInfo(system, software)

	subs, subCtx := errgroup.WithContext(ctx)
	subscribe := func(endpoint string, handler func(json.RawMessage)) {
		subs.Go(func() error {
			_, err := s.call(subCtx, protocol.TypeSubscribe, endpoint, nil, handler)
			return err
		})
	}
	subscribe(protocol.EndpointGetCurrentAppInfo, onCurrentApp(w))
	subscribe(protocol.EndpointGetAudioStatus, onAudioStatus(w))
	subscribe(protocol.EndpointGetVolume, onVolume(w))
	subscribe(protocol.EndpointGetApps, onApps(w))
	subscribe(protocol.EndpointGetInputs, onInputs(w))
	subs.Go(func() error {
		// Not every device supports channel subscriptions.
		_, err := s.call(subCtx, protocol.TypeSubscribe, protocol.EndpointGetCurrentChannel, nil, onChannel(w))
		if errors.Is(err, ErrCommandFailed) {
			c.log.Debug().Err(err).Msg("channel subscription unavailable")
			return nil
		}
		return err
	})
	if err := subs.Wait(); err != nil {
		return fmt.Errorf("subscribe state: %w", err)
	}
	return nil
}

// teardown never fails: every collaborator error is swallowed.
func (c *Client) teardown(s *session, stop context.CancelFunc, g *errgroup.Group) {
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()

	s.end()
	stop()
	if err := g.Wait(); err != nil {
		c.log.Debug().Err(err).Msg("task error during teardown")
	}
	s.stopSubscriptions()

	if input := s.inputConn(); input != nil {
		if err := input.Close(); err != nil {
			c.log.Debug().Err(err).Msg("error closing input socket")
		}
	}
	if err := s.control.Close(); err != nil {
		c.log.Debug().Err(err).Msg("error closing control socket")
	}

	// Retires w, so handlers still draining from stopped subscriptions
	// cannot write into the empty state.
	c.agg.Reset()
	c.log.Info().Msg("disconnected")
}

// Request sends a one-shot request and returns the validated payload.
func (c *Client) Request(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	s := c.current()
	if s == nil {
		return nil, ErrNotConnected
	}
	return s.call(ctx, protocol.TypeRequest, endpoint, payload, nil)
}

// Subscribe registers handler for every message carrying the subscription's
// id and returns the initial payload. handler has already been invoked with
// that payload when Subscribe returns. The subscription lasts until the
// session ends.
func (c *Client) Subscribe(ctx context.Context, endpoint string, payload any, handler func(json.RawMessage)) (json.RawMessage, error) {
	if handler == nil {
		return nil, errors.New("subscribe: nil handler")
	}
	s := c.current()
	if s == nil {
		return nil, ErrNotConnected
	}
	return s.call(ctx, protocol.TypeSubscribe, endpoint, payload, handler)
}

// command sends a request without waiting for the reply.
func (c *Client) command(ctx context.Context, endpoint string, payload any) error {
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}
	return s.send(ctx, protocol.TypeRequest, endpoint, payload)
}

// State returns the current device state snapshot.
func (c *Client) State() state.DeviceState {
	return c.agg.Snapshot()
}

// RegisterObserver adds a state observer. See state.Aggregator.
func (c *Client) RegisterObserver(fn state.Observer) state.ObserverID {
	return c.agg.RegisterObserver(fn)
}

// UnregisterObserver removes one observer registration.
func (c *Client) UnregisterObserver(id state.ObserverID) {
	c.agg.UnregisterObserver(id)
}

// ClearObservers removes every observer.
func (c *Client) ClearObservers() {
	c.agg.ClearObservers()
}

// CalibrationSupport reports the calibration features of the connected model.
func (c *Client) CalibrationSupport() state.CalibrationInfo {
	return c.agg.Calibration()
}
