// Package socket owns a single live WebSocket connection to a device.
//
// A Conn provides send and receive primitives, explicit pings and a close
// notification. It never pings itself; keepalive is driven by the caller.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Connection parameters
const (
	defaultConnectTimeout = 2 * time.Second
	defaultWriteWait      = 10 * time.Second
	closeGracePeriod      = time.Second
	inboundBuffer         = 64
	maxMessageSize        = 4 * 1024 * 1024
)

var (
	// ErrNotConnected is returned when the transport is closing or closed.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectTimeout is returned when the dial does not complete in time.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrPingTimeout is returned when no pong arrives within the ping timeout.
	ErrPingTimeout = errors.New("ping timeout")
)

// TransportError wraps a network or WebSocket failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Options configures a Conn.
type Options struct {
	ConnectTimeout time.Duration
	WriteWait      time.Duration
	// Inbound delivers text frames through Read. When false, frames are
	// read (so control frames are processed) and discarded.
	Inbound bool
	Log     zerolog.Logger
}

// Conn is one live transport connection.
type Conn struct {
	conn      *websocket.Conn
	url       string
	log       zerolog.Logger
	writeWait time.Duration
	inbound   bool

	writeMu  sync.Mutex
	messages chan []byte

	pingMu sync.Mutex
	pings  map[string]chan struct{}

	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	errMu   sync.Mutex
	readErr error
}

// Dial opens a connection to url, failing with ErrConnectTimeout when the
// handshake does not finish within opts.ConnectTimeout.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}

	log := opts.Log.With().Str("component", "socket").Str("url", url).Logger()
	log.Debug().Dur("timeout", opts.ConnectTimeout).Msg("connecting")

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %s after %s", ErrConnectTimeout, url, opts.ConnectTimeout)
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &Conn{
		conn:      conn,
		url:       url,
		log:       log,
		writeWait: opts.WriteWait,
		inbound:   opts.Inbound,
		messages:  make(chan []byte, inboundBuffer),
		pings:     make(map[string]chan struct{}),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(c.handlePong)

	go c.readPump()

	log.Debug().Msg("connected")
	return c, nil
}

// URL returns the address this connection was dialed with.
func (c *Conn) URL() string {
	return c.url
}

// readPump reads frames until the transport fails or is closed.
func (c *Conn) readPump() {
	defer close(c.done)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()

			select {
			case <-c.closing:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Debug().Err(err).Msg("read error")
				}
			}
			return
		}

		if !c.inbound || msgType != websocket.TextMessage {
			continue
		}

		select {
		case c.messages <- data:
		case <-c.closing:
			return
		}
	}
}

// Read returns the next inbound text frame. It returns io.EOF once the
// transport is no longer usable and all buffered frames were consumed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.messages:
		return data, nil
	case <-c.done:
		select {
		case data := <-c.messages:
			return data, nil
		default:
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes one text frame. It fails with ErrNotConnected if the transport
// is closing or closed and never blocks longer than the write wait.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if !c.writable() {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.writable() {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrNotConnected
		}
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// SendJSON marshals v and sends it as one text frame.
func (c *Conn) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(ctx, data)
}

// Ping sends a ping and waits up to timeout for the matching pong.
func (c *Conn) Ping(ctx context.Context, timeout time.Duration) error {
	if !c.writable() {
		return ErrNotConnected
	}

	token := uuid.NewString()
	pong := make(chan struct{})

	c.pingMu.Lock()
	c.pings[token] = pong
	c.pingMu.Unlock()

	defer func() {
		c.pingMu.Lock()
		delete(c.pings, token)
		c.pingMu.Unlock()
	}()

	if err := c.conn.WriteControl(websocket.PingMessage, []byte(token), time.Now().Add(c.writeWait)); err != nil {
		if !c.writable() || errors.Is(err, websocket.ErrCloseSent) {
			return ErrNotConnected
		}
		return &TransportError{Op: "ping", Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-pong:
		return nil
	case <-timer.C:
		return ErrPingTimeout
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) handlePong(appData string) error {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()

	if ch, ok := c.pings[appData]; ok {
		close(ch)
		delete(c.pings, appData)
	}
	return nil
}

// Done is closed when the transport is no longer usable.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read pump, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

// State returns "open", "closing" or "closed".
func (c *Conn) State() string {
	select {
	case <-c.done:
		return "closed"
	default:
	}
	select {
	case <-c.closing:
		return "closing"
	default:
		return "open"
	}
}

func (c *Conn) writable() bool {
	select {
	case <-c.closing:
		return false
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close sends a normal close frame and tears down the transport. It is safe
// to call more than once and from any goroutine.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)

		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)

		c.closeErr = c.conn.Close()
		<-c.done
		c.log.Debug().Msg("closed")
	})
	return c.closeErr
}
