package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/markus-barta/webos-remote/internal/protocol"
	"github.com/markus-barta/webos-remote/internal/socket"
)

// pair performs the registration handshake on a freshly opened control
// socket. A credential issued after a PROMPT exchange is persisted.
func (c *Client) pair(ctx context.Context, conn *socket.Conn) error {
	pairCtx, cancel := context.WithTimeout(ctx, c.opts.PairingTimeout)
	defer cancel()

	key := c.ClientKey()
	msg, err := protocol.NewRegisterMessage(key)
	if err != nil {
		return err
	}
	if err := conn.SendJSON(pairCtx, msg); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}

	resp, err := c.readHandshake(ctx, pairCtx, conn)
	if err != nil {
		return err
	}

	if resp.Type == protocol.TypeResponse {
		var payload protocol.RegisterResponse
		if err := resp.ParsePayload(&payload); err == nil && payload.PairingType == protocol.PairingTypePrompt {
			c.log.Info().Str("host", c.host).Msg("accept the pairing request on the device")
			if resp, err = c.readHandshake(ctx, pairCtx, conn); err != nil {
				return err
			}
		}
	}

	switch resp.Type {
	case protocol.TypeRegistered:
		var payload protocol.RegisterResponse
		if err := resp.ParsePayload(&payload); err != nil {
			return fmt.Errorf("%w: invalid registered payload: %v", ErrPairingFailed, err)
		}
		if payload.ClientKey != "" && payload.ClientKey != key {
			c.adoptKey(ctx, payload.ClientKey)
		}
	case protocol.TypeError:
		return fmt.Errorf("%w: %s", ErrPairingFailed, resp.Error)
	}

	if c.ClientKey() == "" {
		return ErrPairingFailed
	}
	c.log.Debug().Msg("paired")
	return nil
}

// readHandshake reads one handshake frame. Timeouts of the pairing window are
// reported as pairing failures; cancellation of the lifecycle is passed
// through.
func (c *Client) readHandshake(ctx, pairCtx context.Context, conn *socket.Conn) (*protocol.Message, error) {
	data, err := conn.Read(pairCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no answer within %s", ErrPairingFailed, c.opts.PairingTimeout)
		}
		return nil, fmt.Errorf("%w: connection closed during handshake", ErrPairingFailed)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed handshake frame: %v", ErrPairingFailed, err)
	}
	return msg, nil
}

// adoptKey keeps a newly issued credential and hands it to the store. A
// failing store is logged; the session continues with the in-memory key.
func (c *Client) adoptKey(ctx context.Context, key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()

	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.Save(ctx, c.host, key); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist client key")
		return
	}
	c.log.Info().Str("host", c.host).Msg("client key stored")
}
