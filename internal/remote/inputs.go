package remote

import (
	"context"
	"fmt"
	"strconv"

	"github.com/markus-barta/webos-remote/internal/protocol"
)

// Button names accepted by Button.
const (
	ButtonLeft        = "LEFT"
	ButtonRight       = "RIGHT"
	ButtonUp          = "UP"
	ButtonDown        = "DOWN"
	ButtonHome        = "HOME"
	ButtonBack        = "BACK"
	ButtonOK          = "ENTER"
	ButtonDash        = "DASH"
	ButtonInfo        = "INFO"
	ButtonAsterisk    = "ASTERISK"
	ButtonCC          = "CC"
	ButtonExit        = "EXIT"
	ButtonMute        = "MUTE"
	ButtonRed         = "RED"
	ButtonGreen       = "GREEN"
	ButtonBlue        = "BLUE"
	ButtonVolumeUp    = "VOLUMEUP"
	ButtonVolumeDown  = "VOLUMEDOWN"
	ButtonChannelUp   = "CHANNELUP"
	ButtonChannelDown = "CHANNELDOWN"
)

// sendInput writes one frame on the input socket, paced by the limiter.
func (c *Client) sendInput(ctx context.Context, frame string) error {
	s := c.current()
	if s == nil {
		return ErrNotConnected
	}
	input := s.inputConn()
	if input == nil {
		return fmt.Errorf("%w: no input socket", ErrNotConnected)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return input.Send(ctx, []byte(frame))
}

// Button presses a named remote button.
func (c *Client) Button(ctx context.Context, name string) error {
	return c.sendInput(ctx, protocol.InputFrame(protocol.InputButton, protocol.Field{Key: "name", Value: name}))
}

// Move moves the pointer. down is 1 while the button is held.
func (c *Client) Move(ctx context.Context, dx, dy, down int) error {
	return c.sendInput(ctx, protocol.InputFrame(protocol.InputMove,
		protocol.IntField("dx", dx),
		protocol.IntField("dy", dy),
		protocol.IntField("down", down),
	))
}

// Click clicks at the pointer position.
func (c *Client) Click(ctx context.Context) error {
	return c.sendInput(ctx, protocol.InputFrame(protocol.InputClick))
}

// Scroll scrolls by dx, dy.
func (c *Client) Scroll(ctx context.Context, dx, dy int) error {
	return c.sendInput(ctx, protocol.InputFrame(protocol.InputScroll,
		protocol.IntField("dx", dx),
		protocol.IntField("dy", dy),
	))
}

// NumberButton presses a digit button.
func (c *Client) NumberButton(ctx context.Context, n int) error {
	if n < 0 || n > 9 {
		return fmt.Errorf("number button %d out of range 0-9", n)
	}
	return c.Button(ctx, strconv.Itoa(n))
}
