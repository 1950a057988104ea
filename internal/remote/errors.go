package remote

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markus-barta/webos-remote/internal/socket"
)

var (
	// ErrPairingFailed means no credential is held after the handshake. The
	// user has to confirm the pairing on the device before retrying.
	ErrPairingFailed = errors.New("pairing failed")
	// ErrNotConnected is returned for operations attempted while no session
	// is live, and by requests abandoned at teardown.
	ErrNotConnected = socket.ErrNotConnected
	// ErrConnectTimeout is returned when a socket cannot be opened in time.
	ErrConnectTimeout = socket.ErrConnectTimeout
	// ErrCommandFailed matches every *CommandError.
	ErrCommandFailed = errors.New("command failed")
	// ErrCalibrationUnsupported is returned for LUT uploads the connected
	// model does not support.
	ErrCalibrationUnsupported = errors.New("calibration not supported")
	// ErrInvalidCalibration is returned for calibration data of the wrong
	// size or range. Nothing is sent.
	ErrInvalidCalibration = errors.New("invalid calibration data")
)

// TransportError wraps a network or WebSocket failure.
type TransportError = socket.TransportError

// CommandError reports a response the device rejected or malformed. Envelope
// holds the raw response frame.
type CommandError struct {
	URI      string
	Envelope json.RawMessage
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v: %s", e.URI, e.Err, e.Envelope)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCommandFailed) hold for every CommandError.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}
