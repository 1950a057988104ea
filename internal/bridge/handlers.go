package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/markus-barta/webos-remote/internal/commands"
	"github.com/markus-barta/webos-remote/internal/remote"
)

// commandRequest is the body of POST /api/commands/{name}.
type commandRequest struct {
	Args []string `json:"args"`
}

type commandInfo struct {
	Name  string `json:"name"`
	Usage string `json:"usage,omitempty"`
	Help  string `json:"help"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth returns service health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"connected": s.device.IsConnected(),
	})
}

// handleGetState returns the cached device state.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.device.State())
}

// handleListCommands returns the command table.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	list := make([]commandInfo, 0, len(names))
	for _, name := range names {
		cmd := s.registry[name]
		list = append(list, commandInfo{Name: name, Usage: cmd.Usage, Help: cmd.Help})
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCommand runs one command against the device.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req commandRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmd, err := s.registry.Lookup(name, req.Args)
	if err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}

	result, err := cmd.Run(r.Context(), s.device, req.Args)
	if err != nil {
		s.log.Warn().Err(err).Str("command", name).Msg("command failed")
		var cmdErr *remote.CommandError
		if errors.As(err, &cmdErr) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":    err.Error(),
				"response": json.RawMessage(cmdErr.Envelope),
			})
			return
		}
		writeError(w, commandStatus(err), err.Error())
		return
	}

	s.log.Info().Str("command", name).Strs("args", req.Args).Msg("command executed")
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, commands.ErrUsage), errors.Is(err, remote.ErrInvalidCalibration):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrCalibrationUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, remote.ErrNotConnected), errors.Is(err, remote.ErrConnectTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleWebSocket upgrades a browser connection and subscribes it to state
// events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.serve(conn)
}
