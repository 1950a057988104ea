package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markus-barta/webos-remote/internal/protocol"
)

// Pairing behaviours of MockDevice.
const (
	pairAccept = iota // registered with the issued key
	pairPrompt        // PROMPT first, then registered with the issued key
	pairReject        // error frame
	pairNoKey         // registered without a key
)

// responder produces a response payload for a request. Returning nil sends
// no response.
type responder func(msg protocol.Message) any

// MockDevice simulates a webOS device: a control socket speaking ssap and an
// input socket recording frames.
type MockDevice struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	pairingMode  int
	issuedKey    string
	control      *websocket.Conn
	writeMu      sync.Mutex
	controlConns int
	registerKeys []string
	requests     []protocol.Message
	inputFrames  []string
	controlPings int
	inputPings   int
	responders   map[string]responder
}

// NewMockDevice starts a device answering every priming request.
func NewMockDevice(t *testing.T) *MockDevice {
	m := &MockDevice{
		t:           t,
		pairingMode: pairAccept,
		issuedKey:   "issued-key",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		responders: make(map[string]responder),
	}

	m.Respond(protocol.EndpointInputSocket, func(protocol.Message) any {
		return map[string]any{"returnValue": true, "socketPath": m.InputURL()}
	})
	m.Respond(protocol.EndpointGetSystemInfo, static(map[string]any{"returnValue": true, "modelName": "OLED55C9PLA"}))
	m.Respond(protocol.EndpointGetSoftwareInfo, static(map[string]any{"returnValue": true, "product_name": "webOSTV 4.5"}))
	m.Respond(protocol.EndpointGetCurrentAppInfo, static(map[string]any{"returnValue": true, "subscribed": true, "appId": "com.webos.app.livetv"}))
	m.Respond(protocol.EndpointGetAudioStatus, static(map[string]any{"returnValue": true, "subscribed": true, "mute": false}))
	m.Respond(protocol.EndpointGetVolume, static(map[string]any{"returnValue": true, "volume": 10}))
	m.Respond(protocol.EndpointGetApps, static(map[string]any{
		"returnValue": true,
		"launchPoints": []map[string]any{
			{"id": "netflix", "title": "Netflix"},
			{"id": "youtube.leanback.v4", "title": "YouTube"},
		},
	}))
	m.Respond(protocol.EndpointGetInputs, static(map[string]any{
		"returnValue": true,
		"devices":     []map[string]any{{"id": "HDMI_1", "appId": "com.webos.app.hdmi1", "label": "HDMI 1"}},
	}))
	m.Respond(protocol.EndpointGetCurrentChannel, static(map[string]any{"returnValue": true, "channelId": "1_12", "channelName": "Das Erste"}))

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleControl)
	mux.HandleFunc("/input", m.handleInput)
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func static(payload any) responder {
	return func(protocol.Message) any { return payload }
}

// SetPairing selects how registrations are answered.
func (m *MockDevice) SetPairing(mode int, issuedKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairingMode = mode
	m.issuedKey = issuedKey
}

// Respond installs a responder for an endpoint.
func (m *MockDevice) Respond(endpoint string, r responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responders[protocol.URI(endpoint)] = r
}

// Host returns host and port of the control socket.
func (m *MockDevice) Host() (string, int) {
	u, _ := url.Parse(m.server.URL)
	port, _ := strconv.Atoi(u.Port())
	return u.Hostname(), port
}

// InputURL returns the input socket address handed out to clients.
func (m *MockDevice) InputURL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + "/input"
}

// Close shuts down the device.
func (m *MockDevice) Close() {
	m.DropControl()
	m.server.Close()
}

// DropControl closes the current control connection.
func (m *MockDevice) DropControl() {
	m.mu.Lock()
	conn := m.control
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Push sends a subscription push carrying id.
func (m *MockDevice) Push(id json.RawMessage, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.write(protocol.Message{ID: id, Type: protocol.TypeResponse, Payload: data})
}

// SendRaw writes an arbitrary frame on the control socket.
func (m *MockDevice) SendRaw(data []byte) error {
	m.mu.Lock()
	conn := m.control
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *MockDevice) write(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.SendRaw(data)
}

// ControlConnections returns how many control connections were accepted.
func (m *MockDevice) ControlConnections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controlConns
}

// RegisterKeys returns the client keys of every registration, in order.
func (m *MockDevice) RegisterKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.registerKeys...)
}

// Pings returns the pings received on the control and input sockets.
func (m *MockDevice) Pings() (control, input int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controlPings, m.inputPings
}

// RequestsFor returns all requests received for an endpoint.
func (m *MockDevice) RequestsFor(endpoint string) []protocol.Message {
	uri := protocol.URI(endpoint)
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []protocol.Message
	for _, msg := range m.requests {
		if msg.URI == uri {
			result = append(result, msg)
		}
	}
	return result
}

// WaitForRequests waits until n requests for endpoint were received.
func (m *MockDevice) WaitForRequests(ctx context.Context, endpoint string, n int) ([]protocol.Message, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if msgs := m.RequestsFor(endpoint); len(msgs) >= n {
			return msgs, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForInputFrames waits until n input frames were received.
func (m *MockDevice) WaitForInputFrames(ctx context.Context, n int) ([]string, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		m.mu.Lock()
		frames := append([]string{}, m.inputFrames...)
		m.mu.Unlock()
		if len(frames) >= n {
			return frames, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *MockDevice) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.t.Logf("control upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	m.mu.Lock()
	m.control = conn
	m.controlConns++
	m.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		m.mu.Lock()
		m.controlPings++
		m.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			m.t.Logf("failed to parse message: %v", err)
			continue
		}

		if msg.Type == protocol.TypeRegister {
			m.handleRegister(msg)
			continue
		}

		m.mu.Lock()
		m.requests = append(m.requests, msg)
		respond := m.responders[msg.URI]
		m.mu.Unlock()

		if respond == nil {
			_ = m.write(protocol.Message{ID: msg.ID, Type: protocol.TypeError, Error: "404 no such service or method"})
			continue
		}
		go func(msg protocol.Message) {
			payload := respond(msg)
			if payload == nil {
				return
			}
			data, _ := json.Marshal(payload)
			_ = m.write(protocol.Message{ID: msg.ID, Type: protocol.TypeResponse, Payload: data})
		}(msg)
	}
}

func (m *MockDevice) handleRegister(msg protocol.Message) {
	var payload protocol.RegisterPayload
	_ = json.Unmarshal(msg.Payload, &payload)

	m.mu.Lock()
	m.registerKeys = append(m.registerKeys, payload.ClientKey)
	mode, issued := m.pairingMode, m.issuedKey
	m.mu.Unlock()

	registered := func(key string) {
		data, _ := json.Marshal(map[string]any{"client-key": key})
		_ = m.write(protocol.Message{ID: msg.ID, Type: protocol.TypeRegistered, Payload: data})
	}

	switch {
	case mode == pairReject:
		_ = m.write(protocol.Message{ID: msg.ID, Type: protocol.TypeError, Error: "403 User denied access"})
	case mode == pairNoKey:
		registered("")
	case payload.ClientKey != "" && payload.ClientKey == issued:
		registered(payload.ClientKey)
	case mode == pairPrompt:
		data, _ := json.Marshal(map[string]any{"pairingType": "PROMPT", "returnValue": true})
		_ = m.write(protocol.Message{ID: msg.ID, Type: protocol.TypeResponse, Payload: data})
		registered(issued)
	default:
		registered(issued)
	}
}

func (m *MockDevice) handleInput(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.t.Logf("input upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetPingHandler(func(data string) error {
		m.mu.Lock()
		m.inputPings++
		m.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.inputFrames = append(m.inputFrames, string(data))
		m.mu.Unlock()
	}
}

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemStore() *memStore {
	return &memStore{keys: make(map[string]string)}
}

func (s *memStore) Load(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[address], nil
}

func (s *memStore) Save(_ context.Context, address, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[address] = key
	return nil
}
