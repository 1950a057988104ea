package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markus-barta/webos-remote/internal/commands"
	"github.com/markus-barta/webos-remote/internal/protocol"
	"github.com/markus-barta/webos-remote/internal/remote"
	"github.com/markus-barta/webos-remote/internal/state"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	testToken      = "correct-horse"
	testTOTPSecret = "JBSWY3DPEHPK3PXP"
)

// fakeDevice implements Device. Unimplemented commands panic.
type fakeDevice struct {
	commands.Remote

	mu        sync.Mutex
	volume    int
	connected bool
	setErr    error
	observers map[state.ObserverID]state.Observer
	nextID    state.ObserverID
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{volume: 10, connected: true, observers: make(map[state.ObserverID]state.Observer)}
}

func (f *fakeDevice) State() state.DeviceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return state.DeviceState{CurrentAppID: "netflix", Volume: f.volume, Live: f.connected}
}

func (f *fakeDevice) SetVolume(_ context.Context, volume int) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return nil, f.setErr
	}
	f.volume = volume
	return json.RawMessage(`{"returnValue":true}`), nil
}

func (f *fakeDevice) Connect(context.Context) error    { return nil }
func (f *fakeDevice) Disconnect(context.Context) error { return nil }
func (f *fakeDevice) Done() <-chan struct{}            { return make(chan struct{}) }

func (f *fakeDevice) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDevice) RegisterObserver(fn state.Observer) state.ObserverID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.observers[f.nextID] = fn
	return f.nextID
}

func (f *fakeDevice) UnregisterObserver(id state.ObserverID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.observers, id)
}

func newTestServer(t *testing.T, cfg Config) (*Server, *fakeDevice, *httptest.Server) {
	t.Helper()
	device := newFakeDevice()
	s := New(cfg, device, zerolog.Nop())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, device, ts
}

func tokenHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	return string(hash)
}

func do(t *testing.T, method, url, token, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealth_Public(t *testing.T) {
	_, _, ts := newTestServer(t, Config{TokenHash: tokenHash(t)})

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["connected"] != true {
		t.Errorf("expected connected=true, got %v", body)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}
}

func TestAuth_BearerToken(t *testing.T) {
	_, _, ts := newTestServer(t, Config{TokenHash: tokenHash(t)})

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/state", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/state", "wrong", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/api/state", testToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good token: status = %d", resp.StatusCode)
	}
	if body["currentAppId"] != "netflix" {
		t.Errorf("unexpected state body %v", body)
	}
}

func TestAuth_RateLimited(t *testing.T) {
	_, _, ts := newTestServer(t, Config{TokenHash: tokenHash(t)})

	for i := 0; i < 5; i++ {
		do(t, http.MethodGet, ts.URL+"/api/state", "wrong", "", nil)
	}
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/state", testToken, "", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestAuth_DisabledWithoutHash(t *testing.T) {
	_, _, ts := newTestServer(t, Config{})

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/state", "", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAuth_TOTPOnCommands(t *testing.T) {
	_, device, ts := newTestServer(t, Config{TokenHash: tokenHash(t), TOTPSecret: testTOTPSecret})
	url := ts.URL + "/api/commands/set_volume"

	// Read routes need no code.
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/commands", testToken, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("list: status = %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, url, testToken, `{"args":["7"]}`, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("missing code: status = %d", resp.StatusCode)
	}

	code, err := totp.GenerateCode(testTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	resp, _ = do(t, http.MethodPost, url, testToken, `{"args":["7"]}`, map[string]string{"X-TOTP-Code": code})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid code: status = %d", resp.StatusCode)
	}
	if device.State().Volume != 7 {
		t.Errorf("volume = %d, want 7", device.State().Volume)
	}
}

func TestCommand_Statuses(t *testing.T) {
	_, device, ts := newTestServer(t, Config{})
	url := ts.URL + "/api/commands/"

	tests := []struct {
		name   string
		cmd    string
		body   string
		setErr error
		want   int
	}{
		{name: "ok", cmd: "set_volume", body: `{"args":["12"]}`, want: http.StatusOK},
		{name: "unknown", cmd: "self_destruct", want: http.StatusNotFound},
		{name: "arity", cmd: "set_volume", want: http.StatusBadRequest},
		{name: "parse", cmd: "set_volume", body: `{"args":["loud"]}`, want: http.StatusBadRequest},
		{name: "bad body", cmd: "set_volume", body: `{"args":`, want: http.StatusBadRequest},
		{name: "not connected", cmd: "set_volume", body: `{"args":["1"]}`, setErr: remote.ErrNotConnected, want: http.StatusServiceUnavailable},
		{name: "invalid calibration", cmd: "set_volume", body: `{"args":["1"]}`, setErr: remote.ErrInvalidCalibration, want: http.StatusBadRequest},
		{name: "unsupported model", cmd: "set_volume", body: `{"args":["1"]}`, setErr: fmt.Errorf("%w: 3D LUT upload", remote.ErrCalibrationUnsupported), want: http.StatusUnprocessableEntity},
		{
			name:   "rejected",
			cmd:    "set_volume",
			body:   `{"args":["1"]}`,
			setErr: &remote.CommandError{URI: "ssap://audio/setVolume", Envelope: []byte(`{"type":"error"}`), Err: protocol.ErrRejected},
			want:   http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device.mu.Lock()
			device.setErr = tt.setErr
			device.mu.Unlock()

			resp, body := do(t, http.MethodPost, url+tt.cmd, "", tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%v)", resp.StatusCode, tt.want, body)
			}
		})
	}

	if got := device.State().Volume; got != 12 {
		t.Errorf("volume = %d, want 12", got)
	}
}

func TestCommand_RejectedIncludesEnvelope(t *testing.T) {
	_, device, ts := newTestServer(t, Config{})
	device.setErr = &remote.CommandError{
		URI:      "ssap://audio/setVolume",
		Envelope: []byte(`{"type":"error","error":"500 denied"}`),
		Err:      protocol.ErrRejected,
	}

	_, body := do(t, http.MethodPost, ts.URL+"/api/commands/set_volume", "", `{"args":["1"]}`, nil)
	envelope, ok := body["response"].(map[string]any)
	if !ok || envelope["error"] != "500 denied" {
		t.Errorf("expected device envelope in body, got %v", body)
	}
}

func TestListCommands(t *testing.T) {
	_, _, ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/api/commands")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var list []commandInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != len(commands.Default()) {
		t.Errorf("listed %d commands, want %d", len(list), len(commands.Default()))
	}
}

func TestWebSocket_StateEvents(t *testing.T) {
	s, device, ts := newTestServer(t, Config{TokenHash: tokenHash(t)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.hub.Run(ctx) }()

	// Without a token the upgrade is refused.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected unauthenticated dial to fail")
	}

	s.publishState()

	header := http.Header{"Authorization": {"Bearer " + testToken}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	readVolume := func() int {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event struct {
			Type    string            `json:"type"`
			Payload state.DeviceState `json:"payload"`
		}
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if event.Type != "state" {
			t.Fatalf("event type = %q", event.Type)
		}
		return event.Payload.Volume
	}

	// The last event is replayed on registration.
	if v := readVolume(); v != 10 {
		t.Errorf("replayed volume = %d, want 10", v)
	}

	device.mu.Lock()
	device.volume = 30
	device.mu.Unlock()
	s.publishState()

	if v := readVolume(); v != 30 {
		t.Errorf("broadcast volume = %d, want 30", v)
	}
	if s.Hub().ClientCount() != 1 {
		t.Errorf("client count = %d", s.Hub().ClientCount())
	}
}

// flakyConnector fails the first attempts, then ends each session on demand.
type flakyConnector struct {
	mu       sync.Mutex
	attempts int
	failures int
	sessions []chan struct{}
	closed   bool
}

func (f *flakyConnector) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return fmt.Errorf("attempt %d: %w", f.attempts, remote.ErrConnectTimeout)
	}
	f.sessions = append(f.sessions, make(chan struct{}))
	return nil
}

func (f *flakyConnector) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

func (f *flakyConnector) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *flakyConnector) endSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.sessions[len(f.sessions)-1])
}

func (f *flakyConnector) counts() (attempts, sessions int, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, len(f.sessions), f.closed
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupervisor_Reconnects(t *testing.T) {
	conn := &flakyConnector{failures: 2}
	sup := NewSupervisor(conn, 40*time.Millisecond, zerolog.Nop())
	sup.initial = 5 * time.Millisecond
	sup.backoff = sup.initial

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitFor(t, "first session", func() bool {
		_, sessions, _ := conn.counts()
		return sessions == 1
	})

	conn.endSession()
	waitFor(t, "second session", func() bool {
		_, sessions, _ := conn.counts()
		return sessions == 2
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	attempts, _, closed := conn.counts()
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	if !closed {
		t.Error("expected Disconnect on shutdown")
	}
}

func TestSupervisor_BackoffCapped(t *testing.T) {
	sup := NewSupervisor(&flakyConnector{}, 5*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		sup.waitBackoff(ctx)
		if sup.backoff != w {
			t.Errorf("step %d: backoff = %v, want %v", i, sup.backoff, w)
		}
	}
}
