package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	repositoryimpl "github.com/foxseedlab/gatekeeper/external/repository"
	tokenimpl "github.com/foxseedlab/gatekeeper/external/token"
	"github.com/foxseedlab/gatekeeper/internal/admission"
	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/hub"
	"github.com/foxseedlab/gatekeeper/internal/notify"
	"github.com/gorilla/websocket"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                    "development",
		HTTPPort:               8080,
		JWTSecret:              "test-secret",
		TokenTTL:               time.Hour,
		CallType:               call.DefaultType,
		MaxParticipants:        2,
		ApprovalTimeoutSeconds: 20,
		CountdownTick:          time.Second,
		PollInterval:           10 * time.Millisecond,
		FullRetryDelay:         50 * time.Millisecond,
		RecordingQuality:       "360p",
		RecordingMode:          "available",
	}
}

type testEnv struct {
	server *httptest.Server
	issuer *tokenimpl.JWTIssuer
	hub    *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()
	issuer := tokenimpl.NewJWTIssuer(cfg.JWTSecret, cfg.TokenTTL)
	h := hub.New(repositoryimpl.NewMemoryRepository(), issuer)
	factory := admission.NewFactory(cfg, issuer, h.Connect, notify.Nop{})
	server := httptest.NewServer(New(cfg, h, issuer, factory))
	t.Cleanup(server.Close)
	return &testEnv{server: server, issuer: issuer, hub: h}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.issuer.GetToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGetToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/get-token", "", map[string]string{"userId": "jane_doe"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out getTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	userID, err := env.issuer.Verify(out.Token)
	if err != nil || userID != "jane_doe" {
		t.Errorf("Verify = %q, %v", userID, err)
	}

	resp = env.do(t, http.MethodPost, "/get-token", "", map[string]string{"userId": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty userId status = %d, want 400", resp.StatusCode)
	}
}

func TestCallsAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	if resp := env.do(t, http.MethodGet, "/api/calls/default/A1", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/api/calls/default/A1", "forged", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", resp.StatusCode)
	}
}

func TestCallsAPI_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	hostTok := env.token(t, "dr_who")

	if resp := env.do(t, http.MethodGet, "/api/calls/default/A1", hostTok, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get before create = %d, want 404", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/calls/default/A1/join", hostTok, call.JoinOptions{}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("join without create = %d, want 404", resp.StatusCode)
	}

	resp := env.do(t, http.MethodPost, "/api/calls/default/A1/join", hostTok, call.JoinOptions{
		Create: true,
		Data:   &call.CallData{SettingsOverride: &call.Settings{Recording: call.RecordingSettings{Quality: "360p", Mode: "available"}}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create join = %d, want 200", resp.StatusCode)
	}
	var st call.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ParticipantCount != 1 || st.CreatedBy != "dr_who" || st.Settings.Recording.Quality != "360p" {
		t.Errorf("state = %+v", st)
	}

	if resp := env.do(t, http.MethodPost, "/api/calls/default/A1/events", hostTok, map[string]any{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty event = %d, want 400", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/calls/default/A1/leave", hostTok, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("leave = %d, want 204", resp.StatusCode)
	}
	st, err := env.hub.Get(context.Background(), call.DefaultType, "A1")
	if err != nil || st.ParticipantCount != 0 {
		t.Errorf("hub state after leave = %+v, %v", st, err)
	}
}

func TestCallsAPI_EventStream(t *testing.T) {
	env := newTestEnv(t)
	hostTok := env.token(t, "dr_who")
	guestTok := env.token(t, "jane_doe")
	if resp := env.do(t, http.MethodPost, "/api/calls/default/A1/join", hostTok, call.JoinOptions{Create: true}); resp.StatusCode != http.StatusOK {
		t.Fatalf("create join = %d", resp.StatusCode)
	}

	stream := env.dial(t, "/api/calls/default/A1/events/ws?token="+url.QueryEscape(hostTok))
	time.Sleep(50 * time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/calls/default/A1/events",
		strings.NewReader(`{"custom":{"type":"join-request","request_id":"r1"}}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+guestTok)
	req.Header.Set(call.UserNameHeader, "Jane Doe")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("send event: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("send event = %d, want 204", resp.StatusCode)
	}

	_ = stream.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev call.CustomEvent
	if err := stream.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Sender.ID != "jane_doe" || ev.Sender.Name != "Jane Doe" || !strings.Contains(string(ev.Custom), `"r1"`) {
		t.Errorf("event = %+v", ev)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, cond func(snapshotFrame) bool, message string) snapshotFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("%s: %v", message, err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil || head.Type != "snapshot" {
			continue
		}
		var f snapshotFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if cond(f) {
			return f
		}
	}
}

func TestAdmissionSocket_HostApprovesPatient(t *testing.T) {
	env := newTestEnv(t)

	host := env.dial(t, "/rooms/A1/admission?name="+url.QueryEscape("Dr Who")+"&role=doctor")
	readUntil(t, host, func(f snapshotFrame) bool { return f.State == admission.StateHostActive }, "host never became active")

	patient := env.dial(t, "/rooms/A1/admission?name="+url.QueryEscape("Jane Doe")+"&role=patient")
	readUntil(t, patient, func(f snapshotFrame) bool { return f.State == admission.StateAwaitingApproval }, "patient never requested to join")

	f := readUntil(t, host, func(f snapshotFrame) bool { return f.Pending != nil }, "host never saw the request")
	if f.Pending.Requester.ID != "jane_doe" || f.Pending.Requester.DisplayName != "Jane Doe" {
		t.Fatalf("pending = %+v", f.Pending)
	}
	if f.Countdown != 20 {
		t.Errorf("countdown = %d, want 20", f.Countdown)
	}

	if err := host.WriteJSON(admissionAction{Action: actionApprove}); err != nil {
		t.Fatalf("write approve: %v", err)
	}
	readUntil(t, patient, func(f snapshotFrame) bool { return f.State == admission.StateAdmitted }, "patient was not admitted")
	readUntil(t, host, func(f snapshotFrame) bool { return f.Pending == nil && f.State == admission.StateHostActive }, "host request not cleared")
}

func TestAdmissionSocket_PatientWaitsForDoctor(t *testing.T) {
	env := newTestEnv(t)
	patient := env.dial(t, "/rooms/B2/admission?name=Jane+Doe&role=patient")
	readUntil(t, patient, func(f snapshotFrame) bool { return f.State == admission.StateAwaitingHostAvailability }, "patient not waiting for the doctor")

	host := env.dial(t, "/rooms/B2/admission?name=Dr+Who&role=doctor")
	readUntil(t, host, func(f snapshotFrame) bool { return f.Pending != nil }, "host never saw the request")
	if err := host.WriteJSON(admissionAction{Action: actionReject}); err != nil {
		t.Fatalf("write reject: %v", err)
	}
	readUntil(t, patient, func(f snapshotFrame) bool { return f.State == admission.StateRejected }, "patient was not rejected")
}

func TestAdmissionSocket_ClosingTearsDown(t *testing.T) {
	env := newTestEnv(t)
	host := env.dial(t, "/rooms/C3/admission?name=Dr+Who&role=doctor")
	readUntil(t, host, func(f snapshotFrame) bool { return f.State == admission.StateHostActive }, "host never became active")
	_ = host.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := env.hub.Get(context.Background(), call.DefaultType, "C3")
		if err == nil && st.ParticipantCount == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("host did not leave the call after the socket closed")
}

func TestAdmissionSocket_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)
	tests := []string{
		"/rooms/A1/admission?role=doctor",
		"/rooms/A1/admission?name=Dr+Who&role=nurse",
	}
	for _, path := range tests {
		resp := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestAdmissionSocket_UnknownActionReturnsError(t *testing.T) {
	env := newTestEnv(t)
	host := env.dial(t, "/rooms/D4/admission?name=Dr+Who&role=doctor")
	readUntil(t, host, func(f snapshotFrame) bool { return f.State == admission.StateHostActive }, "host never became active")

	if err := host.WriteJSON(admissionAction{Action: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = host.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame map[string]any
		if err := host.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame["type"] == "error" {
			if !strings.Contains(frame["error"].(string), "dance") {
				t.Errorf("error frame = %v", frame)
			}
			return
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	r := httptest.NewRequest(http.MethodGet, "http://gatekeeper.test/rooms/A1/admission", nil)

	r.Header.Set("Origin", "http://gatekeeper.test")
	if !checkOrigin(cfg)(r) {
		t.Error("same-host origin rejected")
	}
	r.Header.Set("Origin", "http://evil.test")
	if checkOrigin(cfg)(r) {
		t.Error("foreign origin accepted in production")
	}
	cfg.AllowedOrigin = "http://evil.test"
	if !checkOrigin(cfg)(r) {
		t.Error("configured origin rejected")
	}
}
