package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kozaktomas/ar-marker/internal/session"
	"github.com/kozaktomas/ar-marker/internal/testutil"
)

func dialSession(t *testing.T, h *SessionHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.Serve))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// readUntil reads messages until one satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, match func(sessionWSOutbound) bool) sessionWSOutbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var out sessionWSOutbound
		if err := conn.ReadJSON(&out); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if match(out) {
			return out
		}
	}
}

func stateIs(status session.Status) func(sessionWSOutbound) bool {
	return func(out sessionWSOutbound) bool {
		return out.Type == "state" && out.Status == status
	}
}

func TestSessionHandler_Detection(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "Poster", 5)
	h := NewSessionHandler(env.sessionFactory(), nil)
	conn := dialSession(t, h)

	readUntil(t, conn, stateIs(session.StatusIdle))
	send(t, conn, `{"type":"start"}`)
	readUntil(t, conn, stateIs(session.StatusRequestingPermission))
	send(t, conn, `{"type":"permission","granted":true}`)
	readUntil(t, conn, stateIs(session.StatusActive))

	if err := conn.WriteMessage(websocket.BinaryMessage, testutil.MarkerPNG(5)); err != nil {
		t.Fatalf("write frame failed: %v", err)
	}
	out := readUntil(t, conn, stateIs(session.StatusDetected))

	if out.ProjectID != p.ID || out.Project == nil || out.Project.Video.URL != p.Video.URL {
		t.Errorf("detected = %+v; want project %s", out, p.ID)
	}
	if out.Confidence <= 0.7 {
		t.Errorf("confidence = %f; want > 0.7", out.Confidence)
	}

	send(t, conn, `{"type":"reset"}`)
	readUntil(t, conn, stateIs(session.StatusActive))
	send(t, conn, `{"type":"stop"}`)
	readUntil(t, conn, stateIs(session.StatusClosed))
}

func TestSessionHandler_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	h := NewSessionHandler(env.sessionFactory(), nil)
	conn := dialSession(t, h)

	send(t, conn, `{"type":"start"}`)
	send(t, conn, `{"type":"permission","granted":false,"reason":"busy"}`)
	out := readUntil(t, conn, stateIs(session.StatusError))

	if out.Error != session.DeviceBusy {
		t.Errorf("error kind = %q; want device_busy", out.Error)
	}
	if !strings.Contains(out.Remediation, "Camera in use") {
		t.Errorf("remediation = %q", out.Remediation)
	}
}

func TestSessionHandler_RejectedCommands(t *testing.T) {
	env := newTestEnv(t)
	h := NewSessionHandler(env.sessionFactory(), nil)
	conn := dialSession(t, h)

	isError := func(out sessionWSOutbound) bool { return out.Type == "error" }

	send(t, conn, `{"type":"reset"}`)
	if out := readUntil(t, conn, isError); !strings.Contains(out.Message, "invalid session transition") {
		t.Errorf("reset message = %q", out.Message)
	}

	send(t, conn, `{"type":"teleport"}`)
	if out := readUntil(t, conn, isError); !strings.Contains(out.Message, "unsupported type") {
		t.Errorf("unknown type message = %q", out.Message)
	}

	send(t, conn, `not json`)
	if out := readUntil(t, conn, isError); out.Message != errInvalidRequestBody {
		t.Errorf("bad json message = %q", out.Message)
	}
}

func TestSessionHandler_CloseAll(t *testing.T) {
	env := newTestEnv(t)
	h := NewSessionHandler(env.sessionFactory(), nil)
	conn := dialSession(t, h)

	send(t, conn, `{"type":"start"}`)
	readUntil(t, conn, stateIs(session.StatusRequestingPermission))
	if h.Live() != 1 {
		t.Fatalf("Live = %d; want 1", h.Live())
	}

	h.CloseAll()
	readUntil(t, conn, stateIs(session.StatusClosed))
}

func TestPermissionError(t *testing.T) {
	tests := []struct {
		in   sessionWSInbound
		want string
	}{
		{sessionWSInbound{Granted: true}, ""},
		{sessionWSInbound{Reason: "denied"}, "camera permission denied"},
		{sessionWSInbound{Reason: "not_found"}, "camera device not found"},
		{sessionWSInbound{Reason: "busy"}, "camera device busy"},
		{sessionWSInbound{Reason: "unsupported"}, "camera device unsupported"},
		{sessionWSInbound{}, "camera permission denied"},
	}

	for _, tc := range tests {
		err := permissionError(tc.in)
		got := ""
		if err != nil {
			got = err.Error()
		}
		if got != tc.want {
			t.Errorf("permissionError(%+v) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
