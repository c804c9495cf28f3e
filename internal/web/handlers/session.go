package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kozaktomas/ar-marker/internal/camera"
	"github.com/kozaktomas/ar-marker/internal/constants"
	"github.com/kozaktomas/ar-marker/internal/session"
)

type sessionWSInbound struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

type sessionWSOutbound struct {
	Type        string            `json:"type"`
	Status      session.Status    `json:"status,omitempty"`
	ProjectID   string            `json:"projectId,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Error       session.ErrorKind `json:"error,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	Project     *ProjectResponse  `json:"project,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// SessionFactory creates a capture session bound to a device.
type SessionFactory func(device camera.Device) *session.Session

// SessionHandler runs AR capture sessions over websockets. The browser owns
// the camera: it answers permission requests and streams frames as binary
// messages.
type SessionHandler struct {
	newSession SessionFactory
	upgrader   websocket.Upgrader

	mu   sync.Mutex
	live map[*session.Session]struct{}
}

// NewSessionHandler creates a new session handler. checkOrigin decides which
// pages may open a session; nil keeps gorilla's same-host default.
func NewSessionHandler(factory SessionFactory, checkOrigin func(*http.Request) bool) *SessionHandler {
	return &SessionHandler{
		newSession: factory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		live: make(map[*session.Session]struct{}),
	}
}

// CloseAll stops every live session. Hijacked websocket connections are not
// covered by http.Server.Shutdown.
func (h *SessionHandler) CloseAll() {
	h.mu.Lock()
	sessions := make([]*session.Session, 0, len(h.live))
	for s := range h.live {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Live returns the number of open sessions.
func (h *SessionHandler) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

func (h *SessionHandler) track(s *session.Session) func() {
	h.mu.Lock()
	h.live[s] = struct{}{}
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.live, s)
		h.mu.Unlock()
	}
}

// Serve upgrades the connection and runs one session until the client
// disconnects.
func (h *SessionHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(constants.MaxFrameSize)
	if err := conn.SetReadDeadline(time.Now().Add(constants.WSPongWait)); err != nil {
		log.Printf("session ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	})

	writeCh := make(chan sessionWSOutbound, constants.EventChannelBuffer)
	writerDone := make(chan struct{})
	go writeSessionWS(ctx, conn, writeCh, writerDone)
	defer func() {
		cancel()
		<-writerDone
	}()

	device := camera.NewPushDevice()
	sess := h.newSession(device)
	defer h.track(sess)()
	defer sess.Close()

	states, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	go func() {
		for st := range states {
			pushSessionWS(writeCh, stateMessage(st))
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Any traffic proves the client is alive.
		conn.SetReadDeadline(time.Now().Add(constants.WSPongWait))

		if msgType == websocket.BinaryMessage {
			// Frames racing a stop are dropped.
			_ = device.Push(data)
			continue
		}

		var in sessionWSInbound
		if err := json.Unmarshal(data, &in); err != nil {
			pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Message: errInvalidRequestBody})
			continue
		}

		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "start":
			go func() {
				err := sess.Start(ctx)
				if errors.Is(err, session.ErrInvalidTransition) {
					pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Message: err.Error()})
				}
			}()
		case "permission":
			device.Grant(permissionError(in))
		case "reset":
			if err := sess.Reset(); err != nil {
				pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Message: err.Error()})
			}
		case "stop":
			sess.Stop()
		default:
			pushSessionWS(writeCh, sessionWSOutbound{Type: "error", Message: "unsupported type: " + in.Type})
		}
	}
}

func writeSessionWS(ctx context.Context, conn *websocket.Conn, writeCh <-chan sessionWSOutbound, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(constants.WSPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(constants.WSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushSessionWS queues a message, dropping the oldest queued one when the
// writer falls behind.
func pushSessionWS(writeCh chan sessionWSOutbound, out sessionWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}

func stateMessage(st session.State) sessionWSOutbound {
	out := sessionWSOutbound{
		Type:        "state",
		Status:      st.Status,
		ProjectID:   st.ProjectID,
		Confidence:  st.Confidence,
		Error:       st.Error,
		Remediation: st.Remediation,
	}
	if st.Project != nil {
		p := projectToResponse(*st.Project)
		out.Project = &p
	}
	return out
}

// permissionError translates the client's answer to a permission request.
func permissionError(in sessionWSInbound) error {
	if in.Granted {
		return nil
	}
	switch in.Reason {
	case "not_found":
		return camera.ErrDeviceNotFound
	case "busy":
		return camera.ErrDeviceBusy
	case "unsupported":
		return camera.ErrUnsupportedDevice
	default:
		return camera.ErrPermissionDenied
	}
}
