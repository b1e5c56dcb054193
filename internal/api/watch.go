package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/session"
)

const (
	// EventState is the first notification of every watch stream: the session snapshot.
	EventState = "state"

	watcherBuffer = 16
	writeTimeout  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Watch streams the notifications of one session over a websocket. The stream starts with the
// current snapshot and is closed by the server after session.finished.
func (a *API) Watch(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	// Registered before the snapshot so no transition falls between the two. Notifications queued
	// meanwhile may repeat what the snapshot already shows.
	w := &watcher{send: make(chan Notification, watcherBuffer)}
	a.hub.add(sessionID, w)

	snap, err := a.ss.GetState(ctx, session.GetStateRequest{SessionID: sessionID})
	if err != nil {
		a.hub.remove(sessionID, w)
		writeError(c, err)
		return
	}

	finished := snap.Status == domain.StatusFinished
	if finished {
		a.hub.remove(sessionID, w)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.hub.remove(sessionID, w)
		slog.WarnContext(ctx, "api: websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()

		write := func(n Notification) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(n); err != nil {
				slog.DebugContext(ctx, "api: websocket write failed", "session_id", sessionID, "error", err)
				return false
			}

			if finished || n.Event == domain.EventNameSessionFinished {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
				return false
			}

			return true
		}

		if !write(Notification{Event: EventState, SessionID: sessionID, Data: snap}) {
			return
		}

		for n := range w.send {
			if !write(n) {
				return
			}
		}
	}()

	// Watchers only listen; reading detects when the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	a.hub.remove(sessionID, w)
	close(w.send)
	<-writerDone
}

type watcher struct {
	send chan Notification
}

// hub fans session notifications out to the watchers connected to this instance.
type hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*watcher]struct{}
}

func newHub() *hub {
	return &hub{
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

func (h *hub) add(sessionID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ws, ok := h.watchers[sessionID]
	if !ok {
		ws = make(map[*watcher]struct{})
		h.watchers[sessionID] = ws
	}
	ws[w] = struct{}{}
}

// remove must be called before closing w.send: after it returns no broadcast can still reach w.
func (h *hub) remove(sessionID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ws := h.watchers[sessionID]
	delete(ws, w)
	if len(ws) == 0 {
		delete(h.watchers, sessionID)
	}
}

func (h *hub) count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.watchers[sessionID])
}

// broadcast never blocks: a watcher whose buffer is full misses the notification.
func (h *hub) broadcast(ctx context.Context, n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for w := range h.watchers[n.SessionID] {
		select {
		case w.send <- n:
		default:
			slog.WarnContext(ctx, "api: watcher too slow, notification dropped",
				"session_id", n.SessionID,
				"event", n.Event,
			)
		}
	}
}
