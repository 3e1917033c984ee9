package identity

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

const streamWriteTimeout = 10 * time.Second

// StreamEvent is one websocket frame: the full current team roster,
// credentials stripped, mirroring the gateway's snapshot semantics.
type StreamEvent struct {
	Users  []*User `json:"users"`
	Denied bool    `json:"denied,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// StreamHandler bridges user-collection subscriptions to connected
// clients over a websocket, so team pages refresh as approvals and
// role changes land.
type StreamHandler struct {
	service  *Service
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates the websocket bridge.
func NewStreamHandler(service *Service, logger *logging.Logger) *StreamHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS middleware layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /api/users/stream.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Buffered so a slow client skips intermediate snapshots instead
	// of blocking the subscription callback.
	events := make(chan StreamEvent, 8)
	cancel := h.service.SubscribeUsers(func(snap store.Snapshot) {
		ev := StreamEvent{Denied: snap.Denied}
		if snap.Err != nil {
			ev.Error = snap.Err.Error()
		}
		ev.Users = make([]*User, 0, len(snap.Records))
		for _, rec := range snap.Records {
			ev.Users = append(ev.Users, userFromRecord(rec).Sanitized())
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
