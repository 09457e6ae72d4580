package api

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pivotdesk/domain/core"
	"pivotdesk/internal"
	"pivotdesk/ports"
)

const (
	clientBuffer = 16
	pingInterval = 30 * time.Second
)

// SSEHub streams pivot session events to connected browsers
type SSEHub struct {
	clientsMu sync.RWMutex
	clients   map[core.SessionID]map[chan ports.SessionEvent]struct{}
	logger    *internal.Logger
	ping      time.Duration
}

// NewSSEHub creates a new SSE hub
func NewSSEHub(logger *internal.Logger) *SSEHub {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	return &SSEHub{
		clients: make(map[core.SessionID]map[chan ports.SessionEvent]struct{}),
		logger:  logger.With("SSE"),
		ping:    pingInterval,
	}
}

// Subscribe registers a listener for sessionID. The returned func
// unregisters it and must be called exactly once.
func (h *SSEHub) Subscribe(sessionID core.SessionID) (<-chan ports.SessionEvent, func()) {
	ch := make(chan ports.SessionEvent, clientBuffer)

	h.clientsMu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[chan ports.SessionEvent]struct{})
	}
	h.clients[sessionID][ch] = struct{}{}
	h.logger.Debug("client registered for session %s (total clients: %d)", sessionID, len(h.clients[sessionID]))
	h.clientsMu.Unlock()

	return ch, func() {
		h.clientsMu.Lock()
		defer h.clientsMu.Unlock()
		if clients, ok := h.clients[sessionID]; ok {
			delete(clients, ch)
			if len(clients) == 0 {
				delete(h.clients, sessionID)
			}
		}
	}
}

// Publish delivers event to every listener of its session. Slow listeners
// miss the event rather than stall the publisher.
func (h *SSEHub) Publish(event ports.SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for ch := range h.clients[event.SessionID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("client channel full for session %s, skipping %s", event.SessionID, event.EventType)
		}
	}
}

// Stream writes events from a Subscribe channel to c until the client
// disconnects or the session closes. Callers subscribe first so nothing
// published while they validate the session is lost.
func (h *SSEHub) Stream(c *gin.Context, events <-chan ports.SessionEvent) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event: %v", err)
				return true
			}
			c.SSEvent(event.EventType, string(payload))
			return event.EventType != ports.EventSessionClosed

		case <-ticker.C:
			c.SSEvent("ping", `{"status":"alive"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// ActiveSessions returns sessions with at least one listener
func (h *SSEHub) ActiveSessions() []core.SessionID {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	sessions := make([]core.SessionID, 0, len(h.clients))
	for id := range h.clients {
		sessions = append(sessions, id)
	}
	return sessions
}

// ClientCount returns the number of listeners for a session
func (h *SSEHub) ClientCount(sessionID core.SessionID) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[sessionID])
}
