package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	NoteIDs   []int64 `json:"noteIds"`
	Reason    string  `json:"reason,omitempty"`
	Source    string  `json:"source"`
	Timestamp int64   `json:"timestamp"`
}

// handleEventStream keeps a server-sent event stream open until the client leaves.
// A heartbeat is sent immediately so clients know the subscription is live.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.writeEvent(c, realtimeEventHeartbeat, realtimeEventPayload{NoteIDs: []int64{}})

	interval := h.heartbeatInterval
	if interval <= 0 {
		interval = realtimeHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			noteIDs := message.NoteIDs
			if noteIDs == nil {
				noteIDs = []int64{}
			}
			h.writeEvent(c, message.EventType, realtimeEventPayload{
				NoteIDs:   noteIDs,
				Reason:    message.Reason,
				Timestamp: message.Timestamp.UnixMilli(),
			})
		case <-ticker.C:
			h.writeEvent(c, realtimeEventHeartbeat, realtimeEventPayload{NoteIDs: []int64{}})
		}
	}
}

func (h *httpHandler) writeEvent(c *gin.Context, eventType string, payload realtimeEventPayload) {
	payload.Source = realtimeSourceBackend
	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().UTC().UnixMilli()
	}
	c.SSEvent(eventType, payload)
	c.Writer.Flush()
}
