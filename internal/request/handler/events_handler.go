package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/middleware"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/request/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const heartbeatInterval = 30 * time.Second

type EventsHandler struct {
	hub *events.Hub
}

func NewEventsHandler(hub *events.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream pushes request changes to a dashboard until it disconnects or a
// write fails.
// GET /api/v1/events?token=xxx
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		NotFound(c, "Live updates are disabled")
		return
	}
	s, _ := middleware.GetSession(c)
	clientID := uuid.NewString()

	client := &events.Client{
		ID:     clientID,
		Email:  s.UserEmail,
		Events: make(chan events.Event, 64),
	}
	h.hub.Register(client)
	defer h.hub.Unregister(clientID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()

	// gin's Flush swallows errors, so flush the underlying writer directly.
	var raw http.ResponseWriter = c.Writer
	if u, ok := raw.(interface{ Unwrap() http.ResponseWriter }); ok {
		raw = u.Unwrap()
	}
	rc := http.NewResponseController(raw)
	// The server write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	send := func(frame string) bool {
		if _, err := c.Writer.WriteString(frame); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send("event: connected\ndata: {\"client_id\":\"" + clientID + "\"}\n\n") {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if !send(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, event.Data)) {
				return
			}
		case <-heartbeat.C:
			if !send(": keepalive\n\n") {
				return
			}
		}
	}
}
