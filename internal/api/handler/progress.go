package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timmy/csvgen/internal/api/middleware"
	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/progress"
)

// ProgressHandler streams progress events as Server-Sent Events.
type ProgressHandler struct {
	broadcaster *progress.Broadcaster
	heartbeat   time.Duration
}

// NewProgressHandler creates a new progress handler. heartbeat <= 0 disables keep-alive pings.
func NewProgressHandler(b *progress.Broadcaster, heartbeat time.Duration) *ProgressHandler {
	return &ProgressHandler{broadcaster: b, heartbeat: heartbeat}
}

// Stream handles GET /api/progress[?jobId=].
// Each connection holds one subscription for its lifetime.
func (h *ProgressHandler) Stream(c *gin.Context) {
	jobID := c.Query("jobId")
	sub := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(sub.ID)

	log := middleware.GetLogger(c).WithField(logger.FieldSubscriberID, sub.ID)
	log.Debug("SSE stream opened")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"subscriberId": sub.ID})
	c.Writer.Flush()

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		t := time.NewTicker(h.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-tick:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case ev, ok := <-sub.C:
			if !ok {
				log.Debug("Progress subscription closed")
				return false
			}
			if jobID != "" && ev.JobID != jobID {
				return true
			}
			c.SSEvent(domain.EventTypeProgress, ev)
			return true
		}
	})
}
