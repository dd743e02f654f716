package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/middleware"
	"github.com/stemsi/exstem-live/internal/response"
	"github.com/stemsi/exstem-live/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // keeps a slow query from stalling the stream
)

// MonitorHandler streams live exam activity to the owning teacher.
type MonitorHandler struct {
	rdb     *redis.Client
	reports *service.ReportService
	log     zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, reports *service.ReportService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		reports: reports,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:exam_id/monitor
// Sends an overview snapshot, then forwards lifecycle events as they are
// published, with periodic refreshes and keep-alive pings.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	// Ownership is checked before any stream headers go out.
	snapshot, err := h.reports.Overview(reqCtx, claims.UserID, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()

	var events <-chan *redis.Message
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
		defer pubsub.Close()
		events = pubsub.Channel()
	}

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Refreshes are skipped until something has happened since the last one.
	// Without pub/sub there is no signal, so every tick refreshes.
	polling := events == nil
	dirty := polling

	h.log.Info().Str("exam_id", examID.String()).Int("teacher_id", claims.UserID).Msg("Teacher attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Teacher detached from live monitor")
			return

		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Payloads are already JSON; forward them untouched.
			c.Writer.Write([]byte("event: activity\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = polling
			h.sendRefresh(c, reqCtx, claims.UserID, examID)

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// sendRefresh re-reads the overview and sends it as a refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, ownerID int, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	overview, err := h.reports.Overview(ctx, ownerID, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh monitor overview")
		return
	}

	c.SSEvent("refresh", gin.H{
		"stats":       overview.Stats,
		"attempts":    overview.Attempts,
		"not_started": overview.NotStarted,
	})
	c.Writer.Flush()
}
