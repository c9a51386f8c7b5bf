package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
	eventDebounce     = time.Second
	defaultRefresh    = 15 * time.Second
)

// MonitorSubscriber opens the pub/sub channel of a quiz.
type MonitorSubscriber interface {
	Subscribe(ctx context.Context, quizID string) *redis.PubSub
}

type MonitorHandler struct {
	monitorService  *service.MonitorService
	subscriber      MonitorSubscriber
	refreshInterval time.Duration
	log             zerolog.Logger
}

func NewMonitorHandler(
	monitorService *service.MonitorService,
	subscriber MonitorSubscriber,
	refreshInterval time.Duration,
	log zerolog.Logger,
) *MonitorHandler {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefresh
	}
	return &MonitorHandler{
		monitorService:  monitorService,
		subscriber:      subscriber,
		refreshInterval: refreshInterval,
		log:             log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorQuizSSE godoc
// GET /api/v1/teacher/quizzes/:quiz_id/monitor
// Streams the merged live view: one snapshot on connect, then a refresh on
// every student event (debounced) and on every refresh tick.
func (h *MonitorHandler) MonitorQuizSSE(c *gin.Context) {
	reqCtx := c.Request.Context()
	quizID := c.Param("quiz_id")

	m := service.NewMonitor()
	defer m.Stop()

	quiz, err := h.monitorService.Start(reqCtx, m, quizID)
	if err != nil {
		failService(c, h.log, err, "Start monitor failed")
		return
	}

	log := h.log.With().Str("quiz_id", quizID).Logger()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("message", gin.H{
		"type": "quiz",
		"data": gin.H{
			"id":              quiz.ID,
			"title":           quiz.Title,
			"time_limit":      quiz.TimeLimit,
			"total_questions": len(quiz.Questions),
			"points":          quiz.Points,
		},
	})
	h.sendRefresh(c, reqCtx, m, "snapshot", log)

	pubsub := h.subscriber.Subscribe(reqCtx, quizID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refreshInterval)
	defer refreshTicker.Stop()

	debounceTicker := time.NewTicker(eventDebounce)
	defer debounceTicker.Stop()
	dirty := false

	log.Info().Msg("Teacher attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				log.Warn().Msg("Monitor channel closed")
				return
			}
			var ev model.MonitorEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("Discarding malformed monitor event")
				continue
			}
			c.SSEvent("message", gin.H{"type": "event", "data": ev})
			c.Writer.Flush()
			dirty = true

		case <-debounceTicker.C:
			if dirty {
				dirty = false
				h.sendRefresh(c, reqCtx, m, "refresh", log)
			}

		case <-refreshTicker.C:
			dirty = false
			h.sendRefresh(c, reqCtx, m, "refresh", log)

		case <-keepAliveTicker.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

// sendRefresh runs one monitor cycle and writes the merged view.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, m *service.Monitor, kind string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	view, err := h.monitorService.Refresh(ctx, m)
	if err != nil {
		if !errors.Is(err, service.ErrMonitorSwitched) {
			log.Warn().Err(err).Msg("Failed to refresh live view")
		}
		return
	}

	c.SSEvent("message", gin.H{"type": kind, "data": view})
	c.Writer.Flush()
}
