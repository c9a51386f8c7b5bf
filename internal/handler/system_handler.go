package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/config"
)

const (
	metricsInterval = 7 * time.Second
	metricsTimeout  = 2 * time.Second
)

// QueueInspector reports persistence queue lengths.
type QueueInspector interface {
	Depths(ctx context.Context) (map[string]int64, error)
}

// SystemHandler streams Go runtime, pool and queue metrics via SSE.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	queues    QueueInspector
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, queues QueueInspector, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		queues:    queues,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapSys      uint64 `json:"heap_sys"`
	StackInuse   uint64 `json:"stack_inuse"`
	NumGC        uint32 `json:"num_gc"`
	LastGCPauseNs uint64 `json:"last_gc_pause_ns"`
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`

	// Pools
	RedisHits       uint32 `json:"redis_hits"`
	RedisMisses     uint32 `json:"redis_misses"`
	RedisTimeouts   uint32 `json:"redis_timeouts"`
	RedisTotalConns uint32 `json:"redis_total_conns"`
	RedisIdleConns  uint32 `json:"redis_idle_conns"`
	DBTotalConns    int32  `json:"db_total_conns"`
	DBIdleConns     int32  `json:"db_idle_conns"`
	DBAcquiredConns int32  `json:"db_acquired_conns"`

	// Worker Queues
	QueueCheats  int64 `json:"queue_cheats"`
	QueueResults int64 `json:"queue_results"`
}

// SystemMetricsSSE godoc
// GET /api/v1/teacher/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Client connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c, reqCtx)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Client disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c, reqCtx)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context, ctx context.Context) {
	data, err := json.Marshal(h.collect(ctx))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	// ── Go Runtime ──
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.HeapSys
	m.StackInuse = ms.StackInuse
	m.NumGC = ms.NumGC
	if ms.NumGC > 0 {
		m.LastGCPauseNs = ms.PauseNs[(ms.NumGC+255)%256]
	}

	// ── Pools ──
	if h.rdb != nil {
		ps := h.rdb.PoolStats()
		m.RedisHits = ps.Hits
		m.RedisMisses = ps.Misses
		m.RedisTimeouts = ps.Timeouts
		m.RedisTotalConns = ps.TotalConns
		m.RedisIdleConns = ps.IdleConns
	}
	if h.pool != nil {
		st := h.pool.Stat()
		m.DBTotalConns = st.TotalConns()
		m.DBIdleConns = st.IdleConns()
		m.DBAcquiredConns = st.AcquiredConns()
	}

	// ── Worker Queues ──
	qctx, cancel := context.WithTimeout(ctx, metricsTimeout)
	defer cancel()
	if depths, err := h.queues.Depths(qctx); err == nil {
		m.QueueCheats = depths[config.WorkerKey.PersistCheatsQueue]
		m.QueueResults = depths[config.WorkerKey.PersistResultsQueue]
	} else {
		h.log.Warn().Err(err).Msg("Queue depth lookup failed")
	}

	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
