package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/response"
)

const healthTimeout = 2 * time.Second

// HealthHandler reports dependency reachability and a few runtime figures.
type HealthHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, rdb: rdb, startTime: time.Now()}
}

type healthStatus struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`

	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	NumGC        uint32 `json:"num_gc"`
	GoVersion    string `json:"go_version"`
	NotifyQueued int64  `json:"notify_queued"`
}

// Health godoc
// GET /health
// 200 while PostgreSQL answers. Redis is optional and only reported.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	s := healthStatus{
		Status:    "ok",
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Postgres:  "up",
		Redis:     "disabled",
		GoVersion: runtime.Version(),
	}

	if err := h.pool.Ping(ctx); err != nil {
		s.Status, s.Postgres = "degraded", "down"
	}

	if h.rdb != nil {
		s.Redis = "up"
		if n, err := h.rdb.LLen(ctx, config.WorkerKey.NotifyExamCreatedQueue).Result(); err != nil {
			s.Redis = "down"
		} else {
			s.NotifyQueued = n
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAlloc = ms.HeapAlloc
	s.NumGC = ms.NumGC

	status := http.StatusOK
	if s.Postgres == "down" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, s)
}
