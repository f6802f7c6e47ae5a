package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// PoolStats is a snapshot of the connection pool.
type PoolStats struct {
	Total    int32  `json:"total_conns"`
	Idle     int32  `json:"idle_conns"`
	Acquired int32  `json:"acquired_conns"`
	Max      int32  `json:"max_conns"`
	WaitTime string `json:"acquire_duration"`
}

// Health is the body of GET /health.
type Health struct {
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	PingMS    int64      `json:"ping_ms"`
	Pool      *PoolStats `json:"pool"`
	CheckedAt time.Time  `json:"checked_at"`
}

func statsOf(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		Total:    s.TotalConns(),
		Idle:     s.IdleConns(),
		Acquired: s.AcquiredConns(),
		Max:      s.MaxConns(),
		WaitTime: s.AcquireDuration().String(),
	}
}

// HealthHandler answers 200 while the database responds to a ping within
// healthTimeout and 503 otherwise.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler(pool.Ping, func() *PoolStats { return statsOf(pool) })
}

func healthHandler(ping func(context.Context) error, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		start := time.Now()
		err := ping(ctx)
		h := Health{
			Status:    "healthy",
			PingMS:    time.Since(start).Milliseconds(),
			Pool:      stats(),
			CheckedAt: start.UTC(),
		}
		code := http.StatusOK
		if err != nil {
			h.Status = "unhealthy"
			h.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, h)
	}
}
