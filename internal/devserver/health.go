package devserver

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Consecutive database ping failures before the server reports itself
// failed rather than degraded.
const dbFailureThreshold = 3

type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthFailed   HealthStatus = "failed"
)

// dbHealth counts consecutive database ping failures.
type dbHealth struct {
	mu       sync.Mutex
	failures int
	lastErr  string
	lastFail time.Time
}

func (h *dbHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = ""
}

func (h *dbHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
	h.lastFail = time.Now()
}

func (h *dbHealth) snapshot() (HealthStatus, int, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.failures == 0:
		return HealthOK, 0, ""
	case h.failures < dbFailureThreshold:
		return HealthDegraded, h.failures, h.lastErr
	default:
		return HealthFailed, h.failures, h.lastErr
	}
}

// Health is the /health body.
type Health struct {
	Status        HealthStatus `json:"status"`
	DBFailures    int          `json:"db_failures,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Goroutines    int          `json:"goroutines"`
	EventClients  int          `json:"event_clients"`
	RSSBytes      uint64       `json:"rss_bytes,omitempty"`
	CPUPercent    float64      `json:"cpu_percent,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.db.PingContext(ctx); err != nil {
		s.health.recordFailure(err)
		s.log.WithError(err).Warn("database ping failed")
	} else {
		s.health.recordSuccess()
	}

	status, failures, lastErr := s.health.snapshot()
	h := Health{
		Status:        status,
		DBFailures:    failures,
		LastError:     lastErr,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		EventClients:  s.events.ClientCount(),
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
			h.RSSBytes = mem.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			h.CPUPercent = cpu
		}
	}

	code := http.StatusOK
	if status == HealthFailed {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}
