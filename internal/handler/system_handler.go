package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itilprep/itil-exam-backend/internal/response"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/rs/zerolog"
)

const checkTimeout = 2 * time.Second

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// QueueLength reports how many results wait for resync.
type QueueLength interface {
	Len(ctx context.Context) (int64, error)
}

// SystemHandler reports dependency health and process metrics.
type SystemHandler struct {
	checks         map[string]HealthCheck
	sessionService *service.ExamSessionService
	queue          QueueLength
	startTime      time.Time
	log            zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. queue may be nil when Redis
// is not configured.
func NewSystemHandler(checks map[string]HealthCheck, sessionService *service.ExamSessionService, queue QueueLength, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:         checks,
		sessionService: sessionService,
		queue:          queue,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

type dependencyStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Health godoc
// GET /health
// Pings every dependency. The API keeps serving with fallbacks when one is
// down, so the status is "degraded" rather than an error.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make([]dependencyStatus, 0, len(h.checks))
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			st := dependencyStatus{Name: name, OK: true}
			if err := check(ctx); err != nil {
				st.OK, st.Error = false, err.Error()
			}
			mu.Lock()
			statuses = append(statuses, st)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	status := "ok"
	for _, st := range statuses {
		if !st.OK {
			status = "degraded"
			h.log.Warn().Str("dependency", st.Name).Str("error", st.Error).Msg("Health check failed")
		}
	}

	response.Success(c, http.StatusOK, gin.H{"status": status, "dependencies": statuses})
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	ActiveSessions int   `json:"active_sessions"`
	ResyncQueue    int64 `json:"resync_queue"`
}

// Metrics godoc
// GET /api/v1/system/metrics
// Go runtime figures plus live sessions and the resync backlog.
func (h *SystemHandler) Metrics(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := systemMetrics{
		Timestamp:      time.Now().Unix(),
		Uptime:         formatDuration(time.Since(h.startTime)),
		Goroutines:     runtime.NumGoroutine(),
		HeapAlloc:      ms.HeapAlloc,
		HeapSys:        ms.HeapSys,
		NumGC:          ms.NumGC,
		GoVersion:      runtime.Version(),
		NumCPU:         runtime.NumCPU(),
		ActiveSessions: h.sessionService.Active(),
		ResyncQueue:    -1,
	}

	if h.queue != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()
		if n, err := h.queue.Len(ctx); err == nil {
			m.ResyncQueue = n
		}
	}

	response.Success(c, http.StatusOK, m)
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
