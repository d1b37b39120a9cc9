package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"driftpursuit/rewind/internal/dump"
	"driftpursuit/rewind/internal/input"
	"driftpursuit/rewind/internal/logging"
	"driftpursuit/rewind/internal/simulation"
)

// ReadinessProvider exposes server state required for readiness checks.
type ReadinessProvider interface {
	SnapshotClientCounts() (clients, pending int)
	StartupError() error
	Uptime() time.Duration
}

// StatusSource returns the latest published session status.
type StatusSource func() simulation.Status

// InputTotals returns accepted control frames and aggregated drop counts.
type InputTotals func() (accepted uint64, drops input.DropCounters)

// HistoryDumper writes a history bundle and returns its location.
type HistoryDumper interface {
	DumpHistory(ctx context.Context) (string, error)
}

// HistoryDumperFunc adapts a function into a HistoryDumper.
type HistoryDumperFunc func(ctx context.Context) (string, error)

// DumpHistory implements HistoryDumper.
func (f HistoryDumperFunc) DumpHistory(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	Status       StatusSource
	Inputs       InputTotals
	Dumper       HistoryDumper
	AdminToken   string
	RateLimiter  RateLimiter
	TimeSource   func() time.Time
	DumpStats    func() dump.Stats
	StorageStats func() dump.StorageStats
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	status       StatusSource
	inputs       InputTotals
	dumper       HistoryDumper
	adminToken   string
	rateLimiter  RateLimiter
	now          func() time.Time
	dumpStats    func() dump.Stats
	storageStats func() dump.StorageStats
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		status:       opts.Status,
		inputs:       opts.Inputs,
		dumper:       opts.Dumper,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		now:          now,
		dumpStats:    opts.DumpStats,
		storageStats: opts.StorageStats,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/status", h.StatusHandler())
	mux.HandleFunc("/history/dump", h.HistoryDumpHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports readiness, including client counts and the simulation tick.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status         string  `json:"status"`
		Message        string  `json:"message,omitempty"`
		UptimeSeconds  float64 `json:"uptime_seconds"`
		Clients        int     `json:"clients"`
		PendingClients int     `json:"pending_clients"`
		Tick           uint64  `json:"tick"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Clients, resp.PendingClients = h.readiness.SnapshotClientCounts()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				code = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if h.status != nil {
			resp.Tick = h.status().Tick
		}
		writeJSON(w, code, resp)
	}
}

// StatusHandler returns the latest session status as JSON.
func (h *HandlerSet) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.status == nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, h.status())
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if h.readiness != nil {
			clients, pending := h.readiness.SnapshotClientCounts()
			writeMetric(w, "rewind_uptime_seconds", "gauge", "Server uptime in seconds.", fmt.Sprintf("%.0f", h.readiness.Uptime().Seconds()))
			writeMetric(w, "rewind_clients", "gauge", "Connected WebSocket clients.", strconv.Itoa(clients))
			writeMetric(w, "rewind_pending_clients", "gauge", "WebSocket handshakes awaiting upgrade.", strconv.Itoa(pending))
		}
		if h.status != nil {
			h.writeSessionMetrics(w, h.status())
		}
		if h.inputs != nil {
			accepted, drops := h.inputs()
			writeMetric(w, "rewind_input_accepted_total", "counter", "Control frames accepted by the input gate.", strconv.FormatUint(accepted, 10))
			fmt.Fprintf(w, "# HELP rewind_input_dropped_total Control frames dropped by the input gate.\n")
			fmt.Fprintf(w, "# TYPE rewind_input_dropped_total counter\n")
			fmt.Fprintf(w, "rewind_input_dropped_total{reason=%q} %d\n", "sequence", drops.Sequence)
			fmt.Fprintf(w, "rewind_input_dropped_total{reason=%q} %d\n", "stale", drops.Stale)
			fmt.Fprintf(w, "rewind_input_dropped_total{reason=%q} %d\n", "rate_limited", drops.RateLimited)
			fmt.Fprintf(w, "rewind_input_dropped_total{reason=%q} %d\n", "invalid", drops.Invalid)
		}
		if h.dumpStats != nil {
			stats := h.dumpStats()
			writeMetric(w, "rewind_history_dumps_total", "counter", "History dumps written successfully.", strconv.FormatInt(stats.Dumps, 10))
			writeMetric(w, "rewind_history_dump_failures_total", "counter", "History dumps that failed to write.", strconv.FormatInt(stats.Failures, 10))
		}
		if h.storageStats != nil {
			stats := h.storageStats()
			writeMetric(w, "rewind_history_dump_bundles", "gauge", "History dump bundles retained on disk.", strconv.Itoa(stats.Bundles))
			writeMetric(w, "rewind_history_dump_bytes", "gauge", "Disk footprint of retained history dumps.", strconv.FormatInt(stats.Bytes, 10))
		}
	}
}

func (h *HandlerSet) writeSessionMetrics(w http.ResponseWriter, status simulation.Status) {
	writeMetric(w, "rewind_tick", "counter", "Simulation ticks completed.", strconv.FormatUint(status.Tick, 10))
	writeMetric(w, "rewind_scrub_active", "gauge", "1 while any participating engine is manipulating time.", boolMetric(status.ScrubActive))
	writeMetric(w, "rewind_timeline_visible", "gauge", "1 while history markers are shown.", boolMetric(status.TimelineVisible))
	writeMetric(w, "rewind_snapshots_retained", "gauge", "Snapshots retained across every engine.", strconv.Itoa(status.SnapshotTotal()))
	writeMetric(w, "rewind_manipulation_events_total", "counter", "Manipulation start and completion events.", strconv.FormatUint(status.Events, 10))

	fmt.Fprintf(w, "# HELP rewind_engines Engines bound to the session by mode.\n")
	fmt.Fprintf(w, "# TYPE rewind_engines gauge\n")
	counts := status.CountByMode()
	for _, mode := range []string{"recording", "scrubbing"} {
		fmt.Fprintf(w, "rewind_engines{mode=%q} %d\n", mode, counts[mode])
	}

	ticks := status.Ticks
	writeMetric(w, "rewind_tick_duration_seconds_avg", "gauge", "Average simulation step cost.", fmt.Sprintf("%.6f", ticks.Average.Seconds()))
	writeMetric(w, "rewind_tick_duration_seconds_max", "gauge", "Slowest simulation step observed.", fmt.Sprintf("%.6f", ticks.Max.Seconds()))
	writeMetric(w, "rewind_tick_overruns_total", "counter", "Steps slower than the fixed timestep.", strconv.FormatUint(ticks.Overruns, 10))
	writeMetric(w, "rewind_tick_skipped_total", "counter", "Steps dropped to recover from stalls.", strconv.FormatUint(ticks.Skipped, 10))
}

// HistoryDumpHandler authorises and triggers a history dump.
func (h *HandlerSet) HistoryDumpHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "history_dump"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("history dump denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("history dump denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			if limiter, ok := h.rateLimiter.(interface{ RetryAfter() time.Duration }); ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limiter.RetryAfter())))
			}
			reqLogger.Warn("history dump denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.dumper == nil {
			reqLogger.Warn("history dump denied: no dumper configured")
			http.Error(w, "history dumping is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.dumper.DumpHistory(r.Context())
		if err != nil {
			reqLogger.Error("history dump failed", logging.Error(err))
			http.Error(w, "failed to write history dump", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("history dump written", logging.String("location", location))
		writeJSON(w, http.StatusCreated, response{Status: "created", Location: location})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeMetric(w http.ResponseWriter, name, kind, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %s\n", name, value)
}

func boolMetric(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// retryAfterSeconds rounds a wait up to whole seconds; a denied client never sees zero.
func retryAfterSeconds(wait time.Duration) int {
	return max(int(math.Ceil(wait.Seconds())), 1)
}
