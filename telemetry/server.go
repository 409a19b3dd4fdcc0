package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latest holds the most recent window and perf stats for the debug server.
// It is safe for concurrent use.
type Latest struct {
	mu    sync.RWMutex
	ok    bool
	stats WindowStats
	perf  PerfStats
}

// Publish replaces the stored stats.
func (l *Latest) Publish(stats WindowStats, perf PerfStats) {
	l.mu.Lock()
	l.stats, l.perf, l.ok = stats, perf, true
	l.mu.Unlock()
}

// Get returns the stored stats and whether any were published.
func (l *Latest) Get() (WindowStats, PerfStats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats, l.perf, l.ok
}

type statsResponse struct {
	Window WindowStats      `json:"window"`
	Perf   perfStatsJSON    `json:"perf"`
	Phases map[string]int64 `json:"phase_avg_us"`
}

type perfStatsJSON struct {
	AvgTickUS   int64   `json:"avg_tick_us"`
	MaxTickUS   int64   `json:"max_tick_us"`
	TicksPerSec float64 `json:"ticks_per_sec"`
}

// NewDebugRouter builds the debug HTTP handler: /metrics, /stats, /health
// and /debug/pprof.
func NewDebugRouter(metrics *Metrics, latest *Latest) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		if latest == nil {
			http.Error(w, "stats disabled", http.StatusNotFound)
			return
		}
		stats, perf, ok := latest.Get()
		if !ok {
			http.Error(w, "no stats window completed yet", http.StatusServiceUnavailable)
			return
		}
		resp := statsResponse{
			Window: stats,
			Perf: perfStatsJSON{
				AvgTickUS:   perf.AvgTickDuration.Microseconds(),
				MaxTickUS:   perf.MaxTickDuration.Microseconds(),
				TicksPerSec: perf.TicksPerSecond,
			},
			Phases: make(map[string]int64, len(perf.PhaseAvg)),
		}
		for phase, d := range perf.PhaseAvg {
			resp.Phases[phase] = d.Microseconds()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Warn("encoding stats", "error", err)
		}
	})

	r.Route("/debug/pprof", func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		r.Handle("/{name}", http.HandlerFunc(pprof.Index))
	})

	return r
}

// ServeDebug serves handler on addr until ctx is cancelled.
func ServeDebug(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("debug server starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
