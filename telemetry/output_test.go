package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/swarm/config"
)

func TestOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	// Nil manager methods are no-ops
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManager_WritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	for i := int32(1); i <= 3; i++ {
		if err := om.WriteTelemetry(WindowStats{WindowEndTick: i * 300, Boids: int(i) * 32}); err != nil {
			t.Fatal(err)
		}
		if err := om.WritePerf(PerfStats{AvgTickDuration: time.Millisecond}, i*300); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.Defaults()
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("telemetry.csv has %d lines, want header + 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "window_end,sim_time,boids") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "900,") {
		t.Errorf("last row = %q", lines[3])
	}

	perf, err := os.ReadFile(filepath.Join(dir, "perf.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(perf), "window_end"); n != 1 {
		t.Errorf("perf.csv has %d headers, want 1", n)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}
}

func TestTraceWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), TraceFileName)
	tw, err := NewTraceWriter(path)
	if err != nil {
		t.Fatalf("NewTraceWriter: %v", err)
	}

	for i := int32(1); i <= 50; i++ {
		fr := Frame{Tick: i, Boids: int(i), MeanNeighbors: 3.5}
		if i == 10 {
			fr.Events = []Event{{Type: EventWave, Tick: i, Count: 1, Value: 1}}
		}
		if err := tw.Write(fr); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tw.Write(Frame{}); err == nil {
		t.Error("expected error writing to closed trace")
	}

	frames, err := ReadTrace(path)
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if len(frames) != 50 {
		t.Fatalf("read %d frames, want 50", len(frames))
	}
	if frames[49].Tick != 50 || frames[49].Boids != 50 {
		t.Errorf("last frame = %+v", frames[49])
	}
	if ev := frames[9].Events; len(ev) != 1 || ev[0].Type != EventWave || ev[0].Value != 1 {
		t.Errorf("frame 10 events = %+v", ev)
	}
}

func TestDebugRouter(t *testing.T) {
	metrics := NewMetrics()
	latest := &Latest{}
	srv := httptest.NewServer(NewDebugRouter(metrics, latest))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/health"); code != http.StatusOK || body != "OK" {
		t.Errorf("/health = %d %q", code, body)
	}

	if code, _ := get("/stats"); code != http.StatusServiceUnavailable {
		t.Errorf("/stats before publish = %d", code)
	}
	latest.Publish(WindowStats{WindowEndTick: 300, Boids: 64}, PerfStats{AvgTickDuration: time.Millisecond})
	code, body := get("/stats")
	if code != http.StatusOK || !strings.Contains(body, `"Boids":64`) || !strings.Contains(body, `"avg_tick_us":1000`) {
		t.Errorf("/stats = %d %s", code, body)
	}

	metrics.ObserveFrame(Frame{Boids: 12, Events: []Event{{Type: EventKill, Count: 2}}})
	metrics.ObserveTick(PerfSample{TickDuration: time.Millisecond, Phases: map[string]time.Duration{PhaseCombat: time.Microsecond}})
	code, body = get("/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics = %d", code)
	}
	for _, want := range []string{"swarm_boids 12", `swarm_events_total{type="kill"} 2`, `swarm_phase_duration_seconds_count{phase="combat"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}

	if code, _ := get("/debug/pprof/"); code != http.StatusOK {
		t.Errorf("/debug/pprof/ = %d", code)
	}
}
