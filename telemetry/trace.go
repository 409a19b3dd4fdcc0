package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// TraceFileName is the name of the tick trace inside the output directory.
const TraceFileName = "trace.jsonl.zst"

// Frame is one tick of the trace.
type Frame struct {
	Tick          int32   `json:"tick"`
	Boids         int     `json:"boids"`
	Attacking     int     `json:"attacking"`
	Bullets       int     `json:"bullets"`
	Wave          int     `json:"wave"`
	Neighbors     int     `json:"neighbors"`
	Saturated     int     `json:"saturated"`
	Rejected      int     `json:"rejected,omitempty"`
	TickMicros    int64   `json:"tick_us"` // duration of the previous tick
	MeanNeighbors float64 `json:"mean_neighbors"`
	Events        []Event `json:"events,omitempty"`
}

// TraceWriter writes frames as zstd-compressed JSON lines.
type TraceWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewTraceWriter creates path (and its directory) and opens a trace on it.
func NewTraceWriter(path string) (*TraceWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating trace directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating trace encoder: %w", err)
	}
	return &TraceWriter{
		f:   f,
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Write appends one frame. Frames are buffered; Close flushes them.
func (t *TraceWriter) Write(frame Frame) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.w == nil {
		return fmt.Errorf("trace is closed")
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

// Close flushes buffered frames and closes the file.
func (t *TraceWriter) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	if t.w != nil {
		firstErr = t.w.Flush()
		t.w = nil
	}
	if t.enc != nil {
		if err := t.enc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.enc = nil
	}
	if t.f != nil {
		if err := t.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.f = nil
	}
	return firstErr
}

// ReadTrace decodes every frame of a trace file.
func ReadTrace(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening trace decoder: %w", err)
	}
	defer dec.Close()

	var frames []Frame
	jd := json.NewDecoder(bufio.NewReader(dec))
	for jd.More() {
		var fr Frame
		if err := jd.Decode(&fr); err != nil {
			return frames, fmt.Errorf("decoding frame %d: %w", len(frames), err)
		}
		frames = append(frames, fr)
	}
	return frames, nil
}
