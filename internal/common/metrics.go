package common

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts decode work. Counters are safe for concurrent decodes
// sharing one instance, as in segdctl batch.
type Metrics struct {
	bytes      atomic.Int64
	totalBytes atomic.Int64
	traces     atomic.Int64
	failed     atomic.Int64
	files      atomic.Int64

	mu    sync.Mutex
	start time.Time
	end   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Start marks the beginning of the timed run; later calls are ignored.
func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddTrace records one decoded trace block of size bytes.
func (m *Metrics) AddTrace(size int64) {
	if size > 0 {
		m.bytes.Add(size)
		m.traces.Add(1)
	}
}

// AddBytes counts bytes walked outside trace blocks.
func (m *Metrics) AddBytes(n int64) {
	if n > 0 {
		m.bytes.Add(n)
	}
}

// IncTraceError counts a trace that was skipped with a recoverable error.
func (m *Metrics) IncTraceError() { m.failed.Add(1) }

func (m *Metrics) IncFile() { m.files.Add(1) }

// AddTotalBytes grows the expected total when several files share m.
func (m *Metrics) AddTotalBytes(n int64) {
	if n > 0 {
		m.totalBytes.Add(n)
	}
}

func (m *Metrics) SetTotalBytes(total int64) {
	m.totalBytes.Store(max(total, 0))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	var d time.Duration
	switch {
	case m.start.IsZero():
	case m.end.IsZero():
		d = time.Since(m.start)
	default:
		d = m.end.Sub(m.start)
	}
	m.mu.Unlock()
	return MetricsSnapshot{
		Duration:   d,
		Bytes:      m.bytes.Load(),
		TotalBytes: m.totalBytes.Load(),
		Traces:     m.traces.Load(),
		Failed:     m.failed.Load(),
		Files:      m.files.Load(),
	}
}

type MetricsSnapshot struct {
	Duration   time.Duration
	Bytes      int64
	TotalBytes int64
	Traces     int64
	Failed     int64
	Files      int64
}

func (s MetricsSnapshot) ThroughputBytesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

// String is the one-line progress report printed by StartProgressPrinter.
func (s MetricsSnapshot) String() string {
	mbps := s.ThroughputBytesPerSecond() / (1 << 20)
	line := fmt.Sprintf("%s %d traces", FormatBytes(s.Bytes), s.Traces)
	if s.TotalBytes > 0 {
		pct := 100 * min(float64(s.Bytes)/float64(s.TotalBytes), 1)
		line = fmt.Sprintf("%5.1f%% %s of %s, %d traces", pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Traces)
	}
	if s.Failed > 0 {
		line += fmt.Sprintf(", %d failed", s.Failed)
	}
	return fmt.Sprintf("%s, %.2f MiB/s", line, mbps)
}

// FormatBytes renders b with binary prefixes.
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b)
	unit := -1
	for v >= 1024 && unit < 5 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %ciB", v, "KMGTPE"[unit])
}

// StartProgressPrinter rewrites a progress line on w every interval until
// the returned stop function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		width := 0
		for {
			select {
			case <-ticker.C:
				line := m.Snapshot().String()
				width = max(width, len(line))
				fmt.Fprintf(w, "\r%-*s", width, line)
			case <-done:
				if width > 0 {
					fmt.Fprintf(w, "\r%*s\r", width, "")
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
