package common

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMetricsConcurrentCounts(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(-5)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncFile()
			m.AddTotalBytes(1000)
			m.AddBytes(100)
			for j := 0; j < 3; j++ {
				m.AddTrace(300)
			}
			m.AddTrace(0)
			m.IncTraceError()
		}()
	}
	wg.Wait()
	snap := m.Snapshot()
	if snap.Files != 4 || snap.Traces != 12 || snap.Failed != 4 {
		t.Fatalf("counts %+v", snap)
	}
	if snap.Bytes != 4000 || snap.TotalBytes != 4000 {
		t.Fatalf("bytes %+v", snap)
	}
	if snap.Duration != 0 || snap.ThroughputBytesPerSecond() != 0 {
		t.Fatalf("duration before Start: %+v", snap)
	}
}

func TestMetricsSnapshotString(t *testing.T) {
	tests := []struct {
		snap MetricsSnapshot
		want string
	}{
		{MetricsSnapshot{Bytes: 512, Traces: 2}, "512 B 2 traces, 0.00 MiB/s"},
		{MetricsSnapshot{Bytes: 1024, TotalBytes: 4096, Traces: 1, Failed: 1}, " 25.0% 1.00 KiB of 4.00 KiB, 1 traces, 1 failed, 0.00 MiB/s"},
		{MetricsSnapshot{Bytes: 2 << 20, Duration: time.Second, Traces: 3}, "2.00 MiB 3 traces, 2.00 MiB/s"},
	}
	for _, tt := range tests {
		if got := tt.snap.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	for b, want := range map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1536:    "1.50 KiB",
		5 << 30: "5.00 GiB",
	} {
		if got := FormatBytes(b); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", b, got, want)
		}
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestStartProgressPrinter(t *testing.T) {
	m := NewMetrics()
	m.SetTotalBytes(100)
	m.AddTrace(50)
	m.Start()
	var out lockedBuffer
	stop := StartProgressPrinter(&out, m, 5*time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "50.0%") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	if !strings.Contains(out.String(), "50.0% 50 B of 100 B, 1 traces") {
		t.Fatalf("progress output %q", out.String())
	}
	StartProgressPrinter(nil, m, 0)()
}
