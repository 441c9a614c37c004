package stats

import (
	"math"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, -3, 2, 0})
	if s.Count != 4 || s.Min != -3 || s.Max != 2 || s.PeakAbs != 3 || s.Dead {
		t.Fatalf("stats %+v", s)
	}
	if s.Mean != 0 {
		t.Fatalf("Mean = %v", s.Mean)
	}
	if want := math.Sqrt(14.0 / 4); math.Abs(s.RMS-want) > 1e-12 {
		t.Fatalf("RMS = %v, want %v", s.RMS, want)
	}
	if want := math.Sqrt(14.0 / 3); math.Abs(s.StdDev-want) > 1e-12 {
		t.Fatalf("StdDev = %v, want %v", s.StdDev, want)
	}
}

func TestSummarizeDeadAndEmpty(t *testing.T) {
	if s := Summarize(nil); !s.Dead || s.Count != 0 {
		t.Fatalf("empty stats %+v", s)
	}
	if s := Summarize([]float64{0, 0, 0}); !s.Dead || s.Count != 3 {
		t.Fatalf("zero stats %+v", s)
	}
	if s := Summarize([]float64{5}); s.StdDev != 0 || s.Mean != 5 {
		t.Fatalf("single sample stats %+v", s)
	}
}

func TestDominantFrequency(t *testing.T) {
	const rate = 500.0
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = 3 + math.Sin(2*math.Pi*25*float64(i)/rate)
	}
	if got := DominantFrequency(samples, rate); math.Abs(got-25) > 1 {
		t.Fatalf("DominantFrequency = %v, want 25", got)
	}
	s := SummarizeAt(samples, 2*time.Millisecond)
	if math.Abs(s.Dominant-25) > 1 {
		t.Fatalf("SummarizeAt dominant = %v", s.Dominant)
	}
	if got := DominantFrequency(samples[:3], rate); got != 0 {
		t.Fatalf("short trace = %v", got)
	}
}

func TestBandCode(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{2000, "G"},
		{1000, "G"},
		{500, "D"},
		{250, "D"},
		{100, "E"},
		{40, "S"},
		{1, "L"},
	}
	for _, tt := range tests {
		if got := BandCode(tt.rate); got != tt.want {
			t.Fatalf("BandCode(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

func TestSampleRate(t *testing.T) {
	if got := SampleRate(500 * time.Microsecond); got != 2000 {
		t.Fatalf("SampleRate = %v", got)
	}
	if got := SampleRate(0); got != 0 {
		t.Fatalf("SampleRate(0) = %v", got)
	}
}
