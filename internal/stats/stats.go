// Package stats computes per-trace amplitude and spectral summaries.
package stats

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TraceStats summarises one trace. All fields are zero for an empty trace.
type TraceStats struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"stddev"`
	RMS      float64 `json:"rms"`
	PeakAbs  float64 `json:"peakAbs"`
	Dead     bool    `json:"dead"`
	Dominant float64 `json:"dominantHz,omitempty"`
}

func Summarize(samples []float64) TraceStats {
	n := len(samples)
	if n == 0 {
		return TraceStats{Dead: true}
	}
	s := TraceStats{
		Count: n,
		Min:   floats.Min(samples),
		Max:   floats.Max(samples),
		Mean:  stat.Mean(samples, nil),
		RMS:   floats.Norm(samples, 2) / math.Sqrt(float64(n)),
	}
	if n > 1 {
		s.StdDev = stat.StdDev(samples, nil)
	}
	s.PeakAbs = math.Max(math.Abs(s.Min), math.Abs(s.Max))
	s.Dead = s.PeakAbs == 0
	return s
}

// SummarizeAt is Summarize plus the dominant frequency for a known
// sample interval.
func SummarizeAt(samples []float64, interval time.Duration) TraceStats {
	s := Summarize(samples)
	if !s.Dead {
		s.Dominant = DominantFrequency(samples, SampleRate(interval))
	}
	return s
}

// DominantFrequency returns the frequency in Hz of the largest non-DC
// spectral peak, or 0 when the trace is too short or rate is unknown.
func DominantFrequency(samples []float64, rate float64) float64 {
	n := len(samples)
	if n < 4 || rate <= 0 {
		return 0
	}
	mean := stat.Mean(samples, nil)
	centred := make([]float64, n)
	for i, v := range samples {
		centred[i] = v - mean
	}
	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centred)
	best, bestMag := 0, 0.0
	for i := 1; i < len(coeff); i++ {
		if m := cmplx.Abs(coeff[i]); m > bestMag {
			best, bestMag = i, m
		}
	}
	if best == 0 {
		return 0
	}
	return fft.Freq(best) * rate
}

// SampleRate converts a sample interval to Hz.
func SampleRate(interval time.Duration) float64 {
	if interval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(interval)
}

// BandCode is the SEED band code letter for a sample rate in Hz.
func BandCode(rate float64) string {
	switch {
	case rate >= 1000:
		return "G"
	case rate >= 250:
		return "D"
	case rate >= 80:
		return "E"
	case rate >= 10:
		return "S"
	}
	return "L"
}
