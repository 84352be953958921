package audio

import (
	"math"
	"time"
)

// diagEpsilon prevents division by zero on silent windows.
const diagEpsilon = 1e-9

// defaultDiagInterval bounds how often the monitor emits a sample (≤2 Hz).
const defaultDiagInterval = 500 * time.Millisecond

// DiagnosticsSample is one windowed snapshot of per-channel statistics, used
// for operator display and microphone source selection. Samples are ephemeral
// and never gate the transport state machine.
type DiagnosticsSample struct {
	RMSLeft         float64
	RMSRight        float64
	StereoDiffRatio float64
	Correlation     float64
	ActiveSourceID  string
}

// MonoDiagnostics returns the definitional sample for a mono capture: both
// RMS values equal the measured level, correlation is 1, and the stereo
// difference ratio is 0. None of these are computed from data.
func MonoDiagnostics(rms float64, sourceID string) DiagnosticsSample {
	return DiagnosticsSample{
		RMSLeft:        rms,
		RMSRight:       rms,
		Correlation:    1,
		ActiveSourceID: sourceID,
	}
}

// Monitor accumulates stereo buffers and emits a [DiagnosticsSample] at most
// once per interval. It runs opportunistically on the capture path and does
// cheap accumulation per buffer; the square roots happen only at emission.
//
// Not safe for concurrent use.
type Monitor struct {
	interval time.Duration
	now      func() time.Time

	lastEmit time.Time

	sumLL, sumRR, sumLR, sumDD float64
	n                          int
}

// NewMonitor creates a Monitor emitting at most once per interval. A
// non-positive interval selects the 500 ms default.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultDiagInterval
	}
	return &Monitor{interval: interval, now: time.Now}
}

// Observe accumulates one stereo buffer and, if the emission interval has
// elapsed, returns the window's sample and resets the window. The second
// return value reports whether a sample was emitted.
func (m *Monitor) Observe(left, right []float64, sourceID string) (DiagnosticsSample, bool) {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		l, r := left[i], right[i]
		m.sumLL += l * l
		m.sumRR += r * r
		m.sumLR += l * r
		d := l - r
		m.sumDD += d * d
	}
	m.n += n

	now := m.now()
	if m.n == 0 || now.Sub(m.lastEmit) < m.interval {
		return DiagnosticsSample{}, false
	}

	count := float64(m.n)
	rmsL := math.Sqrt(m.sumLL / count)
	rmsR := math.Sqrt(m.sumRR / count)
	sample := DiagnosticsSample{
		RMSLeft:         rmsL,
		RMSRight:        rmsR,
		Correlation:     m.sumLR / math.Sqrt(m.sumLL*m.sumRR+diagEpsilon),
		StereoDiffRatio: math.Sqrt(m.sumDD/count) / (rmsL + rmsR + diagEpsilon),
		ActiveSourceID:  sourceID,
	}

	m.lastEmit = now
	m.sumLL, m.sumRR, m.sumLR, m.sumDD = 0, 0, 0, 0
	m.n = 0
	return sample, true
}

// ObserveMono accumulates one mono buffer. The emitted sample carries the
// definitional mono values from [MonoDiagnostics] rather than anything
// computed from a duplicated channel.
func (m *Monitor) ObserveMono(samples []float64, sourceID string) (DiagnosticsSample, bool) {
	for _, s := range samples {
		m.sumLL += s * s
	}
	m.n += len(samples)

	now := m.now()
	if m.n == 0 || now.Sub(m.lastEmit) < m.interval {
		return DiagnosticsSample{}, false
	}

	rms := math.Sqrt(m.sumLL / float64(m.n))
	m.lastEmit = now
	m.sumLL, m.sumRR, m.sumLR, m.sumDD = 0, 0, 0, 0
	m.n = 0
	return MonoDiagnostics(rms, sourceID), true
}

// RMS computes the root-mean-square level of a sample buffer.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
