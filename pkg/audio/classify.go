package audio

import (
	"log/slog"
	"math"
)

// Classification thresholds. Some capture backends upmix a mono microphone
// into a nominally-stereo buffer; shipping the silent channel as the "other
// ear" would corrupt downstream direction fusion, so buffers whose second
// channel is near-silent while the first carries speech are treated as mono.
const (
	probeStride = 4

	// nearSilenceRMS is the probe RMS below which a channel is considered silent.
	nearSilenceRMS = 1e-6

	// speechPresenceRMS is the probe RMS above which a channel carries content.
	speechPresenceRMS = 2e-5
)

// ChannelClassifier decides, per capture buffer, whether the second channel
// carries distinct content or is a silent duplicate of the first. The
// decision is recomputed on every buffer with no hysteresis beyond the
// thresholds; only transitions are logged.
//
// Not safe for concurrent use; call from the capture pipeline goroutine.
type ChannelClassifier struct {
	effectivelyMono bool
	classified      bool
}

// Classify inspects one capture callback's stereo buffer and reports whether
// it is effectively mono. When true, callers should substitute the first
// channel's data for the second for the remainder of the pipeline.
func (c *ChannelClassifier) Classify(ch0, ch1 []float64) bool {
	rms0 := probeRMS(ch0)
	rms1 := probeRMS(ch1)

	mono := rms1 < nearSilenceRMS && rms0 > speechPresenceRMS
	if !c.classified || mono != c.effectivelyMono {
		slog.Info("channel classification changed",
			"effectively_mono", mono,
			"ch0_probe_rms", rms0,
			"ch1_probe_rms", rms1,
		)
		c.effectivelyMono = mono
		c.classified = true
	}
	return c.effectivelyMono
}

// EffectivelyMono returns the most recent classification. False before the
// first call to Classify.
func (c *ChannelClassifier) EffectivelyMono() bool { return c.effectivelyMono }

// probeRMS computes a cheap strided RMS over every fourth sample.
func probeRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	var n int
	for i := 0; i < len(samples); i += probeStride {
		sum += samples[i] * samples[i]
		n++
	}
	return math.Sqrt(sum / float64(n))
}
