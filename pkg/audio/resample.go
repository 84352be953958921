package audio

import "fmt"

// Resampler converts a stream of float64 samples from an input rate to an
// output rate using linear interpolation. Fractional read position is carried
// across calls, so feeding the same data in chunks of any size produces a
// bit-for-bit identical output stream.
//
// A Resampler holds per-stream phase state and must not be shared between
// channels: a stereo pair needs two independent instances to avoid phase
// cross-talk. Not safe for concurrent use.
type Resampler struct {
	ratio float64 // input samples consumed per output sample

	buf []float64 // unconsumed input, first sample at integer cursor 0
	pos float64   // fractional read cursor into buf
}

// NewResampler creates a Resampler converting from inRate to outRate Hz.
// Equal rates are valid and degenerate to a pass-through, but still run
// through the interpolation path so phase handling stays uniform.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("resampler: rates must be positive, got in=%d out=%d", inRate, outRate)
	}
	return &Resampler{ratio: float64(inRate) / float64(outRate)}, nil
}

// Ratio returns the conversion ratio inRate/outRate.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Process appends chunk to the internal buffer and returns as many output
// samples as the buffered input supports. An empty result means not enough
// input has accumulated yet; that is normal back-pressure, not an error.
func (r *Resampler) Process(chunk []float64) []float64 {
	r.buf = append(r.buf, chunk...)

	var out []float64
	for {
		idx := int(r.pos)
		frac := r.pos - float64(idx)
		if idx >= len(r.buf) {
			break
		}
		if frac > 0 && idx+1 >= len(r.buf) {
			// The bracketing sample arrives with the next chunk.
			break
		}
		s0 := r.buf[idx]
		if frac == 0 {
			out = append(out, s0)
		} else {
			s1 := r.buf[idx+1]
			out = append(out, s0+(s1-s0)*frac)
		}
		r.pos += r.ratio
	}

	// Drop the consumed prefix. The integer part of pos is exactly
	// representable, so the subtraction preserves the fractional phase.
	drop := int(r.pos)
	if drop > len(r.buf) {
		drop = len(r.buf)
	}
	if drop > 0 {
		r.buf = append(r.buf[:0], r.buf[drop:]...)
		r.pos -= float64(drop)
	}
	return out
}

// Reset discards buffered input and fractional phase. Use when a capture
// session restarts; phase state must not outlive the session it belongs to.
func (r *Resampler) Reset() {
	r.buf = r.buf[:0]
	r.pos = 0
}
