package audio

import "math"

// EncodeSamples converts float64 samples in [-1, 1] to signed 16-bit
// little-endian PCM. Samples outside the range are clamped. Negative values
// scale by 0x8000 and non-negative values by 0x7fff so that -1.0 and +1.0 map
// to the exact int16 extremes without asymmetric clipping.
func EncodeSamples(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := EncodeSample(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// EncodeSample converts a single float64 sample to int16 using the same
// clamp-and-scale rules as [EncodeSamples].
func EncodeSample(s float64) int16 {
	if s <= -1 {
		return -32768
	}
	if s >= 1 {
		return 32767
	}
	if s < 0 {
		return int16(math.Round(s * 0x8000))
	}
	return int16(math.Round(s * 0x7fff))
}

// DecodeSamples converts signed 16-bit little-endian PCM back to float64
// samples. It is the inverse of [EncodeSamples] on encoded values:
// re-encoding the decoded output yields identical bytes. A trailing odd byte
// is ignored.
func DecodeSamples(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = DecodeSample(v)
	}
	return out
}

// DecodeSample converts a single int16 sample to float64 in [-1, 1].
func DecodeSample(v int16) float64 {
	if v < 0 {
		return float64(v) / 0x8000
	}
	return float64(v) / 0x7fff
}

// DeinterleaveStereo splits interleaved s16le stereo PCM into separate left
// and right float64 channels. Trailing bytes short of a full stereo sample
// pair are ignored.
func DeinterleaveStereo(pcm []byte) (left, right []float64) {
	frames := len(pcm) / 4
	left = make([]float64, frames)
	right = make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := int16(pcm[i*4]) | int16(pcm[i*4+1])<<8
		r := int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8
		left[i] = DecodeSample(l)
		right[i] = DecodeSample(r)
	}
	return left, right
}
