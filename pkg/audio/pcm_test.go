package audio

import (
	"bytes"
	"testing"
)

func TestEncodeSample_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int16
	}{
		{"positive full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32768},
		{"positive clamp", 1.5, 32767},
		{"negative clamp", -2.0, -32768},
		{"zero", 0, 0},
		{"half scale positive", 0.5, 16384},
		{"half scale negative", -0.5, -16384},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeSample(tt.in); got != tt.want {
				t.Errorf("EncodeSample(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeSamples_LittleEndian(t *testing.T) {
	got := EncodeSamples([]float64{1.0, -1.0})
	want := []byte{0xff, 0x7f, 0x00, 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeSamples = % x, want % x", got, want)
	}
}

func TestPCMRoundTrip_Idempotent(t *testing.T) {
	// Decoding an encoded frame and re-encoding it must reproduce the bytes.
	samples := make([]float64, 320)
	for i := range samples {
		samples[i] = (float64(i) - 160) / 161
	}
	encoded := EncodeSamples(samples)
	reEncoded := EncodeSamples(DecodeSamples(encoded))
	if !bytes.Equal(encoded, reEncoded) {
		t.Error("re-encoding decoded PCM did not reproduce the original bytes")
	}
}

func TestDecodeSamples_IgnoresTrailingOddByte(t *testing.T) {
	got := DecodeSamples([]byte{0x00, 0x00, 0x7f})
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
}

func TestDeinterleaveStereo(t *testing.T) {
	pcm := EncodeSamples([]float64{0.5, -0.5, 1.0, -1.0})
	left, right := DeinterleaveStereo(pcm)
	if len(left) != 2 || len(right) != 2 {
		t.Fatalf("got %d/%d samples, want 2/2", len(left), len(right))
	}
	if left[1] != 1.0 {
		t.Errorf("left[1] = %v, want 1.0", left[1])
	}
	if right[1] != -1.0 {
		t.Errorf("right[1] = %v, want -1.0", right[1])
	}
}
