package audio

import (
	"math"
	"testing"
)

func TestResampler_Identity(t *testing.T) {
	input := make([]float64, 480)
	for i := range input {
		input[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 16000)
	}

	for _, chunkSize := range []int{1, 7, 160, 480} {
		t.Run("chunked", func(t *testing.T) {
			r, err := NewResampler(16000, 16000)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var out []float64
			for start := 0; start < len(input); start += chunkSize {
				end := start + chunkSize
				if end > len(input) {
					end = len(input)
				}
				out = append(out, r.Process(input[start:end])...)
			}
			if len(out) != len(input) {
				t.Fatalf("chunk size %d: got %d samples, want %d", chunkSize, len(out), len(input))
			}
			for i := range out {
				if out[i] != input[i] {
					t.Fatalf("chunk size %d: sample %d = %v, want %v", chunkSize, i, out[i], input[i])
				}
			}
		})
	}
}

func TestResampler_ChunkAssociativity(t *testing.T) {
	input := make([]float64, 1000)
	for i := range input {
		input[i] = math.Sin(2 * math.Pi * 300 * float64(i) / 44100)
	}

	whole, err := NewResampler(44100, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOut := whole.Process(input)

	oneAtATime, err := NewResampler(44100, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var gotOut []float64
	for i := range input {
		gotOut = append(gotOut, oneAtATime.Process(input[i:i+1])...)
	}

	if len(gotOut) != len(wantOut) {
		t.Fatalf("got %d samples, want %d", len(gotOut), len(wantOut))
	}
	for i := range gotOut {
		if gotOut[i] != wantOut[i] {
			t.Fatalf("sample %d differs: chunked %v, whole %v", i, gotOut[i], wantOut[i])
		}
	}
}

func TestResampler_DownsampleZeroCrossings(t *testing.T) {
	// 100 Hz sinusoid at 32 kHz downsampled to 16 kHz. Zero crossings must
	// land within one output sample of the analytically resampled reference.
	const inRate, outRate, freq = 32000, 16000, 100.0
	input := make([]float64, inRate/10)
	for i := range input {
		input[i] = math.Sin(2 * math.Pi * freq * float64(i) / inRate)
	}

	r, err := NewResampler(inRate, outRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := r.Process(input)
	if len(out) == 0 {
		t.Fatal("no output produced")
	}

	crossings := zeroCrossings(out)
	if len(crossings) == 0 {
		t.Fatal("no zero crossings found in output")
	}

	// Reference crossings of sin(2πf t) at the output rate: every outRate/(2f) samples.
	period := float64(outRate) / (2 * freq)
	for _, c := range crossings {
		nearest := math.Round(float64(c)/period) * period
		if math.Abs(float64(c)-nearest) > 1 {
			t.Errorf("zero crossing at output sample %d, want within 1 of %v", c, nearest)
		}
	}
}

func TestResampler_EmptyOnUnderrun(t *testing.T) {
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := r.Process([]float64{0.5}); len(out) > 1 {
		t.Errorf("expected at most one sample from a single input, got %d", len(out))
	}
	if out := r.Process(nil); len(out) != 0 {
		t.Errorf("expected no output from empty chunk, got %d samples", len(out))
	}
}

func TestResampler_InvalidRates(t *testing.T) {
	if _, err := NewResampler(0, 16000); err == nil {
		t.Error("expected error for zero input rate")
	}
	if _, err := NewResampler(16000, -1); err == nil {
		t.Error("expected error for negative output rate")
	}
}

func TestResampler_Reset(t *testing.T) {
	r, err := NewResampler(44100, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = r.Process(make([]float64, 500))
	r.Reset()

	fresh, _ := NewResampler(44100, 16000)
	input := make([]float64, 200)
	for i := range input {
		input[i] = float64(i) / 200
	}
	a := r.Process(input)
	b := fresh.Process(input)
	if len(a) != len(b) {
		t.Fatalf("after reset got %d samples, fresh instance got %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs after reset: %v vs %v", i, a[i], b[i])
		}
	}
}

// zeroCrossings returns the output indices where the signal changes sign.
func zeroCrossings(samples []float64) []int {
	var out []int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			out = append(out, i)
		}
	}
	return out
}
