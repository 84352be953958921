package audio

import "fmt"

// compactionBound is the consumed-prefix length beyond which the framer
// drops already-read samples from its FIFOs. Compaction is amortised O(1)
// and never happens mid-frame.
const compactionBound = 8192

// Framer accumulates resampled samples into fixed-size frames and converts
// each complete window to wire-ready s16le bytes. It keeps one FIFO per
// channel and a shared read cursor; a frame is drained only when every
// channel has enough buffered data, so no partial frame is ever emitted.
//
// Not safe for concurrent use.
type Framer struct {
	frameSamples int
	fifos        [][]float64
	cursor       int
}

// NewFramer creates a Framer emitting frames of frameSamples samples per
// channel. channels must be 1 or 2.
func NewFramer(frameSamples, channels int) (*Framer, error) {
	if frameSamples <= 0 {
		return nil, fmt.Errorf("framer: frameSamples must be positive, got %d", frameSamples)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("framer: channels must be 1 or 2, got %d", channels)
	}
	return &Framer{
		frameSamples: frameSamples,
		fifos:        make([][]float64, channels),
	}, nil
}

// Channels returns the configured channel count.
func (f *Framer) Channels() int { return len(f.fifos) }

// Buffered returns the number of unconsumed samples in the shortest FIFO.
func (f *Framer) Buffered() int {
	min := -1
	for _, fifo := range f.fifos {
		n := len(fifo) - f.cursor
		if min < 0 || n < min {
			min = n
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// Push appends one batch of samples per channel and drains every complete
// frame now available. The returned slices are wire-ready payloads: mono
// frames of frameSamples×2 bytes, or interleaved stereo frames of
// frameSamples×4 bytes. Returns nil when no complete frame accumulated.
func (f *Framer) Push(channelSamples ...[]float64) ([][]byte, error) {
	if len(channelSamples) != len(f.fifos) {
		return nil, fmt.Errorf("framer: got %d channel batches, want %d", len(channelSamples), len(f.fifos))
	}
	for i, batch := range channelSamples {
		f.fifos[i] = append(f.fifos[i], batch...)
	}

	var frames [][]byte
	for f.Buffered() >= f.frameSamples {
		frames = append(frames, f.drainOne())
	}
	f.maybeCompact()
	return frames, nil
}

// drainOne encodes one complete window starting at the cursor and advances
// the cursor past it.
func (f *Framer) drainOne() []byte {
	ch := len(f.fifos)
	interleaved := make([]float64, f.frameSamples*ch)
	for i := 0; i < f.frameSamples; i++ {
		for c, fifo := range f.fifos {
			interleaved[i*ch+c] = fifo[f.cursor+i]
		}
	}
	f.cursor += f.frameSamples
	return EncodeSamples(interleaved)
}

// maybeCompact drops the consumed prefix once the cursor exceeds the bound,
// keeping memory proportional to the unconsumed tail.
func (f *Framer) maybeCompact() {
	if f.cursor <= compactionBound {
		return
	}
	for i, fifo := range f.fifos {
		f.fifos[i] = append(fifo[:0], fifo[f.cursor:]...)
	}
	f.cursor = 0
}
