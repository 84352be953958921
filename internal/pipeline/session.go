// Package pipeline turns raw capture buffers into wire-ready audio frames.
//
// Capture backends deliver buffers on their own callback thread; a [Session]
// decouples that thread from everything downstream with a bounded queue and a
// single actor goroutine that owns the resamplers, the channel classifier,
// the framer, and the diagnostics monitor. The capture callback never blocks
// on network I/O: under backpressure the oldest queued chunk is dropped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearhud/hudlink/internal/observe"
	"github.com/hearhud/hudlink/pkg/audio"
)

const defaultQueueSize = 32

// CaptureError is a fatal session failure: a device or configuration problem
// the pipeline cannot recover from. It ends the session and is surfaced to
// the application; capture itself is never auto-retried.
type CaptureError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Chunk is one capture callback's worth of audio, one sample slice per
// channel at the native rate.
type Chunk struct {
	Channels [][]float64
}

// Config configures a capture [Session].
type Config struct {
	// NativeSampleRate is the capture device's rate in Hz. Required.
	NativeSampleRate int

	// Channels is 1 or 2. Required.
	Channels int

	// TargetSampleRate is the wire rate. Zero selects 16000.
	TargetSampleRate int

	// FrameMs is the wire frame duration. Zero selects 20.
	FrameMs int

	// AudioSourceHint is a free-form selector naming the capture path, for
	// diagnostics display only.
	AudioSourceHint string

	// QueueSize bounds the chunk queue. Zero selects 32.
	QueueSize int

	// Sink receives each complete frame. Required. Errors are treated as
	// dropped frames, never as session failures.
	Sink func(frame []byte) error

	// OnDiagnostics receives windowed level statistics, at most 2 Hz.
	OnDiagnostics func(audio.DiagnosticsSample)

	// Metrics receives pipeline instrumentation. Nil disables it.
	Metrics *observe.Metrics

	// Log overrides the logger. Nil selects slog.Default().
	Log *slog.Logger
}

// Session is one open microphone capture. It owns its resampler phase state
// exclusively; the state dies with the session.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	queue  chan Chunk
	closed chan struct{}

	resL       *audio.Resampler
	resR       *audio.Resampler
	classifier audio.ChannelClassifier
	framer     *audio.Framer
	monitor    *audio.Monitor
}

// NewSession validates cfg and builds the pipeline components.
func NewSession(cfg Config) (*Session, error) {
	if cfg.NativeSampleRate <= 0 {
		return nil, errors.New("pipeline: NativeSampleRate is required")
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("pipeline: %d channels unsupported, want 1 or 2", cfg.Channels)
	}
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: Sink is required")
	}
	if cfg.TargetSampleRate == 0 {
		cfg.TargetSampleRate = 16000
	}
	if cfg.FrameMs == 0 {
		cfg.FrameMs = 20
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	format := audio.Format{
		SampleRate: cfg.TargetSampleRate,
		Channels:   cfg.Channels,
		FrameMs:    cfg.FrameMs,
	}
	framer, err := audio.NewFramer(format.FrameSamples(), cfg.Channels)
	if err != nil {
		return nil, err
	}
	resL, err := audio.NewResampler(cfg.NativeSampleRate, cfg.TargetSampleRate)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		queue:   make(chan Chunk, cfg.QueueSize),
		closed:  make(chan struct{}),
		resL:    resL,
		framer:  framer,
		monitor: audio.NewMonitor(0),
	}
	s.log = log.With(
		slog.String("component", "pipeline"),
		slog.String("session_id", s.id),
	)
	if cfg.Channels == 2 {
		// Independent instances per channel keep the fractional phase of
		// one ear from leaking into the other.
		if s.resR, err = audio.NewResampler(cfg.NativeSampleRate, cfg.TargetSampleRate); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Push hands one capture buffer to the actor without blocking. Under
// backpressure the oldest queued chunk is discarded. A channel-count mismatch
// is a fatal capture error.
func (s *Session) Push(chunk Chunk) error {
	if len(chunk.Channels) != s.cfg.Channels {
		return &CaptureError{
			SessionID: s.id,
			Op:        "push",
			Err:       fmt.Errorf("got %d channels, session captures %d", len(chunk.Channels), s.cfg.Channels),
		}
	}
	select {
	case <-s.closed:
		return nil
	default:
	}

	select {
	case s.queue <- chunk:
		return nil
	default:
	}
	select {
	case <-s.queue:
		s.recordDrop()
	default:
	}
	select {
	case s.queue <- chunk:
	default:
		s.recordDrop()
	}
	return nil
}

// Run drains the queue until ctx is cancelled or Close is called. It returns
// nil on a normal stop and a [*CaptureError] on fatal failure.
func (s *Session) Run(ctx context.Context) error {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveCaptures.Add(ctx, 1)
		defer s.cfg.Metrics.ActiveCaptures.Add(context.Background(), -1)
	}
	s.log.Info("capture session started",
		slog.Int("native_rate", s.cfg.NativeSampleRate),
		slog.Int("channels", s.cfg.Channels),
		slog.String("source_hint", s.cfg.AudioSourceHint),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case chunk := <-s.queue:
			if err := s.process(chunk); err != nil {
				s.log.Error("capture session failed", slog.String("error", err.Error()))
				return err
			}
		}
	}
}

// Close stops the actor. Idempotent.
func (s *Session) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

// process runs one chunk through classify, resample, frame, and send.
func (s *Session) process(chunk Chunk) error {
	ch0 := chunk.Channels[0]
	stereo := s.cfg.Channels == 2

	var frames [][]byte
	var err error
	if stereo {
		ch1 := chunk.Channels[1]
		if s.classifier.Classify(ch0, ch1) {
			// A silent second channel means an upmixed mono microphone;
			// duplicating channel 0 keeps downstream fusion meaningful.
			ch1 = ch0
		}
		outL := s.resL.Process(ch0)
		outR := s.resR.Process(ch1)
		frames, err = s.framer.Push(outL, outR)
		s.emitDiagnostics(s.monitor.Observe(outL, outR, s.cfg.AudioSourceHint))
	} else {
		out := s.resL.Process(ch0)
		frames, err = s.framer.Push(out)
		s.emitDiagnostics(s.monitor.ObserveMono(out, s.cfg.AudioSourceHint))
	}
	if err != nil {
		return &CaptureError{SessionID: s.id, Op: "frame", Err: err}
	}

	for _, frame := range frames {
		if err := s.cfg.Sink(frame); err != nil {
			// Best-effort delivery; the transport accounts for its own
			// drops, here it only rates a debug line.
			s.log.Debug("frame not delivered", slog.String("reason", err.Error()))
		}
	}
	return nil
}

func (s *Session) emitDiagnostics(sample audio.DiagnosticsSample, ok bool) {
	if !ok {
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.FrameRMS.Record(context.Background(), sample.RMSLeft)
	}
	if s.cfg.OnDiagnostics != nil {
		s.cfg.OnDiagnostics(sample)
	}
}

func (s *Session) recordDrop() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordFrameDrop(context.Background(), "capture")
	}
}

// Drain waits, bounded by timeout, until the actor has consumed every queued
// chunk. Used on orderly shutdown so trailing audio is not cut off.
func (s *Session) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.queue) == 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return len(s.queue) == 0
}
