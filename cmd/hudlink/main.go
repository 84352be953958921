// Command hudlink is the client connectivity daemon for the hearing-assist
// HUD: it captures PCM audio, frames it for the wire, and keeps the
// dual-channel websocket link to the processing server alive. It can also
// host the relay bridge for devices that cannot run the client natively.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hearhud/hudlink/internal/config"
	"github.com/hearhud/hudlink/internal/health"
	"github.com/hearhud/hudlink/internal/observe"
	"github.com/hearhud/hudlink/internal/pipeline"
	"github.com/hearhud/hudlink/internal/relay"
	"github.com/hearhud/hudlink/internal/transport"
	"github.com/hearhud/hudlink/pkg/audio"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	captureStdin := flag.Bool("stdin", false, "read s16le PCM capture audio from stdin")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hudlink: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hudlink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("hudlink starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Transport client ──────────────────────────────────────────────────────
	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = uuid.NewString()
		slog.Info("no device id configured, generated one", "device_id", deviceID)
	}

	client, err := transport.NewClient(transport.Config{
		DeviceID:  deviceID,
		Role:      string(cfg.Device.Role),
		FWVersion: cfg.Device.FWVersion,
		Audio: transport.AudioDescriptor{
			Format:       transport.FormatPCMS16LE,
			SampleRateHz: cfg.Audio.SampleRateHz,
			Channels:     cfg.Audio.Channels,
			FrameMs:      cfg.Audio.FrameMs,
		},
		BackoffBase:   time.Duration(cfg.Transport.BackoffBaseMs) * time.Millisecond,
		BackoffCap:    time.Duration(cfg.Transport.BackoffCapMs) * time.Millisecond,
		BackoffMaxExp: cfg.Transport.BackoffMaxExp,
		OnMessage:     dispatchServerMessage,
		OnFullyConnected: func() {
			slog.Info("transport fully connected", "server", cfg.Transport.BaseURL)
		},
		Metrics: metrics,
		Log:     logger,
	})
	if err != nil {
		slog.Error("failed to create transport client", "err", err)
		return 1
	}
	client.Connect(cfg.Transport.BaseURL)
	defer client.Disconnect()

	// ── Capture pipeline ──────────────────────────────────────────────────────
	sess, err := pipeline.NewSession(pipeline.Config{
		NativeSampleRate: cfg.Audio.NativeSampleRateHz,
		Channels:         cfg.Audio.Channels,
		TargetSampleRate: cfg.Audio.SampleRateHz,
		FrameMs:          cfg.Audio.FrameMs,
		AudioSourceHint:  cfg.Audio.SourceHint,
		Sink: func(frame []byte) error {
			err := client.SendFrame(frame)
			// Expected while the link is down or stalled; the frame is
			// dropped and capture keeps running.
			if errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrFrameDropped) {
				return nil
			}
			return err
		},
		OnDiagnostics: func(d audio.DiagnosticsSample) {
			slog.Debug("audio diagnostics",
				"source", d.ActiveSourceID,
				"rms_left", d.RMSLeft,
				"rms_right", d.RMSRight,
				"correlation", d.Correlation,
				"stereo_diff", d.StereoDiffRatio,
			)
		},
		Metrics: metrics,
		Log:     logger,
	})
	if err != nil {
		slog.Error("failed to create capture session", "err", err)
		return 1
	}
	defer sess.Close()

	// ── HTTP surface: health, metrics, relay bridge ───────────────────────────
	mux := http.NewServeMux()

	checks := []health.Checker{health.TransportChecker(client.Snapshot)}
	health.New(checks...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	if cfg.Relay.Enabled {
		bridge := relay.NewBridge(
			relay.WithLogger(logger),
			relay.WithMetrics(metrics),
			relay.WithFirmwareVersion(cfg.Device.FWVersion),
			relay.WithReadyTimeout(time.Duration(cfg.Relay.ReadyTimeoutMs)*time.Millisecond),
			relay.WithBackoff(
				time.Duration(cfg.Transport.BackoffBaseMs)*time.Millisecond,
				time.Duration(cfg.Transport.BackoffCapMs)*time.Millisecond,
				cfg.Transport.BackoffMaxExp,
			),
		)
		mux.Handle(cfg.Relay.ControlPath, bridge.Handler())
		slog.Info("relay bridge enabled", "control_path", cfg.Relay.ControlPath)
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Changed() {
			return
		}
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "log_level", d.NewLogLevel)
		}
		if d.BaseURLChanged {
			slog.Info("server url changed, reconnecting", "base_url", d.NewBaseURL)
			client.Connect(d.NewBaseURL)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return sess.Run(gctx)
	})

	if *captureStdin {
		g.Go(func() error {
			return readCapture(gctx, os.Stdin, sess, cfg.Audio)
		})
	}

	slog.Info("hudlink ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// readCapture feeds native-rate s16le PCM from r into the capture session in
// 20 ms chunks until EOF or cancellation. This is the capture path used when
// audio is piped in (e.g. from arecord or a USB bridge).
func readCapture(ctx context.Context, r io.Reader, sess *pipeline.Session, ac config.AudioConfig) error {
	chunkBytes := ac.NativeSampleRateHz * ac.FrameMs / 1000 * 2 * ac.Channels
	buf := make([]byte, chunkBytes)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Info("capture input closed")
				return nil
			}
			return fmt.Errorf("read capture input: %w", err)
		}

		var chunk pipeline.Chunk
		if ac.Channels == 2 {
			left, right := audio.DeinterleaveStereo(buf)
			chunk.Channels = [][]float64{left, right}
		} else {
			chunk.Channels = [][]float64{audio.DecodeSamples(buf)}
		}
		if err := sess.Push(chunk); err != nil {
			return fmt.Errorf("push capture chunk: %w", err)
		}
	}
}

// dispatchServerMessage logs routed server messages. Rendering surfaces
// subscribe through their own callbacks; the daemon only records traffic.
func dispatchServerMessage(msg transport.Message) {
	switch msg.Type {
	case "error":
		slog.Warn("server error message", "channel", msg.Channel, "payload", string(msg.Raw))
	case "partial", "final":
		slog.Debug("transcript message", "channel", msg.Channel, "type", msg.Type)
	default:
		slog.Debug("server message", "channel", msg.Channel, "type", msg.Type)
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
