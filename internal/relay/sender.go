package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/hearhud/hudlink/internal/observe"
	"github.com/hearhud/hudlink/internal/transport"
)

const (
	senderQueueSize   = 16
	senderDialTimeout = 5 * time.Second
	senderWriteWait   = 5 * time.Second
)

// roleSender owns one upstream role connection. It dials the ingest endpoint,
// performs the hello handshake, and forwards queued frames. The queue is
// bounded and drop-oldest: a stalled upstream costs old audio, never capture
// throughput. On reconnect the queue is drained first so the server does not
// receive a burst of stale frames.
type roleSender struct {
	role  string
	url   string
	hello transport.Hello

	queue     chan []byte
	connected chan struct{}

	backoffBase   time.Duration
	backoffCap    time.Duration
	backoffMaxExp uint

	httpClient *http.Client
	metrics    *observe.Metrics
	log        *slog.Logger
}

// newRoleSender builds a sender for one role of a start request. The device
// identity is the base with the role suffixed, so the server sees two
// distinct devices that pair up by naming convention.
func newRoleSender(msg controlMessage, role string, b *Bridge) *roleSender {
	deviceID := msg.DeviceIDBase + "-" + role
	mono := *msg.Audio
	mono.Channels = 1

	u := fmt.Sprintf("ws://%s:%d/esp32/audio?deviceId=%s&role=%s",
		msg.ServerIP, msg.ServerPort, url.QueryEscape(deviceID), role)

	return &roleSender{
		role:          role,
		url:           u,
		hello:         transport.NewHello(deviceID, role, b.fwVersion, mono),
		queue:         make(chan []byte, senderQueueSize),
		connected:     make(chan struct{}),
		backoffBase:   b.backoffBase,
		backoffCap:    b.backoffCap,
		backoffMaxExp: b.backoffMaxExp,
		httpClient:    b.httpClient,
		metrics:       b.metrics,
		log:           b.log.With(slog.String("role", role)),
	}
}

// enqueue hands one frame to the sender without blocking. When the queue is
// full the oldest frame is discarded to make room.
func (s *roleSender) enqueue(frame []byte) {
	for {
		select {
		case s.queue <- frame:
			return
		default:
		}
		select {
		case <-s.queue:
			if s.metrics != nil {
				s.metrics.RecordFrameDrop(context.Background(), "relay")
			}
		default:
		}
	}
}

// run dials and forwards until ctx is cancelled, reconnecting with the shared
// backoff curve on any failure.
func (s *roleSender) run(ctx context.Context) {
	var attempt uint
	for ctx.Err() == nil {
		ws, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := transport.BackoffDelay(attempt, s.backoffBase, s.backoffCap, s.backoffMaxExp)
			attempt++
			s.log.Warn("upstream dial failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			if s.metrics != nil {
				s.metrics.RecordReconnect(ctx, "relay")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		select {
		case <-s.connected:
		default:
			close(s.connected)
		}

		s.drainStale()
		s.forward(ctx, ws)
		_ = ws.CloseNow()
	}
}

// dial opens the upstream socket and sends the hello before anything else.
func (s *roleSender) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, senderDialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		HTTPClient: s.httpClient,
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(s.hello)
	if err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("marshal hello: %w", err)
	}
	writeCtx, cancelWrite := context.WithTimeout(ctx, senderWriteWait)
	defer cancelWrite()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return ws, nil
}

// drainStale discards frames queued while the upstream was down.
func (s *roleSender) drainStale() {
	drained := 0
	for {
		select {
		case <-s.queue:
			drained++
		default:
			if drained > 0 {
				s.log.Info("drained stale frames after reconnect", slog.Int("count", drained))
				if s.metrics != nil {
					for n := 0; n < drained; n++ {
						s.metrics.RecordFrameDrop(context.Background(), "relay-stale")
					}
				}
			}
			return
		}
	}
}

// forward pushes queued frames onto the socket until ctx ends or a write
// fails.
func (s *roleSender) forward(ctx context.Context, ws *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.queue:
			writeCtx, cancel := context.WithTimeout(ctx, senderWriteWait)
			err := ws.Write(writeCtx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("upstream write failed", slog.String("error", err.Error()))
				}
				return
			}
			if s.metrics != nil {
				s.metrics.RecordFrameSent(ctx, "relay-"+s.role, len(frame))
			}
		}
	}
}
