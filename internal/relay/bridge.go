package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/hearhud/hudlink/internal/observe"
	"github.com/hearhud/hudlink/internal/transport"
)

const defaultReadyTimeout = 8 * time.Second

// ErrHandshakeTimeout reports that the relay did not become ready before the
// deadline. It is fatal to that attempt; callers retry explicitly, the relay
// never loops on its own.
var ErrHandshakeTimeout = errors.New("relay: ready not received before timeout")

// Bridge hosts the control socket and fans incoming frames out to the
// role-addressed upstream connections. One control connection drives at most
// one active session; a new start supersedes the previous session.
type Bridge struct {
	fwVersion     string
	readyTimeout  time.Duration
	backoffBase   time.Duration
	backoffCap    time.Duration
	backoffMaxExp uint
	httpClient    *http.Client
	metrics       *observe.Metrics
	log           *slog.Logger
}

// Option configures a [Bridge].
type Option func(*Bridge)

// WithLogger overrides the bridge logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// WithMetrics wires bridge instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithHTTPClient overrides the client used for upstream websocket handshakes.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) { b.httpClient = c }
}

// WithReadyTimeout bounds how long a start waits for both upstream roles.
func WithReadyTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.readyTimeout = d }
}

// WithFirmwareVersion sets the fwVersion reported in upstream hellos.
func WithFirmwareVersion(v string) Option {
	return func(b *Bridge) { b.fwVersion = v }
}

// WithBackoff tunes the upstream reconnect delay curve.
func WithBackoff(base, maxDelay time.Duration, maxExp uint) Option {
	return func(b *Bridge) {
		b.backoffBase = base
		b.backoffCap = maxDelay
		b.backoffMaxExp = maxExp
	}
}

// NewBridge returns a Bridge with the given options applied.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		readyTimeout:  defaultReadyTimeout,
		backoffBase:   500 * time.Millisecond,
		backoffCap:    5 * time.Second,
		backoffMaxExp: 4,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(slog.String("component", "relay"))
	return b
}

// Handler returns the HTTP handler for the control endpoint.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			b.log.Warn("control accept failed", slog.String("error", err.Error()))
			return
		}
		defer conn.CloseNow()
		b.serveControl(r.Context(), conn)
	})
}

// session is one active relay: two running role senders plus the frame
// geometry negotiated in start.
type session struct {
	cancel  context.CancelFunc
	senders map[string]*roleSender
	mono    int
	ready   bool
}

func (s *session) stop() {
	if s != nil {
		s.cancel()
	}
}

// serveControl runs the read loop of one control connection. All writes back
// to the control socket happen from this goroutine.
func (b *Bridge) serveControl(ctx context.Context, conn *websocket.Conn) {
	var sess *session
	defer sess.stop()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageText:
			sess = b.handleControl(ctx, conn, sess, data)
		case websocket.MessageBinary:
			b.handleFrame(conn, sess, data)
		}
	}
}

// handleControl processes one text message and returns the (possibly
// replaced) session.
func (b *Bridge) handleControl(ctx context.Context, conn *websocket.Conn, sess *session, data []byte) *session {
	msg, err := parseControl(data)
	if err != nil {
		b.log.Warn("dropping malformed control message", slog.String("error", err.Error()))
		b.recordAnomaly("malformed_control")
		b.writeControl(ctx, conn, controlMessage{V: transport.ProtocolVersion, Type: controlStatus, Event: "malformed_control"})
		return sess
	}

	switch msg.Type {
	case controlStart:
		if err := validateStart(msg); err != nil {
			b.log.Warn("rejecting start", slog.String("error", err.Error()))
			b.writeControl(ctx, conn, controlMessage{V: transport.ProtocolVersion, Type: controlError, Message: err.Error()})
			return sess
		}
		sess.stop()
		return b.startSession(ctx, conn, msg)

	case controlStop:
		sess.stop()
		b.log.Info("session stopped")
		return nil

	default:
		b.log.Debug("ignoring control message", slog.String("type", msg.Type))
		return sess
	}
}

// startSession spins up both role senders and answers ready once both have an
// open upstream socket. A timeout tears the session down again; the caller
// decides whether to retry.
func (b *Bridge) startSession(ctx context.Context, conn *websocket.Conn, msg controlMessage) *session {
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		cancel: cancel,
		mono:   monoFrameBytes(*msg.Audio),
		senders: map[string]*roleSender{
			RoleLeft:  newRoleSender(msg, RoleLeft, b),
			RoleRight: newRoleSender(msg, RoleRight, b),
		},
	}
	for _, s := range sess.senders {
		go s.run(sessCtx)
	}

	b.log.Info("session starting",
		slog.String("server", msg.ServerIP),
		slog.Int("port", msg.ServerPort),
		slog.String("device_id_base", msg.DeviceIDBase),
	)

	if err := b.awaitUpstreams(ctx, sess); err != nil {
		sess.stop()
		b.log.Warn("session failed to become ready", slog.String("error", err.Error()))
		b.writeControl(ctx, conn, controlMessage{V: transport.ProtocolVersion, Type: controlError, Message: err.Error()})
		return nil
	}

	sess.ready = true
	b.writeControl(ctx, conn, controlMessage{V: transport.ProtocolVersion, Type: controlReady})
	b.log.Info("session ready")
	return sess
}

// awaitUpstreams blocks until every role sender has connected once, bounded
// by the ready timeout.
func (b *Bridge) awaitUpstreams(ctx context.Context, sess *session) error {
	timer := time.NewTimer(b.readyTimeout)
	defer timer.Stop()
	for _, s := range sess.senders {
		select {
		case <-s.connected:
		case <-timer.C:
			return ErrHandshakeTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// handleFrame demultiplexes one binary payload into the role queues.
func (b *Bridge) handleFrame(conn *websocket.Conn, sess *session, payload []byte) {
	if sess == nil || !sess.ready {
		b.recordAnomaly("frame_before_ready")
		b.writeControl(context.Background(), conn, controlMessage{V: transport.ProtocolVersion, Type: controlStatus, Event: "frame_before_ready"})
		return
	}

	left, right, err := splitFrame(payload, sess.mono)
	if err != nil {
		b.log.Warn("dropping frame", slog.String("error", err.Error()))
		b.recordAnomaly("unexpected_frame_bytes")
		b.writeControl(context.Background(), conn, controlMessage{
			V:     transport.ProtocolVersion,
			Type:  controlStatus,
			Event: "unexpected_frame_bytes",
			Bytes: len(payload),
		})
		return
	}

	sess.senders[RoleLeft].enqueue(left)
	sess.senders[RoleRight].enqueue(right)
}

func (b *Bridge) recordAnomaly(kind string) {
	if b.metrics != nil {
		b.metrics.RecordAnomaly(context.Background(), kind)
	}
}

// writeControl sends one control message back to the frontend. Failures are
// logged only; the read loop notices a dead socket on its own.
func (b *Bridge) writeControl(ctx context.Context, conn *websocket.Conn, msg controlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("marshal control message", slog.String("error", err.Error()))
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, senderWriteWait)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		b.log.Warn("control write failed", slog.String("error", err.Error()))
	}
}
