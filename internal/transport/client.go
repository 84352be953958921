package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hearhud/hudlink/internal/observe"
)

const (
	defaultBackoffBase   = 500 * time.Millisecond
	defaultBackoffCap    = 5 * time.Second
	defaultBackoffMaxExp = 4

	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrNotConnected is returned by SendFrame when the stt channel is not open.
var ErrNotConnected = errors.New("transport: stt channel not open")

// ErrFrameDropped is returned by SendFrame when the in-flight slot is
// occupied. A fresh frame supersedes a stale one, so callers should drop and
// move on rather than retry.
var ErrFrameDropped = errors.New("transport: frame dropped, send slot occupied")

// BackoffDelay computes the reconnect delay for the given attempt:
// base·2^min(attempt,maxExp), capped at max.
func BackoffDelay(attempt uint, base, max time.Duration, maxExp uint) time.Duration {
	exp := attempt
	if exp > maxExp {
		exp = maxExp
	}
	d := base << exp
	if d > max {
		d = max
	}
	return d
}

// Config configures a [Client].
type Config struct {
	// DeviceID identifies this client to the server. Required.
	DeviceID string

	// Role is the left/right pair role, empty for standalone clients.
	Role string

	// FWVersion is reported in the hello message.
	FWVersion string

	// Audio describes the frames this client will send on the stt channel.
	Audio AudioDescriptor

	// BackoffBase, BackoffCap, and BackoffMaxExp tune the reconnect delay
	// curve. Zero values select the defaults (500ms, 5s, 4).
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffMaxExp uint

	// OnMessage receives every routed server message. Called from the read
	// goroutine; implementations must not block.
	OnMessage func(Message)

	// OnFullyConnected fires each time both channels become open after a
	// period where they were not.
	OnFullyConnected func()

	// HTTPClient overrides the client used for the websocket handshake.
	HTTPClient *http.Client

	// Metrics receives transport instrumentation. Nil disables it.
	Metrics *observe.Metrics

	// Log overrides the logger. Nil selects slog.Default().
	Log *slog.Logger
}

// channelConn is one live websocket with its outbound frame slot.
type channelConn struct {
	ws     *websocket.Conn
	frames chan []byte
	done   chan struct{}
}

// Client maintains the two logical channels against the processing server.
// Both channels share one reconnect timer: a failure on either schedules a
// single delayed cycle that tears down and redials both together.
//
// All exported methods are safe for concurrent use.
type Client struct {
	cfg     Config
	log     *slog.Logger
	tracker *tracker

	mu            sync.Mutex
	baseURL       string
	shouldConnect bool
	attempt       uint
	retryTimer    *time.Timer
	conns         map[ChannelID]*channelConn
	gen           uint64
	fullyUp       bool
}

// NewClient validates cfg and returns an unconnected Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("transport: DeviceID is required")
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.BackoffMaxExp == 0 {
		cfg.BackoffMaxExp = defaultBackoffMaxExp
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		log:     log.With(slog.String("component", "transport")),
		tracker: newTracker(),
		conns:   make(map[ChannelID]*channelConn, len(channelIDs)),
	}, nil
}

// Connect sets the connection intent and opens both channels. Calling it
// while already connected cycles both channels against the new base URL.
func (c *Client) Connect(baseURL string) {
	c.mu.Lock()
	c.baseURL = baseURL
	c.shouldConnect = true
	c.attempt = 0
	c.cancelRetryLocked()
	c.closeConnsLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.log.Info("connecting", slog.String("base_url", baseURL))
	c.openBoth(gen)
}

// Disconnect clears the connection intent, cancels any pending reconnect, and
// closes both channels. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	already := !c.shouldConnect && len(c.conns) == 0 && c.retryTimer == nil
	c.shouldConnect = false
	c.fullyUp = false
	c.cancelRetryLocked()
	c.closeConnsLocked()
	c.gen++
	// A channel mid-dial is not in c.conns yet and its aborted dial will
	// bail on the generation guard, so force every tracker entry down here.
	for _, id := range channelIDs {
		c.tracker.set(id, StatusDisconnected, c.attempt)
	}
	c.mu.Unlock()

	if !already {
		c.log.Info("disconnected")
	}
}

// SendFrame hands one binary audio frame to the stt channel. The handoff is
// non-blocking: when the single in-flight slot is occupied or the channel is
// down, the frame is dropped and an error describes why.
func (c *Client) SendFrame(frame []byte) error {
	c.mu.Lock()
	conn := c.conns[ChannelSTT]
	c.mu.Unlock()

	if conn == nil {
		c.recordDrop()
		return ErrNotConnected
	}
	select {
	case conn.frames <- frame:
		return nil
	default:
		c.recordDrop()
		return ErrFrameDropped
	}
}

// Snapshot returns the current connectivity state of both channels.
func (c *Client) Snapshot() ConnectivitySnapshot {
	return c.tracker.snapshot()
}

// Subscribe returns a channel of connectivity snapshots, one per transition,
// and a cancel func that releases the subscription.
func (c *Client) Subscribe() (<-chan ConnectivitySnapshot, func()) {
	return c.tracker.subscribe()
}

func (c *Client) recordDrop() {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordFrameDrop(context.Background(), "transport")
	}
}

// cancelRetryLocked stops a pending reconnect timer. Caller holds c.mu.
func (c *Client) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// closeConnsLocked tears down every live connection. Caller holds c.mu.
func (c *Client) closeConnsLocked() {
	for id, conn := range c.conns {
		close(conn.done)
		_ = conn.ws.CloseNow()
		delete(c.conns, id)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ChannelOpen(context.Background(), string(id), -1)
		}
		c.tracker.set(id, StatusDisconnected, c.attempt)
	}
}

// openBoth dials both channels concurrently for the given generation.
func (c *Client) openBoth(gen uint64) {
	for _, id := range channelIDs {
		go c.openChannel(id, gen)
	}
}

// openChannel dials one channel, performs the hello handshake, and starts its
// read loop. Any failure routes through channelDown, which owns reconnect
// scheduling.
func (c *Client) openChannel(id ChannelID, gen uint64) {
	c.mu.Lock()
	if !c.shouldConnect || gen != c.gen {
		c.mu.Unlock()
		return
	}
	base := c.baseURL
	attempt := c.attempt
	c.mu.Unlock()

	c.tracker.set(id, StatusConnecting, attempt)
	start := time.Now()

	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	ws, _, err := websocket.Dial(dialCtx, base+"/"+string(id), &websocket.DialOptions{
		HTTPClient: c.cfg.HTTPClient,
	})
	cancel()
	if err != nil {
		c.log.Warn("dial failed",
			slog.String("channel", string(id)),
			slog.String("error", err.Error()),
		)
		c.channelDown(id, gen)
		return
	}

	if err := c.sendHandshake(ws, id); err != nil {
		c.log.Warn("handshake failed",
			slog.String("channel", string(id)),
			slog.String("error", err.Error()),
		)
		_ = ws.CloseNow()
		c.channelDown(id, gen)
		return
	}

	conn := &channelConn{
		ws:     ws,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if !c.shouldConnect || gen != c.gen {
		c.mu.Unlock()
		_ = ws.CloseNow()
		return
	}
	c.conns[id] = conn
	c.mu.Unlock()

	c.tracker.set(id, StatusOpen, attempt)
	if c.cfg.Metrics != nil {
		ctx := context.Background()
		c.cfg.Metrics.ChannelOpen(ctx, string(id), 1)
		c.cfg.Metrics.RecordConnect(ctx, string(id), time.Since(start))
	}
	c.log.Info("channel open", slog.String("channel", string(id)))
	c.onChannelOpen()

	go c.readLoop(id, conn, gen)
	if id == ChannelSTT {
		go c.writeLoop(conn, gen)
	}
}

// sendHandshake writes the hello message and, on the events channel, an
// immediate status request. Both precede any binary traffic.
func (c *Client) sendHandshake(ws *websocket.Conn, id ChannelID) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	hello := NewHello(c.cfg.DeviceID, c.cfg.Role, c.cfg.FWVersion, c.cfg.Audio)
	if err := writeJSON(ctx, ws, hello); err != nil {
		return err
	}
	if id == ChannelEvents {
		return writeJSON(ctx, ws, newStatusRequest())
	}
	return nil
}

// onChannelOpen resets the backoff curve and fires the fully-connected
// callback when this open completes the pair.
func (c *Client) onChannelOpen() {
	if !c.tracker.fullyConnected() {
		return
	}

	c.mu.Lock()
	c.attempt = 0
	c.cancelRetryLocked()
	fire := !c.fullyUp
	c.fullyUp = true
	c.mu.Unlock()

	if fire {
		c.log.Info("fully connected")
		if c.cfg.OnFullyConnected != nil {
			c.cfg.OnFullyConnected()
		}
	}
}

// channelDown marks one channel disconnected and schedules a shared reconnect
// cycle. Only the first failure of a cycle arms the timer; a concurrent
// failure on the sibling channel piggybacks on it.
func (c *Client) channelDown(id ChannelID, gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.shouldConnect {
		c.mu.Unlock()
		return
	}
	if conn, ok := c.conns[id]; ok {
		close(conn.done)
		_ = conn.ws.CloseNow()
		delete(c.conns, id)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ChannelOpen(context.Background(), string(id), -1)
		}
	}
	c.fullyUp = false
	c.tracker.set(id, StatusDisconnected, c.attempt)

	if c.retryTimer == nil {
		delay := BackoffDelay(c.attempt, c.cfg.BackoffBase, c.cfg.BackoffCap, c.cfg.BackoffMaxExp)
		attempt := c.attempt
		c.attempt++
		c.retryTimer = time.AfterFunc(delay, c.retryFire)
		c.log.Info("reconnect scheduled",
			slog.String("channel", string(id)),
			slog.Uint64("attempt", uint64(attempt)),
			slog.Duration("delay", delay),
		)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordReconnect(context.Background(), "client")
		}
	}
	c.mu.Unlock()
}

// retryFire runs when the shared reconnect timer elapses. The connection
// intent is re-read here, not captured at scheduling time, so a Disconnect
// issued during the delay wins.
func (c *Client) retryFire() {
	c.mu.Lock()
	c.retryTimer = nil
	if !c.shouldConnect {
		c.mu.Unlock()
		return
	}
	c.closeConnsLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.openBoth(gen)
}

// readLoop consumes server messages until the socket errors. A read error is
// indistinguishable from a server-initiated close and both route to
// channelDown.
func (c *Client) readLoop(id ChannelID, conn *channelConn, gen uint64) {
	for {
		typ, data, err := conn.ws.Read(context.Background())
		if err != nil {
			select {
			case <-conn.done:
				// Deliberate teardown, not a failure.
			default:
				c.log.Warn("channel closed",
					slog.String("channel", string(id)),
					slog.String("error", err.Error()),
				)
				c.channelDown(id, gen)
			}
			return
		}
		if typ != websocket.MessageText {
			// The server never sends binary; ignore rather than fail.
			continue
		}
		msg, err := parseMessage(id, data)
		if err != nil {
			c.log.Warn("dropping malformed message",
				slog.String("channel", string(id)),
				slog.String("error", err.Error()),
			)
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.RecordAnomaly(context.Background(), "malformed_message")
			}
			continue
		}
		if !knownMessageType(id, msg.Type) {
			c.log.Debug("forwarding unknown message type",
				slog.String("channel", string(id)),
				slog.String("type", msg.Type),
			)
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msg)
		}
	}
}

// writeLoop drains the frame slot onto the stt socket.
func (c *Client) writeLoop(conn *channelConn, gen uint64) {
	for {
		select {
		case <-conn.done:
			return
		case frame := <-conn.frames:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := conn.ws.Write(ctx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				select {
				case <-conn.done:
				default:
					c.log.Warn("frame write failed", slog.String("error", err.Error()))
					c.channelDown(ChannelSTT, gen)
				}
				return
			}
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.RecordFrameSent(context.Background(), string(ChannelSTT), len(frame))
			}
		}
	}
}

// writeJSON marshals v and writes it as one text message.
func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
