package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/hearhud/hudlink/internal/transport"
)

// StartConfig describes one relay session request.
type StartConfig struct {
	ServerIP     string
	ServerPort   int
	DeviceIDBase string
	Audio        transport.AudioDescriptor
}

// ControlEvent is one server-to-frontend control message observed after the
// session is ready.
type ControlEvent struct {
	Type    string
	Event   string
	Message string
	Bytes   int
}

// Connector is the frontend side of the control socket: it requests a
// session, waits for ready, and streams raw frames into the bridge. It runs
// no background goroutines; every method is driven by the caller.
type Connector struct {
	ws *websocket.Conn

	// ReadyTimeout bounds how long Start waits for the bridge's answer.
	ReadyTimeout time.Duration
}

// DialControl opens the control socket at url.
func DialControl(ctx context.Context, url string, httpClient *http.Client) (*Connector, error) {
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}
	return &Connector{ws: ws, ReadyTimeout: defaultReadyTimeout}, nil
}

// Start requests a session and blocks until the bridge answers ready.
// [ErrHandshakeTimeout] is returned when no answer arrives in time; the
// attempt is dead and the caller must call Start again to retry.
func (c *Connector) Start(ctx context.Context, cfg StartConfig) error {
	msg := controlMessage{
		V:            transport.ProtocolVersion,
		Type:         controlStart,
		ServerIP:     cfg.ServerIP,
		ServerPort:   cfg.ServerPort,
		DeviceIDBase: cfg.DeviceIDBase,
		Audio:        &cfg.Audio,
	}
	if err := c.write(ctx, msg); err != nil {
		return fmt.Errorf("send start: %w", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, c.ReadyTimeout)
	defer cancel()
	for {
		reply, err := c.next(readCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return ErrHandshakeTimeout
			}
			return err
		}
		switch reply.Type {
		case controlReady:
			return nil
		case controlError:
			return fmt.Errorf("relay: start rejected: %s", reply.Message)
		default:
			// Status noise between start and ready is legal; keep waiting.
		}
	}
}

// Forward sends one raw frame payload, mono or interleaved stereo, for the
// bridge to demultiplex.
func (c *Connector) Forward(ctx context.Context, payload []byte) error {
	return c.ws.Write(ctx, websocket.MessageBinary, payload)
}

// Stop ends the active session but keeps the control socket open.
func (c *Connector) Stop(ctx context.Context) error {
	return c.write(ctx, controlMessage{V: transport.ProtocolVersion, Type: controlStop})
}

// NextEvent reads one control message, typically a status anomaly report.
func (c *Connector) NextEvent(ctx context.Context) (ControlEvent, error) {
	msg, err := c.next(ctx)
	if err != nil {
		return ControlEvent{}, err
	}
	return ControlEvent{
		Type:    msg.Type,
		Event:   msg.Event,
		Message: msg.Message,
		Bytes:   msg.Bytes,
	}, nil
}

// Close tears the control socket down.
func (c *Connector) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "done")
}

func (c *Connector) write(ctx context.Context, msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// next reads text messages until one parses as a control message.
func (c *Connector) next(ctx context.Context) (controlMessage, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return controlMessage{}, err
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := parseControl(data)
		if err != nil {
			continue
		}
		return msg, nil
	}
}
