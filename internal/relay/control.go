// Package relay bridges a single local capture session to two role-addressed
// upstream connections against the processing server's per-device ingest
// endpoint. It exists for capture devices that cannot run the full client
// natively: a thin frontend opens the bridge's control socket, streams raw
// frames into it, and the bridge fans them out as left/right mono streams.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/hearhud/hudlink/internal/transport"
)

// Control message types exchanged on the bridge's control socket.
const (
	controlStart  = "start"
	controlStop   = "stop"
	controlReady  = "ready"
	controlStatus = "status"
	controlError  = "error"
)

// Role names for the upstream pair.
const (
	RoleLeft  = "left"
	RoleRight = "right"
)

// controlMessage is the envelope for every text message on the control
// socket, in both directions. Fields beyond V and Type are populated
// depending on Type.
type controlMessage struct {
	V    int    `json:"v,omitempty"`
	Type string `json:"type"`

	// start fields.
	ServerIP     string                     `json:"serverIp,omitempty"`
	ServerPort   int                        `json:"serverPort,omitempty"`
	DeviceIDBase string                     `json:"deviceIdBase,omitempty"`
	Audio        *transport.AudioDescriptor `json:"audio,omitempty"`

	// status fields.
	Event string `json:"event,omitempty"`
	Bytes int    `json:"bytes,omitempty"`

	// error fields.
	Message string `json:"message,omitempty"`
}

// parseControl decodes one control-socket text message.
func parseControl(data []byte) (controlMessage, error) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return controlMessage{}, fmt.Errorf("malformed control message: %w", err)
	}
	if msg.Type == "" {
		return controlMessage{}, fmt.Errorf("control message without type discriminator")
	}
	return msg, nil
}

// validateStart checks the fields a start message must carry.
func validateStart(msg controlMessage) error {
	if msg.ServerIP == "" {
		return fmt.Errorf("start without serverIp")
	}
	if msg.ServerPort <= 0 || msg.ServerPort > 65535 {
		return fmt.Errorf("start with invalid serverPort %d", msg.ServerPort)
	}
	if msg.DeviceIDBase == "" {
		return fmt.Errorf("start without deviceIdBase")
	}
	if msg.Audio == nil {
		return fmt.Errorf("start without audio descriptor")
	}
	if msg.Audio.SampleRateHz <= 0 || msg.Audio.FrameMs <= 0 {
		return fmt.Errorf("start with invalid audio descriptor %+v", *msg.Audio)
	}
	return nil
}

// monoFrameBytes is the payload size of one mono frame for the descriptor:
// sampleRateHz · frameMs / 1000 samples at two bytes each.
func monoFrameBytes(audio transport.AudioDescriptor) int {
	return audio.SampleRateHz * audio.FrameMs / 1000 * 2
}

// splitFrame demultiplexes one binary payload by size. A stereo payload is
// split at the midpoint, a mono payload is duplicated to both roles, and any
// other size is rejected.
func splitFrame(payload []byte, mono int) (left, right []byte, err error) {
	switch len(payload) {
	case 2 * mono:
		return payload[:mono], payload[mono:], nil
	case mono:
		return payload, payload, nil
	default:
		return nil, nil, fmt.Errorf("unexpected frame size %d bytes, want %d or %d", len(payload), mono, 2*mono)
	}
}
