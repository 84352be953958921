package transport

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProtocolVersion is the hudlink wire protocol version carried in every
// client-originated JSON message.
const ProtocolVersion = 1

// FormatPCMS16LE identifies signed 16-bit little-endian PCM, the only audio
// format the protocol currently carries.
const FormatPCMS16LE = "pcm_s16le"

// AudioDescriptor declares the audio format a client will send on the stt
// channel. It is embedded in the hello message so the server never has to
// sniff frame contents.
type AudioDescriptor struct {
	Format       string `json:"format"`
	SampleRateHz int    `json:"sampleRateHz"`
	Channels     int    `json:"channels"`
	FrameMs      int    `json:"frameMs"`
}

// Hello is the first message on every channel. The server rejects binary
// frames from connections that have not introduced themselves.
type Hello struct {
	V         int             `json:"v"`
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId"`
	Role      string          `json:"role,omitempty"`
	FWVersion string          `json:"fwVersion,omitempty"`
	Audio     AudioDescriptor `json:"audio"`
}

// NewHello builds a hello message for the given identity. Role is empty for
// clients that are not part of a left/right pair.
func NewHello(deviceID, role, fwVersion string, audio AudioDescriptor) Hello {
	return Hello{
		V:         ProtocolVersion,
		Type:      "hello",
		DeviceID:  deviceID,
		Role:      role,
		FWVersion: fwVersion,
		Audio:     audio,
	}
}

// statusRequest asks the server for an immediate status report. Sent on the
// events channel right after hello so the client starts from known state.
type statusRequest struct {
	V    int    `json:"v"`
	Type string `json:"type"`
}

func newStatusRequest() statusRequest {
	return statusRequest{V: ProtocolVersion, Type: "status.request"}
}

// Message is one server-originated control message. The transport routes by
// Type and hands the raw payload to the application untouched; payload
// semantics belong to the layer above.
type Message struct {
	Channel ChannelID
	Type    string
	Raw     json.RawMessage
}

// parseMessage extracts the type discriminator from a server text message.
func parseMessage(channel ChannelID, data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Message{}, fmt.Errorf("malformed %s message: %w", channel, err)
	}
	if envelope.Type == "" {
		return Message{}, fmt.Errorf("%s message without type discriminator", channel)
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Message{Channel: channel, Type: envelope.Type, Raw: raw}, nil
}

// knownMessageType reports whether the type is one the protocol documents for
// the channel. Unknown types are still forwarded; this only drives logging so
// new server-side types show up in diagnostics instead of disappearing.
func knownMessageType(channel ChannelID, typ string) bool {
	switch channel {
	case ChannelEvents:
		return typ == "status" ||
			typ == "direction.ui" ||
			typ == "alert.keyword" ||
			strings.HasPrefix(typ, "alarm.")
	case ChannelSTT:
		switch typ {
		case "status", "error", "partial", "final":
			return true
		}
	}
	return false
}
