// Package transport implements the hudlink client connectivity layer: two
// logical websocket channels (events and stt) against the processing server,
// the hello handshake, frame relay, and a shared reconnect-with-backoff state
// machine.
//
// Connection state is owned by the [Client] and exposed through snapshots and
// a subscription interface; callers observe state instead of reading ambient
// globals.
package transport

import (
	"sync"
	"time"
)

// ChannelID identifies one logical socket of the dual-channel client.
type ChannelID string

const (
	// ChannelEvents carries status, alarm, and UI placement messages.
	ChannelEvents ChannelID = "events"

	// ChannelSTT carries binary audio frames upstream and transcript
	// messages downstream.
	ChannelSTT ChannelID = "stt"
)

// channelIDs lists both channels in opening order.
var channelIDs = []ChannelID{ChannelEvents, ChannelSTT}

// ChannelStatus is the connection state of one logical channel.
type ChannelStatus int

const (
	StatusDisconnected ChannelStatus = iota
	StatusConnecting
	StatusOpen
)

// String returns the lower-case name of the status.
func (s ChannelStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// ChannelState is the tracked state of one logical channel.
type ChannelState struct {
	Status           ChannelStatus
	LastOpenedAt     time.Time
	ReconnectAttempt uint
}

// ConnectivitySnapshot is a point-in-time view of both channels.
// FullyConnected is derived: true only when every channel is Open.
type ConnectivitySnapshot struct {
	Channels       map[ChannelID]ChannelState
	FullyConnected bool
}

// tracker holds per-channel state and fans snapshots out to subscribers.
// Transitions are computed centrally so "both open" is a derived property of
// the state map rather than scattered boolean checks.
type tracker struct {
	mu       sync.Mutex
	channels map[ChannelID]ChannelState
	subs     map[int]chan ConnectivitySnapshot
	nextSub  int
	now      func() time.Time
}

func newTracker() *tracker {
	t := &tracker{
		channels: make(map[ChannelID]ChannelState, len(channelIDs)),
		subs:     make(map[int]chan ConnectivitySnapshot),
		now:      time.Now,
	}
	for _, id := range channelIDs {
		t.channels[id] = ChannelState{}
	}
	return t
}

// set transitions one channel and notifies subscribers. Setting the state a
// channel is already in is a no-op, so subscribers see one snapshot per
// transition.
func (t *tracker) set(id ChannelID, status ChannelStatus, attempt uint) {
	t.mu.Lock()
	st := t.channels[id]
	if st.Status == status && st.ReconnectAttempt == attempt {
		t.mu.Unlock()
		return
	}
	st.Status = status
	st.ReconnectAttempt = attempt
	if status == StatusOpen {
		st.LastOpenedAt = t.now()
	}
	t.channels[id] = st
	snap := t.snapshotLocked()
	subs := make([]chan ConnectivitySnapshot, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- snap:
		default:
			// Slow subscriber; drop the update rather than block transitions.
		}
	}
}

// fullyConnected reports whether every channel is Open.
func (t *tracker) fullyConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fullyConnectedLocked()
}

func (t *tracker) fullyConnectedLocked() bool {
	for _, st := range t.channels {
		if st.Status != StatusOpen {
			return false
		}
	}
	return true
}

// snapshot returns a deep copy of the current state.
func (t *tracker) snapshot() ConnectivitySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *tracker) snapshotLocked() ConnectivitySnapshot {
	channels := make(map[ChannelID]ChannelState, len(t.channels))
	for id, st := range t.channels {
		channels[id] = st
	}
	return ConnectivitySnapshot{
		Channels:       channels,
		FullyConnected: t.fullyConnectedLocked(),
	}
}

// subscribe registers a snapshot channel. The returned cancel func removes
// the subscription; calling it more than once is a no-op.
func (t *tracker) subscribe() (<-chan ConnectivitySnapshot, func()) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	ch := make(chan ConnectivitySnapshot, 8)
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
	return ch, cancel
}
