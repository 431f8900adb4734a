// Package monitor streams the connection manager's notifications to
// websocket clients.
package monitor

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
)

// EventType classifies a manager notification.
type EventType string

const (
	EventPeripheralDiscovered EventType = "peripheral_discovered"
	EventConnected            EventType = "connected"
	EventDisconnected         EventType = "disconnected"
	EventDataSent             EventType = "data_sent"
	EventDataReceived         EventType = "data_received"
	EventUnrecognizedDevice   EventType = "unrecognized_device"
)

// Event is the JSON envelope sent to websocket clients. Payload bytes are
// hex encoded.
type Event struct {
	Type           EventType `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Address        string    `json:"address,omitempty"`
	Name           string    `json:"name,omitempty"`
	Characteristic string    `json:"characteristic,omitempty"`
	Data           string    `json:"data,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Bus fans events out to every subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBus constructs a ready Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a client. The returned function unsubscribes and
// closes the channel; it must be called when the client goes away.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 64)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// Publish sends an event to all current subscribers. Slow consumers whose
// buffer is full miss the event so the manager's event loop never stalls.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Observer returns a ble.Observer that publishes every notification.
func (b *Bus) Observer() ble.Observer {
	return ble.ObserverFuncs{
		PeripheralDiscovered: func(addr, name string) {
			b.Publish(Event{Type: EventPeripheralDiscovered, Address: addr, Name: name})
		},
		Connected: func(name, addr string) {
			b.Publish(Event{Type: EventConnected, Address: addr, Name: name})
		},
		Disconnected: func() {
			b.Publish(Event{Type: EventDisconnected})
		},
		DataSent: func(charUUID string, data []byte) {
			b.Publish(Event{Type: EventDataSent, Characteristic: charUUID, Data: hex.EncodeToString(data)})
		},
		DataReceived: func(charUUID string, data []byte) {
			b.Publish(Event{Type: EventDataReceived, Characteristic: charUUID, Data: hex.EncodeToString(data)})
		},
		UnrecognizedDevice: func(name string) {
			b.Publish(Event{Type: EventUnrecognizedDevice, Name: name})
		},
	}
}
