// Package hotkey provides global hotkeys using gohook. Each binding maps a
// key combo to an action, standing in for the scan, send and disconnect
// buttons of a graphical front end.
package hotkey

import (
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// Action is what a hotkey asks the application to do.
type Action int

const (
	// ActionScan toggles scanning.
	ActionScan Action = iota
	// ActionSend sends the configured payload.
	ActionSend
	// ActionDisconnect ends the active session.
	ActionDisconnect
)

func (a Action) String() string {
	switch a {
	case ActionScan:
		return "scan"
	case ActionSend:
		return "send"
	case ActionDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Binding maps a key combo to an action.
// Keys should be lowercase key names (e.g., ["ctrl", "shift", "s"]).
type Binding struct {
	Action Action
	Keys   []string
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Action Action
}

// Listener watches the global keyboard for its bindings.
type Listener struct {
	bindings []Binding
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

// NewListener creates a Listener for the given bindings. Bindings without
// keys are dropped.
func NewListener(bindings []Binding) *Listener {
	l := &Listener{
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
	for _, b := range bindings {
		if len(b.Keys) > 0 {
			l.bindings = append(l.bindings, b)
		}
	}
	return l
}

// Bindings returns the active bindings.
func (l *Listener) Bindings() []Binding {
	return l.bindings
}

// Describe renders the bindings for the startup banner, e.g.
// "scan=ctrl+shift+s send=ctrl+shift+b".
func (l *Listener) Describe() string {
	parts := make([]string, 0, len(l.bindings))
	for _, b := range l.bindings {
		parts = append(parts, b.Action.String()+"="+strings.Join(b.Keys, "+"))
	}
	return strings.Join(parts, " ")
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkeys.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, b := range l.bindings {
		action := b.Action
		hook.Register(hook.KeyDown, b.Keys, func(e hook.Event) {
			l.emit(action)
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// emit queues an event without blocking the hook goroutine.
func (l *Listener) emit(a Action) {
	select {
	case l.ch <- Event{Action: a}:
	default: // don't block if channel is full
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
