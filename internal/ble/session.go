package ble

import (
	"fmt"

	"github.com/chaz8081/blelink/internal/ble/profile"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle means no connection has been attempted yet.
	StateIdle State = iota
	// StateConnecting means a connect was requested and the topology is
	// still being discovered.
	StateConnecting
	// StateConnected means the session is ready for send and receive.
	StateConnected
	// StateDisconnected is terminal. A new selection creates a new Session.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Readiness selects when a connecting session becomes Connected.
type Readiness string

const (
	// ReadinessWrite marks the session ready as soon as the write
	// characteristic is classified, even if the read characteristic is
	// found later or never.
	ReadinessWrite Readiness = "write"
	// ReadinessStrict additionally waits for the read characteristic when
	// the profile declares one.
	ReadinessStrict Readiness = "strict"
)

// Session tracks one peripheral from selection to disconnect. It is owned by
// the Manager's event loop and is never touched from another goroutine.
type Session struct {
	gen     uint64
	addr    string
	name    string
	profile profile.Profile

	state      State
	linked     bool // hardware confirmed the connection
	writeFound bool
	readFound  bool
}

// SessionInfo is a read-only snapshot of a Session.
type SessionInfo struct {
	Address    string
	Name       string
	Family     string
	Generation uint64
	State      State
	WriteFound bool
	ReadFound  bool
}

func newSession(gen uint64, addr, name string, p profile.Profile) *Session {
	return &Session{gen: gen, addr: addr, name: name, profile: p, state: StateIdle}
}

// begin moves an idle session into Connecting.
func (s *Session) begin() bool {
	if s.state != StateIdle {
		return false
	}
	s.state = StateConnecting
	return true
}

// link records the hardware connect confirmation. Discovery results are only
// applied after it.
func (s *Session) link() bool {
	if s.state != StateConnecting || s.linked {
		return false
	}
	s.linked = true
	return true
}

// classify applies one discovered characteristic to the session. first is
// true the first time a role is found.
func (s *Session) classify(serviceUUID, charUUID string) (role profile.Role, first bool) {
	role = s.profile.Classify(serviceUUID, charUUID)
	switch role {
	case profile.RoleWrite:
		first = !s.writeFound
		s.writeFound = true
	case profile.RoleReadNotify:
		first = !s.readFound
		s.readFound = true
	}
	return role, first
}

// promote moves a connecting session to Connected once the readiness policy
// is met. It reports whether the transition happened.
func (s *Session) promote(policy Readiness) bool {
	if s.state != StateConnecting || !s.writeFound {
		return false
	}
	if policy == ReadinessStrict && s.profile.HasRead() && !s.readFound {
		return false
	}
	s.state = StateConnected
	return true
}

// end forces the session into Disconnected. It returns false when the
// session had already ended.
func (s *Session) end() bool {
	if s.state == StateDisconnected {
		return false
	}
	s.state = StateDisconnected
	return true
}

func (s *Session) active() bool {
	return s.state == StateConnecting || s.state == StateConnected
}

func (s *Session) canSend() bool {
	return s.state == StateConnected && s.writeFound
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		Address:    s.addr,
		Name:       s.name,
		Family:     s.profile.Family,
		Generation: s.gen,
		State:      s.state,
		WriteFound: s.writeFound,
		ReadFound:  s.readFound,
	}
}
