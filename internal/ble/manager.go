package ble

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chaz8081/blelink/internal/ble/profile"
	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// Options configures the Manager behavior.
type Options struct {
	ScanFilter        []string      // service UUIDs passed to Radio.Scan
	ScanTimeout       time.Duration // auto-stop a scan after this long; 0 scans until stopped
	Readiness         Readiness     // when a session becomes Connected
	WriteWithResponse bool          // request write acknowledgements from the peripheral
	QueueSize         int           // depth of the event queue
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Readiness:         ReadinessWrite,
		WriteWithResponse: true,
		QueueSize:         256,
	}
}

// Peripheral is a peripheral recorded by the current scan cycle.
type Peripheral struct {
	Address string
	Name    string
}

// Status is a snapshot of the manager.
type Status struct {
	Scanning    bool
	Peripherals []Peripheral // sorted by address
	Session     *SessionInfo // nil when no session is active
}

// Manager is the central role. It owns scanning, the set of discovered
// peripherals and at most one active Session.
//
// Caller operations and radio callbacks are turned into events and applied
// one at a time by a single event loop goroutine. Caller operations wait only
// for their event to be applied, never for the radio.
type Manager struct {
	radio    Radio
	registry *profile.Registry
	observer Observer
	opts     Options

	events    chan event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Owned by the event loop.
	scanning    bool
	scanCycle   uint64
	scanTimer   *time.Timer
	peripherals map[string]Peripheral
	session     *Session
	gen         uint64
}

// NewManager creates a Manager and starts its event loop. A nil registry
// uses profile.DefaultRegistry; a nil observer discards notifications.
// Call Close when done.
func NewManager(radio Radio, registry *profile.Registry, observer Observer, opts Options) *Manager {
	if registry == nil {
		registry = profile.DefaultRegistry()
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Readiness == "" {
		opts.Readiness = ReadinessWrite
	}
	m := &Manager{
		radio:       radio,
		registry:    registry,
		observer:    observer,
		opts:        opts,
		events:      make(chan event, opts.QueueSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		peripherals: make(map[string]Peripheral),
	}
	go m.loop()
	return m
}

// StartScan clears the discovered peripherals, tears down any active
// session and starts scanning. It is a no-op while already scanning.
func (m *Manager) StartScan() error {
	return m.do(m.startScan)
}

// StopScan stops scanning. Discovered peripherals are kept.
func (m *Manager) StopScan() error {
	return m.do(func() error {
		m.stopScan("requested")
		return nil
	})
}

// ToggleScan stops an in-progress scan or starts a new one.
func (m *Manager) ToggleScan() error {
	return m.do(func() error {
		if m.scanning {
			m.stopScan("requested")
			return nil
		}
		return m.startScan()
	})
}

// SelectPeripheral connects to a peripheral recorded by the current scan
// cycle, replacing any active session.
func (m *Manager) SelectPeripheral(addr string) error {
	return m.do(func() error {
		return m.selectPeripheral(addr)
	})
}

// Send writes data to the active session's write characteristic. An empty
// payload sends protocol.DefaultPayload. OnDataSent fires once the radio
// confirms the write.
func (m *Manager) Send(data []byte) error {
	if len(data) == 0 {
		data = protocol.DefaultPayload()
	}
	if len(data) > protocol.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(data), protocol.MaxPayloadBytes)
	}
	payload := append([]byte(nil), data...)
	return m.do(func() error {
		return m.send(payload)
	})
}

// Disconnect ends the active session. It is a no-op without one.
func (m *Manager) Disconnect() error {
	return m.do(func() error {
		m.teardown("requested", true)
		return nil
	})
}

// Status returns a snapshot taken after every previously queued event has
// been applied. A closed manager reports the zero Status.
func (m *Manager) Status() Status {
	var st Status
	_ = m.do(func() error {
		st.Scanning = m.scanning
		st.Peripherals = make([]Peripheral, 0, len(m.peripherals))
		for _, p := range m.peripherals {
			st.Peripherals = append(st.Peripherals, p)
		}
		sort.Slice(st.Peripherals, func(i, j int) bool {
			return st.Peripherals[i].Address < st.Peripherals[j].Address
		})
		if m.session != nil {
			info := m.session.Info()
			st.Session = &info
		}
		return nil
	})
	return st
}

// Close stops scanning, disconnects the active session and stops the event
// loop. It is safe to call multiple times.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.do(func() error {
			m.stopScan("closing")
			m.teardown("closing", true)
			return nil
		})
		close(m.done)
		<-m.stopped
	})
	return err
}

func (m *Manager) loop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// do runs fn on the event loop and waits for its result.
func (m *Manager) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.events <- commandEvent{fn: fn, reply: reply}:
	case <-m.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-m.stopped:
		return ErrClosed
	}
}

// post queues a radio event. Events posted after Close are dropped.
func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) startScan() error {
	if m.scanning {
		return nil
	}
	m.teardown("scan started", true)
	m.peripherals = make(map[string]Peripheral)
	m.scanCycle++
	cycle := m.scanCycle

	err := m.radio.Scan(m.opts.ScanFilter, ScanHandlers{
		OnFirstSeen: func(addr, name string) {
			m.post(firstSeenEvent{cycle: cycle, addr: addr, name: name})
		},
		OnAdvertisement: func(adv Advertisement) {
			m.post(advertisementEvent{cycle: cycle, adv: adv})
		},
		OnEnded: func(err error) {
			m.post(scanEndedEvent{cycle: cycle, err: err})
		},
	})
	if err != nil {
		return fmt.Errorf("%w: scan: %w", ErrHardwareFailure, err)
	}
	m.scanning = true
	if m.opts.ScanTimeout > 0 {
		m.scanTimer = time.AfterFunc(m.opts.ScanTimeout, func() {
			m.post(scanTimeoutEvent{cycle: cycle})
		})
	}
	slog.Info("[BLE] scanning", "cycle", cycle, "filter", m.opts.ScanFilter)
	return nil
}

func (m *Manager) stopScan(reason string) {
	if !m.scanning {
		return
	}
	m.scanning = false
	if m.scanTimer != nil {
		m.scanTimer.Stop()
		m.scanTimer = nil
	}
	if err := m.radio.StopScan(); err != nil {
		slog.Warn("[BLE] stop scan failed", "error", err)
	}
	slog.Info("[BLE] scan stopped", "reason", reason, "found", len(m.peripherals))
}

// scanEnded records a scan the radio ended on its own. The radio is already
// idle, so StopScan is not sent.
func (m *Manager) scanEnded(err error) {
	m.scanning = false
	if m.scanTimer != nil {
		m.scanTimer.Stop()
		m.scanTimer = nil
	}
	if err != nil {
		slog.Error("[BLE] scan failed", "cycle", m.scanCycle, "error", fmt.Errorf("%w: %w", ErrHardwareFailure, err))
		return
	}
	slog.Info("[BLE] scan ended by radio", "cycle", m.scanCycle, "found", len(m.peripherals))
}

func (m *Manager) selectPeripheral(addr string) error {
	rec, ok := m.peripherals[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, addr)
	}
	p, ok := m.registry.Resolve(rec.Name)
	if !ok {
		slog.Warn("[BLE] selected an unrecognized device", "addr", addr, "name", rec.Name)
		m.observer.OnUnrecognizedDevice(rec.Name)
		return fmt.Errorf("%w: %q", ErrUnrecognizedDevice, rec.Name)
	}

	if s := m.session; s != nil {
		if s.addr == addr && s.state == StateConnecting {
			slog.Debug("[BLE] connect already in progress", "addr", addr, "gen", s.gen)
			return nil
		}
		m.teardown("superseded", true)
	}
	m.stopScan("connecting")

	m.gen++
	s := newSession(m.gen, addr, rec.Name, p)
	s.begin()
	m.session = s

	gen := s.gen
	err := m.radio.Connect(addr, ConnectHandlers{
		OnConnected: func(addr string) {
			m.post(connectedEvent{gen: gen, addr: addr})
		},
		OnServiceFound: func(addr, serviceUUID string) {
			m.post(serviceFoundEvent{gen: gen, addr: addr, service: serviceUUID})
		},
		OnCharacteristicFound: func(addr, serviceUUID, charUUID string) {
			m.post(characteristicFoundEvent{gen: gen, addr: addr, service: serviceUUID, char: charUUID})
		},
		OnDisconnected: func(addr string) {
			m.post(disconnectedEvent{gen: gen, addr: addr})
		},
		OnFailure: func(addr string, err error) {
			m.post(failureEvent{gen: gen, addr: addr, err: err})
		},
	})
	if err != nil {
		slog.Error("[BLE] connect rejected", "addr", addr, "gen", gen, "error", err)
		m.teardown("connect rejected", false)
		return fmt.Errorf("%w: connect %s: %w", ErrHardwareFailure, addr, err)
	}

	slog.Info("[BLE] connecting", "addr", addr, "name", rec.Name, "profile", p.Family, "gen", gen)
	return nil
}

func (m *Manager) send(data []byte) error {
	s := m.session
	if s == nil {
		return fmt.Errorf("%w: no session", ErrNotReady)
	}
	if !s.canSend() {
		return fmt.Errorf("%w: session is %s", ErrNotReady, s.state)
	}

	gen := s.gen
	err := m.radio.WriteCharacteristic(s.addr, s.profile.ServiceUUID, s.profile.WriteCharUUID, data, m.opts.WriteWithResponse,
		func(charUUID string, err error) {
			m.post(writeCompleteEvent{gen: gen, char: charUUID, data: data, err: err})
		})
	if err != nil {
		slog.Error("[BLE] write rejected", "addr", s.addr, "gen", gen, "error", err)
		m.teardown("write rejected", true)
		return fmt.Errorf("%w: write: %w", ErrHardwareFailure, err)
	}
	slog.Debug("[BLE] write requested", "addr", s.addr, "gen", gen, "bytes", len(data))
	return nil
}

// teardown ends the active session, optionally asking the radio to
// disconnect first.
func (m *Manager) teardown(reason string, disconnect bool) {
	s := m.session
	if s == nil {
		return
	}
	if disconnect {
		if err := m.radio.Disconnect(s.addr); err != nil {
			slog.Warn("[BLE] disconnect failed", "addr", s.addr, "error", err)
		}
	}
	m.session = nil
	if s.end() {
		slog.Info("[BLE] disconnected", "addr", s.addr, "gen", s.gen, "reason", reason)
		m.observer.OnDisconnected()
	}
}

// current returns the active session if it belongs to generation gen.
func (m *Manager) current(gen uint64) *Session {
	s := m.session
	if s == nil || s.gen != gen || !s.active() {
		return nil
	}
	return s
}

func (m *Manager) handle(ev event) {
	switch ev := ev.(type) {
	case commandEvent:
		ev.reply <- ev.fn()

	case firstSeenEvent:
		if !m.scanning || ev.cycle != m.scanCycle {
			return
		}
		if _, ok := m.peripherals[ev.addr]; ok {
			return
		}
		m.peripherals[ev.addr] = Peripheral{Address: ev.addr, Name: ev.name}
		slog.Debug("[BLE] peripheral found", "addr", ev.addr, "name", ev.name)
		m.observer.OnPeripheralDiscovered(ev.addr, ev.name)

	case advertisementEvent:
		if ev.cycle != m.scanCycle || len(ev.adv.Data) == 0 {
			return
		}
		slog.Debug("[BLE] advertisement", "name", ev.adv.Name, "rssi", ev.adv.RSSI,
			"len", len(ev.adv.Data), "bytes", hex.EncodeToString(ev.adv.Data))

	case scanTimeoutEvent:
		if ev.cycle == m.scanCycle {
			m.stopScan("timeout")
		}

	case scanEndedEvent:
		if !m.scanning || ev.cycle != m.scanCycle {
			return
		}
		m.scanEnded(ev.err)

	case connectedEvent:
		s := m.current(ev.gen)
		if s == nil {
			m.stale("connected", ev.gen)
			return
		}
		if s.link() {
			slog.Info("[BLE] link established", "addr", ev.addr, "gen", ev.gen)
			m.stopScan("connected")
		}

	case serviceFoundEvent:
		if s := m.current(ev.gen); s != nil {
			slog.Debug("[BLE] service found", "name", s.name, "service", ev.service)
		}

	case characteristicFoundEvent:
		m.characteristicFound(ev)

	case disconnectedEvent:
		if m.current(ev.gen) == nil {
			m.stale("disconnected", ev.gen)
			return
		}
		m.teardown("link lost", false)

	case failureEvent:
		if m.current(ev.gen) == nil {
			m.stale("failure", ev.gen)
			return
		}
		slog.Error("[BLE] hardware failure", "addr", ev.addr, "gen", ev.gen, "error", ev.err)
		m.teardown("hardware failure", true)

	case notifyEvent:
		if m.current(ev.gen) != nil {
			slog.Debug("[BLE] notification", "char", ev.char)
		}

	case valueEvent:
		if m.current(ev.gen) == nil {
			m.stale("value", ev.gen)
			return
		}
		m.observer.OnDataReceived(ev.char, ev.data)

	case writeCompleteEvent:
		s := m.current(ev.gen)
		if s == nil {
			m.stale("write complete", ev.gen)
			return
		}
		if ev.err != nil {
			slog.Error("[BLE] write failed", "addr", s.addr, "gen", ev.gen, "error", ev.err)
			m.teardown("write failed", true)
			return
		}
		m.observer.OnDataSent(ev.char, ev.data)
	}
}

func (m *Manager) characteristicFound(ev characteristicFoundEvent) {
	s := m.current(ev.gen)
	if s == nil {
		m.stale("characteristic", ev.gen)
		return
	}
	if !s.linked {
		slog.Debug("[BLE] characteristic before link ignored", "char", ev.char, "gen", ev.gen)
		return
	}
	slog.Debug("[BLE] characteristic found", "service", ev.service, "char", ev.char)

	role, first := s.classify(ev.service, ev.char)
	if role == profile.RoleReadNotify && first {
		gen := s.gen
		err := m.radio.Subscribe(s.addr, ev.service, ev.char, SubscribeHandlers{
			OnNotify: func(charUUID string) {
				m.post(notifyEvent{gen: gen, char: charUUID})
			},
			OnValue: func(charUUID string, data []byte) {
				m.post(valueEvent{gen: gen, char: charUUID, data: data})
			},
			OnFailure: func(charUUID string, err error) {
				m.post(failureEvent{gen: gen, addr: s.addr, err: fmt.Errorf("subscribe %s: %w", charUUID, err)})
			},
		})
		if err != nil {
			slog.Error("[BLE] subscribe rejected", "addr", s.addr, "char", ev.char, "error", err)
			m.teardown("subscribe rejected", true)
			return
		}
	}

	if s.promote(m.opts.Readiness) {
		slog.Info("[BLE] connected", "addr", s.addr, "name", s.name, "gen", s.gen,
			"write", s.writeFound, "read", s.readFound)
		m.observer.OnConnected(s.name, s.addr)
	}
}

func (m *Manager) stale(kind string, gen uint64) {
	slog.Debug("[BLE] stale event ignored", "event", kind, "gen", gen)
}
