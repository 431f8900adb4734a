package ble

// event is anything applied by the Manager's event loop. Radio events carry
// the scan cycle or session generation they belong to so late deliveries
// for a superseded cycle or session are dropped.
type event any

type commandEvent struct {
	fn    func() error
	reply chan error
}

type firstSeenEvent struct {
	cycle      uint64
	addr, name string
}

type advertisementEvent struct {
	cycle uint64
	adv   Advertisement
}

type scanTimeoutEvent struct {
	cycle uint64
}

type scanEndedEvent struct {
	cycle uint64
	err   error
}

type connectedEvent struct {
	gen  uint64
	addr string
}

type serviceFoundEvent struct {
	gen           uint64
	addr, service string
}

type characteristicFoundEvent struct {
	gen                 uint64
	addr, service, char string
}

type disconnectedEvent struct {
	gen  uint64
	addr string
}

type failureEvent struct {
	gen  uint64
	addr string
	err  error
}

type notifyEvent struct {
	gen  uint64
	char string
}

type valueEvent struct {
	gen  uint64
	char string
	data []byte
}

type writeCompleteEvent struct {
	gen  uint64
	char string
	data []byte
	err  error
}
