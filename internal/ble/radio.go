// Package ble is a BLE central-role connection manager. It scans for
// peripherals, connects to the one the caller selects, classifies the
// discovered GATT characteristics against the peripheral family's profile and
// exposes a send/receive channel once the session is ready.
package ble

// Advertisement is one advertising packet seen while scanning.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
	Data    []byte
}

// ScanHandlers receive scan results. OnFirstSeen fires once per address per
// scan; OnAdvertisement fires for every later packet from that address.
// OnEnded fires once when the scan is over, with the error that ended it if
// it was not stopped on request.
type ScanHandlers struct {
	OnFirstSeen     func(addr, name string)
	OnAdvertisement func(adv Advertisement)
	OnEnded         func(err error)
}

// ConnectHandlers receive the stream of events for one connect attempt.
// Service and characteristic discovery results arrive in whatever order the
// stack produces them.
type ConnectHandlers struct {
	OnConnected           func(addr string)
	OnServiceFound        func(addr, serviceUUID string)
	OnCharacteristicFound func(addr, serviceUUID, charUUID string)
	OnDisconnected        func(addr string)
	// OnFailure reports a radio-level failure of the connection.
	OnFailure func(addr string, err error)
}

// SubscribeHandlers receive notifications from a subscribed characteristic.
type SubscribeHandlers struct {
	OnNotify  func(charUUID string)
	OnValue   func(charUUID string, data []byte)
	OnFailure func(charUUID string, err error)
}

// Radio abstracts the BLE hardware. Every method is a request that returns
// without waiting for the radio; outcomes arrive later through the handlers.
// A returned error means the request was rejected outright.
//
// Handlers may be invoked from any goroutine but must not be invoked
// synchronously from inside the Radio method that registered them.
type Radio interface {
	// Scan starts discovering peripherals. A non-empty filter restricts
	// results to peripherals advertising one of the service UUIDs.
	Scan(filter []string, h ScanHandlers) error
	// StopScan ends the current scan.
	StopScan() error
	// Connect opens a GATT connection and discovers its topology.
	Connect(addr string, h ConnectHandlers) error
	// Disconnect closes the connection to addr.
	Disconnect(addr string) error
	// Subscribe enables notifications on a discovered characteristic.
	Subscribe(addr, serviceUUID, charUUID string, h SubscribeHandlers) error
	// WriteCharacteristic writes data to a discovered characteristic and
	// calls onComplete when the write has finished.
	WriteCharacteristic(addr, serviceUUID, charUUID string, data []byte, withResponse bool, onComplete func(charUUID string, err error)) error
}
