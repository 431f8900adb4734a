package ble

// Observer receives the manager's notifications. Methods run on the manager's
// event loop, in event order, and must not call back into the Manager
// synchronously.
type Observer interface {
	OnPeripheralDiscovered(addr, name string)
	OnConnected(name, addr string)
	OnDisconnected()
	OnDataSent(charUUID string, data []byte)
	OnDataReceived(charUUID string, data []byte)
	OnUnrecognizedDevice(name string)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	PeripheralDiscovered func(addr, name string)
	Connected            func(name, addr string)
	Disconnected         func()
	DataSent             func(charUUID string, data []byte)
	DataReceived         func(charUUID string, data []byte)
	UnrecognizedDevice   func(name string)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnPeripheralDiscovered(addr, name string) {
	if o.PeripheralDiscovered != nil {
		o.PeripheralDiscovered(addr, name)
	}
}

func (o ObserverFuncs) OnConnected(name, addr string) {
	if o.Connected != nil {
		o.Connected(name, addr)
	}
}

func (o ObserverFuncs) OnDisconnected() {
	if o.Disconnected != nil {
		o.Disconnected()
	}
}

func (o ObserverFuncs) OnDataSent(charUUID string, data []byte) {
	if o.DataSent != nil {
		o.DataSent(charUUID, data)
	}
}

func (o ObserverFuncs) OnDataReceived(charUUID string, data []byte) {
	if o.DataReceived != nil {
		o.DataReceived(charUUID, data)
	}
}

func (o ObserverFuncs) OnUnrecognizedDevice(name string) {
	if o.UnrecognizedDevice != nil {
		o.UnrecognizedDevice(name)
	}
}

type multiObserver []Observer

// MultiObserver fans every notification out to each observer in order.
func MultiObserver(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) OnPeripheralDiscovered(addr, name string) {
	for _, o := range m {
		o.OnPeripheralDiscovered(addr, name)
	}
}

func (m multiObserver) OnConnected(name, addr string) {
	for _, o := range m {
		o.OnConnected(name, addr)
	}
}

func (m multiObserver) OnDisconnected() {
	for _, o := range m {
		o.OnDisconnected()
	}
}

func (m multiObserver) OnDataSent(charUUID string, data []byte) {
	for _, o := range m {
		o.OnDataSent(charUUID, data)
	}
}

func (m multiObserver) OnDataReceived(charUUID string, data []byte) {
	for _, o := range m {
		o.OnDataReceived(charUUID, data)
	}
}

func (m multiObserver) OnUnrecognizedDevice(name string) {
	for _, o := range m {
		o.OnUnrecognizedDevice(name)
	}
}
