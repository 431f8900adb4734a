package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/blelink/internal/ble/profile"
)

// TinyGoRadio implements Radio on top of tinygo-org/bluetooth (BlueZ on
// Linux, CoreBluetooth on macOS). On macOS peripheral addresses are
// CoreBluetooth UUIDs, not MAC addresses; both are treated as opaque strings.
type TinyGoRadio struct {
	adapter *bluetooth.Adapter
	links   *linkTable[*tinygoConn]

	mu       sync.Mutex
	scanning bool
}

// tinygoConn is an established connection and its discovered characteristics.
type tinygoConn struct {
	device bluetooth.Device

	mu    sync.Mutex
	chars map[string]bluetooth.DeviceCharacteristic // keyed by charKey
}

var errScanInProgress = errors.New("ble: scan already in progress")

// NewTinyGoRadio creates a Radio using the system's default adapter.
func NewTinyGoRadio() *TinyGoRadio {
	return &TinyGoRadio{
		adapter: bluetooth.DefaultAdapter,
		links:   newLinkTable[*tinygoConn](),
	}
}

// Compile-time check that TinyGoRadio implements Radio.
var _ Radio = (*TinyGoRadio)(nil)

// Enable powers on the adapter and registers the adapter-level disconnect
// handler. Call it once before using the radio.
func (r *TinyGoRadio) Enable() error {
	if err := r.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo/bluetooth reports disconnects for every peripheral through a
	// single adapter-wide handler, keyed only by address.
	r.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		l, ok := r.links.lost(addr)
		if !ok {
			slog.Debug("[BLE] disconnect of released link", "addr", addr)
			return
		}
		if l.handlers.OnDisconnected != nil {
			l.handlers.OnDisconnected(addr)
		}
	})
	return nil
}

func (r *TinyGoRadio) Scan(filter []string, h ScanHandlers) error {
	services := make([]bluetooth.UUID, 0, len(filter))
	for _, s := range filter {
		u, err := bluetooth.ParseUUID(profile.NormalizeUUID(s))
		if err != nil {
			return fmt.Errorf("ble: parse scan filter %q: %w", s, err)
		}
		services = append(services, u)
	}

	r.mu.Lock()
	if r.scanning {
		r.mu.Unlock()
		return errScanInProgress
	}
	r.scanning = true
	r.mu.Unlock()

	go func() {
		results := newScanResults(h)

		// Scan blocks until StopScan is called or the adapter fails.
		err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !advertisesAny(result, services) {
				return
			}
			results.report(Advertisement{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
				Data:    result.Bytes(),
			})
		})

		r.mu.Lock()
		r.scanning = false
		r.mu.Unlock()
		if err != nil {
			slog.Warn("[BLE] scan ended with error", "error", err)
		}
		if h.OnEnded != nil {
			h.OnEnded(err)
		}
	}()
	return nil
}

func advertisesAny(result bluetooth.ScanResult, services []bluetooth.UUID) bool {
	if len(services) == 0 {
		return true
	}
	for _, u := range services {
		if result.HasServiceUUID(u) {
			return true
		}
	}
	return false
}

func (r *TinyGoRadio) StopScan() error {
	r.mu.Lock()
	scanning := r.scanning
	r.mu.Unlock()
	if !scanning {
		return nil
	}
	return r.adapter.StopScan()
}

func (r *TinyGoRadio) Connect(addr string, h ConnectHandlers) error {
	var address bluetooth.Address
	address.Set(addr)

	l := r.links.begin(addr, h)
	go func() {
		// Connect blocks internally with its own timeout.
		device, err := r.adapter.Connect(address, bluetooth.ConnectionParams{})
		if err != nil {
			r.links.abandon(l)
			if h.OnFailure != nil {
				h.OnFailure(addr, fmt.Errorf("ble: connect to %s: %w", addr, err))
			}
			return
		}

		conn := &tinygoConn{
			device: device,
			chars:  make(map[string]bluetooth.DeviceCharacteristic),
		}
		if !r.links.establish(l, conn) {
			slog.Debug("[BLE] connect completed after disconnect request", "addr", addr)
			if err := device.Disconnect(); err != nil {
				r.links.closeFailed(addr)
			}
			return
		}

		if h.OnConnected != nil {
			h.OnConnected(addr)
		}
		discover(addr, conn, h)
	}()
	return nil
}

// discover walks every service and characteristic of a connected peer,
// reporting each as it is found.
func discover(addr string, conn *tinygoConn, h ConnectHandlers) {
	services, err := conn.device.DiscoverServices(nil)
	if err != nil {
		if h.OnFailure != nil {
			h.OnFailure(addr, fmt.Errorf("ble: discover services: %w", err))
		}
		return
	}

	for _, svc := range services {
		svcUUID := svc.UUID().String()
		if h.OnServiceFound != nil {
			h.OnServiceFound(addr, svcUUID)
		}

		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			slog.Warn("[BLE] discover characteristics failed", "addr", addr, "service", svcUUID, "error", err)
			continue
		}
		for _, c := range chars {
			charUUID := c.UUID().String()
			conn.mu.Lock()
			conn.chars[charKey(svcUUID, charUUID)] = c
			conn.mu.Unlock()
			if h.OnCharacteristicFound != nil {
				h.OnCharacteristicFound(addr, svcUUID, charUUID)
			}
		}
	}
}

// Disconnect releases addr at once, so a connect to the same address may
// follow immediately. The link itself is closed in the background.
func (r *TinyGoRadio) Disconnect(addr string) error {
	l, ok := r.links.release(addr)
	if !ok {
		return nil
	}

	go func() {
		if err := l.dev.device.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect failed", "addr", addr, "error", err)
			r.links.closeFailed(addr)
		}
	}()
	return nil
}

func (r *TinyGoRadio) Subscribe(addr, serviceUUID, charUUID string, h SubscribeHandlers) error {
	c, err := r.characteristic(addr, serviceUUID, charUUID)
	if err != nil {
		return err
	}

	go func() {
		err := c.EnableNotifications(func(buf []byte) {
			data := make([]byte, len(buf))
			copy(data, buf)
			if h.OnNotify != nil {
				h.OnNotify(charUUID)
			}
			if h.OnValue != nil {
				h.OnValue(charUUID, data)
			}
		})
		if err != nil && h.OnFailure != nil {
			h.OnFailure(charUUID, err)
		}
	}()
	return nil
}

func (r *TinyGoRadio) WriteCharacteristic(addr, serviceUUID, charUUID string, data []byte, withResponse bool, onComplete func(charUUID string, err error)) error {
	c, err := r.characteristic(addr, serviceUUID, charUUID)
	if err != nil {
		return err
	}

	go func() {
		var err error
		if withResponse {
			_, err = c.Write(data)
		} else {
			_, err = c.WriteWithoutResponse(data)
		}
		if onComplete != nil {
			onComplete(c.UUID().String(), err)
		}
	}()
	return nil
}

func (r *TinyGoRadio) characteristic(addr, serviceUUID, charUUID string) (bluetooth.DeviceCharacteristic, error) {
	l, ok := r.links.lookup(addr)
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: %s is not connected", addr)
	}
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	c, ok := l.dev.chars[charKey(serviceUUID, charUUID)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: characteristic %s not found on %s", charUUID, addr)
	}
	return c, nil
}

func charKey(serviceUUID, charUUID string) string {
	return profile.NormalizeUUID(serviceUUID) + "/" + profile.NormalizeUUID(charUUID)
}
