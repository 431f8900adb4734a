package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
)

type fakeController struct {
	calls    []string
	selected string
	sent     [][]byte
	status   ble.Status
	err      error
}

func (f *fakeController) StartScan() error  { f.calls = append(f.calls, "start"); return f.err }
func (f *fakeController) StopScan() error   { f.calls = append(f.calls, "stop"); return f.err }
func (f *fakeController) ToggleScan() error { f.calls = append(f.calls, "toggle"); return f.err }
func (f *fakeController) Disconnect() error { f.calls = append(f.calls, "disconnect"); return f.err }
func (f *fakeController) Status() ble.Status {
	return f.status
}

func (f *fakeController) SelectPeripheral(addr string) error {
	f.calls = append(f.calls, "select")
	f.selected = addr
	return f.err
}

func (f *fakeController) Send(data []byte) error {
	f.calls = append(f.calls, "send")
	f.sent = append(f.sent, data)
	return f.err
}

func newTestConsole(ctrl *fakeController) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	return New(ctrl, &out, nil), &out
}

func TestExecScan(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"scan", "toggle"},
		{"SCAN start", "start"},
		{"scan on", "start"},
		{"scan stop", "stop"},
		{"scan off", "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ctrl := &fakeController{}
			c, _ := newTestConsole(ctrl)
			if _, err := c.Exec(tt.line); err != nil {
				t.Fatalf("Exec(%q) error: %v", tt.line, err)
			}
			if len(ctrl.calls) != 1 || ctrl.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", ctrl.calls, tt.want)
			}
		})
	}

	c, _ := newTestConsole(&fakeController{})
	if _, err := c.Exec("scan sideways"); err == nil {
		t.Error("expected usage error for unknown scan argument")
	}
}

func TestExecSelectByIndexAndAddress(t *testing.T) {
	ctrl := &fakeController{status: ble.Status{Peripherals: []ble.Peripheral{
		{Address: "AA:01", Name: "Bluno"},
		{Address: "AA:02", Name: "Bean+"},
	}}}
	c, _ := newTestConsole(ctrl)

	if _, err := c.Exec("select 2"); err != nil {
		t.Fatalf("select 2: %v", err)
	}
	if ctrl.selected != "AA:02" {
		t.Errorf("selected = %q, want AA:02", ctrl.selected)
	}

	if _, err := c.Exec("select AA:01"); err != nil {
		t.Fatalf("select AA:01: %v", err)
	}
	if ctrl.selected != "AA:01" {
		t.Errorf("selected = %q, want AA:01", ctrl.selected)
	}

	for _, line := range []string{"select 0", "select 3", "select"} {
		if _, err := c.Exec(line); err == nil {
			t.Errorf("Exec(%q) should fail", line)
		}
	}
}

func TestExecSend(t *testing.T) {
	ctrl := &fakeController{}
	c, _ := newTestConsole(ctrl)

	if _, err := c.Exec("send"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if ctrl.sent[0] != nil {
		t.Errorf("bare send should pass nil, got %v", ctrl.sent[0])
	}

	if _, err := c.Exec("send 1 2 3"); err != nil {
		t.Fatalf("send 1 2 3: %v", err)
	}
	if !bytes.Equal(ctrl.sent[1], []byte{1, 2, 3}) {
		t.Errorf("sent = %v, want [1 2 3]", ctrl.sent[1])
	}

	if _, err := c.Exec("send 0x0a0b"); err != nil {
		t.Fatalf("send 0x0a0b: %v", err)
	}
	if !bytes.Equal(ctrl.sent[2], []byte{0x0a, 0x0b}) {
		t.Errorf("sent = %v, want [10 11]", ctrl.sent[2])
	}

	if _, err := c.Exec("send 999"); err == nil {
		t.Error("expected parse error for out-of-range byte")
	}
	if len(ctrl.sent) != 3 {
		t.Errorf("unparseable payload should not reach the controller, sent %d", len(ctrl.sent))
	}
}

func TestExecSendUsesConfiguredPayload(t *testing.T) {
	ctrl := &fakeController{}
	c := New(ctrl, &bytes.Buffer{}, []byte{7, 7})
	if _, err := c.Exec("send"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !bytes.Equal(ctrl.sent[0], []byte{7, 7}) {
		t.Errorf("sent = %v, want [7 7]", ctrl.sent[0])
	}
}

func TestExecPropagatesControllerError(t *testing.T) {
	ctrl := &fakeController{err: ble.ErrNotReady}
	c, _ := newTestConsole(ctrl)
	if _, err := c.Exec("send"); !errors.Is(err, ble.ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestExecListAndStatus(t *testing.T) {
	ctrl := &fakeController{}
	c, out := newTestConsole(ctrl)

	c.Exec("list")
	c.Exec("status")
	if !strings.Contains(out.String(), "no peripherals") {
		t.Errorf("output missing empty list:\n%s", out)
	}
	if !strings.Contains(out.String(), "no session") {
		t.Errorf("output missing session line:\n%s", out)
	}

	out.Reset()
	ctrl.status = ble.Status{
		Scanning:    true,
		Peripherals: []ble.Peripheral{{Address: "AA:01", Name: "Bluno"}},
		Session: &ble.SessionInfo{
			Address: "AA:01", Name: "Bluno", Family: "Bluno",
			Generation: 3, State: ble.StateConnected, WriteFound: true,
		},
	}
	c.Exec("list")
	c.Exec("status")
	for _, want := range []string{"[1] AA:01  Bluno", "scanning: true", "session #3", "write=true read=false"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExecUnknownAndQuit(t *testing.T) {
	c, _ := newTestConsole(&fakeController{})

	if _, err := c.Exec("frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
	if quit, err := c.Exec("   "); quit || err != nil {
		t.Errorf("blank line: quit=%v err=%v", quit, err)
	}
	if quit, _ := c.Exec("quit"); !quit {
		t.Error("quit should end the console")
	}
	if quit, _ := c.Exec("exit"); !quit {
		t.Error("exit should end the console")
	}
}

func TestRun(t *testing.T) {
	ctrl := &fakeController{}
	c, out := newTestConsole(ctrl)

	in := strings.NewReader("scan\nbogus\ndisconnect\nquit\nscan\n")
	if err := c.Run(context.Background(), in); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if strings.Join(ctrl.calls, ",") != "toggle,disconnect" {
		t.Errorf("calls = %v, want [toggle disconnect]", ctrl.calls)
	}
	if !strings.Contains(out.String(), `error: unknown command "bogus"`) {
		t.Errorf("output missing error line:\n%s", out)
	}
}

func TestRunEOF(t *testing.T) {
	c, _ := newTestConsole(&fakeController{})
	if err := c.Run(context.Background(), strings.NewReader("status\n")); err != nil {
		t.Errorf("Run at EOF = %v, want nil", err)
	}
}

func TestRunCancelled(t *testing.T) {
	c, _ := newTestConsole(&fakeController{})
	ctx, cancel := context.WithCancel(context.Background())

	r, w := io.Pipe()
	defer w.Close()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, r) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestObserverOutput(t *testing.T) {
	c, out := newTestConsole(&fakeController{})
	obs := c.Observer()

	obs.OnPeripheralDiscovered("AA:01", "Bluno")
	obs.OnConnected("Bluno", "AA:01")
	obs.OnDataSent("dfb1", []byte{0, 1, 2})
	obs.OnDataReceived("a495ff22", []byte{9})
	obs.OnUnrecognizedDevice("Mystery")
	obs.OnDisconnected()

	want := []string{
		"Adding peripheral Bluno AA:01",
		"Connected to Bluno AA:01",
		"Sent 0 1 2 to dfb1",
		"Received 9 from a495ff22",
		"Selected an unrecognized BLE device: Mystery",
		"Disconnected",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), out)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAttach(t *testing.T) {
	var out bytes.Buffer
	c := New(nil, &out, nil)
	ctrl := &fakeController{}
	c.Attach(ctrl)
	if _, err := c.Exec("disconnect"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if len(ctrl.calls) != 1 {
		t.Errorf("calls = %v, want [disconnect]", ctrl.calls)
	}
}
