// Package console is a line-oriented front end for the connection manager.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// Controller is the part of *ble.Manager the console drives.
type Controller interface {
	StartScan() error
	StopScan() error
	ToggleScan() error
	SelectPeripheral(addr string) error
	Send(data []byte) error
	Disconnect() error
	Status() ble.Status
}

var _ Controller = (*ble.Manager)(nil)

const helpText = `commands:
  scan [start|stop]     toggle, start or stop scanning
  list                  show discovered peripherals
  select <n|address>    connect to a peripheral from the list
  send [payload]        send bytes ("1 2 3", "0x0a0b"); default 0..19
  disconnect            end the active session
  status                show scan and session state
  quit                  exit`

// Console reads commands and prints manager notifications.
type Console struct {
	ctrl    Controller
	payload []byte // sent when "send" has no argument; nil uses the manager default

	mu  sync.Mutex
	out io.Writer
}

// New creates a Console writing to out. ctrl may be nil and supplied later
// with Attach, since the manager usually needs the console's Observer first.
func New(ctrl Controller, out io.Writer, defaultPayload []byte) *Console {
	return &Console{ctrl: ctrl, out: out, payload: defaultPayload}
}

// Attach sets the controller. Call it before Run.
func (c *Console) Attach(ctrl Controller) {
	c.ctrl = ctrl
}

// Run executes commands read from in until EOF, "quit" or ctx is cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		scanErr <- sc.Err()
		close(lines)
	}()

	c.printf("type \"help\" for commands\n")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			quit, err := c.Exec(line)
			if err != nil {
				c.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs a single command line. quit is true for "quit" and "exit".
func (c *Console) Exec(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		c.printf("%s\n", helpText)
	case "scan":
		return false, c.scan(args)
	case "list", "ls":
		c.list()
	case "select", "connect":
		if len(args) != 1 {
			return false, errors.New("usage: select <n|address>")
		}
		return false, c.selectPeripheral(args[0])
	case "send":
		return false, c.send(strings.Join(args, " "))
	case "disconnect":
		return false, c.ctrl.Disconnect()
	case "status":
		c.status()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

func (c *Console) scan(args []string) error {
	if len(args) == 0 {
		return c.ctrl.ToggleScan()
	}
	switch args[0] {
	case "start", "on":
		return c.ctrl.StartScan()
	case "stop", "off":
		return c.ctrl.StopScan()
	default:
		return fmt.Errorf("usage: scan [start|stop]")
	}
}

func (c *Console) list() {
	st := c.ctrl.Status()
	if len(st.Peripherals) == 0 {
		c.printf("no peripherals\n")
		return
	}
	for i, p := range st.Peripherals {
		c.printf("[%d] %s  %s\n", i+1, p.Address, p.Name)
	}
}

// selectPeripheral accepts a 1-based index into the list or an address.
func (c *Console) selectPeripheral(arg string) error {
	addr := arg
	if n, err := strconv.Atoi(arg); err == nil {
		peers := c.ctrl.Status().Peripherals
		if n < 1 || n > len(peers) {
			return fmt.Errorf("no peripheral #%d", n)
		}
		addr = peers[n-1].Address
	}
	return c.ctrl.SelectPeripheral(addr)
}

func (c *Console) send(arg string) error {
	data := c.payload
	if arg != "" {
		var err error
		if data, err = protocol.Parse(arg); err != nil {
			return err
		}
	}
	return c.ctrl.Send(data)
}

func (c *Console) status() {
	st := c.ctrl.Status()
	c.printf("scanning: %v, peripherals: %d\n", st.Scanning, len(st.Peripherals))
	if s := st.Session; s != nil {
		c.printf("session #%d: %s %s (%s) %s write=%v read=%v\n",
			s.Generation, s.Name, s.Address, s.Family, s.State, s.WriteFound, s.ReadFound)
	} else {
		c.printf("no session\n")
	}
}

// Observer returns a ble.Observer that prints notifications to the console.
func (c *Console) Observer() ble.Observer {
	return ble.ObserverFuncs{
		PeripheralDiscovered: func(addr, name string) {
			c.printf("Adding peripheral %s %s\n", name, addr)
		},
		Connected: func(name, addr string) {
			c.printf("Connected to %s %s\n", name, addr)
		},
		Disconnected: func() {
			c.printf("Disconnected\n")
		},
		DataSent: func(charUUID string, data []byte) {
			c.printf("Sent %s to %s\n", protocol.Format(data), charUUID)
		},
		DataReceived: func(charUUID string, data []byte) {
			c.printf("Received %s from %s\n", protocol.Format(data), charUUID)
		},
		UnrecognizedDevice: func(name string) {
			c.printf("Selected an unrecognized BLE device: %s\n", name)
		},
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
