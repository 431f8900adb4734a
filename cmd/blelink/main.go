package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/protocol"
	"github.com/chaz8081/blelink/internal/config"
	"github.com/chaz8081/blelink/internal/console"
	"github.com/chaz8081/blelink/internal/hotkey"
	"github.com/chaz8081/blelink/internal/monitor"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blelink/config.yaml)")
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Printf("Wrote %s\n", path)
		}
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	payload, err := defaultPayload(cfg.Payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config payload: %v\n", err)
		os.Exit(1)
	}

	printBanner(cfg)

	// Initialize the radio
	radio := ble.NewTinyGoRadio()
	if err := radio.Enable(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable Bluetooth: %v\n\nEnsure Bluetooth is on and this terminal has Bluetooth permission.\n", err)
		os.Exit(1)
	}
	slog.Info("[BLE] Adapter enabled")

	bus := monitor.NewBus()
	con := console.New(nil, os.Stdout, payload)

	opts := ble.DefaultOptions()
	opts.ScanFilter = cfg.Scan.Services
	opts.ScanTimeout = cfg.Scan.Timeout
	opts.Readiness = ble.Readiness(cfg.Connect.Readiness)
	opts.WriteWithResponse = cfg.Connect.WriteWithResponse

	mgr := ble.NewManager(radio, cfg.Registry(), ble.MultiObserver(con.Observer(), bus.Observer()), opts)
	con.Attach(mgr)

	// Monitor endpoint
	var srv *monitor.Server
	if cfg.Monitor.Addr != "" {
		srv = monitor.NewServer(cfg.Monitor.Addr, bus, func() any { return mgr.Status() })
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Monitor server failed", "error", err)
			}
		}()
		slog.Info("Monitor listening", "addr", cfg.Monitor.Addr)
	}

	// Hotkeys
	var listener *hotkey.Listener
	if cfg.Hotkey.Enabled {
		listener = hotkey.NewListener(hotkeyBindings(cfg))
		go listener.Start()
		go runHotkeys(listener.Events(), mgr, payload)
		slog.Info("Hotkey listener ready", "bindings", listener.Describe())
	}

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := con.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Console stopped", "error", err)
	}

	slog.Info("Shutting down...")
	if err := mgr.Close(); err != nil {
		slog.Error("Closing manager", "error", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		srv.Shutdown(shutdownCtx)
		cancel()
	}
	if listener != nil {
		// Exit directly to avoid gohook's C cleanup crash.
		// The OS reclaims the event hook on process exit.
		fmt.Println("Goodbye!")
		os.Exit(0)
	}
	fmt.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		fmt.Printf("Config loaded from %s\n", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	fmt.Println("No config file found, using defaults")
	return config.Default(), nil
}

// defaultPayload parses the configured payload. Empty leaves the choice to
// the manager, which sends the 0..19 filler.
func defaultPayload(s string) ([]byte, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return protocol.Parse(s)
}

func hotkeyBindings(cfg *config.Config) []hotkey.Binding {
	return []hotkey.Binding{
		{Action: hotkey.ActionScan, Keys: cfg.Hotkey.Scan},
		{Action: hotkey.ActionSend, Keys: cfg.Hotkey.Send},
		{Action: hotkey.ActionDisconnect, Keys: cfg.Hotkey.Disconnect},
	}
}

// runHotkeys applies hotkey actions to the manager until the listener stops.
func runHotkeys(events <-chan hotkey.Event, mgr *ble.Manager, payload []byte) {
	for ev := range events {
		var err error
		switch ev.Action {
		case hotkey.ActionScan:
			err = mgr.ToggleScan()
		case hotkey.ActionSend:
			err = mgr.Send(payload)
		case hotkey.ActionDisconnect:
			err = mgr.Disconnect()
		}
		if err != nil {
			slog.Warn("Hotkey action failed", "action", ev.Action, "error", err)
		}
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== blelink ===")
	fmt.Printf("  Profiles:  %d extra\n", len(cfg.Profiles))
	if len(cfg.Scan.Services) > 0 {
		fmt.Printf("  Filter:    %s\n", strings.Join(cfg.Scan.Services, ", "))
	}
	if cfg.Scan.Timeout > 0 {
		fmt.Printf("  Timeout:   %s\n", cfg.Scan.Timeout)
	}
	fmt.Printf("  Readiness: %s\n", cfg.Connect.Readiness)
	if cfg.Hotkey.Enabled {
		fmt.Println("  Hotkeys:   on")
	}
	if cfg.Monitor.Addr != "" {
		fmt.Printf("  Monitor:   ws://%s/events\n", cfg.Monitor.Addr)
	}
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
