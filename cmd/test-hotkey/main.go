// Command test-hotkey is a manual test for the global hotkey bindings.
// Run it, then press a configured chord to see which action fires.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--config path]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/blelink/internal/config"
	"github.com/chaz8081/blelink/internal/hotkey"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: built-in bindings)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	listener := hotkey.NewListener([]hotkey.Binding{
		{Action: hotkey.ActionScan, Keys: cfg.Hotkey.Scan},
		{Action: hotkey.ActionSend, Keys: cfg.Hotkey.Send},
		{Action: hotkey.ActionDisconnect, Keys: cfg.Hotkey.Disconnect},
	})
	fmt.Printf("Listening for %s\n", listener.Describe())
	fmt.Println("Press Ctrl+C to exit.")

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			fmt.Printf(">>> %s\n", ev.Action)
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
