// feedbreakd - Infinite-feed watchdog daemon
//
// feedbreakd watches app-switch, scroll, and media signals for
// short-video feed usage and interrupts doomscrolling sessions:
//
//	feedbreakd run        Run the daemon in the foreground
//	feedbreakd status     Query a running daemon over its control socket
//	feedbreakd version    Print version information
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"feedbreakd/internal/config"
	"feedbreakd/internal/health"
	"feedbreakd/internal/ipc"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`feedbreakd - Infinite-feed watchdog

USAGE:
    feedbreakd <command> [options]

COMMANDS:
    run         Run the daemon in the foreground
    status      Show status of the running daemon
    version     Print version information
    help        Show this help message

The daemon reads its configuration from the first of -config, ./config.toml,
the user config directory, or the data directory. Without a file it runs on
built-in defaults. Use feedbreakctl for pause, resume, reload, and the live
event stream.`)
}

func cmdVersion() {
	fmt.Printf("feedbreakd %s (protocol v%d)\n", version, ipc.ProtocolVersion)
}

// cmdStatus asks a running daemon for its status over the control
// socket. Exit code 1 means the daemon is not running.
func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	asJSON := fs.Bool("json", false, "Print status as JSON")
	fs.Parse(os.Args[2:])

	client := ipc.NewClient(clientConfig(*configPath))
	if err := client.Connect(); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			fmt.Println("feedbreakd is not running")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	st, err := client.Status(true, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode status: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	printStatus(st)
}

func printStatus(st *ipc.StatusResponse) {
	state := "running"
	if st.Paused {
		state = "paused"
	}

	fmt.Printf("feedbreakd %s\n", st.Version)
	fmt.Printf("  State:      %s\n", state)
	fmt.Printf("  Uptime:     %s\n", st.Uptime.Round(time.Second))
	if st.Foreground != "" {
		fmt.Printf("  Foreground: %s\n", st.Foreground)
	}
	fmt.Printf("  Events:     %d\n", st.EventsSeen)

	if j := st.Journal; j != nil {
		if j.Enabled {
			line := fmt.Sprintf("%d blocks (%d dropped)", j.Blocks, j.Dropped)
			if !j.LastAt.IsZero() {
				line += fmt.Sprintf(", last %s", j.LastAt.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("  Journal:    %s\n", line)
		} else {
			fmt.Printf("  Journal:    disabled\n")
		}
	}

	if h := st.Health; h != nil {
		fmt.Printf("  Health:     %s\n", h.Status)
		for name, res := range h.Components {
			if res.Status == health.StatusHealthy {
				continue
			}
			fmt.Printf("    %-12s %s (%s)\n", name+":", res.Status, res.Message)
		}
	}
}

// clientConfig resolves the control socket from the configuration file
// so status talks to the same daemon a matching run command would start.
func clientConfig(configPath string) ipc.ClientConfig {
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	socket := config.GetDefaultPaths().SocketPath
	if cfg, err := config.Load(configPath); err == nil && cfg.IPC.SocketPath != "" {
		socket = cfg.IPC.SocketPath
	}

	ccfg := ipc.DefaultClientConfig("")
	ccfg.SocketPath = socket
	ccfg.ConnectTimeout = 3 * time.Second
	ccfg.RequestTimeout = 10 * time.Second
	ccfg.AutoReconnect = false
	return ccfg
}
