// feedbreakctl - Control CLI for the feedbreakd daemon
//
//	feedbreakctl status             Daemon status and health
//	feedbreakctl state              Per-app engine state
//	feedbreakctl recent             Recent block decisions from the journal
//	feedbreakctl pause              Suspend enforcement
//	feedbreakctl resume             Resume enforcement
//	feedbreakctl reload             Re-read the configuration file
//	feedbreakctl config validate    Validate a configuration file
//	feedbreakctl watch              Stream decision events
//	feedbreakctl version            Client and daemon versions
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"feedbreakd/internal/config"
	"feedbreakd/internal/ipc"
)

// Output colors (ANSI escape codes)
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
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
	case "status":
		cmdStatus()
	case "state":
		cmdState()
	case "recent":
		cmdRecent()
	case "pause":
		cmdPause()
	case "resume":
		cmdResume()
	case "reload":
		cmdReload()
	case "config":
		cmdConfig()
	case "watch":
		cmdWatch()
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
	fmt.Println(`feedbreakctl - Control the feedbreakd daemon

USAGE:
    feedbreakctl <command> [options]

COMMANDS:
    status              Show daemon status and component health
    state               Show per-app engine state
    recent              Show recent block decisions from the journal
    pause               Suspend enforcement (detection keeps running)
    resume              Resume enforcement
    reload              Ask the daemon to re-read its configuration file
    config validate <file>
                        Validate a configuration file without a daemon
    watch               Stream decision events until interrupted
    version             Show client and daemon versions
    help                Show this help message

Most commands accept -config <file> or -socket <path> to locate the
daemon's control socket.`)
}

func printSuccess(message string) {
	fmt.Println(colorGreen + " ✓ " + message + colorReset)
}

func printError(message string) {
	fmt.Fprintln(os.Stderr, colorRed+" ✗ "+message+colorReset)
}

func fatal(format string, args ...any) {
	printError(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// resolveSocket finds the control socket the same way the daemon picks
// it: explicit flag, then the configuration file, then the default.
func resolveSocket(configPath, socketPath string) string {
	if socketPath != "" {
		return socketPath
	}
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.IPC.SocketPath != "" {
		return cfg.IPC.SocketPath
	}
	return config.GetDefaultPaths().SocketPath
}

// tryDial connects to the daemon, returning the error to the caller.
func tryDial(configPath, socketPath string) (*ipc.IPCClient, error) {
	ccfg := ipc.DefaultClientConfig("")
	ccfg.SocketPath = resolveSocket(configPath, socketPath)
	ccfg.ConnectTimeout = 3 * time.Second
	ccfg.RequestTimeout = 10 * time.Second
	ccfg.AutoReconnect = false

	client := ipc.NewClient(ccfg)
	if err := client.Connect(); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("feedbreakd is not running (socket %s)", ccfg.SocketPath)
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	return client, nil
}

// dial connects to the daemon or exits with a clear message.
func dial(configPath, socketPath string) *ipc.IPCClient {
	client, err := tryDial(configPath, socketPath)
	if err != nil {
		fatal("%v", err)
	}
	return client
}
