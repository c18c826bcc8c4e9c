package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedbreakd/internal/config"
	"feedbreakd/internal/configschema"
	"feedbreakd/internal/engine"
	"feedbreakd/internal/health"
	"feedbreakd/internal/ipc"
)

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	asJSON := fs.Bool("json", false, "Print status as JSON")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	st, err := client.Status(true, true)
	if err != nil {
		fatal("status request failed: %v", err)
	}

	if *asJSON {
		printJSON(st)
		return
	}

	state := colorGreen + "running" + colorReset
	if st.Paused {
		state = colorYellow + "paused" + colorReset
	}

	fmt.Printf("%sfeedbreakd %s%s\n", colorBold, st.Version, colorReset)
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
				line += ", last " + j.LastAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  Journal:    %s\n", line)
		} else {
			fmt.Printf("  Journal:    %sdisabled%s\n", colorDim, colorReset)
		}
	}

	if h := st.Health; h != nil {
		fmt.Printf("  Health:     %s\n", colorizeHealth(h.Status))
		for name, res := range h.Components {
			if res.Status == health.StatusHealthy {
				continue
			}
			fmt.Printf("    %-14s %s  %s\n", name, colorizeHealth(res.Status), res.Message)
		}
	}
}

func cmdState() {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	asJSON := fs.Bool("json", false, "Print state as JSON")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	snap, err := client.GetState()
	if err != nil {
		fatal("state request failed: %v", err)
	}

	if *asJSON {
		printJSON(snap)
		return
	}

	if snap.Time.IsZero() {
		fmt.Println("No events processed yet.")
		return
	}

	header := fmt.Sprintf("Engine state as of %s", snap.Time.Local().Format("15:04:05"))
	if snap.Paused {
		header += " " + colorYellow + "(paused)" + colorReset
	}
	fmt.Println(header)

	if snap.Foreground != "" {
		fmt.Printf("  Foreground: %s (since %s)\n",
			snap.Foreground, snap.ForegroundSince.Local().Format("15:04:05"))
	}
	if !snap.LastBlock.IsZero() {
		fmt.Printf("  Last block: %s\n", snap.LastBlock.Local().Format("15:04:05"))
	}
	fmt.Printf("  Events:     %d\n", snap.EventsSeen)

	if len(snap.Apps) == 0 {
		fmt.Println("\nNo tracked apps.")
		return
	}

	fmt.Println()
	fmt.Printf("%s  %-28s %-10s %7s %8s  %s%s\n",
		colorBold, "APP", "PHASE", "SWIPES", "SCROLLS", "LAST SEEN AS", colorReset)
	for _, app := range snap.Apps {
		name := app.DisplayName
		if name == "" {
			name = app.App
		}
		fmt.Printf("  %-28s %-10s %7d %8d  %s\n",
			name, app.Phase, app.SwipeCount, app.ScrollCount, app.LastClassification)
	}
}

func cmdRecent() {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	app := fs.String("app", "", "Only decisions for this app identifier")
	limit := fs.Int("limit", 20, "Maximum number of decisions")
	asJSON := fs.Bool("json", false, "Print decisions as JSON")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	resp, err := client.RecentBlocks(*app, *limit)
	if err != nil {
		fatal("recent request failed: %v", err)
	}

	if *asJSON {
		printJSON(resp)
		return
	}

	if len(resp.Blocks) == 0 {
		fmt.Println("No recorded decisions.")
		return
	}

	for _, b := range resp.Blocks {
		fmt.Println(formatDecisionLine(b.At, b.DisplayName, b.App, b.Reason, b.Detail, b.Dropped))
	}
	if resp.Total > len(resp.Blocks) {
		fmt.Printf("%s(%d of %d shown)%s\n", colorDim, len(resp.Blocks), resp.Total, colorReset)
	}
}

func cmdPause() {
	fs := flag.NewFlagSet("pause", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	if err := client.Pause(); err != nil {
		fatal("pause failed: %v", err)
	}
	printSuccess("Enforcement paused. Detection keeps running; resume with: feedbreakctl resume")
}

func cmdResume() {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	if err := client.Resume(); err != nil {
		fatal("resume failed: %v", err)
	}
	printSuccess("Enforcement resumed.")
}

func cmdReload() {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	if err := client.Reload(); err != nil {
		fatal("reload failed: %v", err)
	}
	printSuccess("Configuration reloaded.")
}

func cmdConfig() {
	if len(os.Args) < 3 || os.Args[2] != "validate" {
		fmt.Fprintln(os.Stderr, "Usage: feedbreakctl config validate <file>")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("config validate", flag.ExitOnError)
	fs.Parse(os.Args[3:])
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: feedbreakctl config validate <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	if err := configschema.ValidateFile(path); err != nil {
		fatal("schema validation failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("validation failed: %v", err)
	}

	printSuccess(fmt.Sprintf("%s is valid", path))
}

func cmdWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	snapshots := fs.Bool("snapshots", false, "Include per-event state snapshots")
	asJSON := fs.Bool("json", false, "Print events as JSON lines")
	fs.Parse(os.Args[2:])

	client := dial(*configPath, *socketPath)
	defer client.Close()

	var filter []ipc.EventType
	if !*snapshots {
		filter = []ipc.EventType{ipc.EventDecision, ipc.EventConfigReloaded, ipc.EventDaemonShutdown}
	}
	if err := client.Subscribe(filter); err != nil {
		fatal("subscribe failed: %v", err)
	}

	if !*asJSON {
		fmt.Printf("%sWatching decisions. Ctrl+C to stop.%s\n", colorDim, colorReset)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	liveness := time.NewTicker(time.Second)
	defer liveness.Stop()

	for {
		select {
		case <-sig:
			fmt.Println()
			return

		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			if *asJSON {
				printJSONLine(ev)
			} else {
				printEvent(ev)
			}
			if ev.Type == ipc.EventDaemonShutdown {
				return
			}

		case <-liveness.C:
			if !client.IsConnected() {
				printError("connection lost")
				os.Exit(1)
			}
		}
	}
}

func cmdVersion() {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	socketPath := fs.String("socket", "", "Control socket path")
	fs.Parse(os.Args[2:])

	fmt.Printf("feedbreakctl %s (protocol v%d)\n", version, ipc.ProtocolVersion)

	client, err := tryDial(*configPath, *socketPath)
	if err != nil {
		fmt.Printf("%sdaemon not reachable%s\n", colorDim, colorReset)
		return
	}
	defer client.Close()

	if v, err := client.Version(); err == nil {
		fmt.Printf("feedbreakd  %s (protocol v%d)\n", v.Version, v.ProtocolVersion)
	}
}

// printEvent renders one streamed event as a line.
func printEvent(ev *ipc.Event) {
	switch ev.Type {
	case ipc.EventDecision:
		var dec engine.BlockEvent
		if err := decodeEventData(ev.Data, &dec); err != nil {
			fmt.Printf("%s  %sundecodable decision event%s\n",
				ev.Timestamp.Local().Format("15:04:05"), colorDim, colorReset)
			return
		}
		fmt.Println(formatDecisionLine(dec.Time, dec.DisplayName, dec.App, string(dec.Reason), dec.Detail, dec.Dropped))

	case ipc.EventConfigReloaded:
		fmt.Printf("%s  %s⟳ configuration reloaded%s\n",
			ev.Timestamp.Local().Format("15:04:05"), colorCyan, colorReset)

	case ipc.EventDaemonShutdown:
		fmt.Printf("%s  %sdaemon shutting down%s\n",
			ev.Timestamp.Local().Format("15:04:05"), colorYellow, colorReset)

	case ipc.EventStateSnapshot:
		var snap engine.StateSnapshot
		if err := decodeEventData(ev.Data, &snap); err != nil {
			return
		}
		fmt.Printf("%s  %ssnapshot%s foreground=%s apps=%d events=%d\n",
			ev.Timestamp.Local().Format("15:04:05"), colorDim, colorReset,
			snap.Foreground, len(snap.Apps), snap.EventsSeen)
	}
}

// formatDecisionLine renders one gate decision. Fired decisions get a
// red marker, cooldown drops a dim one.
func formatDecisionLine(at time.Time, displayName, app, reason, detail string, dropped bool) string {
	name := displayName
	if name == "" {
		name = app
	}

	marker := colorRed + "✗ block" + colorReset
	if dropped {
		marker = colorDim + "- drop " + colorReset
	}

	line := fmt.Sprintf("%s  %s  %-24s %s",
		at.Local().Format("15:04:05"), marker, name, reason)
	if detail != "" {
		line += fmt.Sprintf("  %s%s%s", colorDim, detail, colorReset)
	}
	return line
}

func colorizeHealth(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return colorGreen + string(s) + colorReset
	case health.StatusDegraded:
		return colorYellow + string(s) + colorReset
	case health.StatusUnhealthy:
		return colorRed + string(s) + colorReset
	default:
		return string(s)
	}
}

// decodeEventData converts the generically-unmarshalled event payload
// into a concrete type by round-tripping through JSON.
func decodeEventData(data any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode failed: %v", err)
	}
	fmt.Println(string(out))
}

func printJSONLine(v any) {
	out, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
