// Integration tests for the daemon composition. These drive the same
// wiring cmdRun performs, without signals: journal, engine, control
// socket, and health checks all talk to each other in-process.
package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"feedbreakd/internal/config"
	"feedbreakd/internal/engine"
	"feedbreakd/internal/health"
	"feedbreakd/internal/ipc"
	"feedbreakd/internal/logging"
	"feedbreakd/internal/metrics"
	"feedbreakd/internal/store"
	"feedbreakd/internal/uievent"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.IPC.SocketPath = filepath.Join(dir, "ctl.sock")
	cfg.Logging.Output = "stderr"
	cfg.Logging.FilePath = filepath.Join(dir, "feedbreakd.log")
	cfg.Metrics.Enabled = false
	cfg.Host.Notifications = false

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return cfg
}

// newTestDaemon wires a daemon the way cmdRun does and tears it down
// through the real shutdown path.
func newTestDaemon(t *testing.T, cfg *config.Config) *daemon {
	t.Helper()

	d := &daemon{
		cfg: cfg,
		log: logging.Default().WithComponent("test"),
	}
	d.metrics = metrics.GetMetrics()
	d.registry = cfg.BuildRegistry()
	d.checker = health.NewChecker()

	journal, err := store.OpenWithBusyTimeout(cfg.Journal.Path, cfg.Journal.BusyTimeoutMs)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	d.journal = journal

	d.engine = engine.New(cfg.EngineConfig(), engine.Deps{
		Registry: d.registry,
		Journal:  d.journal,
		Metrics:  d.metrics,
	})
	if err := d.engine.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}

	if err := d.startControlSocket(cfg); err != nil {
		t.Fatalf("start control socket: %v", err)
	}
	d.registerHealthChecks(nil)
	d.checker.SetReady(true)

	t.Cleanup(func() { d.shutdown() })
	return d
}

func dialDaemon(t *testing.T, socketPath string) *ipc.IPCClient {
	t.Helper()

	client := ipc.NewClient(ipc.ClientConfig{
		SocketPath:     socketPath,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDaemonComposition(t *testing.T) {
	cfg := testConfig(t)
	newTestDaemon(t, cfg)

	client := dialDaemon(t, cfg.IPC.SocketPath)

	st, err := client.Status(true, true)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Running {
		t.Error("daemon should report running")
	}
	if st.Journal == nil || !st.Journal.Enabled {
		t.Error("journal should be wired into status")
	}
	if st.Health == nil {
		t.Fatal("health should be wired into status")
	}
	if !st.Health.Ready {
		t.Error("daemon should be ready")
	}
	for _, name := range []string{"engine", "journal", "ipc"} {
		if _, ok := st.Health.Components[name]; !ok {
			t.Errorf("health check %q not registered", name)
		}
	}
	if res := st.Health.Components["engine"]; res.Status != health.StatusHealthy {
		t.Errorf("engine check = %s, want healthy", res.Status)
	}
}

func TestInjectedEventReachesEngine(t *testing.T) {
	cfg := testConfig(t)
	newTestDaemon(t, cfg)

	client := dialDaemon(t, cfg.IPC.SocketPath)

	resp, err := client.InjectEvent(uievent.Raw{
		Package: "com.zhiliaoapp.musically",
		Type:    uievent.RawWindowStateChanged,
	})
	if err != nil {
		t.Fatalf("inject: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("event rejected: %s", resp.Reason)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := client.GetState()
		if err != nil {
			t.Fatalf("state: %v", err)
		}
		if snap.Foreground == "com.zhiliaoapp.musically" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("foreground = %q, want com.zhiliaoapp.musically", snap.Foreground)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestReloadAppliesTunables(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg)

	path := filepath.Join(t.TempDir(), "config.toml")
	d.cfgPath = path

	updated := cfg.Clone()
	updated.Detection.SwipeThreshold = 4
	if err := config.SaveConfig(updated, path); err != nil {
		t.Fatalf("save config: %v", err)
	}

	if err := d.reloadFromFile(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := d.cfg.Detection.SwipeThreshold; got != 4 {
		t.Errorf("swipe threshold after reload = %d, want 4", got)
	}

	// An invalid file must be rejected and leave the running config alone.
	broken := cfg.Clone()
	broken.Detection.SwipeThreshold = 0
	if err := config.SaveConfig(broken, path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	if err := d.reloadFromFile(); err == nil {
		t.Error("reload of invalid config should fail")
	}
	if got := d.cfg.Detection.SwipeThreshold; got != 4 {
		t.Errorf("swipe threshold after failed reload = %d, want 4", got)
	}
}

func TestPauseResumeOverSocket(t *testing.T) {
	cfg := testConfig(t)
	newTestDaemon(t, cfg)

	client := dialDaemon(t, cfg.IPC.SocketPath)

	if err := client.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	st, err := client.Status(false, false)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Paused {
		t.Error("daemon should report paused")
	}

	if err := client.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st, err = client.Status(false, false)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Paused {
		t.Error("daemon should report resumed")
	}
}

func TestConfigDescription(t *testing.T) {
	if got := configDescription(""); got != "built-in defaults" {
		t.Errorf("configDescription(\"\") = %q", got)
	}
	if got := configDescription("/etc/feedbreak/config.toml"); got != "/etc/feedbreak/config.toml" {
		t.Errorf("configDescription(path) = %q", got)
	}
}
