package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/config"
	"feedbreakd/internal/engine"
	"feedbreakd/internal/health"
	"feedbreakd/internal/ipc"
	"feedbreakd/internal/logging"
	"feedbreakd/internal/metrics"
	"feedbreakd/internal/store"
	"feedbreakd/internal/uievent"
	"feedbreakd/internal/watcher"
)

// maintenanceInterval paces journal pruning and the uptime gauge.
const maintenanceInterval = time.Hour

// daemon owns every long-lived component of a running instance and
// tears them down in reverse start order.
type daemon struct {
	cfgPath string
	log     *logging.Logger

	metrics  *metrics.DaemonMetrics
	journal  *store.Store
	registry *classify.Registry
	engine   *engine.Engine
	checker  *health.Checker
	server   *ipc.Server
	watch    *watcher.Watcher
	httpSrv  *http.Server

	// reloadMu serializes config application against maintenance reads.
	// cfg is only touched with it held after startup.
	reloadMu sync.Mutex
	cfg      *config.Config

	pidFile string
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(os.Args[2:])

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.FindConfigFile()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := cfg.LoggerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid logging configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer logger.Close()

	logging.DefaultCrashHandler().SetVersion(version)
	defer func() {
		if r := recover(); r != nil {
			logging.DefaultCrashHandler().HandlePanic(r)
			logger.Close()
			os.Exit(2)
		}
	}()

	d := &daemon{
		cfg:     cfg,
		cfgPath: cfgPath,
		log:     logger.WithComponent("daemon"),
	}
	if err := d.run(); err != nil {
		d.log.Error("daemon failed", "error", err)
		fmt.Fprintf(os.Stderr, "feedbreakd: %v\n", err)
		logger.Close()
		os.Exit(1)
	}
}

// run wires the components in order: journal, engine, control socket,
// health checks, diagnostics listener, config watcher. It then blocks
// until SIGINT or SIGTERM.
func (d *daemon) run() error {
	cfg := d.cfg

	d.log.Info("starting feedbreakd",
		"version", version,
		"config", configDescription(d.cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Journal.Enabled {
		j, err := store.OpenWithBusyTimeout(cfg.Journal.Path, cfg.Journal.BusyTimeoutMs)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		d.journal = j
		if stats, err := j.Stats(); err == nil {
			d.log.Info("journal open",
				"path", cfg.Journal.Path,
				"blocks", stats.Blocks,
				"dropped", stats.Dropped)
		}
	}

	d.metrics = metrics.GetMetrics()
	d.registry = cfg.BuildRegistry()
	d.checker = health.NewChecker()

	caps, busProbe := buildCapabilities(cfg, d.log)

	deps := engine.Deps{
		Caps:     caps,
		Registry: d.registry,
		Metrics:  d.metrics,
		Logger:   logging.Default(),
	}
	if d.journal != nil {
		deps.Journal = d.journal
	}
	d.engine = engine.New(cfg.EngineConfig(), deps)

	if err := d.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if cfg.IPC.Enabled {
		if err := d.startControlSocket(cfg); err != nil {
			return err
		}
	} else {
		d.log.Warn("control socket disabled, pause and reload unavailable")
	}

	d.registerHealthChecks(busProbe)

	if cfg.Metrics.Enabled {
		d.startDiagnostics(cfg.Metrics.ListenAddr)
	}

	d.startWatcher()
	d.writePIDFile()

	d.checker.SetReady(true)
	d.log.Info("feedbreakd ready", "watched_apps", len(d.registry.Apps()))

	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("shutdown signal received")
			return d.shutdown()
		case <-maintenance.C:
			d.maintain()
		}
	}
}

// startControlSocket brings up the Unix socket server and connects the
// engine's decision stream and diagnostics snapshots to it.
func (d *daemon) startControlSocket(cfg *config.Config) error {
	handler := ipc.NewEngineHandler(ipc.EngineHandlerConfig{
		Version:    version,
		Engine:     d.engine,
		Registry:   d.registry,
		Journal:    d.journal,
		Health:     d.checker,
		Normalizer: uievent.NewNormalizer("feedbreakd", uievent.DefaultSystemPackages()),
		Reload:     d.reloadFromFile,
	})

	srv, err := ipc.NewServer(ipc.ServerConfig{
		SocketPath:     cfg.IPC.SocketPath,
		ReadTimeout:    time.Duration(cfg.IPC.TimeoutSec) * time.Second,
		MaxConnections: cfg.IPC.MaxConnections,
	}, handler)
	if err != nil {
		return fmt.Errorf("create control socket: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}
	d.server = srv

	d.engine.SetDiagnosticsSink(srv)
	go d.forwardDecisions()

	d.log.Info("control socket ready", "path", srv.SocketPath())
	return nil
}

// forwardDecisions streams gate decisions to subscribed clients. The
// subscription channel closes when the engine stops.
func (d *daemon) forwardDecisions() {
	defer logging.RecoverPanic()
	for ev := range d.engine.Subscribe() {
		d.server.PublishDecision(ev)
	}
}

func (d *daemon) registerHealthChecks(busProbe func() error) {
	lastEvent := func() time.Time { return d.engine.Status().Time }

	// staleAfter 0: quiet days are normal, only an unresponsive control
	// channel makes the engine unhealthy.
	d.checker.RegisterFunc("engine", true,
		health.EventLoopCheck(d.engine.Ping, lastEvent, 0))

	if d.journal != nil {
		d.checker.RegisterFunc("journal", false, health.JournalCheck(d.journal.Ping))
	}
	if d.server != nil {
		d.checker.RegisterFunc("ipc", false, health.IPCCheck(d.server.Running, d.server.ClientCount))
	}
	if busProbe != nil {
		d.checker.RegisterFunc("session_bus", false, health.SessionBusCheck(busProbe))
	}
}

// startDiagnostics serves Prometheus metrics and the health endpoints.
// The listener carries no authentication; validation keeps it opt-in
// and the default bind is loopback.
func (d *daemon) startDiagnostics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().HTTPHandler())
	mux.Handle("/healthz", d.checker.LivenessHandler())
	mux.Handle("/readyz", d.checker.ReadinessHandler())
	mux.Handle("/health", d.checker.HealthHandler())

	d.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		defer logging.RecoverPanic()
		if err := d.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("diagnostics listener failed", "error", err)
		}
	}()

	d.log.Info("diagnostics listener ready", "addr", addr)
}

// startWatcher hot-reloads the configuration file. A daemon started
// without a file watches the default location so creating it later
// takes effect without a restart. Watch failures degrade to
// reload-on-request only.
func (d *daemon) startWatcher() {
	path := d.cfgPath
	if path == "" {
		path = config.ConfigPath()
	}

	w, err := watcher.New(path, 0, d.applyConfig)
	if err != nil {
		d.log.Warn("config watcher unavailable", "error", err)
		return
	}
	if err := w.Start(); err != nil {
		d.log.Warn("config watcher unavailable", "path", path, "error", err)
		return
	}
	d.watch = w
}

func (d *daemon) writePIDFile() {
	path := config.GetDefaultPaths().PIDFile
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		d.log.Warn("pid file not written", "path", path, "error", err)
		return
	}
	d.pidFile = path
}

// applyConfig swaps the detection tunables on the running engine.
// Application-table, journal, logging, and socket changes need a
// restart; applying them partially would misstate what is running.
func (d *daemon) applyConfig(cfg *config.Config) error {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	if err := d.engine.ApplyConfig(cfg.EngineConfig()); err != nil {
		return err
	}
	d.cfg = cfg

	if d.server != nil {
		d.server.PublishConfigReloaded()
	}
	return nil
}

// reloadFromFile backs the reload control request. The file watcher
// validates on its own path; this one loads and validates here.
func (d *daemon) reloadFromFile() error {
	path := d.cfgPath
	if path == "" {
		path = config.ConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return d.applyConfig(cfg)
}

// maintain prunes old journal entries and crash reports and refreshes
// the uptime gauge.
func (d *daemon) maintain() {
	d.metrics.UpdateUptime()
	logging.DefaultCrashHandler().CleanupOldCrashReports(30 * 24 * time.Hour)

	d.reloadMu.Lock()
	retention := d.cfg.Journal.RetentionDays
	d.reloadMu.Unlock()

	if d.journal == nil || retention <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retention)
	pruned, err := d.journal.PruneOlderThan(cutoff)
	if err != nil {
		d.log.Warn("journal prune failed", "error", err)
		return
	}
	if pruned > 0 {
		d.log.Info("journal pruned", "removed", pruned, "retention_days", retention)
	}
}

// shutdown stops components in reverse start order. Clients get a
// shutdown event before the socket goes away.
func (d *daemon) shutdown() error {
	if d.server != nil {
		d.server.PublishShutdown()
	}
	if d.watch != nil {
		if err := d.watch.Stop(); err != nil {
			d.log.Warn("config watcher stop", "error", err)
		}
	}
	if d.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := d.httpSrv.Shutdown(ctx); err != nil {
			d.log.Warn("diagnostics listener stop", "error", err)
		}
		cancel()
	}
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.log.Warn("control socket stop", "error", err)
		}
	}
	if err := d.engine.Stop(); err != nil {
		d.log.Warn("engine stop", "error", err)
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			d.log.Warn("journal close", "error", err)
		}
	}
	if d.pidFile != "" {
		os.Remove(d.pidFile)
	}

	d.log.Info("feedbreakd stopped")
	return nil
}

func configDescription(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}
