//go:build linux

package main

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"feedbreakd/internal/config"
	"feedbreakd/internal/host"
	"feedbreakd/internal/logging"
)

// buildCapabilities assembles the Linux host adapters. A source that
// fails to attach is logged and left absent; the engine substitutes
// no-op stand-ins, so a desktop without a session bus still runs.
func buildCapabilities(cfg *config.Config, log *logging.Logger) (host.Capabilities, func() error) {
	var caps host.Capabilities

	media, err := host.NewMPRISMediaSource()
	if err != nil {
		log.Warn("media source unavailable", "error", err)
	} else {
		caps.Media = host.NewRateLimitedMedia(media, cfg.Host.MediaInterval())
	}

	if cfg.Host.Notifications {
		notifier, err := host.NewDBusNotifier()
		if err != nil {
			log.Warn("desktop notifications unavailable", "error", err)
		} else {
			caps.Notifier = notifier
		}
	}

	if len(cfg.Host.ExitCommand) > 0 {
		caps.Navigator = host.NewExecNavigator(cfg.Host.ExitCommand, cfg.Host.ExitTimeout())
	}

	return caps, sessionBusProbe
}

// sessionBusProbe reports whether the shared session bus connection is
// alive. godbus caches the connection per process, so probing is cheap.
func sessionBusProbe() error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}
	if !conn.Connected() {
		return errors.New("session bus connection closed")
	}
	return nil
}
