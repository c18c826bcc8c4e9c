//go:build !linux

package main

import (
	"feedbreakd/internal/config"
	"feedbreakd/internal/host"
	"feedbreakd/internal/logging"
)

// buildCapabilities on platforms without session-bus integration wires
// only the exit command. Detection still runs on injected events; media
// and notification capabilities fall back to no-op stand-ins.
func buildCapabilities(cfg *config.Config, log *logging.Logger) (host.Capabilities, func() error) {
	var caps host.Capabilities

	if len(cfg.Host.ExitCommand) > 0 {
		caps.Navigator = host.NewExecNavigator(cfg.Host.ExitCommand, cfg.Host.ExitTimeout())
	}

	log.Debug("no native media or notification adapters on this platform")
	return caps, nil
}
