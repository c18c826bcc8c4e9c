// Package config handles configuration loading, validation, and management for feedbreakd.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/feedbreakd/
//   - Linux:   ~/.local/share/feedbreakd/
//   - Windows: %APPDATA%\feedbreakd\
//
// Falls back to ~/.feedbreakd if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/feedbreakd/
//   - Linux:   ~/.config/feedbreakd/
//   - Windows: %APPDATA%\feedbreakd\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses same dir for config and data
	case "linux":
		return linuxConfigDir()
	case "windows":
		return windowsDataDir() // Windows uses same dir for config and data
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/feedbreakd/
//   - Linux:   ~/.local/share/feedbreakd/logs/
//   - Windows: %LOCALAPPDATA%\feedbreakd\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSLogDir()
	case "linux":
		return filepath.Join(linuxDataDir(), "logs")
	case "windows":
		return windowsLogDir()
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

// PlatformRuntimeDir returns the platform-specific runtime directory for sockets.
//
// Platform paths:
//   - macOS:   /tmp/feedbreakd-$UID/
//   - Linux:   $XDG_RUNTIME_DIR/feedbreakd/ or /tmp/feedbreakd-$UID/
//   - Windows: %LOCALAPPDATA%\feedbreakd\run
func PlatformRuntimeDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join("/tmp", "feedbreakd-"+getUserID())
	case "linux":
		return linuxRuntimeDir()
	case "windows":
		return windowsRuntimeDir()
	default:
		return filepath.Join("/tmp", "feedbreakd-"+getUserID())
	}
}

// macOS-specific paths

func macOSDataDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Application Support", "feedbreakd")
}

func macOSLogDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, "Library", "Logs", "feedbreakd")
}

// Linux-specific paths following XDG Base Directory Specification

func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "feedbreakd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "feedbreakd")
}

func linuxConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "feedbreakd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "feedbreakd")
}

func linuxRuntimeDir() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "feedbreakd")
	}
	return filepath.Join("/tmp", "feedbreakd-"+getUserID())
}

// Windows-specific paths

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "feedbreakd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Roaming", "feedbreakd")
}

func windowsLogDir() string {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, "feedbreakd", "logs")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Local", "feedbreakd", "logs")
}

func windowsRuntimeDir() string {
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		return filepath.Join(localAppData, "feedbreakd", "run")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "AppData", "Local", "feedbreakd", "run")
}

// Fallback path

func fallbackDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".feedbreakd")
}

func getUserID() string {
	if uid := os.Getuid(); uid >= 0 {
		return strconv.Itoa(uid)
	}
	return "0"
}

// AF_UNIX sockets work on Windows 10+ as well, so the control socket
// lives on the filesystem everywhere.
func defaultSocketPath() string {
	if dir := PlatformRuntimeDir(); dir != "" {
		return filepath.Join(dir, "feedbreakd.sock")
	}
	return "/tmp/feedbreakd.sock"
}

// DefaultPaths collects the default locations for a platform.
type DefaultPaths struct {
	DataDir    string
	ConfigDir  string
	LogDir     string
	RuntimeDir string

	ConfigFile  string
	JournalFile string
	LogFile     string
	SocketPath  string
	PIDFile     string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := PlatformDataDir()
	configDir := PlatformConfigDir()
	logDir := PlatformLogDir()
	runtimeDir := PlatformRuntimeDir()

	return &DefaultPaths{
		DataDir:    dataDir,
		ConfigDir:  configDir,
		LogDir:     logDir,
		RuntimeDir: runtimeDir,

		ConfigFile:  filepath.Join(configDir, "config.toml"),
		JournalFile: filepath.Join(dataDir, "journal.db"),
		LogFile:     filepath.Join(logDir, "feedbreakd.log"),
		SocketPath:  defaultSocketPath(),
		PIDFile:     filepath.Join(runtimeDir, "feedbreakd.pid"),
	}
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	paths := GetDefaultPaths()

	// Search order: current directory, then config directory, then data
	// directory.
	searchDirs := []string{
		".",
		paths.ConfigDir,
		paths.DataDir,
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
