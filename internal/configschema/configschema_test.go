package configschema

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"feedbreakd/internal/config"
)

func TestCompile(t *testing.T) {
	if _, err := Compile(); err != nil {
		t.Fatalf("embedded schema must compile: %v", err)
	}
}

// TestDefaultConfigValidates checks that the daemon's own defaults
// conform to the published schema.
func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(config.DefaultConfig()); err != nil {
		t.Errorf("default config failed schema validation: %v", err)
	}
}

// TestSavedConfigValidates round-trips the TOML emitter through the
// schema, so Save output and schema cannot drift apart silently.
func TestSavedConfigValidates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Apps = []config.AppConfig{
		{
			ID:          "com.example.clips",
			DisplayName: "Example Clips",
			FeedMarkers: []string{"com.example.clips:id/pager"},
		},
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	if err := ValidateFile(path); err != nil {
		t.Errorf("saved config failed schema validation: %v", err)
	}
}

func TestExampleConfigValidates(t *testing.T) {
	example := filepath.Join(repoRoot(t), "docs", "examples", "config.example.toml")

	if err := ValidateFile(example); err != nil {
		t.Errorf("example config failed schema validation: %v", err)
	}

	// The example must also pass the daemon's semantic validation.
	cfg, err := config.Load(example)
	if err != nil {
		t.Fatalf("Load example failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config failed semantic validation: %v", err)
	}
}

func TestRejectsMalformedConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "wrong type for duration",
			content: `
[detection]
grace_period_ms = "fast"
`,
		},
		{
			name: "below minimum",
			content: `
[detection]
swipe_threshold = 0
`,
		},
		{
			name: "unknown detection field",
			content: `
[detection]
swipe_limit = 3
`,
		},
		{
			name: "unknown top-level table",
			content: `
[detectoin]
swipe_threshold = 1
`,
		},
		{
			name: "bad log level",
			content: `
[logging]
level = "loud"
`,
		},
		{
			name: "app without id",
			content: `
[[apps]]
display_name = "No ID"
use_generic_fallback = true
`,
		},
		{
			name: "bad permissions string",
			content: `
[ipc]
permissions = "rw-r--r--"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write config: %v", err)
			}

			err := ValidateFile(path)
			if err == nil {
				t.Fatal("expected schema validation to fail")
			}
			if !strings.Contains(err.Error(), "schema validation") {
				t.Errorf("expected a schema validation error, got: %v", err)
			}
		})
	}
}

func TestValidateFileJSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(jsonPath, []byte(`{"version": 1, "detection": {"swipe_threshold": 2}}`), 0600); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := ValidateFile(jsonPath); err != nil {
		t.Errorf("valid JSON config rejected: %v", err)
	}

	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("version: 1\ndetection:\n  swipe_threshold: 2\n"), 0600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := ValidateFile(yamlPath); err != nil {
		t.Errorf("valid YAML config rejected: %v", err)
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to resolve caller path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
