// Package configschema validates configuration documents against the
// embedded JSON Schema.
//
// The daemon's own Validate covers semantic rules (threshold ordering,
// required paths); the schema covers shape: field names, types, enums.
// feedbreakctl's `config validate` runs both.
package configschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/config-v1.schema.json
var configSchema []byte

const schemaURL = "https://feedbreakd.dev/schema/config-v1.schema.json"

// Compile returns the compiled configuration schema.
func Compile() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(configSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Validate checks a decoded configuration document against the schema.
// The instance is normalized through a JSON round trip first, so TOML
// and YAML decodings validate identically to JSON ones.
func Validate(instance any) error {
	schema, err := Compile()
	if err != nil {
		return err
	}

	normalized, err := normalize(instance)
	if err != nil {
		return err
	}

	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// ValidateFile decodes a configuration file based on its extension and
// validates it against the schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var instance any
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, &instance); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &instance); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
		instance = m
	}

	return Validate(instance)
}

// normalize round-trips the instance through encoding/json so the
// validator sees only raw JSON types regardless of the source decoder.
func normalize(instance any) (any, error) {
	raw, err := json.Marshal(instance)
	if err != nil {
		return nil, fmt.Errorf("normalize instance: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize instance: %w", err)
	}
	return out, nil
}
