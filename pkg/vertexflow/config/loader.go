package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decodeFunc unmarshals raw config bytes into a generic map.
type decodeFunc func([]byte, any) error

// decoders maps a file extension to its decoder. YAML handles both common
// spellings.
var decoders = map[string]decodeFunc{
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
	".json": json.Unmarshal,
}

// FromFile loads configuration from a file, picking the decoder by
// extension. Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return decodeConfig(data, decode, strings.TrimPrefix(ext, "."))
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	return decodeConfig(data, yaml.Unmarshal, "yaml")
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	return decodeConfig(data, json.Unmarshal, "json")
}

func decodeConfig(data []byte, decode decodeFunc, format string) (Config, error) {
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}
