package collection

import (
	"fmt"
	"os"
	"sort"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Config declares named collections, typically loaded from YAML:
//
//	collections:
//	  tasks:
//	    endpoint: http://localhost:8080/collections/tasks/items
//	    params: {limit: 20, sort: -updatedAt}
//	    autoload: true
type Config struct {
	Collections map[string]Settings `yaml:"collections"`
}

// Names returns the configured collection names, sorted.
func (cfg *Config) Names() []string {
	names := make([]string, 0, len(cfg.Collections))
	for name := range cfg.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig reads a YAML collections file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML collection declarations and checks every endpoint is set.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse collections config: %w", err)
	}
	for _, name := range cfg.Names() {
		if cfg.Collections[name].Endpoint == "" {
			return nil, fmt.Errorf("collection %q: %w", name, ErrNoEndpoint)
		}
	}
	return &cfg, nil
}

// Decode converts a record into T through its JSON form. Use it to bind
// records to application structs.
func Decode[T any](rec *Record) (T, error) {
	var out T
	b, err := rec.MarshalJSON()
	if err != nil {
		return out, err
	}
	if err := gojson.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}
