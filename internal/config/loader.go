package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Environment variable overrides applied on top of a loaded file, mirroring
// the teacher's defaults-then-file-then-env layering in
// internal/config/loader.go (there YAML/JSON5 + $include; here a single
// flat JSON document, so the override surface is just these three knobs).
const (
	envBaseURL = "AGENTCORE_BASE_URL"
	envAPIKey  = "AGENTCORE_API_KEY"
	envModel   = "AGENTCORE_MODEL"
)

// Load reads path, falling back to Default() if the file does not exist,
// then applies environment overrides to the resolved current endpoint.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, jsonErr)
		}
	case os.IsNotExist(err):
		// fresh install: Default() stands.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	baseURL := os.Getenv(envBaseURL)
	apiKey := os.Getenv(envAPIKey)
	model := os.Getenv(envModel)
	if baseURL == "" && apiKey == "" && model == "" {
		return
	}

	if model != "" {
		cfg.CurrentModel = model
	}
	if baseURL == "" && apiKey == "" {
		return
	}

	const envEndpointID = "env"
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].ID != envEndpointID {
			continue
		}
		if baseURL != "" {
			cfg.Endpoints[i].BaseURL = baseURL
		}
		if apiKey != "" {
			cfg.Endpoints[i].APIKey = apiKey
		}
		cfg.CurrentEndpoint = envEndpointID
		return
	}
	cfg.Endpoints = append(cfg.Endpoints, Endpoint{ID: envEndpointID, Name: "Environment", BaseURL: baseURL, APIKey: apiKey})
	cfg.CurrentEndpoint = envEndpointID
}

// Save atomically writes cfg to path as indented JSON, matching the
// teacher's write-to-tmp-then-rename pattern (internal/pairing/store.go).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
