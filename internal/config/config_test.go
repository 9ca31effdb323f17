package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Settings.MaxTokens != Default().Settings.MaxTokens {
		t.Errorf("MaxTokens = %d, want default", cfg.Settings.MaxTokens)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	want := Default()
	want.CurrentEndpoint = "local"
	want.CurrentModel = "gpt-4o"
	want.Endpoints = []Endpoint{{
		ID: "local", Name: "Local", BaseURL: "http://localhost:8080/v1",
		Models: []ModelConfig{{ID: "gpt-4o", Name: "GPT-4o", MaxTokens: 128000, Enabled: true}},
	}}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.CurrentEndpoint != want.CurrentEndpoint || got.CurrentModel != want.CurrentModel {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Endpoints) != 1 || got.Endpoints[0].BaseURL != "http://localhost:8080/v1" {
		t.Errorf("Endpoints = %+v", got.Endpoints)
	}
}

func TestLoad_EnvOverridesApplyOnTopOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	t.Setenv(envBaseURL, "http://override:9000/v1")
	t.Setenv(envAPIKey, "sk-test")
	t.Setenv(envModel, "gpt-4o-mini")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CurrentModel != "gpt-4o-mini" {
		t.Errorf("CurrentModel = %q, want override", cfg.CurrentModel)
	}
	if cfg.CurrentEndpoint != "env" {
		t.Errorf("CurrentEndpoint = %q, want \"env\"", cfg.CurrentEndpoint)
	}
	ep, ok := cfg.CurrentEndpointConfig()
	if !ok || ep.BaseURL != "http://override:9000/v1" || ep.APIKey != "sk-test" {
		t.Errorf("resolved endpoint = %+v", ep)
	}
}

func TestFindEndpoint_UnknownIDNotFound(t *testing.T) {
	cfg := Default()
	if _, ok := cfg.FindEndpoint("nope"); ok {
		t.Error("FindEndpoint(\"nope\") found an endpoint in an empty config")
	}
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
}
