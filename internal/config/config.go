// Package config loads and saves the single JSON configuration document
// described in spec §6: the active endpoint/model selection, the catalog
// of configured LLM endpoints, and a flat settings block. No channel,
// auth, or observability sections are carried over from the teacher's
// config — those subsystems are out of scope here (§1 non-goals).
package config

// ModelConfig describes one model offered by an Endpoint.
type ModelConfig struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MaxTokens    int    `json:"maxTokens"`
	Enabled      bool   `json:"enabled"`
	HealthStatus string `json:"healthStatus,omitempty"`
}

// Endpoint describes one OpenAI-compatible chat-completions host.
type Endpoint struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	BaseURL string        `json:"baseUrl"`
	APIKey  string        `json:"apiKey,omitempty"`
	Models  []ModelConfig `json:"models"`
}

// Settings is the flat block of run-time toggles spec §6 names.
type Settings struct {
	AutoApprove    bool    `json:"autoApprove"`
	DebugMode      bool    `json:"debugMode"`
	StreamResponse bool    `json:"streamResponse"`
	AutoSave       bool    `json:"autoSave"`
	MaxTokens      int     `json:"maxTokens"`
	Temperature    float64 `json:"temperature"`
}

// Config is the full on-disk document (§6).
type Config struct {
	CurrentEndpoint string     `json:"currentEndpoint,omitempty"`
	CurrentModel    string     `json:"currentModel,omitempty"`
	Endpoints       []Endpoint `json:"endpoints"`
	Settings        Settings   `json:"settings"`
}

// Default returns the configuration a fresh install starts with: no
// endpoints configured yet, conservative settings.
func Default() *Config {
	return &Config{
		Endpoints: []Endpoint{},
		Settings: Settings{
			AutoApprove:    false,
			DebugMode:      false,
			StreamResponse: true,
			AutoSave:       true,
			MaxTokens:      4096,
			Temperature:    0.7,
		},
	}
}

// FindEndpoint returns the endpoint with the given id, if any.
func (c *Config) FindEndpoint(id string) (Endpoint, bool) {
	for _, e := range c.Endpoints {
		if e.ID == id {
			return e, true
		}
	}
	return Endpoint{}, false
}

// CurrentEndpointConfig resolves CurrentEndpoint against Endpoints.
func (c *Config) CurrentEndpointConfig() (Endpoint, bool) {
	if c.CurrentEndpoint == "" {
		return Endpoint{}, false
	}
	return c.FindEndpoint(c.CurrentEndpoint)
}
