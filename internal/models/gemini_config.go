package models

// GeminiConfig configures the outbound generation call.
type GeminiConfig struct {
	APIKey         string `json:"api_key" yaml:"api_key"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}
