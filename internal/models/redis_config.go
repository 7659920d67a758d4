package models

// RedisConfig configures the optional pub/sub backbone. An empty URL
// disables Redis and profile change events stay in-process.
type RedisConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}
