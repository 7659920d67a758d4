package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tagmaster/tagmaster-api/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultInitialGrant       = 3
	defaultEventRetentionDays = 30
	defaultGeminiModel        = "gemini-2.5-flash"
	defaultGeminiTimeoutSecs  = 60
)

// Config represents the complete application configuration
type Config struct {
	Server   models.ServerConfig    `yaml:"server"`
	Database *models.DatabaseConfig `yaml:"database,omitempty"`
	Redis    *models.RedisConfig    `yaml:"redis,omitempty"`
	Auth     models.AuthConfig      `yaml:"auth"`
	Stripe   models.StripeConfig    `yaml:"stripe"`
	Gemini   models.GeminiConfig    `yaml:"gemini"`
	Credits  models.CreditsConfig   `yaml:"credits"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	// Validate and clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	// Substitute environment variables before parsing
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

func (c *Config) applyDefaults() {
	if c.Credits.InitialGrant <= 0 {
		c.Credits.InitialGrant = defaultInitialGrant
	}
	if c.Credits.EventRetentionDays <= 0 {
		c.Credits.EventRetentionDays = defaultEventRetentionDays
	}
	if len(c.Credits.Packages) == 0 {
		c.Credits.Packages = models.DefaultCreditPackages()
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultGeminiTimeoutSecs
	}
}

// PackageByID looks up a configured credit package.
func (c *Config) PackageByID(id string) (models.CreditPackage, bool) {
	for _, pkg := range c.Credits.Packages {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return models.CreditPackage{}, false
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// GetNormalizedLogLevel returns the configured log level in lowercase
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(strings.TrimSpace(c.Server.LogLevel))
}

// Validate checks if all required configuration values are set
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required")
	}

	switch c.Auth.Provider {
	case "clerk":
		if c.Auth.ClerkConfig == nil || c.Auth.ClerkConfig.SecretKey == "" {
			return fmt.Errorf("auth.clerk.secret_key is required for the clerk provider")
		}
	case "jwt":
		if c.Auth.JWTConfig == nil || c.Auth.JWTConfig.Secret == "" {
			return fmt.Errorf("auth.jwt.secret is required for the jwt provider")
		}
	case "":
		return fmt.Errorf("auth.provider is required (clerk or jwt)")
	default:
		return fmt.Errorf("unsupported auth provider: %s", c.Auth.Provider)
	}

	for _, pkg := range c.Credits.Packages {
		if pkg.Credits <= 0 {
			return fmt.Errorf("credit package %q must grant a positive credit amount", pkg.ID)
		}
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	// Pattern matches ${VAR_NAME} or ${VAR_NAME:-default_value}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
