package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
server:
  port: "9090"
  environment: "development"
database:
  type: sqlite
  file_path: "/tmp/test.db"
  database: test
auth:
  provider: jwt
  jwt:
    secret: "s3cret"
gemini:
  api_key: "test-key"
`

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, int64(3), cfg.Credits.InitialGrant)
	assert.False(t, cfg.Credits.RefundFailedGenerations)
	assert.Equal(t, 30, cfg.Credits.EventRetentionDays)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 60, cfg.Gemini.TimeoutSeconds)
	require.Len(t, cfg.Credits.Packages, 3)
	assert.Equal(t, int64(10), cfg.Credits.Packages[0].Credits)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_TM_PORT", "7777")
	os.Unsetenv("TEST_TM_MODEL")

	path := writeConfig(t, `
server:
  port: "${TEST_TM_PORT:-8080}"
database:
  type: sqlite
  database: test
auth:
  provider: jwt
  jwt:
    secret: "s3cret"
gemini:
  api_key: "key"
  model: "${TEST_TM_MODEL:-gemini-2.5-flash}"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
}

func TestLoadFromFileRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidateMissingGeminiKey(t *testing.T) {
	path := writeConfig(t, `
database:
  type: sqlite
  database: test
auth:
  provider: jwt
  jwt:
    secret: "s3cret"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateAuthProvider(t *testing.T) {
	tests := []struct {
		name    string
		auth    string
		wantErr bool
	}{
		{
			name: "clerk without secret",
			auth: `
auth:
  provider: clerk
`,
			wantErr: true,
		},
		{
			name: "unknown provider",
			auth: `
auth:
  provider: okta
`,
			wantErr: true,
		},
		{
			name: "clerk with secret",
			auth: `
auth:
  provider: clerk
  clerk:
    secret_key: "sk_test"
`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
database:
  type: sqlite
  database: test
gemini:
  api_key: "key"
`+tt.auth)

			cfg, err := LoadFromFile(path)
			require.NoError(t, err)

			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestPackageByID(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	pkg, ok := cfg.PackageByID("growth")
	require.True(t, ok)
	assert.Equal(t, int64(50), pkg.Credits)

	_, ok = cfg.PackageByID("nonexistent")
	assert.False(t, ok)
}
