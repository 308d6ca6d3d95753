package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groeimetai/snow-flow/internal/registry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearSnowEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SNOW_ROLE", "SNOW_AUDIT_DB", "SNOW_INSTANCE_URL", "SNOW_INSTANCE_NAME",
		"SNOW_CLIENT_ID", "SNOW_CLIENT_SECRET", "SNOW_REFRESH_TOKEN",
		"SNOW_USERNAME", "SNOW_PASSWORD",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFile(t *testing.T) {
	clearSnowEnv(t)
	path := writeConfig(t, `
role: stakeholder
default_instance: dev
call_timeout_seconds: 30
instances:
  dev:
    url: https://dev.service-now.com
    client_id: abc
    client_secret: xyz
    refresh_token: rt
  prod:
    url: https://prod.service-now.com
    client_id: def
    username: svc
    password: pw
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, registry.RoleStakeholder, cfg.CallerRole())
	assert.Equal(t, "dev", cfg.DefaultInstance)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())

	creds := cfg.Credentials()
	require.Len(t, creds, 2)
	assert.Equal(t, "https://dev.service-now.com", creds["dev"].BaseURL)
	assert.Equal(t, "rt", creds["dev"].RefreshToken)
	assert.Equal(t, "svc", creds["prod"].Username)
}

func TestLoadEnvOnly(t *testing.T) {
	clearSnowEnv(t)
	t.Setenv("SNOW_INSTANCE_URL", "https://acme.service-now.com")
	t.Setenv("SNOW_CLIENT_ID", "envclient")
	t.Setenv("SNOW_REFRESH_TOKEN", "envtoken")
	t.Setenv("SNOW_ROLE", "admin")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, registry.RoleAdmin, cfg.CallerRole())
	assert.Equal(t, "default", cfg.DefaultInstance)
	assert.Equal(t, "envclient", cfg.Instances["default"].ClientID)
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	clearSnowEnv(t)
	t.Setenv("TEST_SNOW_SECRET", "s3cret")
	path := writeConfig(t, `
instances:
  dev:
    url: https://dev.service-now.com
    client_id: abc
    client_secret: ${TEST_SNOW_SECRET}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Instances["dev"].ClientSecret)
}

func TestLoadValidation(t *testing.T) {
	clearSnowEnv(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown role",
			body: "role: superuser\ninstances:\n  dev:\n    url: https://x\n    client_id: a\n",
			want: "unknown role",
		},
		{
			name: "no instances",
			body: "role: developer\n",
			want: "no instances",
		},
		{
			name: "instance without url",
			body: "instances:\n  dev:\n    client_id: a\n",
			want: "no url",
		},
		{
			name: "instance without client_id",
			body: "instances:\n  dev:\n    url: https://x\n",
			want: "no client_id",
		},
		{
			name: "ambiguous default",
			body: "instances:\n  a:\n    url: https://x\n    client_id: i\n  b:\n    url: https://y\n    client_id: j\n",
			want: "default_instance is required",
		},
		{
			name: "default not configured",
			body: "default_instance: prod\ninstances:\n  dev:\n    url: https://x\n    client_id: a\n",
			want: "not a configured instance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearSnowEnv(t)
	path := writeConfig(t, `
instances:
  dev:
    url: https://dev.service-now.com
    client_id: abc
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, registry.RoleDeveloper, cfg.CallerRole())
	assert.Equal(t, "dev", cfg.DefaultInstance, "single instance becomes the default")
	assert.Equal(t, 60*time.Second, cfg.CallTimeout())
	assert.Empty(t, cfg.AuditDB)
}
