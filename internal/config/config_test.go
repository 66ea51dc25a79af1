package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

export:
  max_points_per_call: 1000
  initial_backoff: 250ms
  timezone: "Asia/Singapore"

logging:
  level: "debug"
  format: "text"

projects:
  - name: Concorde
    access_key: "dfe0cec0-6eed-41ab"
    secret_key: "949aeb70-5383-4506"
    api_gateway: "https://ag-eu2.envisioniot.com"
    org_id: "o16779139592841674"
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 1000, config.Export.MaxPointsPerCall)
	assert.Equal(t, 250*time.Millisecond, config.Export.InitialBackoff)
	assert.Equal(t, "debug", config.Logging.Level)
	require.Len(t, config.Projects, 1)
	assert.Equal(t, "Concorde", config.Projects[0].Name)
	assert.Equal(t, "o16779139592841674", config.Projects[0].OrgID)

	// untouched keys keep their defaults
	assert.Equal(t, 3, config.Export.MaxAttempts)
	assert.Equal(t, 24*time.Hour, config.Export.MaxChunkSpan)
	assert.Equal(t, 30*time.Second, config.API.Timeout)

	loc, err := config.Export.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Singapore", loc.String())
}

func TestLoadWithEnvExpansion(t *testing.T) {
	t.Setenv("CAG_ACCESS_KEY", "a19a81ad-3310-4f9b")
	t.Setenv("CAG_SECRET_KEY", "1294a0ea-e074-44be")
	t.Setenv("APP_SERVER_PORT", "8181")

	configPath := writeConfig(t, `
server:
  port: $APP_SERVER_PORT
projects:
  - name: CAG
    access_key: ${CAG_ACCESS_KEY}
    secret_key: ${CAG_SECRET_KEY}
    api_gateway: "https://apim-sg1.envisioniot.com"
    org_id: "o17134091232951160"
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8181, config.Server.Port)
	assert.Equal(t, "a19a81ad-3310-4f9b", config.Projects[0].AccessKey)
	assert.Equal(t, "1294a0ea-e074-44be", config.Projects[0].SecretKey)
}

func TestLoadWithPrefixedEnvOverride(t *testing.T) {
	t.Setenv("UNIVERS_EXPORT_CONCURRENCY", "4")
	t.Setenv("UNIVERS_LOGGING_LEVEL", "warn")

	configPath := writeConfig(t, `
export:
  concurrency: 1
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 4, config.Export.Concurrency)
	assert.Equal(t, "warn", config.Logging.Level)
}

func TestLoadReadsDotEnv(t *testing.T) {
	configPath := writeConfig(t, `
projects:
  - name: STE
    access_key: ${STE_ACCESS_KEY}
    secret_key: "262a9809-6fdc-46b2"
    api_gateway: "https://ag-eu2.envisioniot.com"
    org_id: "o16709107221201898"
`)
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("STE_ACCESS_KEY=ea53c714-0262-444f\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("STE_ACCESS_KEY") })

	config, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "ea53c714-0262-444f", config.Projects[0].AccessKey)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			content: "server: [",
			wantErr: "failed to unmarshal raw config",
		},
		{
			name: "duplicate project",
			content: `
projects:
  - name: A
  - name: A
`,
			wantErr: "duplicate project: A",
		},
		{
			name: "schedule with unknown project",
			content: `
schedules:
  - name: nightly
    project: missing
    cron: "0 1 * * *"
    lookback: 24h
`,
			wantErr: `unknown project "missing"`,
		},
		{
			name: "schedule with unsupported interval",
			content: `
projects:
  - name: A
schedules:
  - name: odd
    project: A
    cron: "0 1 * * *"
    lookback: 24h
    interval_minutes: 7
`,
			wantErr: `schedule "odd": unsupported interval_minutes 7`,
		},
		{
			name: "bad timezone",
			content: `
export:
  timezone: Mars/Olympus
`,
			wantErr: "invalid export timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDefault(t *testing.T) {
	config := Default()
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 5000, config.Export.MaxPointsPerCall)
	assert.Equal(t, "json", config.Logging.Format)
	assert.NoError(t, config.Validate())
}
