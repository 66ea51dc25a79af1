package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/univers/internal/api/apitest"
	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/models"
)

const testConfig = `
export:
  timezone: UTC
  max_attempts: 3
  initial_backoff: 1ms
  max_backoff: 2ms
logging:
  level: error
`

var inverter = models.ModelDescriptor{
	ID:          "Inverter",
	Name:        "PV Inverter",
	Identifiers: []string{"power", "temp"},
	Assets: []models.Asset{
		{ID: "inv01", Name: "Inverter 1"},
		{ID: "inv02", Name: "Inverter 2"},
	},
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func gatewayArgs(g *apitest.Gateway, configPath string) []string {
	return []string{
		"--config", configPath,
		"--access-key", apitest.AccessKey,
		"--secret-key", apitest.SecretKey,
		"--api-gateway", g.Server.URL,
		"--org-id", apitest.OrgID,
		"--project-name", "Concorde",
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		level     logrus.Level
		formatter logrus.Formatter
		wantErr   bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}, level: logrus.InfoLevel, formatter: &logrus.JSONFormatter{}},
		{name: "debug text", cfg: config.LoggingConfig{Level: "debug", Format: "text"}, level: logrus.DebugLevel, formatter: &logrus.TextFormatter{}},
		{name: "bad level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := newLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.level, logger.GetLevel())
			assert.IsType(t, tt.formatter, logger.Formatter)
		})
	}
}

func TestProjectsCommand(t *testing.T) {
	path := writeConfig(t, testConfig+`
projects:
  - name: Concorde
    access_key: aaaa-bbbb
    secret_key: cccc-dddd
    api_gateway: https://gateway.example.com
    org_id: o1
  - name: Broken
    access_key: nohyphen
    secret_key: cccc-dddd
    api_gateway: https://gateway.example.com
    org_id: o1
`)

	out, err := execute(t, "--config", path, "projects")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Concorde", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Broken "))
	assert.Contains(t, lines[1], "access_key")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "projects")
	assert.Error(t, err)
}

func TestModelsCommandJSON(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	args := append(gatewayArgs(g, writeConfig(t, testConfig)), "models", "--json")

	out, err := execute(t, args...)
	require.NoError(t, err)

	var list []models.ModelDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, []models.ModelDescriptor{inverter}, list)
}

func TestModelsCommandRejectsBadSignature(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	args := gatewayArgs(g, writeConfig(t, testConfig))
	args[5] = "wrong-secret"

	_, err := execute(t, append(args, "models")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature mismatch")
}

func TestExportCommand(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	outPath := filepath.Join(t.TempDir(), "out", "inverter.csv")
	args := append(gatewayArgs(g, writeConfig(t, testConfig)),
		"export", "--model", "Inverter",
		"--start", "2024-01-01T00:00", "--end", "2024-01-01T01:00",
		"--interval", "15", "--out", outPath)

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "Done: 8 rows written to "+outPath)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, "asset_id,asset_name,timestamp,power,temp", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "inv01,Inverter 1,"))
	assert.True(t, strings.HasPrefix(lines[2], "inv02,Inverter 2,"))
}

func TestExportCommandRetriesTransientFailures(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	g.FailRaw(http.StatusServiceUnavailable, http.StatusBadGateway)
	outPath := filepath.Join(t.TempDir(), "inverter.csv.gz")
	args := append(gatewayArgs(g, writeConfig(t, testConfig)),
		"export", "--all",
		"--start", "2024-01-01", "--end", "2024-01-01T02:00",
		"--gzip", "--out", outPath)

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "16 rows written")
	assert.Equal(t, 3, g.Calls("/tsdb-service/v2.1/raw"))
	assert.FileExists(t, outPath)
}

func TestExportCommandAllModelsFail(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	g.FailRaw(http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	args := append(gatewayArgs(g, writeConfig(t, testConfig)),
		"export", "--all",
		"--start", "2024-01-01", "--end", "2024-01-01T01:00",
		"--out", filepath.Join(t.TempDir(), "x.csv"))

	out, err := execute(t, args...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every model failed")
	assert.Contains(t, out, "Partial export:")
}

func TestExportCommandDryRun(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	args := append(gatewayArgs(g, writeConfig(t, testConfig)),
		"export", "--all",
		"--start", "2024-01-01", "--end", "2024-01-03",
		"--interval", "60", "--dry-run")

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "2 chunk(s)")
	assert.Contains(t, out, "2 API calls planned")
	assert.Zero(t, g.Calls("/tsdb-service/v2.1/raw"))
}

func TestExportCommandValidation(t *testing.T) {
	g := apitest.NewGateway(t, inverter)
	base := gatewayArgs(g, writeConfig(t, testConfig))

	tests := []struct {
		name   string
		args   []string
		want   string
		listed bool
	}{
		{
			name: "no model selection",
			args: []string{"export", "--start", "2024-01-01", "--end", "2024-01-02"},
			want: "--model or use --all",
		},
		{
			name: "bad start",
			args: []string{"export", "--all", "--start", "yesterday", "--end", "2024-01-02"},
			want: "--start",
		},
		{
			name:   "unknown model",
			args:   []string{"export", "-m", "Meter", "--start", "2024-01-01", "--end", "2024-01-02"},
			want:   "Meter",
			listed: true,
		},
		{
			name: "unsupported interval",
			args: []string{"export", "--all", "--start", "2024-01-01", "--end", "2024-01-02", "-i", "7"},
			want: "interval",
		},
		{
			name: "start after end",
			args: []string{"export", "--all", "--start", "2024-01-02", "--end", "2024-01-01"},
			want: "start time must be before end time",
		},
		{
			name: "start after end with dry run",
			args: []string{"export", "--all", "--start", "2024-01-02", "--end", "2024-01-01", "--dry-run"},
			want: "start time must be before end time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.Calls("/model-service/v2.1/thing-models") + g.Calls("/connect-service/v2.1/devices")

			_, err := execute(t, append(append([]string{}, base...), tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			listings := g.Calls("/model-service/v2.1/thing-models") + g.Calls("/connect-service/v2.1/devices") - before
			if tt.listed {
				assert.Positive(t, listings)
			} else {
				assert.Zero(t, listings)
			}
		})
	}
	assert.Zero(t, g.Calls("/tsdb-service/v2.1/raw"))
}

func TestProjectNameResolution(t *testing.T) {
	a := &app{}
	store, err := config.NewStore([]config.ProjectConfig{{Name: "A"}, {Name: "B"}})
	require.NoError(t, err)
	a.store = store

	_, err = a.projectName("")
	assert.Error(t, err)

	name, err := a.projectName("B")
	require.NoError(t, err)
	assert.Equal(t, "B", name)

	a.custom = "A"
	name, err = a.projectName("")
	require.NoError(t, err)
	assert.Equal(t, "A", name)
}
