package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghettovoice/sipflow/internal/config"
)

const sampleConfig = `
capture:
  command: sipgrep
  device: eth1
  filter: port 5080
  args: ["-l", "-T"]
  notify_interval: 100ms
flow:
  page_steps: 8
  strict_lanes: true
dns:
  name_server: 127.0.0.1
log:
  level: debug
  file: /tmp/sipflow.log
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sipflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := config.Load(nil, writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "sipgrep", cfg.Capture.Command)
	assert.Equal(t, "eth1", cfg.Capture.Device)
	assert.Equal(t, "port 5080", cfg.Capture.Filter)
	assert.Equal(t, []string{"-l", "-T"}, cfg.Capture.Args)
	assert.Equal(t, 100*time.Millisecond, cfg.Capture.NotifyInterval)
	assert.Equal(t, 8, cfg.Flow.PageSteps)
	assert.True(t, cfg.Flow.StrictLanes)
	assert.False(t, cfg.Flow.CallIDColor)
	assert.Equal(t, "127.0.0.1", cfg.DNS.NameServer)
	assert.Equal(t, 2*time.Second, cfg.DNS.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Len(t, cfg.Warnings(), 1)

	popts := cfg.PipelineOptions()
	assert.Equal(t, "sipgrep", popts.Command)
	assert.Equal(t, 100*time.Millisecond, popts.NotifyInterval)
	sopts := cfg.SessionOptions()
	assert.Equal(t, 8, sopts.PageSteps)
	assert.True(t, sopts.StrictLanes)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, "ngrep", cfg.Capture.Command)
	assert.Equal(t, "any", cfg.Capture.Device)
	assert.Equal(t, "port 5060", cfg.Capture.Filter)
	assert.Empty(t, cfg.Capture.Args)
	assert.Zero(t, cfg.Capture.NotifyInterval)
	assert.Equal(t, 4, cfg.Flow.PageSteps)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Warnings())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("SIPFLOW_CAPTURE_FILTER", "udp port 5062")
	t.Setenv("SIPFLOW_FLOW_CALLID_COLOR", "true")

	cfg, err := config.Load(nil, writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "udp port 5062", cfg.Capture.Filter)
	assert.True(t, cfg.Flow.CallIDColor)
	assert.Equal(t, "eth1", cfg.Capture.Device)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"empty command", "capture:\n  command: \" \"\n"},
		{"zero page steps", "flow:\n  page_steps: 0\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"negative timeout", "dns:\n  timeout: -1s\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(nil, writeConfig(t, c.body))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := config.Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

func TestConfig_WriteYAML(t *testing.T) {
	cfg, err := config.Load(nil, writeConfig(t, sampleConfig))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))

	// the dump loads back to the same configuration
	again, err := config.Load(nil, writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
