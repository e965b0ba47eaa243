package cli

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/The-Promised-Neverland/syncmonitor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"dev", "dev"},
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, formatVersion(tt.in))
		})
	}
}

func TestVersionOutput(t *testing.T) {
	originalVersion, originalCommit, originalDate := version, commit, date
	defer SetVersionInfo(originalVersion, originalCommit, originalDate)
	defer func() { versionShort = false }()

	SetVersionInfo("1.2.3", "abc1234", "2025-01-08T12:00:00Z")

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)

	output := buf.String()
	assert.Contains(t, output, "syncmonitor v1.2.3")
	assert.Contains(t, output, "commit: abc1234")
	assert.Contains(t, output, "built: 2025-01-08T12:00:00Z")
	assert.Contains(t, output, "go: "+runtime.Version())

	buf.Reset()
	versionShort = true
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "1.2.3\n", buf.String())
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "install", "uninstall", "start", "stop", "restart", "config", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestWriteConfig(t *testing.T) {
	t.Setenv("INSTANCE_ID", "node-1")
	t.Setenv("INSTANCE_NAME", "Basement NAS")
	t.Setenv("PROGRESS_REPORT_INTERVAL", "250ms")
	t.Setenv("STUN_SERVER", "")

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, config.New()))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	instance := decoded["instance"].(map[string]any)
	assert.Equal(t, "node-1", instance["id"])
	assert.Equal(t, "Basement NAS", instance["name"])
	assert.Equal(t, "250ms", decoded["monitor"].(map[string]any)["progress_report_interval"])
	assert.Equal(t, "INFO", decoded["log_level"])
	assert.NotContains(t, decoded["stun"].(map[string]any), "server")
}

func TestStatusLines(t *testing.T) {
	var stdout, stderr bytes.Buffer
	origOut, origErr := out, errOut
	out, errOut = &stdout, &stderr
	defer func() { out, errOut = origOut, origErr }()

	success("Service %s installed", "SyncMonitor")
	hint("Start it with: %s", "syncmonitor start")
	failure("boom: %d", 42)

	assert.True(t, strings.Contains(stdout.String(), "Service SyncMonitor installed"))
	assert.Contains(t, stdout.String(), "Start it with: syncmonitor start")
	assert.Contains(t, stderr.String(), "boom: 42")
}
