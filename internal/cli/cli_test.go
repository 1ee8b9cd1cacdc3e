package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name       string
		args       []string
		wantExit   bool
		wantErr    string
		wantPaths  []string
		wantFormat string
	}{
		{name: "positional path", args: []string{"ldem.hcl"}, wantPaths: []string{"ldem.hcl"}, wantFormat: "json"},
		{name: "config flags", args: []string{"-c", "a.hcl", "--config", "b.hcl", "--log-format", "TEXT"}, wantPaths: []string{"a.hcl", "b.hcl"}, wantFormat: "text"},
		{name: "flags and positional", args: []string{"-c", "a.toml", "b.toml"}, wantPaths: []string{"a.toml", "b.toml"}, wantFormat: "json"},
		{name: "help", args: []string{"-h"}, wantExit: true},
		{name: "no path", args: []string{}, wantExit: true},
		{name: "bad format", args: []string{"--log-format", "xml", "x.hcl"}, wantErr: "invalid log-format"},
		{name: "bad level", args: []string{"--log-level", "loud", "x.hcl"}, wantErr: "invalid log-level"},
		{name: "bad port", args: []string{"--status-port", "-1", "x.hcl"}, wantErr: "invalid status port"},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: "flag provided but not defined"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			cfg, exit, err := Parse(tc.args, out)
			if tc.wantErr != "" {
				require.Error(t, err)
				var exitErr *ExitError
				require.True(t, errors.As(err, &exitErr))
				assert.Equal(t, 2, exitErr.Code)
				assert.Contains(t, exitErr.Message, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantExit, exit)
			if tc.wantExit {
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			assert.Equal(t, tc.wantPaths, cfg.ConfigPaths)
			assert.Equal(t, tc.wantFormat, cfg.LogFormat)
			assert.Equal(t, "info", cfg.LogLevel)
		})
	}
}

func TestParse_Options(t *testing.T) {
	cfg, exit, err := Parse([]string{"--status-port", "8080", "--updates-dir", "/var/ldem/updates", "--in-process", "--log-level", "debug", "ldem.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, 8080, cfg.StatusPort)
	assert.Equal(t, "/var/ldem/updates", cfg.UpdatesDir)
	assert.True(t, cfg.InProcess)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseWorker(t *testing.T) {
	cfg, err := ParseWorker([]string{"--alias", "one", "--ipc-timeout", "3s", "--ack-timeout", "500ms", "--log-format", "text"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "one", cfg.Alias)
	assert.Equal(t, 3*time.Second, cfg.IPCTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, "text", cfg.LogFormat)

	_, err = ParseWorker([]string{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--alias")

	_, err = ParseWorker([]string{"--alias", "one", "--ipc-timeout", "-1s"}, &bytes.Buffer{})
	require.Error(t, err)
}
