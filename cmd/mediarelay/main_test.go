package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestComposeCommand_Location(t *testing.T) {
	out, err := run(t, "compose", "--kind", "location", "--lat", "10.0", "--lng", "20.0")
	require.NoError(t, err)
	assert.Contains(t, out, "https://www.google.com/maps?q=10.0,20.0")
}

func TestComposeCommand_UnknownKind(t *testing.T) {
	_, err := run(t, "compose", "--kind", "sticker")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "mediarelay "))
}

func TestConfigGet_Defaults(t *testing.T) {
	out, err := run(t, "config", "get", "ai.chatModel")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", strings.TrimSpace(out))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "mediarelay.yaml")
	exec := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := rootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append(args, "--config", path))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := exec("config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Defaults().AI.ChatModel, cfg.AI.ChatModel)
	assert.Equal(t, []string{"api.twilio.com"}, cfg.Fetch.BasicAuth.Hosts)

	_, err = exec("config", "init")
	require.ErrorContains(t, err, "already exists")

	_, err = exec("config", "init", "--force")
	require.NoError(t, err)
}
