package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper and shared state
	viper.Reset()
	setDefaults(dir)
	viper.Set("user.id", "tester")
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
			dataStore = nil
		}
	})

	// Initialize output with captured writers
	ui = &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "codereview configuration")
	assert.Contains(t, string(data), "qwen/qwen-2.5-coder-32b-instruct:free")
	assert.Contains(t, string(data), "max_tokens: 4000")
	assert.Contains(t, string(data), "temperature: 0.3")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "codereview configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())
	viper.Set("api_credential", "sk-abcdefghijkl")

	out := &bytes.Buffer{}
	ui.Out = out
	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), "(file)")
	assert.Contains(t, out.String(), "****ijkl")
	assert.NotContains(t, out.String(), "sk-abcdefghijkl")
}

func TestConfigInit_RoundTrip(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, configInitRun())

	// The generated file must parse back to the same effective values.
	viper.Reset()
	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())
	assert.Equal(t, 4000, viper.GetInt("max_tokens"))
	assert.InDelta(t, 0.3, viper.GetFloat64("temperature"), 1e-9)
	assert.Equal(t, "openai", viper.GetString("llm.provider"))
	assert.Equal(t, "tester", viper.GetString("user.id"))
	assert.True(t, viper.IsSet("prompt.redact_secrets"))
	assert.False(t, viper.GetBool("prompt.redact_secrets"))
}

func TestDefaults_RedactionOff(t *testing.T) {
	testEnv(t)
	assert.False(t, viper.GetBool("prompt.redact_secrets"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****6789", maskSecret("sk-0123456789"))
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	t.Setenv("CODEREVIEW_TEST_KEY", "val")
	assert.Contains(t, detectSource("test_key", "CODEREVIEW_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "CODEREVIEW_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "CODEREVIEW_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}
