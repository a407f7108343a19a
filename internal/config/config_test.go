package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 300, cfg.Processing.LongAudioThresholdSeconds)
	require.Equal(t, 3, cfg.Processing.MaxConsecutiveFailures)
	require.Equal(t, "temp", cfg.System.TempDir)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apis:
  openai:
    api_key: sk-file
    base_url: https://api.openai.com/v1
    model: gpt-4o-mini
processing:
  segment_duration_seconds: 120
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-file", cfg.APIs.OpenAI.APIKey)
	require.Equal(t, 120, cfg.Processing.SegmentDurationSeconds)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
apis:
  openai:
    api_key: sk-file
`), 0o644))

	t.Setenv("APIS_OPENAI_API_KEY", "sk-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-env", cfg.APIs.OpenAI.APIKey)
}

func TestValidate_RequiresAdminTokenInProduction(t *testing.T) {
	cfg := defaults()
	cfg.Security.Production = true
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "admin_token")
}

func TestValidate_RequiresAllowlistWhenEnforced(t *testing.T) {
	cfg := defaults()
	cfg.Security.EnforceAPIHostsWhitelist = true
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsUnknownSTTVendor(t *testing.T) {
	cfg := defaults()
	cfg.STTVendor = "gemini"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "stt_vendor")
}
