package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VendorConfig holds the credentials/endpoint for one LLM/STT vendor.
type VendorConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SystemConfig holds filesystem and process-wide limits.
type SystemConfig struct {
	TempDir              string `yaml:"temp_dir"`
	OutputDir            string `yaml:"output_dir"`
	MaxFileSizeMB        int    `yaml:"max_file_size_mb"`
	ProcessingTimeoutSec int    `yaml:"processing_timeout_seconds"`
	KeepTempFiles        bool   `yaml:"keep_temp_files"`
}

// ProcessingConfig holds the audio/STT tuning knobs.
type ProcessingConfig struct {
	LongAudioThresholdSeconds int     `yaml:"long_audio_threshold_seconds"`
	SegmentDurationSeconds    int     `yaml:"segment_duration_seconds"`
	MaxConsecutiveFailures    int     `yaml:"max_consecutive_failures"`
	ShortAudioMaxRetries      int     `yaml:"short_audio_max_retries"`
	RetrySleepShortSeconds    float64 `yaml:"retry_sleep_short_seconds"`
	RetrySleepLongSeconds     float64 `yaml:"retry_sleep_long_seconds"`
}

// SecurityConfig holds the SSRF and admin-auth policy.
type SecurityConfig struct {
	AllowInsecureHTTP        bool     `yaml:"allow_insecure_http"`
	AllowPrivateAddresses    bool     `yaml:"allow_private_addresses"`
	AllowedAPIHosts          []string `yaml:"allowed_api_hosts"`
	EnforceAPIHostsWhitelist bool     `yaml:"enforce_api_hosts_whitelist"`
	Production               bool     `yaml:"production"`
	AdminToken               string   `yaml:"admin_token"`
	MaxConcurrentTasks       int      `yaml:"max_concurrent_tasks"`
	MaxPendingTasks          int      `yaml:"max_pending_tasks"`
}

// Config is the fully parsed, env-overridden, validated configuration.
type Config struct {
	APIs struct {
		SiliconFlow VendorConfig `yaml:"siliconflow"`
		OpenAI      VendorConfig `yaml:"openai"`
		Gemini      VendorConfig `yaml:"gemini"`
	} `yaml:"apis"`
	System     SystemConfig     `yaml:"system"`
	Processing ProcessingConfig `yaml:"processing"`
	Security   SecurityConfig   `yaml:"security"`
	// STTVendor and LLMVendor select which of apis.{siliconflow,openai,gemini}
	// drives transcription and text generation respectively. Gemini has no
	// transcription endpoint, so
	// it is not a valid STTVendor value.
	STTVendor string `yaml:"stt_vendor"`
	LLMVendor string `yaml:"llm_vendor"`
}

// defaults holds the documented default for every tunable.
func defaults() Config {
	var c Config
	c.System.TempDir = "temp"
	c.System.OutputDir = "output"
	c.System.MaxFileSizeMB = 2048
	c.System.ProcessingTimeoutSec = 3600
	c.Processing.LongAudioThresholdSeconds = 300
	c.Processing.SegmentDurationSeconds = 300
	c.Processing.MaxConsecutiveFailures = 3
	c.Processing.ShortAudioMaxRetries = 3
	c.Processing.RetrySleepShortSeconds = 1.0
	c.Processing.RetrySleepLongSeconds = 2.0
	c.Security.MaxConcurrentTasks = 4
	c.Security.MaxPendingTasks = 50
	c.STTVendor = "siliconflow"
	c.LLMVendor = "siliconflow"
	return c
}

// Load reads the YAML file at path (if it exists), applies defaults for any
// unset field, then applies environment variable overrides (env always
// wins over YAML), and finally validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides overlays environment variables onto cfg, following the
// same dotted key names as the YAML document (e.g. APIS_OPENAI_API_KEY).
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = parseBool(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	str("APIS_SILICONFLOW_API_KEY", &cfg.APIs.SiliconFlow.APIKey)
	str("APIS_SILICONFLOW_BASE_URL", &cfg.APIs.SiliconFlow.BaseURL)
	str("APIS_SILICONFLOW_MODEL", &cfg.APIs.SiliconFlow.Model)
	str("APIS_OPENAI_API_KEY", &cfg.APIs.OpenAI.APIKey)
	str("APIS_OPENAI_BASE_URL", &cfg.APIs.OpenAI.BaseURL)
	str("APIS_OPENAI_MODEL", &cfg.APIs.OpenAI.Model)
	str("APIS_GEMINI_API_KEY", &cfg.APIs.Gemini.APIKey)
	str("APIS_GEMINI_BASE_URL", &cfg.APIs.Gemini.BaseURL)
	str("APIS_GEMINI_MODEL", &cfg.APIs.Gemini.Model)

	str("STT_VENDOR", &cfg.STTVendor)
	str("LLM_VENDOR", &cfg.LLMVendor)

	str("SYSTEM_TEMP_DIR", &cfg.System.TempDir)
	str("SYSTEM_OUTPUT_DIR", &cfg.System.OutputDir)
	integer("SYSTEM_MAX_FILE_SIZE_MB", &cfg.System.MaxFileSizeMB)
	integer("SYSTEM_PROCESSING_TIMEOUT_SECONDS", &cfg.System.ProcessingTimeoutSec)
	boolean("SYSTEM_KEEP_TEMP_FILES", &cfg.System.KeepTempFiles)

	integer("PROCESSING_LONG_AUDIO_THRESHOLD_SECONDS", &cfg.Processing.LongAudioThresholdSeconds)
	integer("PROCESSING_SEGMENT_DURATION_SECONDS", &cfg.Processing.SegmentDurationSeconds)
	integer("PROCESSING_MAX_CONSECUTIVE_FAILURES", &cfg.Processing.MaxConsecutiveFailures)
	integer("PROCESSING_SHORT_AUDIO_MAX_RETRIES", &cfg.Processing.ShortAudioMaxRetries)
	float("PROCESSING_RETRY_SLEEP_SHORT_SECONDS", &cfg.Processing.RetrySleepShortSeconds)
	float("PROCESSING_RETRY_SLEEP_LONG_SECONDS", &cfg.Processing.RetrySleepLongSeconds)

	boolean("SECURITY_ALLOW_INSECURE_HTTP", &cfg.Security.AllowInsecureHTTP)
	boolean("SECURITY_ALLOW_PRIVATE_ADDRESSES", &cfg.Security.AllowPrivateAddresses)
	boolean("SECURITY_ENFORCE_API_HOSTS_WHITELIST", &cfg.Security.EnforceAPIHostsWhitelist)
	boolean("SECURITY_PRODUCTION", &cfg.Security.Production)
	str("SECURITY_ADMIN_TOKEN", &cfg.Security.AdminToken)
	if v, ok := os.LookupEnv("SECURITY_ALLOWED_API_HOSTS"); ok {
		cfg.Security.AllowedAPIHosts = splitCSV(v)
	}
	integer("SECURITY_MAX_CONCURRENT_TASKS", &cfg.Security.MaxConcurrentTasks)
	integer("SECURITY_MAX_PENDING_TASKS", &cfg.Security.MaxPendingTasks)
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks every configuration invariant and returns a
// bundled ValidationError if any field is unusable.
func (c *Config) Validate() error {
	v := NewValidator()

	v.OneOf("stt_vendor", c.STTVendor, []string{"siliconflow", "openai"})
	v.OneOf("llm_vendor", c.LLMVendor, []string{"siliconflow", "openai", "gemini"})

	v.Require("system.temp_dir", c.System.TempDir)
	v.Require("system.output_dir", c.System.OutputDir)
	v.Positive("system.max_file_size_mb", c.System.MaxFileSizeMB)
	v.Positive("system.processing_timeout_seconds", c.System.ProcessingTimeoutSec)

	v.Positive("processing.long_audio_threshold_seconds", c.Processing.LongAudioThresholdSeconds)
	v.Positive("processing.segment_duration_seconds", c.Processing.SegmentDurationSeconds)
	v.Positive("processing.max_consecutive_failures", c.Processing.MaxConsecutiveFailures)
	v.Positive("processing.short_audio_max_retries", c.Processing.ShortAudioMaxRetries)

	v.Positive("security.max_concurrent_tasks", c.Security.MaxConcurrentTasks)
	v.Positive("security.max_pending_tasks", c.Security.MaxPendingTasks)

	if c.Security.Production && c.Security.AdminToken == "" {
		v.Add("security.admin_token", "required when security.production is true", nil)
	}
	if c.Security.EnforceAPIHostsWhitelist && len(c.Security.AllowedAPIHosts) == 0 {
		v.Add("security.allowed_api_hosts", "must be non-empty when enforce_api_hosts_whitelist is true", nil)
	}

	return v.Err()
}
