package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   "0.0.0.0:18900",
			RateLimitRPS: 10,
			RolesDir:     "roles",
		},
		Providers: ProvidersConfig{
			Default:        "native",
			Model:          "gpt-4o",
			Native:         NativeProviderConfig{APIBase: "https://api.openai.com/v1"},
			TimeoutSeconds: 300,
		},
		Security: SecurityConfig{
			EnableShell:   true,
			EnableWrite:   true,
			EnableBrowser: true,
		},
		Sessions: SessionsConfig{
			TTL:                Duration(30 * time.Minute),
			MaxSessions:        500,
			MaxSessionMessages: 120,
			MaxContextChars:    240_000,
			SnapshotDir:        "data/snapshots",
		},
		Workspace: WorkspaceConfig{
			Default: "data/workspace",
		},
		Outputs: OutputsConfig{
			Dir:    "data/outputs",
			TTL:    Duration(7 * 24 * time.Hour),
			GCCron: "*/30 * * * *",
		},
		Limits: LimitsConfig{
			MaxToolOutputChars: 24_000,
			MaxFileReadChars:   64_000,
			MaxSteps:           12,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Secrets are env-only by design; the rest are operational overrides.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("AISTAFF_AUTH_SECRET", &c.Server.AuthSecret)
	envStr("AISTAFF_SHARED_INVITE_TOKEN", &c.Server.SharedInviteToken)
	envStr("AISTAFF_DB_DSN", &c.Database.DSN)
	envStr("AISTAFF_NATIVE_API_KEY", &c.Providers.Native.APIKey)
	envStr("AISTAFF_NATIVE_API_BASE", &c.Providers.Native.APIBase)
	envStr("AISTAFF_OPENCODE_BASE_URL", &c.Providers.OpenCode.BaseURL)
	envStr("AISTAFF_LISTEN_ADDR", &c.Server.ListenAddr)
	envStr("AISTAFF_PUBLIC_BASE_URL", &c.Server.PublicBaseURL)
	envStr("AISTAFF_WORKSPACE_DEFAULT", &c.Workspace.Default)
	envStr("AISTAFF_OUTPUTS_DIR", &c.Outputs.Dir)
	envStr("AISTAFF_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	if v := os.Getenv("AISTAFF_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limits.MaxSteps = n
		}
	}
	if v := os.Getenv("AISTAFF_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sessions.MaxSessions = n
		}
	}
}

// UnmarshalJSON accepts "90s"/"30m" strings or raw second counts.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		dur, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(dur)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number: %s", data)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
