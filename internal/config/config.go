package config

import (
	"time"
)

// Config is the root configuration for the AIStaff server.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Providers ProvidersConfig `json:"providers"`
	Security  SecurityConfig  `json:"security"`
	Sessions  SessionsConfig  `json:"sessions"`
	Workspace WorkspaceConfig `json:"workspace"`
	Outputs   OutputsConfig   `json:"outputs"`
	Limits    LimitsConfig    `json:"limits"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr    string  `json:"listen_addr"`
	PublicBaseURL string  `json:"public_base_url,omitempty"` // for absolute download URLs
	RateLimitRPS  float64 `json:"rate_limit_rps,omitempty"`  // 0 = disabled
	RolesDir      string  `json:"roles_dir,omitempty"`       // role prompt templates, fsnotify-reloaded
	// AuthSecret signs principal bearer tokens and download tokens.
	// From env AISTAFF_AUTH_SECRET only, never persisted.
	AuthSecret string `json:"-"`
	// SharedInviteToken optionally gates self-service signup (out of core scope).
	SharedInviteToken string `json:"-"`
}

// ProvidersConfig configures the model provider variants.
type ProvidersConfig struct {
	Default string `json:"default"` // provider selected when the request names none
	Model   string `json:"model"`   // model selected when the request names none

	Native   NativeProviderConfig   `json:"native"`
	OpenCode OpenCodeProviderConfig `json:"opencode,omitempty"`
	Codex    SubprocessConfig       `json:"codex,omitempty"`
	Pi       SubprocessConfig       `json:"pi,omitempty"`
	Nanobot  SubprocessConfig       `json:"nanobot,omitempty"`

	// TimeoutSeconds is the overall budget for one provider call.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// NativeProviderConfig is the remote chat-completion-style API.
type NativeProviderConfig struct {
	APIBase string `json:"api_base"`
	APIKey  string `json:"-"` // env AISTAFF_NATIVE_API_KEY only
	Model   string `json:"model,omitempty"`
}

// OpenCodeProviderConfig is the local HTTP sidecar.
type OpenCodeProviderConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// SubprocessConfig is a local CLI provider (codex, pi, nanobot).
type SubprocessConfig struct {
	Binary string   `json:"binary,omitempty"`
	Args   []string `json:"args,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// SecurityConfig is the server capability ceiling. These are upper bounds;
// per-request presets and roles can only narrow them.
type SecurityConfig struct {
	EnableShell    bool `json:"enable_shell"`
	EnableWrite    bool `json:"enable_write"`
	EnableBrowser  bool `json:"enable_browser"`
	AllowDangerous bool `json:"allow_dangerous"`
}

// SessionsConfig bounds the in-memory session store.
type SessionsConfig struct {
	TTL                Duration `json:"session_ttl"`
	MaxSessions        int      `json:"max_sessions"`
	MaxSessionMessages int      `json:"max_session_messages"`
	MaxContextChars    int      `json:"max_context_chars"`
	SnapshotDir        string   `json:"snapshot_dir,omitempty"` // JSON mirror for /history/search
}

// WorkspaceConfig roots filesystem tool operations.
type WorkspaceConfig struct {
	Default            string   `json:"workspace_default"`
	ProjectsRootAllow  []string `json:"projects_root_allowlist,omitempty"`
}

// OutputsConfig configures the artifact store.
type OutputsConfig struct {
	Dir     string   `json:"outputs_dir"`
	TTL     Duration `json:"outputs_ttl"`
	GCCron  string   `json:"outputs_gc_cron,omitempty"` // cron expression for the sweep
}

// LimitsConfig bounds tool and loop output.
type LimitsConfig struct {
	MaxToolOutputChars int `json:"max_tool_output_chars"`
	MaxFileReadChars   int `json:"max_file_read_chars"`
	MaxSteps           int `json:"max_steps"`
}

// DatabaseConfig selects the durable store. DSN comes from env only.
// A "postgres://" DSN selects pgx; anything else is treated as a sqlite path.
type DatabaseConfig struct {
	DSN string `json:"-"` // env AISTAFF_DB_DSN only
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	ServiceName  string `json:"service_name,omitempty"`
}

// Duration is a time.Duration that unmarshals from "30m"-style strings
// or raw second counts.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }
