// Package config loads the gateway's runtime configuration from an optional
// YAML/JSON file plus environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the gateway process.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Registry      RegistryConfig      `mapstructure:"registry"`
	Health        HealthConfig        `mapstructure:"health"`
	Images        ImagesConfig        `mapstructure:"images"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Backend       BackendTLSConfig    `mapstructure:"backend"`
	AccessLog     AccessLogConfig     `mapstructure:"access_log"`
}

type ServerConfig struct {
	ListenAddr             string        `mapstructure:"listen_addr"`
	MaxRequestBytes        int64         `mapstructure:"max_request_bytes"`
	ReadHeaderTimeout      time.Duration `mapstructure:"read_header_timeout"`
	GracefulShutdownDelay  time.Duration `mapstructure:"graceful_shutdown_delay"`
	UpstreamConnectTimeout time.Duration `mapstructure:"upstream_connect_timeout"`
	ChatReadTimeout        time.Duration `mapstructure:"chat_read_timeout"`
	ImagesReadTimeout      time.Duration `mapstructure:"images_read_timeout"`
	StreamIdleTimeout      time.Duration `mapstructure:"stream_idle_timeout"`
}

// BackendTLSConfig governs outbound TLS behavior for every upstream client,
// process-wide (BACKEND_VERIFY_TLS, BACKEND_CA_BUNDLE, BACKEND_CLIENT_CERT).
type BackendTLSConfig struct {
	VerifyTLS      bool   `mapstructure:"verify_tls"`
	CABundle       string `mapstructure:"ca_bundle"`
	ClientCertFile string `mapstructure:"client_cert"`
	ClientKeyFile  string `mapstructure:"client_key"`
}

// AccessLogConfig governs the NDJSON request-instrumentation log kept
// alongside the tool bus's own log, one line per `/v1/*` request.
type AccessLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AuthConfig governs the bearer gate and the UI subtree's IP allowlist.
type AuthConfig struct {
	Tokens        []TokenPolicy `mapstructure:"tokens"`
	UIIPAllowlist []string      `mapstructure:"ui_ip_allowlist"`
}

// TokenPolicy binds a bearer secret to an optional tool allowlist. An empty
// Tools slice means "all enabled tools are permitted" for that token.
type TokenPolicy struct {
	Token string   `mapstructure:"token"`
	Tools []string `mapstructure:"tools"`
}

// RegistryConfig locates the declarative backend document. Path, when set,
// is read with its own viper instance so the registry document can live
// separately from process configuration (YAML, JSON, or TOML). Inline lets
// small deployments declare backends directly under `registry.backends` in
// the main config file instead of a second file.
type RegistryConfig struct {
	Path   string                   `mapstructure:"path"`
	Inline []map[string]interface{} `mapstructure:"backends"`

	// LegacyNames maps legacy backend identifiers (e.g. "ollama") to their
	// canonical registry name, applied only at the router's edge.
	LegacyNames map[string]string `mapstructure:"legacy_names"`

	// RoutePreferences is the declarative route_kind -> ordered backend
	// preference list the router consults when a client hint doesn't pin a
	// concrete backend. Missing route kinds fall back to registry order.
	RoutePreferences map[string][]string `mapstructure:"route_preferences"`
}

type HealthConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// ImagesConfig configures the images pipeline's upstream and storage.
type ImagesConfig struct {
	Backend      string         `mapstructure:"backend"` // mock | http_a1111 | http_openai_images
	BackendClass string         `mapstructure:"backend_class"`
	HTTPBaseURL  string         `mapstructure:"http_base_url"`
	OpenAIModel  string         `mapstructure:"openai_model"`
	Storage      string         `mapstructure:"storage"` // local | s3
	Dir          string         `mapstructure:"dir"`     // UI_IMAGE_DIR for local storage
	S3           ImagesS3Config `mapstructure:"s3"`
}

type ImagesS3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// ToolsConfig governs the deterministic tool bus.
type ToolsConfig struct {
	LogMode string `mapstructure:"log_mode"` // ndjson | per_file | both | none
	LogPath string `mapstructure:"log_path"`
	LogDir  string `mapstructure:"log_dir"`

	ShellEnabled     bool     `mapstructure:"shell_enabled"`
	ShellAllowedCmds []string `mapstructure:"shell_allowed_cmds"`
	ShellCwd         string   `mapstructure:"shell_cwd"`
	ShellTimeout     time.Duration `mapstructure:"shell_timeout"`

	ReadFileEnabled  bool     `mapstructure:"read_file_enabled"`
	WriteFileEnabled bool     `mapstructure:"write_file_enabled"`
	FilesystemRoots  []string `mapstructure:"filesystem_roots"`
	FilesystemMaxBytes int    `mapstructure:"filesystem_max_bytes"`

	HTTPFetchEnabled     bool          `mapstructure:"http_fetch_enabled"`
	HTTPFetchAllowedHosts []string     `mapstructure:"http_fetch_allowed_hosts"`
	HTTPFetchMaxBytes    int           `mapstructure:"http_fetch_max_bytes"`
	HTTPFetchTimeout     time.Duration `mapstructure:"http_fetch_timeout"`

	GitEnabled  bool          `mapstructure:"git_enabled"`
	GitCwd      string        `mapstructure:"git_cwd"`
	GitTimeout  time.Duration `mapstructure:"git_timeout"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from file and environment.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := opts.ConfigFile != ""
	if explicitFile {
		v.SetConfigFile(opts.ConfigFile)
	} else if cfg := os.Getenv("GATEWAY_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	} else {
		v.SetConfigName("gateway")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if tok := strings.TrimSpace(os.Getenv("GATEWAY_BEARER_TOKEN")); tok != "" {
		cfg.Auth.Tokens = append(cfg.Auth.Tokens, TokenPolicy{Token: tok})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and fills in derived defaults.
func (c *Config) Validate() error {
	if len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("auth: at least one bearer token must be configured")
	}
	if strings.TrimSpace(c.Registry.Path) == "" && len(c.Registry.Inline) == 0 {
		return fmt.Errorf("registry: path or inline backends must be provided")
	}
	switch strings.ToLower(strings.TrimSpace(c.Images.Backend)) {
	case "", "mock", "http_a1111", "http_openai_images":
	default:
		return fmt.Errorf("images.backend must be one of mock, http_a1111, http_openai_images")
	}
	if strings.TrimSpace(c.Images.Storage) == "" {
		c.Images.Storage = "local"
	}
	if c.Images.Storage == "s3" && c.Images.S3.Bucket == "" {
		return fmt.Errorf("images.s3.bucket must be provided for s3 image storage")
	}
	switch strings.ToLower(strings.TrimSpace(c.Tools.LogMode)) {
	case "", "ndjson", "per_file", "both", "none":
	default:
		return fmt.Errorf("tools.log_mode must be one of ndjson, per_file, both, none")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.max_request_bytes", 10*1024*1024)
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.upstream_connect_timeout", "5s")
	v.SetDefault("server.chat_read_timeout", "60s")
	v.SetDefault("server.images_read_timeout", "120s")
	v.SetDefault("server.stream_idle_timeout", "60s")

	v.SetDefault("health.check_interval", "30s")
	v.SetDefault("health.probe_timeout", "2s")

	v.SetDefault("images.backend", "mock")
	v.SetDefault("images.storage", "local")
	v.SetDefault("images.dir", "./data/images")

	v.SetDefault("tools.log_mode", "ndjson")
	v.SetDefault("tools.log_path", "./data/tools.ndjson")
	v.SetDefault("tools.log_dir", "./data/tool_invocations")
	v.SetDefault("tools.shell_enabled", false)
	v.SetDefault("tools.shell_cwd", "./data/shell")
	v.SetDefault("tools.shell_timeout", "10s")
	v.SetDefault("tools.read_file_enabled", true)
	v.SetDefault("tools.write_file_enabled", false)
	v.SetDefault("tools.filesystem_max_bytes", 1024*1024)
	v.SetDefault("tools.http_fetch_enabled", true)
	v.SetDefault("tools.http_fetch_max_bytes", 1024*1024)
	v.SetDefault("tools.http_fetch_timeout", "10s")
	v.SetDefault("tools.git_enabled", false)
	v.SetDefault("tools.git_cwd", "./data/shell")
	v.SetDefault("tools.git_timeout", "10s")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", false)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("backend.verify_tls", true)

	v.SetDefault("access_log.enabled", false)
	v.SetDefault("access_log.path", "./data/access.ndjson")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
