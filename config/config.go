package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/api-proxy/internal/httpserver"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	Environment     string `mapstructure:"environment"`
	MountPath       string `mapstructure:"mount_path"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// TLSConfig points at the client identity presented to upstreams. All three
// paths must be set for mutual TLS; a partial set is ignored.
type TLSConfig struct {
	CAPath   string `mapstructure:"ca_path"`
	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
}

type MetricsConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

type ConnectionConfig struct {
	Name         string `mapstructure:"name"`
	URL          string `mapstructure:"url"`
	FctWorkerURL string `mapstructure:"fct_worker_url"`
	Token        string `mapstructure:"token"`
	TokenFile    string `mapstructure:"token_file"`
}

type Config struct {
	Server      ServerConfig       `mapstructure:"server"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	TLS         TLSConfig          `mapstructure:"tls"`
	HealthCheck HealthCheckConfig  `mapstructure:"health_check"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Connections []ConnectionConfig `mapstructure:"connections"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.mount_path", "/api")
	v.SetDefault("server.max_body_bytes", 100<<10)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("tls.ca_path", "")
	v.SetDefault("tls.cert_path", "")
	v.SetDefault("tls.key_path", "")
	v.SetDefault("health_check.interval", "0s")
	v.SetDefault("health_check.path", "/admin/v2/brokers/health")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.buffer_size", 1000)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Deployments have always passed the client identity under these names.
	_ = v.BindEnv("tls.ca_path", "TLS_CA_PATH", "CLIENT_CA_PATH")
	_ = v.BindEnv("tls.cert_path", "TLS_CERT_PATH", "CLIENT_CERT_PATH")
	_ = v.BindEnv("tls.key_path", "TLS_KEY_PATH", "CLIENT_KEY_PATH")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.resolveTokenFiles(); err != nil {
		slog.Error("failed to read connection token", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// ShutdownTimeout returns how long in-flight requests may run after a stop signal.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 0
	}
	return d
}

// HealthCheckInterval returns the parsed probe interval. Zero disables probing.
func (c *Config) HealthCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.HealthCheck.Interval)
	if err != nil {
		return 0
	}
	return d
}

// resolveTokenFiles replaces token_file references with the file contents.
func (c *Config) resolveTokenFiles() error {
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.TokenFile == "" {
			continue
		}

		data, err := os.ReadFile(conn.TokenFile)
		if err != nil {
			return fmt.Errorf("connection %q: %w", conn.Name, err)
		}
		conn.Token = string(data)
	}

	return nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(httpserver.ValidateAddress),
					),
					validation.Field(&sc.MountPath,
						validation.Required,
						validation.By(validateMountPath),
					),
					validation.Field(&sc.MaxBodyBytes,
						validation.Required,
						validation.Min(int64(1)),
					),
					validation.Field(&sc.ShutdownTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Path,
						validation.Required,
						validation.By(validateMountPath),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				if !mc.Enabled {
					return nil
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Connections,
			validation.Each(validation.By(validateConnectionConfig)),
			validation.By(validateUniqueNames),
		),
	)
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validateMountPath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}

	return nil
}

func validateUpstreamURL(value interface{}) error {
	upstreamURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if upstreamURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(upstreamURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	if err := is.Host.Validate(parsedURL.Hostname()); err != nil {
		return validation.NewError("validation_invalid_host", "URL host is not a valid hostname or IP")
	}

	return nil
}

func validateConnectionConfig(value interface{}) error {
	conn, ok := value.(ConnectionConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ConnectionConfig")
	}

	return validation.ValidateStruct(&conn,
		validation.Field(&conn.Name, validation.Required),
		validation.Field(&conn.URL, validation.Required, validation.By(validateUpstreamURL)),
		validation.Field(&conn.FctWorkerURL, validation.By(validateUpstreamURL)),
		validation.Field(&conn.TokenFile,
			validation.When(conn.Token != "", validation.Empty.Error("cannot be combined with token")),
		),
	)
}

func validateUniqueNames(value interface{}) error {
	conns, ok := value.([]ConnectionConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of connections")
	}

	seen := make(map[string]bool, len(conns))
	for _, conn := range conns {
		if seen[conn.Name] {
			return validation.NewError("validation_duplicate_name", fmt.Sprintf("duplicate connection name %q", conn.Name))
		}
		seen[conn.Name] = true
	}

	return nil
}
