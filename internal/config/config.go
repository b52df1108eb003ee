// Package config loads gmail-mcp-server settings from defaults, an optional
// config.yaml, a .env file, the environment and command-line flags.
//
// Precedence, highest first: flags, GMAIL_MCP_* environment variables,
// config file, defaults. A .env file in the working directory is loaded into
// the process environment before anything else is read.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/instrumentation"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "GMAIL_MCP"

// Configuration keys. Flags registered under the same name are bound to them.
const (
	KeyConfigFile         = "config"
	KeyClientSecretFile   = "client-secret-file"
	KeyGoogleClientID     = "google-client-id"
	KeyGoogleClientSecret = "google-client-secret"
	KeyTokenDir           = "token-dir"
	KeyAttachmentDir      = "attachment-dir"
	KeyBodyPolicy         = "body-policy"
	KeyRateLimit          = "rate-limit"
	KeyRateBurst          = "rate-burst"
	KeyTransport          = "transport"
	KeyHTTPAddr           = "http-addr"
	KeyMetricsEnabled     = "metrics-enabled"
	KeyMetricsAddr        = "metrics-addr"
	KeyReadOnly           = "read-only"
	KeyDebug              = "debug"
	KeyLogFormat          = "log-format"
)

// Transport values.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Body policy values. They map onto gmail.BodyPolicy.
const (
	BodyPolicyFirstInline = "first-inline"
	BodyPolicyPreferText  = "prefer-text"
)

// Config is the resolved runtime configuration.
type Config struct {
	// ClientSecretFile is the Google OAuth client JSON downloaded from the cloud console.
	ClientSecretFile string
	// GoogleClientID and GoogleClientSecret are used when ClientSecretFile does not exist.
	GoogleClientID     string
	GoogleClientSecret string

	TokenDir      string
	AttachmentDir string
	BodyPolicy    string

	// RateLimit is the per-mailbox Gmail call rate in requests per second. Zero disables pacing.
	RateLimit float64
	RateBurst int

	Transport      string
	HTTPAddr       string
	MetricsEnabled bool
	MetricsAddr    string

	ReadOnly  bool
	Debug     bool
	LogFormat string

	Telemetry instrumentation.Config
}

// New returns a viper instance with defaults, environment binding and config
// file search paths set up. It does not read anything yet.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyClientSecretFile, "client_secret.json")
	v.SetDefault(KeyTokenDir, "token_files")
	v.SetDefault(KeyAttachmentDir, "downloaded_attachments")
	v.SetDefault(KeyBodyPolicy, BodyPolicyFirstInline)
	v.SetDefault(KeyRateLimit, 0.0)
	v.SetDefault(KeyRateBurst, 5)
	v.SetDefault(KeyTransport, TransportStdio)
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeyMetricsAddr, ":9090")
	v.SetDefault(KeyReadOnly, false)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyLogFormat, "text")

	instrumentation.RegisterDefaults(v, EnvPrefix)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// The unprefixed Google variables are what the Google tooling documents.
	_ = v.BindEnv(KeyGoogleClientID, EnvPrefix+"_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	_ = v.BindEnv(KeyGoogleClientSecret, EnvPrefix+"_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "gmail-mcp-server"))
	}
	return v
}

// BindFlags binds every flag in fs whose name is a configuration key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// LoadDotEnv loads path into the process environment. A missing file is not
// an error. Existing variables are not overridden.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file, if any, and returns the validated configuration.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		ClientSecretFile:   v.GetString(KeyClientSecretFile),
		GoogleClientID:     v.GetString(KeyGoogleClientID),
		GoogleClientSecret: v.GetString(KeyGoogleClientSecret),
		TokenDir:           v.GetString(KeyTokenDir),
		AttachmentDir:      v.GetString(KeyAttachmentDir),
		BodyPolicy:         v.GetString(KeyBodyPolicy),
		RateLimit:          v.GetFloat64(KeyRateLimit),
		RateBurst:          v.GetInt(KeyRateBurst),
		Transport:          v.GetString(KeyTransport),
		HTTPAddr:           v.GetString(KeyHTTPAddr),
		MetricsEnabled:     v.GetBool(KeyMetricsEnabled),
		MetricsAddr:        v.GetString(KeyMetricsAddr),
		ReadOnly:           v.GetBool(KeyReadOnly),
		Debug:              v.GetBool(KeyDebug),
		LogFormat:          v.GetString(KeyLogFormat),
		Telemetry:          instrumentation.ConfigFromViper(v),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport %q, must be %s or %s", c.Transport, TransportStdio, TransportStreamableHTTP)
	}
	switch c.BodyPolicy {
	case BodyPolicyFirstInline, BodyPolicyPreferText:
	default:
		return fmt.Errorf("unsupported body policy %q, must be %s or %s", c.BodyPolicy, BodyPolicyFirstInline, BodyPolicyPreferText)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when a rate limit is set, got %d", c.RateBurst)
	}
	if c.TokenDir == "" {
		return errors.New("token directory must not be empty")
	}
	if c.AttachmentDir == "" {
		return errors.New("attachment directory must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q, must be text or json", c.LogFormat)
	}
	return c.Telemetry.Validate()
}
