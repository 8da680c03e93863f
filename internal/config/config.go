// Package config provides the run configuration for the acceptance test runner.
// Values come from a secrets file (secrets.json by default), environment
// variables with the ACCTEST_ prefix, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrMissingBaseURL is returned when base_url is empty.
	ErrMissingBaseURL = errors.New("config: base_url is required")
	// ErrMissingToken is returned when access_token is empty.
	ErrMissingToken = errors.New("config: access_token is required")
	// ErrMissingMetadataPath is returned when metadata_path is empty.
	ErrMissingMetadataPath = errors.New("config: metadata_path is required")
	// ErrMissingSheetPath is returned when input_excel_path is empty.
	ErrMissingSheetPath = errors.New("config: input_excel_path is required")
)

// EnvPrefix is the prefix of environment overrides, e.g. ACCTEST_ACCESS_TOKEN.
const EnvPrefix = "ACCTEST"

// DefaultFile is the configuration file read when none is given.
const DefaultFile = "secrets.json"

// Config is the run-scoped configuration. It is read once at startup and
// never mutated afterwards.
type Config struct {
	// BaseURL is prepended to every step URL.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// AccessToken is sent as a bearer token on every call.
	AccessToken string `yaml:"access_token" json:"access_token"`

	// MetadataPath is the directory of tab descriptors.
	MetadataPath string `yaml:"metadata_path" json:"metadata_path"`

	// InputExcelPath is the directory holding <tab_name>.xlsx or .csv files.
	InputExcelPath string `yaml:"input_excel_path" json:"input_excel_path"`

	// OutputPath is the directory result files are written to.
	// Default: "outputs"
	OutputPath string `yaml:"output_path" json:"output_path"`

	// SummaryFile is an optional path for the JSON run summary.
	SummaryFile string `yaml:"summary_file,omitempty" json:"summary_file,omitempty"`

	// Headers are extra headers added to every request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// TLSSkipVerify skips TLS certificate verification (for testing only).
	TLSSkipVerify bool `yaml:"tls_skip_verify,omitempty" json:"tls_skip_verify,omitempty"`

	// Log configures logging.
	Log LogConfig `yaml:"log" json:"log"`

	// Metrics configures the Prometheus endpoint and textfile export.
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`

	// S3 configures mirroring of result files to a bucket.
	S3 S3Config `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, console
	Output string `yaml:"output" json:"output"` // stdout, stderr, or file path
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty"`

	// Textfile is written in Prometheus text format when the run ends.
	Textfile string `yaml:"textfile,omitempty" json:"textfile,omitempty"`
}

// S3Config holds S3 output settings.
type S3Config struct {
	Bucket       string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix       string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region       string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKey    string `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// TargetConfig is the part of the configuration the HTTP client needs.
type TargetConfig struct {
	// BaseURL is the base URL of the API under test (e.g., "http://localhost:8080/api").
	BaseURL string

	// Token is the bearer token.
	Token string

	// TLSSkipVerify skips TLS certificate verification.
	TLSSkipVerify bool

	// Headers are additional headers to include in all requests.
	Headers map[string]string
}

// Target returns the client configuration.
func (c *Config) Target() TargetConfig {
	return TargetConfig{
		BaseURL:       c.BaseURL,
		Token:         c.AccessToken,
		TLSSkipVerify: c.TLSSkipVerify,
		Headers:       c.Headers,
	}
}

// Load reads configuration from path and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ACCTEST_ prefix (e.g., ACCTEST_ACCESS_TOKEN)
// 2. The file at path (any format viper understands; JSON by default)
// 3. Built-in defaults
//
// A missing file is not an error; Validate reports whatever is still unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	if !strings.Contains(path, ".") {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		BaseURL:        v.GetString("base_url"),
		AccessToken:    v.GetString("access_token"),
		MetadataPath:   v.GetString("metadata_path"),
		InputExcelPath: v.GetString("input_excel_path"),
		OutputPath:     v.GetString("output_path"),
		SummaryFile:    v.GetString("summary_file"),
		Headers:        v.GetStringMapString("headers"),
		TLSSkipVerify:  v.GetBool("tls_skip_verify"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Metrics: MetricsConfig{
			Addr:     v.GetString("metrics.addr"),
			Textfile: v.GetString("metrics.textfile"),
		},
		S3: S3Config{
			Bucket:       v.GetString("s3.bucket"),
			Prefix:       v.GetString("s3.prefix"),
			Region:       v.GetString("s3.region"),
			Endpoint:     v.GetString("s3.endpoint"),
			AccessKey:    v.GetString("s3.access_key"),
			SecretKey:    v.GetString("s3.secret_key"),
			UsePathStyle: v.GetBool("s3.use_path_style"),
		},
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets default values for empty fields.
func (c *Config) ApplyDefaults() {
	if c.OutputPath == "" {
		c.OutputPath = "outputs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
}

// Validate reports every missing required value, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, ErrMissingBaseURL)
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		errs = append(errs, ErrMissingToken)
	}
	if strings.TrimSpace(c.MetadataPath) == "" {
		errs = append(errs, ErrMissingMetadataPath)
	}
	if strings.TrimSpace(c.InputExcelPath) == "" {
		errs = append(errs, ErrMissingSheetPath)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// CheckSheetPath reports ErrMissingSheetPath when InputExcelPath does not exist.
func (c *Config) CheckSheetPath() error {
	if _, err := os.Stat(c.InputExcelPath); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrInvalidConfig, ErrMissingSheetPath, err)
	}
	return nil
}
