// Package config handles configuration loading for the facturx CLI and
// HTTP server.
//
// Values are layered, later sources winning: built-in defaults, a YAML file
// with environment variable expansion (${VAR} or $VAR), the process
// environment (FACTURX_*, optionally seeded from a .env file) and finally
// command line flags, which the CLI applies on top.
//
// # Example Configuration
//
//	profile: en16931
//	server:
//	  address: ":8080"
//	  readTimeout: 30s
//	  maxBodyBytes: 20971520
//	log:
//	  json: true
//	pdf:
//	  producer: ${COMPANY_NAME} billing
//	render:
//	  templates: ./templates
//	  rasterizer: wkhtmltopdf
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FACTURX_"

// ErrConfigNotFound is returned when an explicitly named file does not exist
var ErrConfigNotFound = errors.New("config file not found")

// Config is the root configuration structure
type Config struct {
	Profile string       `yaml:"profile"`
	Server  ServerConfig `yaml:"server"`
	Log     LogConfig    `yaml:"log"`
	PDF     PDFConfig    `yaml:"pdf"`
	Render  RenderConfig `yaml:"render"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	Debug        bool          `yaml:"debug"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// PDFConfig holds PDF/A embedding settings
type PDFConfig struct {
	// Producer is recorded in the XMP metadata of embedded PDFs
	Producer string `yaml:"producer"`
}

// RenderConfig holds the template rendering collaborators
type RenderConfig struct {
	// Templates is a directory of <key>.html templates
	Templates string `yaml:"templates"`
	// Rasterizer is an HTML to PDF program; empty means auto-detect
	Rasterizer string   `yaml:"rasterizer"`
	Args       []string `yaml:"args"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from a YAML file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Resolve builds the effective configuration: envFile is loaded into the
// environment when present, then path (if not empty) is read, then
// FACTURX_* variables are applied and the result is validated.
func Resolve(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Defaults()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Profile == "" {
		c.Profile = "en16931"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 20 << 20 // 20MB
	}
	if c.PDF.Producer == "" {
		c.PDF.Producer = "facturx"
	}
}

// ApplyEnv overrides values from FACTURX_* variables found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key+": "+err.Error())
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, EnvPrefix+key+": "+err.Error())
				return
			}
			*dst = d
		}
	}

	str("PROFILE", &c.Profile)
	str("SERVER_ADDRESS", &c.Server.Address)
	duration("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	duration("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	boolean("SERVER_DEBUG", &c.Server.Debug)
	if v, ok := lookup(EnvPrefix + "SERVER_MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, EnvPrefix+"SERVER_MAX_BODY_BYTES: "+err.Error())
		} else {
			c.Server.MaxBodyBytes = n
		}
	}
	boolean("LOG_VERBOSE", &c.Log.Verbose)
	boolean("LOG_JSON", &c.Log.JSON)
	str("PDF_PRODUCER", &c.PDF.Producer)
	str("RENDER_TEMPLATES", &c.Render.Templates)
	str("RENDER_RASTERIZER", &c.Render.Rasterizer)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for values no component accepts
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Profile) == "" {
		return fmt.Errorf("profile is required")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.maxBodyBytes must not be negative, got %d", c.Server.MaxBodyBytes)
	}
	if c.Render.Rasterizer == "" && len(c.Render.Args) > 0 {
		return fmt.Errorf("render.args requires render.rasterizer")
	}
	return nil
}
