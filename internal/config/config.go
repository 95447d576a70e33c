// Package config loads the settings shared by the cipherseal command and
// server.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultKeyEnv is the environment variable holding the secret key.
const DefaultKeyEnv = "WATERMARKER_SECRET_KEY"

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingKey    = errors.New("secret key is not set")
)

type Config struct {
	Key       KeyConfig       `toml:"key" json:"key" yaml:"key"`
	Watermark WatermarkConfig `toml:"watermark" json:"watermark" yaml:"watermark"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Server    ServerConfig    `toml:"server" json:"server" yaml:"server"`
	Batch     BatchConfig     `toml:"batch" json:"batch" yaml:"batch"`
}

// KeyConfig tells where the secret key comes from. The key itself is never
// part of a configuration file.
type KeyConfig struct {
	// Env is the environment variable holding the key.
	Env string `toml:"env" json:"env" yaml:"env"`
	// Encoding of the variable: "raw", "hex" or "base64".
	Encoding string `toml:"encoding" json:"encoding" yaml:"encoding"`
}

type WatermarkConfig struct {
	// ECC is the error correction layer: "none" or "golay".
	ECC string `toml:"ecc" json:"ecc" yaml:"ecc"`
	// Normalize converts text to NFC before marking.
	Normalize bool `toml:"normalize" json:"normalize" yaml:"normalize"`
}

type LoggingConfig struct {
	// Level is a logrus level name.
	Level string `toml:"level" json:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes     int64 `toml:"max_upload_bytes" json:"max_upload_bytes" yaml:"max_upload_bytes"`
	ReadTimeoutSec     int   `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec    int   `toml:"write_timeout_sec" json:"write_timeout_sec" yaml:"write_timeout_sec"`
	ShutdownTimeoutSec int   `toml:"shutdown_timeout_sec" json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

type BatchConfig struct {
	// Workers is the number of files processed in parallel.
	Workers int `toml:"workers" json:"workers" yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Key: KeyConfig{
			Env:      DefaultKeyEnv,
			Encoding: "raw",
		},
		Watermark: WatermarkConfig{
			ECC: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:               ":8000",
			MaxUploadBytes:     32 << 20,
			ReadTimeoutSec:     30,
			WriteTimeoutSec:    60,
			ShutdownTimeoutSec: 10,
		},
		Batch: BatchConfig{
			Workers: runtime.NumCPU(),
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path loads the defaults.
// The format follows the extension: .toml, .json, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("%w: decode TOML: %w", ErrInvalidConfig, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: decode JSON: %w", ErrInvalidConfig, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: decode YAML: %w", ErrInvalidConfig, err)
		}
	default:
		return fmt.Errorf("%w: unknown config format %q", ErrInvalidConfig, ext)
	}
	return nil
}

// ApplyEnvOverrides applies CIPHERSEAL_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("CIPHERSEAL_KEY_ENV"); v != "" {
		c.Key.Env = v
	}
	if v := os.Getenv("CIPHERSEAL_KEY_ENCODING"); v != "" {
		c.Key.Encoding = v
	}
	if v := os.Getenv("CIPHERSEAL_ECC"); v != "" {
		c.Watermark.ECC = v
	}
	if v := os.Getenv("CIPHERSEAL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CIPHERSEAL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CIPHERSEAL_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CIPHERSEAL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CIPHERSEAL_WORKERS: %w", ErrInvalidConfig, err)
		}
		c.Batch.Workers = n
	}
	return nil
}

// SecretKey reads and decodes the key from the configured environment
// variable.
func (c *Config) SecretKey() ([]byte, error) {
	v, ok := os.LookupEnv(c.Key.Env)
	if !ok || v == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingKey, c.Key.Env)
	}
	var (
		key []byte
		err error
	)
	switch c.Key.Encoding {
	case "", "raw":
		key = []byte(v)
	case "hex":
		key, err = hex.DecodeString(v)
	case "base64":
		key, err = base64.StdEncoding.DecodeString(v)
	default:
		return nil, fmt.Errorf("%w: key encoding %q", ErrInvalidConfig, c.Key.Encoding)
	}
	if err != nil {
		// the decoder error may quote the key
		return nil, fmt.Errorf("%w: %s is not valid %s", ErrInvalidConfig, c.Key.Env, c.Key.Encoding)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %s decodes to an empty key", ErrMissingKey, c.Key.Env)
	}
	return key, nil
}
