package ir

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable settings of a Context. It may be loaded from a
// YAML document, for example a per-project compiler settings file.
type Config struct {
	// RequireExclusive makes every mutation fail unless it runs inside
	// Context.Exclusive.
	RequireExclusive bool `yaml:"require_exclusive"`

	// MaxVerifyErrors caps the number of violations collected by a full
	// verification. Zero means no limit.
	MaxVerifyErrors int `yaml:"max_verify_errors"`

	// VerifyParallelism is the number of goroutines used to verify sibling
	// operations. Values <= 1 verify sequentially.
	VerifyParallelism int `yaml:"verify_parallelism"`

	// LogLevel is a zerolog level name applied to the Context logger.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxVerifyErrors:   0,
		VerifyParallelism: 1,
		LogLevel:          "info",
	}
}

// ParseConfig parses a YAML configuration document. Unset fields keep their
// default values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML configuration document.
func LoadConfig(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	return ParseConfig(data)
}

func (cfg Config) validate() error {
	if cfg.MaxVerifyErrors < 0 {
		return errors.Newf("max_verify_errors must be >= 0, got %d", cfg.MaxVerifyErrors)
	}
	if _, err := cfg.level(); err != nil {
		return err
	}
	return nil
}

func (cfg Config) level() (zerolog.Level, error) {
	if cfg.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log_level %q", cfg.LogLevel)
	}
	return level, nil
}
