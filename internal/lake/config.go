package lake

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/poslake-io/poslake/internal/config"
)

// DefaultConfigPath is the default location for the poslake configuration
// file. Hidden-file convention, same as other per-project tool configs.
const DefaultConfigPath = ".poslake.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "POSLAKE_CONFIG_PATH"

// DefaultRoot is where the lake lives when nothing else is configured.
const DefaultRoot = "dados/data_lake"

// Config holds lake-wide settings loaded from .poslake.yaml with environment
// overrides.
type Config struct {
	// Root is the base directory of the lake.
	Root string `yaml:"root"`

	// SourceSystem is recorded as "origem" in every envelope.
	SourceSystem string `yaml:"origem"`

	// OperatorID is recorded as "usuario" in every envelope.
	OperatorID string `yaml:"usuario"`

	// HashAlgorithm selects the content hash: sha256 (default) or blake2b.
	HashAlgorithm string `yaml:"algoritmo_hash"`

	// RetentionDays is the default age threshold for the archive command.
	RetentionDays int `yaml:"dias_retencao"`
}

// LoadConfig loads lake configuration from a YAML file at the given path,
// then applies environment overrides.
//
// Behavior:
//   - Missing file is fine: the config file is optional.
//   - Invalid YAML degrades gracefully to defaults, with a warning.
func LoadConfig(path string) *Config {
	cfg := &Config{}

	data, err := os.ReadFile(path)

	switch {
	case err == nil:
		if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
			slog.Warn("Invalid config file, continuing with defaults",
				slog.String("path", path),
				slog.String("error", yamlErr.Error()))

			cfg = &Config{}
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("Config file not found, using defaults", slog.String("path", path))
	default:
		slog.Warn("Failed to read config file, continuing with defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	return cfg
}

// ConfigPath returns the configured config file location.
func ConfigPath() string {
	return config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = DefaultRoot
	}

	if c.SourceSystem == "" {
		c.SourceSystem = "sistema_pos"
	}

	if c.OperatorID == "" {
		c.OperatorID = "operador001"
	}

	if c.HashAlgorithm == "" {
		c.HashAlgorithm = HashSHA256
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
}

func (c *Config) applyEnvOverrides() {
	c.Root = config.GetEnvStr("POSLAKE_ROOT", c.Root)
	c.SourceSystem = config.GetEnvStr("POSLAKE_SOURCE_SYSTEM", c.SourceSystem)
	c.OperatorID = config.GetEnvStr("POSLAKE_OPERATOR", c.OperatorID)
	c.HashAlgorithm = config.GetEnvStr("POSLAKE_HASH_ALGORITHM", c.HashAlgorithm)
	c.RetentionDays = config.GetEnvInt("POSLAKE_RETENTION_DAYS", c.RetentionDays)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("lake root cannot be empty")
	}

	if _, err := NewHasher(c.HashAlgorithm); err != nil {
		return fmt.Errorf("invalid hash algorithm: %w", err)
	}

	return nil
}
