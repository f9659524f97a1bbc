package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/weberc2/ext2img/pkg/log"
)

const (
	envVarPrefix = "EXT2IMG"
	appName      = "ext2img"
)

type Config struct {
	Image     string `envconfig:"IMAGE"      yaml:"image"     toml:"image"`
	Partition int    `envconfig:"PARTITION"  yaml:"partition" toml:"partition"`
	LogLevel  string `envconfig:"LOG_LEVEL"  yaml:"logLevel"  toml:"log_level"`
	LogFormat string `envconfig:"LOG_FORMAT" yaml:"logFormat" toml:"log_format"`
	Output    string `envconfig:"OUTPUT"     yaml:"output"    toml:"output"`
	Lock      *bool  `envconfig:"LOCK"       yaml:"lock"      toml:"lock"`
	ReadOnly  bool   `envconfig:"READ_ONLY"  yaml:"readOnly"  toml:"read_only"`
}

// defaultConfigFile is consulted when neither a flag nor EXT2IMG_CONFIG_FILE
// names a config file. It is fine for it not to exist.
func defaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName+".yaml")
}

// LoadConfig reads the config file at path (YAML, or TOML when the file
// name ends in `.toml`) and then applies EXT2IMG_* environment variables on
// top. An empty path selects EXT2IMG_CONFIG_FILE or the default file.
func LoadConfig(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(envVarPrefix + "_CONFIG_FILE")
	}
	if path == "" {
		path, explicit = defaultConfigFile(), false
	}

	var c Config
	if path != "" {
		if err := c.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	c.defaults()
	return &c, nil
}

func (c *Config) loadFile(path string) error {
	if strings.HasSuffix(path, ".toml") {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("loading config file `%s`: %w", path, err)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file `%s`: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("unmarshaling config file `%s`: %w", path, err)
	}
	return nil
}

func (c *Config) defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Output == "" {
		c.Output = "json"
	}
	if c.Lock == nil {
		lock := true
		c.Lock = &lock
	}
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf(
			"missing required config `image` (env: `%s_IMAGE`)",
			envVarPrefix,
		)
	}
	if c.Partition < 0 || c.Partition > 3 {
		return fmt.Errorf("partition `%d`: wanted `[0, 3]`", c.Partition)
	}
	switch c.Output {
	case "json", "yaml":
	default:
		return fmt.Errorf("output `%s`: wanted `json` or `yaml`", c.Output)
	}
	if _, err := log.New(os.Stderr, c.LogLevel, c.LogFormat); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}
