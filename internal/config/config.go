package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the default config path.
const EnvPath = "FTCLIENT_CONFIG"

// Config is the on-disk configuration. Every field is optional; command-line
// flags and FTCLIENT_* environment variables take precedence.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	OutputDir   string            `yaml:"output_dir"`
	Bind        string            `yaml:"bind"`
	Overwrite   *bool             `yaml:"overwrite"`
	Timeout     Duration          `yaml:"timeout"`
	MetricsFile string            `yaml:"metrics_file"`
	Hosts       map[string]string `yaml:"hosts"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration %q is negative", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads path from the OS filesystem. See LoadFS.
func Load(path string) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path)
}

// LoadFS reads a YAML config file from fsys, expands ${VAR} references and
// unmarshals it. Unknown keys are rejected.
func LoadFS(fsys afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(data))))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return &cfg, nil
}

// Discover loads the config named by explicit, or by $FTCLIENT_CONFIG when
// explicit is empty. A missing explicit path is an error. A missing
// $FTCLIENT_CONFIG file, or neither being set, yields an empty Config.
func Discover(fsys afero.Fs, explicit string) (*Config, error) {
	if explicit != "" {
		return LoadFS(fsys, explicit)
	}
	path := os.Getenv(EnvPath)
	if path == "" {
		return &Config{}, nil
	}
	if ok, err := afero.Exists(fsys, path); err == nil && !ok {
		return &Config{}, nil
	}
	return LoadFS(fsys, path)
}

// ResolveHost expands a configured alias to its full host name. Unknown
// names are returned unchanged.
func (c *Config) ResolveHost(host string) string {
	if c == nil {
		return host
	}
	if full, ok := c.Hosts[host]; ok && full != "" {
		return full
	}
	return host
}
