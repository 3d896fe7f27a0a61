// Package config loads callgraph settings from defaults, a YAML file, .env
// files, CALLGRAPH_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"go-callgraph/internal/driver"
	"go-callgraph/internal/export"
	"go-callgraph/internal/graph"
)

// EnvPrefix prefixes every environment variable the tool reads.
const EnvPrefix = "CALLGRAPH"

// Config is the complete tool configuration.
type Config struct {
	Dir      string        `mapstructure:"dir"`
	Patterns []string      `mapstructure:"patterns"`
	Tests    bool          `mapstructure:"tests"`
	Format   string        `mapstructure:"format"`
	Jobs     int           `mapstructure:"jobs"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Neo4j    Neo4j         `mapstructure:"neo4j"`
	SQLite   SQLite        `mapstructure:"sqlite"`
}

// Neo4j configures the Neo4j sink. The sink is enabled when URI is set.
type Neo4j struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Clean    bool   `mapstructure:"clean"`
}

// SQLite configures the SQLite sink. The sink is enabled when Path is set.
type SQLite struct {
	Path string `mapstructure:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dir:      ".",
		Patterns: []string{"./..."},
		Format:   string(graph.FormatText),
		Timeout:  driver.DefaultTimeout,
		Neo4j:    Neo4j{User: "neo4j"},
	}
}

// New prepares a viper instance with defaults, environment binding and,
// if found, the config file. An empty path searches for .callgraph.yaml in
// the working directory. Callers may bind flags before calling Load.
func New(path string) (*viper.Viper, error) {
	LoadEnvFiles(".")

	v := viper.New()
	v.SetConfigType("yaml")

	def := Default()
	v.SetDefault("dir", def.Dir)
	v.SetDefault("patterns", def.Patterns)
	v.SetDefault("tests", def.Tests)
	v.SetDefault("format", def.Format)
	v.SetDefault("jobs", def.Jobs)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("neo4j.uri", def.Neo4j.URI)
	v.SetDefault("neo4j.user", def.Neo4j.User)
	v.SetDefault("neo4j.password", def.Neo4j.Password)
	v.SetDefault("neo4j.clean", def.Neo4j.Clean)
	v.SetDefault("sqlite.path", def.SQLite.Path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".callgraph")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env.local and .env from each dir. Variables already
// set in the environment win.
func LoadEnvFiles(dirs ...string) {
	for _, dir := range dirs {
		for _, name := range []string{".env.local", ".env"} {
			file := filepath.Join(dir, name)
			if _, err := os.Stat(file); err == nil {
				_ = godotenv.Load(file)
			}
		}
	}
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if _, err := graph.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Neo4j.URI != "" && c.Neo4j.Password == "" {
		return errors.New("neo4j password is required when neo4j uri is set")
	}
	return nil
}

// OutputFormat returns the parsed report format.
func (c *Config) OutputFormat() graph.Format {
	f, _ := graph.ParseFormat(c.Format)
	return f
}

// Driver returns the driver settings.
func (c *Config) Driver() driver.Config {
	return driver.Config{
		Dir:      c.Dir,
		Patterns: c.Patterns,
		Tests:    c.Tests,
		Jobs:     c.Jobs,
		Timeout:  c.Timeout,
	}
}

// Neo4jSink returns the Neo4j sink settings and whether the sink is enabled.
func (c *Config) Neo4jSink() (export.Neo4jConfig, bool) {
	return export.Neo4jConfig{
		URI:      c.Neo4j.URI,
		User:     c.Neo4j.User,
		Password: c.Neo4j.Password,
		Clean:    c.Neo4j.Clean,
	}, c.Neo4j.URI != ""
}
