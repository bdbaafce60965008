package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jward/labelgraph"
	"github.com/jward/labelgraph/internal/quickinfo"
)

// configFileName is looked up in the repository root when --config is not
// given.
const configFileName = ".labelgraph.yaml"

// Config is the project configuration file.
type Config struct {
	Dialect    string           `yaml:"dialect"`
	MaxLines   int              `yaml:"max_lines"`
	Enabled    *bool            `yaml:"enabled"`
	Parallel   *bool            `yaml:"parallel"`
	Extensions map[string]bool  `yaml:"extensions"`
	Keywords   map[int][]string `yaml:"keywords"`
	Dictionary string           `yaml:"dictionary"`
}

// loadConfig reads path. A missing file yields the zero Config unless
// required is set.
func loadConfig(path string, required bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Dictionary != "" && !filepath.IsAbs(cfg.Dictionary) {
		cfg.Dictionary = filepath.Join(filepath.Dir(path), cfg.Dictionary)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Dialect != "" {
		if _, err := labelgraph.ParseDialect(c.Dialect); err != nil {
			return err
		}
	}
	if c.MaxLines < 0 {
		return fmt.Errorf("max_lines must be non-negative, got %d", c.MaxLines)
	}
	for group := range c.Keywords {
		if group < 1 || group > 3 {
			return fmt.Errorf("keyword group %d out of range 1..3", group)
		}
	}
	return nil
}

// dialect returns the configured dialect, overridden by flag when set.
func (c *Config) dialect(flag string) (labelgraph.Dialect, error) {
	name := c.Dialect
	if flag != "" {
		name = flag
	}
	if name == "" {
		return labelgraph.MASM, nil
	}
	return labelgraph.ParseDialect(name)
}

// engineOptions translates the configuration into Engine options.
func (c *Config) engineOptions(d labelgraph.Dialect) []labelgraph.Option {
	opts := []labelgraph.Option{labelgraph.WithIndexDialect(d)}
	if c.Parallel != nil {
		opts = append(opts, labelgraph.WithParallel(*c.Parallel))
	}
	if len(c.Extensions) > 0 {
		opts = append(opts, labelgraph.WithExtensions(c.Extensions))
	}
	for group, words := range c.Keywords {
		opts = append(opts, labelgraph.WithIndexKeywords(group, words...))
	}
	return opts
}

// workspaceOptions translates the configuration into Workspace options for
// the language server.
func (c *Config) workspaceOptions(d labelgraph.Dialect) []labelgraph.WorkspaceOption {
	opts := []labelgraph.WorkspaceOption{labelgraph.WithWorkspaceDialect(d)}
	if c.MaxLines > 0 {
		opts = append(opts, labelgraph.WithMaxLines(c.MaxLines))
	}
	if c.Enabled != nil {
		opts = append(opts, labelgraph.WithAnalysis(*c.Enabled))
	}
	for group, words := range c.Keywords {
		opts = append(opts, labelgraph.WithUserKeywords(group, words...))
	}
	return opts
}

// dictionary returns the bundled dictionary extended with the configured
// one.
func (c *Config) dictionary() (quickinfo.Dictionary, error) {
	d := quickinfo.DefaultDictionary()
	if c.Dictionary == "" {
		return d, nil
	}
	extra, err := quickinfo.LoadDictionaryFile(c.Dictionary)
	if err != nil {
		return nil, err
	}
	d.Merge(extra)
	return d, nil
}
