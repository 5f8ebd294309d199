package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/trellis"
)

const configFileName = ".trellis.yaml"

// projectConfig is the contents of a .trellis.yaml file.
type projectConfig struct {
	RootTypes   []string `yaml:"root_types"`
	Extensions  []string `yaml:"extensions"`
	Exclude     []string `yaml:"exclude"`
	ScriptsDir  string   `yaml:"scripts_dir"`
	Concurrency int      `yaml:"concurrency"`
}

// loadProjectConfig reads the project file at path. A missing file yields an
// empty config unless required is set.
func loadProjectConfig(path string, required bool) (*projectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return &projectConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg projectConfig
	if strings.TrimSpace(string(data)) == "" {
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("%s: concurrency must be non-negative, got %d", path, cfg.Concurrency)
	}
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("%s: extension %q must start with a dot", path, ext)
		}
	}
	for _, pattern := range cfg.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("%s: bad exclude pattern %q: %w", path, pattern, err)
		}
	}
	return &cfg, nil
}

// options turns the config into Engine options. A relative scripts_dir is
// taken relative to the project root.
func (c *projectConfig) options(root string) []trellis.Option {
	var opts []trellis.Option
	if len(c.RootTypes) > 0 {
		opts = append(opts, trellis.WithRootTypes(c.RootTypes...))
	}
	if len(c.Extensions) > 0 {
		opts = append(opts, trellis.WithExtensions(c.Extensions...))
	}
	if len(c.Exclude) > 0 {
		opts = append(opts, trellis.WithExclude(c.Exclude...))
	}
	if c.ScriptsDir != "" {
		dir := c.ScriptsDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		opts = append(opts, trellis.WithScriptsDir(dir))
	}
	if c.Concurrency > 0 {
		opts = append(opts, trellis.WithConcurrency(c.Concurrency))
	}
	return opts
}
