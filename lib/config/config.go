// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path
// from.
const EnvVar = "PAKFORGE_CONFIG"

// Config is the complete pakforge configuration.
type Config struct {
	// Profile selects one entry of Profiles to apply over the base
	// values. Empty applies none.
	Profile string `yaml:"profile"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Archives lists the container files of the namespace.
	Archives []ArchiveConfig `yaml:"archives"`

	// Overrides lists the loose-file directories of the namespace.
	Overrides []OverrideConfig `yaml:"overrides"`

	// Schemas configures where record definitions come from.
	Schemas SchemaConfig `yaml:"schemas"`

	// Cache bounds the decode cache.
	Cache CacheConfig `yaml:"cache"`

	// Decode configures batch decoding and verification.
	Decode DecodeConfig `yaml:"decode"`

	// Pack configures container writing.
	Pack PackConfig `yaml:"pack"`

	// Profiles holds named overrides selected by Profile.
	Profiles map[string]*Overrides `yaml:"profiles,omitempty"`
}

// Overrides contains the sections a profile can replace. Non-nil
// lists replace the base list wholesale.
type Overrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Archives  []ArchiveConfig  `yaml:"archives,omitempty"`
	Overrides []OverrideConfig `yaml:"overrides,omitempty"`
	Schemas   *SchemaConfig    `yaml:"schemas,omitempty"`
	Cache     *CacheConfig     `yaml:"cache,omitempty"`
	Decode    *DecodeConfig    `yaml:"decode,omitempty"`
	Pack      *PackConfig      `yaml:"pack,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for pakforge data. Available to
	// other values as ${PAKFORGE_ROOT}.
	Root string `yaml:"root"`

	// Mount is the default mount point for "pakforge mount".
	Mount string `yaml:"mount"`
}

// ArchiveConfig declares one container file.
type ArchiveConfig struct {
	Path string `yaml:"path"`

	// Priority orders archives providing the same item. Higher wins;
	// ties go to the archive listed last.
	Priority int `yaml:"priority"`
}

// OverrideConfig declares one loose-file directory. Overrides always
// win over archives.
type OverrideConfig struct {
	Path     string `yaml:"path"`
	Priority int    `yaml:"priority"`
}

// SchemaConfig configures record definitions.
type SchemaConfig struct {
	// Dirs are scanned for .yaml, .yml, .json, .jsonc and .cbor
	// definition files, in order.
	Dirs []string `yaml:"dirs"`

	// Bundle is a compiled CBOR bundle loaded before Dirs.
	Bundle string `yaml:"bundle"`
}

// CacheConfig bounds the decode cache. Zero disables a limit.
type CacheConfig struct {
	MaxEntries int   `yaml:"max_entries"`
	MaxBytes   int64 `yaml:"max_bytes"`
}

// DecodeConfig configures decoding.
type DecodeConfig struct {
	// Parallelism bounds concurrent decodes in a batch.
	Parallelism int `yaml:"parallelism"`

	// VerifyOnCommit round-trips a record before writing it.
	VerifyOnCommit bool `yaml:"verify_on_commit"`

	// MaxDiffCost caps the edit distance searched by byte diffs.
	MaxDiffCost int `yaml:"max_diff_cost"`
}

// PackConfig configures container writing.
type PackConfig struct {
	// Compression is auto, none, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// Compression values accepted by PackConfig.
var compressionValues = []string{"auto", "none", "lz4", "zstd"}

// Default returns the default configuration. Loading starts from
// these values; the config file is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "pakforge")

	return &Config{
		Paths: PathsConfig{
			Root:  defaultRoot,
			Mount: filepath.Join(defaultRoot, "mnt"),
		},
		Cache: CacheConfig{
			MaxEntries: 4096,
			MaxBytes:   256 << 20,
		},
		Decode: DecodeConfig{
			Parallelism:    8,
			VerifyOnCommit: true,
			MaxDiffCost:    2048,
		},
		Pack: PackConfig{
			Compression: "auto",
		},
	}
}

// Load loads configuration from the file named by PAKFORGE_CONFIG.
// There is no search path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your pakforge.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. The selected profile is
// applied, ${VAR} references are expanded, and relative paths are
// resolved against the directory holding the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyProfile(); err != nil {
		return nil, err
	}
	cfg.expandVariables()

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	cfg.resolveRelative(base)
	return cfg, nil
}

// Parse loads configuration from YAML data. Relative paths are
// resolved against base.
func Parse(data []byte, base string) (*Config, error) {
	cfg := Default()
	if err := cfg.unmarshal(data); err != nil {
		return nil, err
	}
	if err := cfg.applyProfile(); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	cfg.resolveRelative(base)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := c.unmarshal(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) unmarshal(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// applyProfile merges the selected profile over the base values.
func (c *Config) applyProfile() error {
	if c.Profile == "" {
		return nil
	}
	overrides, ok := c.Profiles[c.Profile]
	if !ok {
		return fmt.Errorf("profile %q is not defined", c.Profile)
	}
	if overrides == nil {
		return nil
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Mount != "" {
			c.Paths.Mount = overrides.Paths.Mount
		}
	}
	if overrides.Archives != nil {
		c.Archives = overrides.Archives
	}
	if overrides.Overrides != nil {
		c.Overrides = overrides.Overrides
	}
	if overrides.Schemas != nil {
		if overrides.Schemas.Dirs != nil {
			c.Schemas.Dirs = overrides.Schemas.Dirs
		}
		if overrides.Schemas.Bundle != "" {
			c.Schemas.Bundle = overrides.Schemas.Bundle
		}
	}
	if overrides.Cache != nil {
		if overrides.Cache.MaxEntries != 0 {
			c.Cache.MaxEntries = overrides.Cache.MaxEntries
		}
		if overrides.Cache.MaxBytes != 0 {
			c.Cache.MaxBytes = overrides.Cache.MaxBytes
		}
	}
	if overrides.Decode != nil {
		if overrides.Decode.Parallelism != 0 {
			c.Decode.Parallelism = overrides.Decode.Parallelism
		}
		if overrides.Decode.MaxDiffCost != 0 {
			c.Decode.MaxDiffCost = overrides.Decode.MaxDiffCost
		}
		// VerifyOnCommit is a bool, so we always apply it from overrides.
		c.Decode.VerifyOnCommit = overrides.Decode.VerifyOnCommit
	}
	if overrides.Pack != nil && overrides.Pack.Compression != "" {
		c.Pack.Compression = overrides.Pack.Compression
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PAKFORGE_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PAKFORGE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Mount = expandVars(c.Paths.Mount, vars)
	for i := range c.Archives {
		c.Archives[i].Path = expandVars(c.Archives[i].Path, vars)
	}
	for i := range c.Overrides {
		c.Overrides[i].Path = expandVars(c.Overrides[i].Path, vars)
	}
	for i := range c.Schemas.Dirs {
		c.Schemas.Dirs[i] = expandVars(c.Schemas.Dirs[i], vars)
	}
	c.Schemas.Bundle = expandVars(c.Schemas.Bundle, vars)
}

// resolveRelative makes every relative path absolute under base.
func (c *Config) resolveRelative(base string) {
	resolve := func(path *string) {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(base, *path)
		}
	}
	resolve(&c.Paths.Root)
	resolve(&c.Paths.Mount)
	for i := range c.Archives {
		resolve(&c.Archives[i].Path)
	}
	for i := range c.Overrides {
		resolve(&c.Overrides[i].Path)
	}
	for i := range c.Schemas.Dirs {
		resolve(&c.Schemas.Dirs[i])
	}
	resolve(&c.Schemas.Bundle)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if len(c.Archives) == 0 && len(c.Overrides) == 0 {
		errs = append(errs, fmt.Errorf("at least one archive or override directory is required"))
	}
	for i, archive := range c.Archives {
		if archive.Path == "" {
			errs = append(errs, fmt.Errorf("archives[%d].path is required", i))
		}
	}
	for i, override := range c.Overrides {
		if override.Path == "" {
			errs = append(errs, fmt.Errorf("overrides[%d].path is required", i))
		}
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative"))
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.max_bytes must not be negative"))
	}
	if c.Decode.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("decode.parallelism must be at least 1"))
	}
	if c.Decode.MaxDiffCost < 1 {
		errs = append(errs, fmt.Errorf("decode.max_diff_cost must be at least 1"))
	}
	if !slices.Contains(compressionValues, c.Pack.Compression) {
		errs = append(errs, fmt.Errorf("pack.compression must be one of: %v", compressionValues))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the root and every override directory.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root}
	for _, override := range c.Overrides {
		paths = append(paths, override.Path)
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
