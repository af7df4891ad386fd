package config

import (
	"bytes"
	_ "embed"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	apperrors "graphseed/internal/errors"
)

// EnvPrefix is the prefix of environment variables that override configuration.
const EnvPrefix = "GRAPHSEED_"

//go:embed defaults.yaml
var embeddedDefaults []byte

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// Path is an optional YAML (.yaml/.yml) or TOML (.toml) file.
	Path string
	// DotEnv is an optional .env file; a missing file is ignored.
	DotEnv string
	// EnvPrefix overrides EnvPrefix; empty means the default.
	EnvPrefix string
	// SkipEnv disables environment overrides.
	SkipEnv bool
}

// Defaults returns the embedded default configuration.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := decode(embeddedDefaults, ".yaml", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode embedded defaults")
	}
	return cfg, nil
}

// Load layers defaults, file, .env and environment into a Config. The result
// is normalised but not validated; callers apply flag overrides first.
func Load(opts LoadOptions) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCategoryConfig, apperrors.CodeConfigDecode, "failed to load default configuration", err).
			WithModule("config").
			WithOperation("Load")
	}

	cfg.BaseDir, _ = os.Getwd()

	if opts.Path != "" {
		if err := overlayFile(cfg, opts.Path); err != nil {
			return nil, apperrors.New(apperrors.ErrCategoryConfig, apperrors.CodeConfigDecode, "failed to load configuration file", err).
				WithModule("config").
				WithOperation("Load").
				WithField("path", opts.Path)
		}
		abs, err := filepath.Abs(opts.Path)
		if err == nil {
			cfg.BaseDir = filepath.Dir(abs)
		}
	}

	if opts.DotEnv != "" {
		if err := godotenv.Load(opts.DotEnv); err != nil && !stdErrors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.New(apperrors.ErrCategoryConfig, apperrors.CodeConfigEnv, "failed to read .env file", err).
				WithModule("config").
				WithOperation("Load").
				WithField("path", opts.DotEnv)
		}
	}

	if !opts.SkipEnv {
		prefix := opts.EnvPrefix
		if prefix == "" {
			prefix = EnvPrefix
		}
		if err := applyEnv(cfg, prefix); err != nil {
			return nil, apperrors.New(apperrors.ErrCategoryConfig, apperrors.CodeConfigEnv, "failed to apply environment overrides", err).
				WithModule("config").
				WithOperation("Load").
				WithField("prefix", prefix)
		}
	}

	cfg.Normalize()
	return cfg, nil
}

// Parse decodes data over the defaults. ext selects the syntax (".yaml" or ".toml").
func Parse(data []byte, ext string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}
	if err := decode(data, ext, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file: %s", path)
	}
	return decode(data, filepath.Ext(path), cfg)
}

// decode unmarshals data on top of cfg, so keys absent from data keep their
// current values. Lists are replaced, not merged.
func decode(data []byte, ext string, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return errors.Wrap(err, "failed to parse TOML configuration")
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, "failed to parse YAML configuration")
		}
	default:
		return errors.Errorf("unsupported configuration format %q", ext)
	}
	return nil
}

// Normalize trims values and anchors relative paths at BaseDir.
func (c *Config) Normalize() {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	c.DefaultRepository = strings.TrimSpace(c.DefaultRepository)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	c.Ledger.Path = c.resolve(c.Ledger.Path)
	c.Process.LogFile = c.resolve(c.Process.LogFile)
	c.Process.Workdir = c.resolve(c.Process.Workdir)

	for i := range c.Repositories {
		c.Repositories[i].ID = strings.TrimSpace(c.Repositories[i].ID)
		c.Repositories[i].ConfigFile = c.resolve(c.Repositories[i].ConfigFile)
	}
	for i := range c.Datasets {
		ds := &c.Datasets[i]
		ds.Path = c.resolve(strings.TrimSpace(ds.Path))
		ds.Repository = strings.TrimSpace(ds.Repository)
		ds.Context = strings.TrimSpace(ds.Context)
		ds.Format = strings.TrimSpace(ds.Format)
		ds.SHA256 = strings.ToLower(strings.TrimSpace(ds.SHA256))
	}
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.BaseDir == "" {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}
