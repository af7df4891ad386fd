// Package config loads and validates graphseed configuration.
//
// Sources are layered: embedded defaults, an optional YAML or TOML file,
// a .env file, GRAPHSEED_* environment variables, then CLI flags applied
// by the caller before Validate.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	Server            ServerConfig       `yaml:"server" toml:"server"`
	Process           ProcessConfig      `yaml:"process" toml:"process"`
	Readiness         ReadinessConfig    `yaml:"readiness" toml:"readiness"`
	Upload            UploadConfig       `yaml:"upload" toml:"upload"`
	DefaultRepository string             `yaml:"default_repository" toml:"default_repository"`
	Repositories      []RepositoryConfig `yaml:"repositories" toml:"repositories" validate:"dive"`
	Datasets          []DatasetConfig    `yaml:"datasets" toml:"datasets" validate:"dive"`
	Ledger            LedgerConfig       `yaml:"ledger" toml:"ledger"`
	Log               LogConfig          `yaml:"log" toml:"log"`

	// BaseDir anchors relative paths; it is the directory of the config
	// file, or the working directory when no file was given.
	BaseDir string `yaml:"-" toml:"-"`
}

// ServerConfig describes how to reach the GraphDB REST API.
type ServerConfig struct {
	URL            string        `yaml:"url" toml:"url" validate:"required,url"`
	Username       string        `yaml:"username" toml:"username"`
	Password       string        `yaml:"password" toml:"password"`
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout" validate:"gte=0"`
}

// ProcessConfig describes the optional supervised GraphDB server process.
type ProcessConfig struct {
	Enabled     bool          `yaml:"enabled" toml:"enabled"`
	Command     []string      `yaml:"command" toml:"command"`
	Workdir     string        `yaml:"workdir" toml:"workdir"`
	Env         []string      `yaml:"env" toml:"env"`
	LogFile     string        `yaml:"log_file" toml:"log_file"`
	StopTimeout time.Duration `yaml:"stop_timeout" toml:"stop_timeout" validate:"gte=0"`
}

// ReadinessConfig controls how long graphseed waits for the server.
type ReadinessConfig struct {
	Path         string        `yaml:"path" toml:"path" validate:"required,startswith=/"`
	Attempts     int           `yaml:"attempts" toml:"attempts" validate:"gte=1"`
	InitialDelay time.Duration `yaml:"initial_delay" toml:"initial_delay" validate:"gte=0"`
	Multiplier   float64       `yaml:"multiplier" toml:"multiplier" validate:"gte=1"`
	MaxDelay     time.Duration `yaml:"max_delay" toml:"max_delay" validate:"gte=0"`
	Jitter       bool          `yaml:"jitter" toml:"jitter"`
}

// UploadConfig controls upload retries and parallelism.
type UploadConfig struct {
	Attempts             int           `yaml:"attempts" toml:"attempts" validate:"gte=1"`
	InitialDelay         time.Duration `yaml:"initial_delay" toml:"initial_delay" validate:"gte=0"`
	Multiplier           float64       `yaml:"multiplier" toml:"multiplier" validate:"gte=1"`
	MaxDelay             time.Duration `yaml:"max_delay" toml:"max_delay" validate:"gte=0"`
	Jitter               bool          `yaml:"jitter" toml:"jitter"`
	ParallelRepositories int           `yaml:"parallel_repositories" toml:"parallel_repositories" validate:"gte=1"`
}

// RepositoryConfig declares a target repository.
type RepositoryConfig struct {
	ID              string `yaml:"id" toml:"id" validate:"required"`
	ConfigFile      string `yaml:"config_file" toml:"config_file"`
	ClearBeforeLoad bool   `yaml:"clear_before_load" toml:"clear_before_load"`
}

// DatasetConfig declares one file or glob of RDF files to load.
type DatasetConfig struct {
	Path       string `yaml:"path" toml:"path" validate:"required"`
	Repository string `yaml:"repository" toml:"repository"`
	Context    string `yaml:"context" toml:"context"`
	Format     string `yaml:"format" toml:"format"`
	SHA256     string `yaml:"sha256" toml:"sha256" validate:"omitempty,len=64,hexadecimal"`
	MinSize    int64  `yaml:"min_size" toml:"min_size" validate:"gte=0"`
	Order      int    `yaml:"order" toml:"order"`
}

// LedgerConfig controls the local load history database.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path" validate:"required_if=Enabled true"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=console json"`
}

// RepositoryFor returns the repository a dataset loads into.
func (c *Config) RepositoryFor(ds DatasetConfig) string {
	if ds.Repository != "" {
		return ds.Repository
	}
	return c.DefaultRepository
}

// FindRepository returns the declared repository with the given id.
func (c *Config) FindRepository(id string) (RepositoryConfig, bool) {
	for _, repo := range c.Repositories {
		if repo.ID == id {
			return repo, true
		}
	}
	return RepositoryConfig{}, false
}
