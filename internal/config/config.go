package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// File is the on-disk form of a repository configuration.
type File struct {
	Paths         []string `yaml:"paths"`
	InMemory      bool     `yaml:"inMemory"`
	MinimumFreeGB uint     `yaml:"minimumFreeGB"`
	LogLevel      string   `yaml:"logLevel"`

	Compression         string        `yaml:"compression"`
	CacheEntries        int64         `yaml:"cacheEntries"`
	CacheTTL            time.Duration `yaml:"cacheTTL"`
	LockTimeout         time.Duration `yaml:"lockTimeout"`
	Workers             int           `yaml:"workers"`
	NormalizedSizeLimit int           `yaml:"normalizedSizeLimit"`
}

const (
	DefaultCompression         = "s2"
	DefaultCacheEntries        = 50_000
	DefaultCacheTTL            = 30 * time.Second
	DefaultLockTimeout         = 30 * time.Second
	DefaultNormalizedSizeLimit = 512
	DefaultLogLevel            = "info"
)

// Default returns an in-memory configuration with every default applied.
func Default() File {
	f := File{InMemory: true}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.Compression == "" {
		f.Compression = DefaultCompression
	}
	if f.CacheEntries == 0 {
		f.CacheEntries = DefaultCacheEntries
	}
	if f.CacheTTL == 0 {
		f.CacheTTL = DefaultCacheTTL
	}
	if f.LockTimeout == 0 {
		f.LockTimeout = DefaultLockTimeout
	}
	if f.NormalizedSizeLimit == 0 {
		f.NormalizedSizeLimit = DefaultNormalizedSizeLimit
	}
	if f.LogLevel == "" {
		f.LogLevel = DefaultLogLevel
	}
}

// Validate reports settings that cannot be opened.
func (f File) Validate() error {
	if !f.InMemory && len(f.Paths) == 0 {
		return errors.New("config: at least one path is required unless inMemory is set")
	}
	if f.CacheEntries < 0 || f.Workers < 0 || f.NormalizedSizeLimit < 0 {
		return errors.New("config: negative sizes are not allowed")
	}
	return nil
}

// Parse decodes YAML and fills in defaults.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	f.applyDefaults()
	return f, f.Validate()
}

// Load reads the YAML file at path.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}
