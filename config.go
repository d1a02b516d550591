package geogit

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/compression"
	"github.com/yokosogithub/GeoGit-sub002/internal/config"
	"github.com/yokosogithub/GeoGit-sub002/pkg/logging"
)

// Config configures a repository instance. Only Paths[0] is used at the
// moment.
type Config struct {
	// Paths contains data directories. Ignored when InMemory is set.
	Paths []string
	// InMemory keeps every database in memory.
	InMemory bool
	// MinimumFreeGB is a free-space threshold checked when the store opens.
	MinimumFreeGB uint
	// Logger is an optional logger. If nil, an info level stderr logger is used.
	Logger *logrus.Logger

	Compression  compression.Codec
	CacheEntries int64
	CacheTTL     time.Duration
	LockTimeout  time.Duration
	// Workers sizes the tree building pool. Zero means one per CPU.
	Workers             int
	NormalizedSizeLimit int
	// StatsInterval enables periodic store operation logging at debug level.
	StatsInterval time.Duration
}

// ConfigFromFile converts a decoded configuration file.
func ConfigFromFile(f config.File) (Config, error) {
	codec, err := compression.ParseCodec(f.Compression)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Paths:               f.Paths,
		InMemory:            f.InMemory,
		MinimumFreeGB:       f.MinimumFreeGB,
		Logger:              logging.New(f.LogLevel),
		Compression:         codec,
		CacheEntries:        f.CacheEntries,
		CacheTTL:            f.CacheTTL,
		LockTimeout:         f.LockTimeout,
		Workers:             f.Workers,
		NormalizedSizeLimit: f.NormalizedSizeLimit,
	}, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	f, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	return ConfigFromFile(f)
}

func defaultLogger() *logrus.Logger {
	return logging.New("info")
}
