// Package geogit is the lifecycle handle of a versioned tree repository. It
// opens the key value store and the databases layered on it and hands out
// the repository once started.
package geogit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/repository"
)

var (
	ErrNotStarted = errors.New("geogit: repository not started")
	ErrClosed     = errors.New("geogit: repository closed")
)

type GeoGit struct {
	log    *logrus.Logger
	config Config

	repoMu sync.RWMutex
	repo   *repository.Repository
	stop   context.CancelFunc

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs a handle. New does not perform I/O; call Start to open the
// repository.
func New(conf Config) (*GeoGit, error) {
	if len(conf.Paths) == 0 && !conf.InMemory {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	return &GeoGit{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the store and the repository. Only the first call has effect.
func (g *GeoGit) Start(ctx context.Context) error {
	var startErr error
	g.startOnce.Do(func() {
		storeConf := keyValStore.StoreConfig{
			InMemory:         g.config.InMemory,
			MinimumFreeSpace: int(g.config.MinimumFreeGB),
			Logger:           g.log,
		}
		if !g.config.InMemory {
			dataRoot := g.config.Paths[0]
			if err := os.MkdirAll(dataRoot, 0o700); err != nil {
				startErr = fmt.Errorf("mkdir %s: %w", dataRoot, err)
				return
			}
			storeConf.Paths = g.config.Paths
		}

		repo, err := repository.Open(ctx, repository.Options{
			StoreConfig:         storeConf,
			Compression:         g.config.Compression,
			CacheEntries:        g.config.CacheEntries,
			CacheTTL:            g.config.CacheTTL,
			LockTimeout:         g.config.LockTimeout,
			Workers:             g.config.Workers,
			NormalizedSizeLimit: g.config.NormalizedSizeLimit,
			Logger:              g.log,
		})
		if err != nil {
			startErr = fmt.Errorf("open repository: %w", err)
			return
		}

		statsCtx, stop := context.WithCancel(context.Background())
		if g.config.StatsInterval > 0 {
			repo.Store().StartStatsReporter(statsCtx, g.config.StatsInterval)
		}

		g.repoMu.Lock()
		g.repo = repo
		g.stop = stop
		g.repoMu.Unlock()

		g.started.Store(true)
		g.log.WithField("inMemory", g.config.InMemory).Info("geogit started")
	})
	return startErr
}

// Run starts the repository, blocks until ctx is canceled and then closes
// it with a bounded shutdown.
func (g *GeoGit) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Close(shutdownCtx)
}

// Close releases the repository. Close is idempotent.
func (g *GeoGit) Close(ctx context.Context) error {
	var closeErr error
	g.closeOnce.Do(func() {
		g.repoMu.Lock()
		repo, stop := g.repo, g.stop
		g.repo, g.stop = nil, nil
		g.repoMu.Unlock()

		if stop != nil {
			stop()
		}
		if repo != nil {
			done := make(chan error, 1)
			go func() { done <- repo.Close() }()
			select {
			case err := <-done:
				if err != nil {
					closeErr = errors.Join(closeErr, fmt.Errorf("close repository: %w", err))
				}
			case <-ctx.Done():
				closeErr = errors.Join(closeErr, fmt.Errorf("close repository: %w", ctx.Err()))
			}
		}
		g.log.Info("geogit closed")
	})
	return closeErr
}

// CloseWithoutContext closes the handle using a background context.
func (g *GeoGit) CloseWithoutContext() error {
	return g.Close(context.Background())
}

// Repository returns the open repository.
func (g *GeoGit) Repository() (*repository.Repository, error) {
	if !g.started.Load() {
		return nil, ErrNotStarted
	}
	g.repoMu.RLock()
	defer g.repoMu.RUnlock()
	if g.repo == nil {
		return nil, ErrClosed
	}
	return g.repo, nil
}
