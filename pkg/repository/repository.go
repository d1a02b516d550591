// Package repository ties the databases of a repository together: the
// object, staging, ref and graph databases, the working tree and the
// index, and the operations that move changes between them.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/compression"
	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/graph"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/objectdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/refs"
	"github.com/yokosogithub/GeoGit-sub002/pkg/stagingdb"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/tree"
	workerpool "github.com/yokosogithub/GeoGit-sub002/pkg/workerPool"
)

// Names of the keyValStore spaces used by a repository.
const (
	ObjectsSpace   = "objects"
	StagingSpace   = "staging"
	ConflictsSpace = "conflicts"
	GraphSpace     = "graph"
	RefsSpace      = "refs"
)

var (
	ErrNothingToCommit = errors.New("nothing to commit")
	ErrNotTreeish      = errors.New("object is not a tree, commit or tag")
	ErrClosed          = errors.New("repository closed")
)

type Options struct {
	// Store is used when set. Otherwise a store is opened from StoreConfig
	// and closed with the repository.
	Store       *keyValStore.KeyValStore
	StoreConfig keyValStore.StoreConfig

	Compression  compression.Codec
	CacheEntries int64
	CacheTTL     time.Duration
	LockTimeout  time.Duration
	// Workers sizes the pool building tree buckets. Zero means one worker
	// per CPU.
	Workers             int
	NormalizedSizeLimit int
	Logger              *logrus.Logger
}

// heads names the refs an instance works with. Transactions use their own.
type heads struct {
	head      string
	workHead  string
	stageHead string
}

var defaultHeads = heads{head: refs.Head, workHead: refs.WorkHead, stageHead: refs.StageHead}

type Repository struct {
	store     *keyValStore.KeyValStore
	ownsStore bool

	cache   *objectdb.Cache
	objects storage.ObjectDatabase
	staging storage.StagingDatabase
	refs    *refs.Database
	graph   *graph.Database
	pool    *workerpool.WorkerPool

	heads    heads
	treeOpts []tree.Option
	log      *logrus.Logger

	closeOnce sync.Once
}

// Open assembles a repository on top of a keyValStore. A fresh repository
// gets HEAD pointing at the master branch.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	log := opts.Logger

	store, owns := opts.Store, false
	if store == nil {
		if opts.StoreConfig.Logger == nil {
			opts.StoreConfig.Logger = log
		}
		var err error
		if store, err = keyValStore.NewKeyValStore(opts.StoreConfig); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		owns = true
	}

	graphDB := graph.New(store.Space(GraphSpace), log)
	base := objectdb.New(store.Space(ObjectsSpace), objectdb.Config{Codec: opts.Compression, Logger: log})
	cache, err := objectdb.NewCache(base, objectdb.CacheConfig{MaxEntries: opts.CacheEntries, TTL: opts.CacheTTL})
	if err != nil {
		if owns {
			store.Close()
		}
		return nil, err
	}
	objects := objectdb.NewGraphHook(cache, graphDB)
	staging := stagingdb.New(store.Space(StagingSpace), store.Space(ConflictsSpace), objects, stagingdb.Config{
		Objects: objectdb.Config{Codec: opts.Compression, Logger: log},
		Logger:  log,
	})
	pool := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: opts.Workers})

	r := &Repository{
		store:     store,
		ownsStore: owns,
		cache:     cache,
		objects:   objects,
		staging:   staging,
		refs:      refs.New(store.Space(RefsSpace), refs.Config{LockTimeout: opts.LockTimeout, Logger: log}),
		graph:     graphDB,
		pool:      pool,
		heads:     defaultHeads,
		treeOpts: []tree.Option{
			tree.WithPool(pool),
			tree.WithLogger(log),
			tree.WithNormalizedSizeLimit(opts.NormalizedSizeLimit),
		},
		log: log,
	}

	if _, err := r.refs.GetRef(ctx, refs.Head); errors.Is(err, model.ErrNotFound) {
		if err := r.refs.PutSymRef(ctx, refs.Head, refs.Master); err != nil {
			r.Close()
			return nil, fmt.Errorf("initialize HEAD: %w", err)
		}
		log.WithField("branch", refs.Master).Info("initialized repository")
	} else if err != nil {
		r.Close()
		return nil, fmt.Errorf("read HEAD: %w", err)
	}
	return r, nil
}

// Close releases the worker pool and the cache and closes the store when
// the repository opened it.
func (r *Repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.pool.Close()
		r.cache.Close()
		if r.ownsStore {
			err = r.store.Close()
		}
	})
	return err
}

// Objects is the permanent object database.
func (r *Repository) Objects() storage.ObjectDatabase { return r.objects }

// Staging is the staging database, reading through to Objects.
func (r *Repository) Staging() storage.StagingDatabase { return r.staging }

func (r *Repository) Refs() *refs.Database   { return r.refs }
func (r *Repository) Graph() *graph.Database { return r.graph }
func (r *Repository) Logger() *logrus.Logger { return r.log }

// CacheStats returns hits and misses of the object cache.
func (r *Repository) CacheStats() (hits, misses uint64) { return r.cache.Stats() }

// Store returns the underlying keyValStore.
func (r *Repository) Store() *keyValStore.KeyValStore { return r.store }

func (r *Repository) WorkingTree() *WorkingTree {
	return &WorkingTree{repo: r}
}

func (r *Repository) Index() *Index {
	return &Index{repo: r}
}

// Head returns the commit HEAD points at, or NullID in a repository
// without commits.
func (r *Repository) Head(ctx context.Context) (model.ObjectId, error) {
	return refs.ResolveOrNull(ctx, r.refs, r.heads.head)
}

// HeadTree returns the tree of the HEAD commit, or the empty tree.
func (r *Repository) HeadTree(ctx context.Context) (*model.Tree, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	if head.IsNull() {
		return encoding.NewEmptyTree(), nil
	}
	c, err := storage.GetCommit(ctx, r.objects, head)
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	return storage.GetTree(ctx, r.objects, c.TreeID)
}

// refTree returns the tree a tree ref points at. A missing ref yields
// fallback.
func (r *Repository) refTree(ctx context.Context, name string, fallback func(context.Context) (*model.Tree, error)) (*model.Tree, error) {
	id, err := refs.ResolveOrNull(ctx, r.refs, name)
	if err != nil {
		return nil, err
	}
	if id.IsNull() {
		return fallback(ctx)
	}
	return storage.GetTree(ctx, r.staging, id)
}

// peel follows tags to the commit they name.
func (r *Repository) peel(ctx context.Context, id model.ObjectId) (model.RevObject, error) {
	for range refs.MaxSymRefDepth {
		obj, err := r.staging.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		tag, ok := obj.(*model.Tag)
		if !ok {
			return obj, nil
		}
		id = tag.CommitID
	}
	return nil, fmt.Errorf("tag chain at %s too long", id)
}

// ResolveTreeish resolves a ref, id or rev expression naming a tree, a
// commit or a tag to the id of a tree.
func (r *Repository) ResolveTreeish(ctx context.Context, treeish string) (model.ObjectId, error) {
	id, err := r.RevParse(ctx, treeish)
	if err != nil {
		return model.NullID, err
	}
	return r.treeOf(ctx, id)
}

func (r *Repository) treeOf(ctx context.Context, id model.ObjectId) (model.ObjectId, error) {
	if id.IsNull() || id == encoding.EmptyTreeID {
		return encoding.EmptyTreeID, nil
	}
	obj, err := r.peel(ctx, id)
	if err != nil {
		return model.NullID, err
	}
	switch o := obj.(type) {
	case *model.Tree:
		return o.ID, nil
	case *model.Commit:
		return o.TreeID, nil
	}
	return model.NullID, fmt.Errorf("%s is a %s: %w", id.Short(8), obj.Type(), ErrNotTreeish)
}

// FindCommonAncestor returns the lowest common ancestor of two commits.
func (r *Repository) FindCommonAncestor(ctx context.Context, left, right model.ObjectId) (model.ObjectId, bool, error) {
	return r.graph.FindLowestCommonAncestor(ctx, left, right)
}
