// Package refs stores named pointers to objects: branches, tags and the
// working and staging heads.
package refs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

const (
	Head      = "HEAD"
	WorkHead  = "WORK_HEAD"
	StageHead = "STAGE_HEAD"
	OrigHead  = "ORIG_HEAD"
	MergeHead = "MERGE_HEAD"

	HeadsPrefix   = "refs/heads/"
	TagsPrefix    = "refs/tags/"
	RemotesPrefix = "refs/remotes/"
	Master        = HeadsPrefix + "master"

	// TransactionsPrefix holds the refs of open transactions.
	TransactionsPrefix = "transactions/"

	symRefPrefix = "ref: "

	DefaultLockTimeout = 30 * time.Second
	// MaxSymRefDepth bounds symbolic ref chains.
	MaxSymRefDepth = 8
)

var ErrNotSymbolic = errors.New("ref is not symbolic")

type Config struct {
	LockTimeout time.Duration
	Logger      *logrus.Logger
}

// Database is a storage.RefDatabase stored in a keyValStore space. The lock
// is process wide for the database instance.
type Database struct {
	space   *keyValStore.Space
	lock    chan struct{}
	timeout time.Duration
	log     *logrus.Logger
}

var _ storage.RefDatabase = (*Database)(nil)

func New(space *keyValStore.Space, config Config) *Database {
	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultLockTimeout
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Database{
		space:   space,
		lock:    make(chan struct{}, 1),
		timeout: config.LockTimeout,
		log:     config.Logger,
	}
}

func (d *Database) Lock(ctx context.Context) error {
	select {
	case d.lock <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case d.lock <- struct{}{}:
		return nil
	case <-timer.C:
		d.log.WithField("timeout", d.timeout).Warn("ref database lock timed out")
		return &model.LockTimeoutError{Timeout: d.timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Database) Unlock() {
	select {
	case <-d.lock:
	default:
	}
}

// WithLock runs fn while holding the lock.
func (d *Database) WithLock(ctx context.Context, fn func() error) error {
	if err := d.Lock(ctx); err != nil {
		return err
	}
	defer d.Unlock()
	return fn()
}

func (d *Database) raw(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := d.space.Get([]byte(name))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return "", &model.NotFoundError{Kind: "ref", Key: name}
	}
	if err != nil {
		return "", fmt.Errorf("read ref %s: %w", name, err)
	}
	return string(v), nil
}

// GetRef returns the value of name. Symbolic refs are returned as stored,
// use Resolve to follow them.
func (d *Database) GetRef(ctx context.Context, name string) (string, error) {
	return d.raw(ctx, name)
}

func (d *Database) GetSymRef(ctx context.Context, name string) (string, error) {
	v, err := d.raw(ctx, name)
	if err != nil {
		return "", err
	}
	target, ok := strings.CutPrefix(v, symRefPrefix)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrNotSymbolic)
	}
	return target, nil
}

func validateName(name string) error {
	if name == "" || strings.HasSuffix(name, "/") || strings.HasPrefix(name, "/") {
		return &model.InvalidPathError{Path: name, Reason: "invalid ref name"}
	}
	return nil
}

func (d *Database) PutRef(ctx context.Context, name, value string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(value, symRefPrefix) {
		if _, err := model.ParseObjectId(value); err != nil {
			return fmt.Errorf("ref %s: %w", name, err)
		}
	}
	if err := d.space.Set([]byte(name), []byte(value)); err != nil {
		return fmt.Errorf("write ref %s: %w", name, err)
	}
	d.log.WithFields(logrus.Fields{"ref": name, "value": value}).Debug("ref updated")
	return nil
}

func (d *Database) PutSymRef(ctx context.Context, name, target string) error {
	if err := validateName(target); err != nil {
		return err
	}
	return d.PutRef(ctx, name, symRefPrefix+target)
}

func (d *Database) Remove(ctx context.Context, name string) (string, error) {
	old, err := d.raw(ctx, name)
	if err != nil {
		return "", err
	}
	if _, err := d.space.Delete([]byte(name)); err != nil {
		return "", fmt.Errorf("remove ref %s: %w", name, err)
	}
	return old, nil
}

func (d *Database) GetAll(ctx context.Context, prefix string) (map[string]string, error) {
	out := map[string]string{}
	err := d.space.Scan([]byte(prefix), func(key, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out[string(key)] = string(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsSymbolic reports whether value points at another ref.
func IsSymbolic(value string) bool {
	return strings.HasPrefix(value, symRefPrefix)
}

// Resolve follows symbolic refs from name and returns the id it finally
// points at.
func Resolve(ctx context.Context, db storage.RefDatabase, name string) (model.ObjectId, error) {
	current := name
	for i := 0; i <= MaxSymRefDepth; i++ {
		v, err := db.GetRef(ctx, current)
		if err != nil {
			return model.NullID, err
		}
		target, ok := strings.CutPrefix(v, symRefPrefix)
		if !ok {
			return model.ParseObjectId(v)
		}
		current = target
	}
	return model.NullID, fmt.Errorf("ref %s: symbolic chain longer than %d", name, MaxSymRefDepth)
}

// ResolveOrNull is Resolve returning NullID for a missing ref.
func ResolveOrNull(ctx context.Context, db storage.RefDatabase, name string) (model.ObjectId, error) {
	id, err := Resolve(ctx, db, name)
	if errors.Is(err, model.ErrNotFound) {
		return model.NullID, nil
	}
	return id, err
}

// Update points name at id. When name is a symbolic ref the final target
// is updated instead.
func Update(ctx context.Context, db storage.RefDatabase, name string, id model.ObjectId) error {
	current := name
	for i := 0; i <= MaxSymRefDepth; i++ {
		v, err := db.GetRef(ctx, current)
		if errors.Is(err, model.ErrNotFound) {
			break
		}
		if err != nil {
			return err
		}
		target, ok := strings.CutPrefix(v, symRefPrefix)
		if !ok {
			break
		}
		current = target
	}
	return db.PutRef(ctx, current, id.String())
}
