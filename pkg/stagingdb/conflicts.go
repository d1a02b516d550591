package stagingdb

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/yokosogithub/GeoGit-sub002/internal/keyValStore"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storageorder"
)

// conflict keys are <namespace> 0x00 <path>, values the three ids
const conflictValueSize = 3 * model.IDLength

func namespaceKey(namespace string) []byte {
	return append([]byte(namespace), 0)
}

func conflictKey(namespace, path string) []byte {
	return append(namespaceKey(namespace), path...)
}

func encodeConflict(c storage.Conflict) []byte {
	out := make([]byte, 0, conflictValueSize)
	out = append(out, c.Ancestor[:]...)
	out = append(out, c.Ours[:]...)
	return append(out, c.Theirs[:]...)
}

func decodeConflict(path string, data []byte) (storage.Conflict, error) {
	if len(data) != conflictValueSize {
		return storage.Conflict{}, &model.CorruptDataError{
			Expected: model.TypeUnknown,
			Err:      fmt.Errorf("conflict %s: %d bytes", path, len(data)),
		}
	}
	c := storage.Conflict{Path: path}
	copy(c.Ancestor[:], data[:model.IDLength])
	copy(c.Ours[:], data[model.IDLength:2*model.IDLength])
	copy(c.Theirs[:], data[2*model.IDLength:])
	return c, nil
}

func (d *Database) HasConflicts(ctx context.Context, namespace string) (bool, error) {
	found := false
	err := d.conflicts.ScanKeys(namespaceKey(namespace), func([]byte) error {
		found = true
		return errStopScan
	})
	if errors.Is(err, errStopScan) {
		err = nil
	}
	if err == nil {
		err = ctx.Err()
	}
	return found, err
}

var errStopScan = errors.New("stop scan")

func (d *Database) GetConflict(ctx context.Context, namespace, path string) (storage.Conflict, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.Conflict{}, false, err
	}
	data, err := d.conflicts.Get(conflictKey(namespace, path))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return storage.Conflict{}, false, nil
	}
	if err != nil {
		return storage.Conflict{}, false, err
	}
	c, err := decodeConflict(path, data)
	return c, err == nil, err
}

func (d *Database) GetConflicts(ctx context.Context, namespace, pathFilter string) ([]storage.Conflict, error) {
	prefix := namespaceKey(namespace)
	var out []storage.Conflict
	err := d.conflicts.Scan(prefix, func(key, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := string(key[len(prefix):])
		if pathFilter != "" && !model.IsSelfOrDescendant(pathFilter, path) {
			return nil
		}
		c, err := decodeConflict(path, value)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b storage.Conflict) int {
		return storageorder.ComparePaths(a.Path, b.Path)
	})
	return out, nil
}

func (d *Database) AddConflict(ctx context.Context, namespace string, c storage.Conflict) error {
	if err := model.ValidatePath(c.Path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.conflicts.Set(conflictKey(namespace, c.Path), encodeConflict(c))
}

func (d *Database) RemoveConflict(ctx context.Context, namespace, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.conflicts.Delete(conflictKey(namespace, path))
	return err
}

func (d *Database) RemoveConflicts(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.conflicts.DropPrefix(namespaceKey(namespace))
}
