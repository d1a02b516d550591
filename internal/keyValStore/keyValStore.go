package keyValStore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// ErrKeyNotFound is returned by Read for missing keys.
var ErrKeyNotFound = errors.New("key not found")

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	InMemory         bool     // keep everything in memory, Paths is ignored
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		err := config.checkConfig()
		if err != nil {
			return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
		}
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger: %w", err)
	}

	if !config.InMemory {
		if err := displayDiskUsage(config.Paths); err != nil {
			log.WithError(err).Warn("could not display disk usage")
		}
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
	}, nil
}

// StartStatsReporter logs read and write operations per interval until ctx
// is done.
func (k *KeyValStore) StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				readOps := atomic.SwapUint64(&k.readCounter, 0)
				writeOps := atomic.SwapUint64(&k.writeCounter, 0)
				log.WithFields(logrus.Fields{
					"reads":    readOps,
					"writes":   writeOps,
					"interval": interval,
				}).Debug("key value store operations")
			}
		}
	}()
}

// Stats returns the operation counters accumulated since the last report.
func (k *KeyValStore) Stats() (reads, writes uint64) {
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

func (k *KeyValStore) WriteBatch(batch [][2][]byte) error {
	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range batch {
		atomic.AddUint64(&k.writeCounter, 1)
		if err := wb.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("error writing batch: %w", err)
		}
	}

	return wb.Flush()
}

// WriteIfAbsent stores content under key unless the key already exists.
// It reports whether the value was written. Conflicting concurrent writers
// are retried, so exactly one of them wins.
func (k *KeyValStore) WriteIfAbsent(key []byte, content []byte) (bool, error) {
	for {
		inserted := false
		err := k.badgerDB.Update(func(txn *badger.Txn) error {
			atomic.AddUint64(&k.readCounter, 1)
			_, err := txn.Get(key)
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			inserted = true
			atomic.AddUint64(&k.writeCounter, 1)
			return txn.Set(key, content)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
		}
		return inserted, nil
	}
}

// Update runs fn in a read-write transaction, retrying on conflicts.
func (k *KeyValStore) Update(fn func(txn *badger.Txn) error) error {
	for {
		err := k.badgerDB.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

// View runs fn in a read-only transaction.
func (k *KeyValStore) View(fn func(txn *badger.Txn) error) error {
	return k.badgerDB.View(fn)
}

func (k *KeyValStore) BatchCheckKeyExistence(keys [][]byte) (map[string]bool, error) {
	existsMap := make(map[string]bool)

	err := k.badgerDB.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			atomic.AddUint64(&k.readCounter, 1)
			_, err := txn.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					existsMap[string(key)] = false
				} else {
					return err // return an error for issues other than "key not found"
				}
			} else {
				existsMap[string(key)] = true
			}
		}
		return nil
	})

	return existsMap, err
}

func (k *KeyValStore) Exists(key []byte) (bool, error) {
	exists, err := k.BatchCheckKeyExistence([][]byte{key})
	if err != nil {
		return false, err
	}
	return exists[string(key)], nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading key %s: %w", hex.EncodeToString(key), err)
	}
	return value, nil
}

// Delete removes key and reports whether it existed.
func (k *KeyValStore) Delete(key []byte) (bool, error) {
	existed := false
	err := k.Update(func(txn *badger.Txn) error {
		existed = false
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		atomic.AddUint64(&k.writeCounter, 1)
		return txn.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("error deleting key %s: %w", hex.EncodeToString(key), err)
	}
	return existed, nil
}

// DropPrefix removes every key starting with prefix. Unlike badger's
// DropPrefix it does not block concurrent writers.
func (k *KeyValStore) DropPrefix(prefix []byte) error {
	var keys [][]byte
	err := k.IterateKeys(prefix, func(key []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("error listing prefix %q: %w", prefix, err)
	}

	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		atomic.AddUint64(&k.writeCounter, 1)
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("error dropping prefix %q: %w", prefix, err)
		}
	}
	return wb.Flush()
}

func (k *KeyValStore) Close() error {
	if err := k.badgerDB.Sync(); err != nil && !k.config.InMemory {
		log.WithError(err).Warn("error syncing db before close")
	}
	return k.badgerDB.Close()
}

// Clean flattens the LSM tree and garbage collects the value log.
func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	log.Info("DB Flattened")

	// clean badgerDB
	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

// will return all keys and values with the given prefix
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	err := k.Iterate(prefix, func(key, value []byte) error {
		keysAndValues = append(keysAndValues, [][]byte{key, value})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keysAndValues, nil
}

// Iterate calls fn for every key with the given prefix in key order. key and
// value are copies owned by fn.
func (k *KeyValStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// IterateKeys is Iterate without fetching values.
func (k *KeyValStore) IterateKeys(prefix []byte, fn func(key []byte) error) error {
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := fn(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}
