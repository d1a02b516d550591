package keyValStore

import (
	"bytes"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Space is a view of the store restricted to keys under a fixed prefix.
// Every database of a repository lives in its own space.
type Space struct {
	kv     *KeyValStore
	prefix []byte
}

// Space returns the namespace name. Nested names are separated by '/'.
func (k *KeyValStore) Space(name string) *Space {
	return &Space{kv: k, prefix: []byte(strings.TrimSuffix(name, "/") + "/")}
}

// Sub returns a nested space.
func (s *Space) Sub(name string) *Space {
	prefix := append(bytes.Clone(s.prefix), []byte(strings.TrimSuffix(name, "/")+"/")...)
	return &Space{kv: s.kv, prefix: prefix}
}

// Prefix returns the raw key prefix of the space.
func (s *Space) Prefix() []byte {
	return bytes.Clone(s.prefix)
}

// Store returns the underlying store.
func (s *Space) Store() *KeyValStore {
	return s.kv
}

// Key returns the full store key of key.
func (s *Space) Key(key []byte) []byte {
	out := make([]byte, 0, len(s.prefix)+len(key))
	out = append(out, s.prefix...)
	return append(out, key...)
}

func (s *Space) Get(key []byte) ([]byte, error) {
	return s.kv.Read(s.Key(key))
}

func (s *Space) Set(key, value []byte) error {
	return s.kv.Write(s.Key(key), value)
}

func (s *Space) SetIfAbsent(key, value []byte) (bool, error) {
	return s.kv.WriteIfAbsent(s.Key(key), value)
}

func (s *Space) Delete(key []byte) (bool, error) {
	return s.kv.Delete(s.Key(key))
}

func (s *Space) Exists(key []byte) (bool, error) {
	return s.kv.Exists(s.Key(key))
}

// ExistsMany checks a batch of keys. The result is indexed like keys.
func (s *Space) ExistsMany(keys [][]byte) ([]bool, error) {
	full := make([][]byte, len(keys))
	for i, k := range keys {
		full[i] = s.Key(k)
	}
	exists, err := s.kv.BatchCheckKeyExistence(full)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(keys))
	for i, k := range full {
		out[i] = exists[string(k)]
	}
	return out, nil
}

// SetMany writes a batch of key value pairs.
func (s *Space) SetMany(batch [][2][]byte) error {
	full := make([][2][]byte, len(batch))
	for i, kv := range batch {
		full[i] = [2][]byte{s.Key(kv[0]), kv[1]}
	}
	return s.kv.WriteBatch(full)
}

// Scan calls fn for every entry whose key starts with prefix. The key passed
// to fn is relative to the space.
func (s *Space) Scan(prefix []byte, fn func(key, value []byte) error) error {
	n := len(s.prefix)
	return s.kv.Iterate(s.Key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// ScanKeys is Scan without values.
func (s *Space) ScanKeys(prefix []byte, fn func(key []byte) error) error {
	n := len(s.prefix)
	return s.kv.IterateKeys(s.Key(prefix), func(key []byte) error {
		return fn(key[n:])
	})
}

// Update runs fn in a read-write transaction. Keys used inside fn must be
// built with Key.
func (s *Space) Update(fn func(txn *badger.Txn) error) error {
	return s.kv.Update(fn)
}

// View runs fn in a read-only transaction.
func (s *Space) View(fn func(txn *badger.Txn) error) error {
	return s.kv.View(fn)
}

// Drop removes every key of the space.
func (s *Space) Drop() error {
	return s.kv.DropPrefix(s.prefix)
}

// DropPrefix removes every key of the space starting with prefix.
func (s *Space) DropPrefix(prefix []byte) error {
	return s.kv.DropPrefix(s.Key(prefix))
}
