package keyValStore

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDir(t testing.TB) string {
	t.Helper()
	testDir, err := os.MkdirTemp("", "geogit_kv_test_*")
	if err != nil {
		t.Fatalf("failed to create tmp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(testDir) })
	return testDir
}

func newMemoryStore(t testing.TB) *KeyValStore {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	kv, err := NewKeyValStore(StoreConfig{InMemory: true, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestReadWriteDelete(t *testing.T) {
	kv := newMemoryStore(t)

	_, err := kv.Read([]byte("missing"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, kv.Write([]byte("a"), []byte("1")))
	v, err := kv.Read([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	exists, err := kv.Exists([]byte("a"))
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := kv.Delete([]byte("a"))
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = kv.Delete([]byte("a"))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestWriteIfAbsentFirstWriterWins(t *testing.T) {
	kv := newMemoryStore(t)

	inserted, err := kv.WriteIfAbsent([]byte("k"), []byte("first"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = kv.WriteIfAbsent([]byte("k"), []byte("second"))
	require.NoError(t, err)
	assert.False(t, inserted)

	v, err := kv.Read([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), v)
}

func TestWriteIfAbsentConcurrent(t *testing.T) {
	kv := newMemoryStore(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := kv.WriteIfAbsent([]byte("race"), []byte("v"))
			assert.NoError(t, err)
			if inserted {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSpacesAreIsolated(t *testing.T) {
	kv := newMemoryStore(t)
	objects := kv.Space("objects")
	staging := kv.Space("staging")

	require.NoError(t, objects.Set([]byte("k"), []byte("o")))
	require.NoError(t, staging.Set([]byte("k"), []byte("s")))

	v, err := objects.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("o"), v)

	require.NoError(t, staging.Drop())
	_, err = staging.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	v, err = objects.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("o"), v)
}

func TestSpaceScanReturnsRelativeKeys(t *testing.T) {
	kv := newMemoryStore(t)
	refs := kv.Space("refs").Sub("heads")

	for i := 0; i < 5; i++ {
		require.NoError(t, refs.Set([]byte(fmt.Sprintf("b%d", i)), []byte{byte(i)}))
	}
	require.NoError(t, kv.Space("refs").Set([]byte("HEAD"), []byte("x")))

	var keys []string
	err := refs.Scan(nil, func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b0", "b1", "b2", "b3", "b4"}, keys)

	var count int
	require.NoError(t, refs.ScanKeys([]byte("b3"), func(key []byte) error {
		count++
		assert.Equal(t, "b3", string(key))
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestSpaceBatchOperations(t *testing.T) {
	kv := newMemoryStore(t)
	s := kv.Space("batch")

	require.NoError(t, s.SetMany([][2][]byte{{[]byte("a"), []byte("1")}, {[]byte("b"), []byte("2")}}))
	exists, err := s.ExistsMany([][]byte{[]byte("a"), []byte("x"), []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, exists)

	items, err := kv.GetItemsWithPrefix(s.Prefix())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestOnDiskStore(t *testing.T) {
	dir := setupTestDir(t)
	kv, err := NewKeyValStore(StoreConfig{Paths: []string{dir}, Logger: logrus.New()})
	require.NoError(t, err)

	require.NoError(t, kv.Write([]byte("persist"), []byte("yes")))
	require.NoError(t, kv.Clean())
	require.NoError(t, kv.Close())

	kv, err = NewKeyValStore(StoreConfig{Paths: []string{dir}, Logger: logrus.New()})
	require.NoError(t, err)
	defer kv.Close()

	v, err := kv.Read([]byte("persist"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), v)
}

func TestCheckConfig(t *testing.T) {
	assert.Error(t, (&StoreConfig{}).checkConfig())
	assert.Error(t, (&StoreConfig{Paths: []string{"/does/not/exist"}}).checkConfig())

	dir := setupTestDir(t)
	assert.NoError(t, (&StoreConfig{Paths: []string{dir}}).checkConfig())
	assert.Error(t, (&StoreConfig{Paths: []string{dir}, MinimumFreeSpace: 1 << 30}).checkConfig())
}
