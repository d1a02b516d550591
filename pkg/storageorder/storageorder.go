// Package storageorder defines the deterministic ordering and bucketing of
// tree entries.
//
// Every entry name is hashed with 64-bit FNV-1a over its UTF-16 code units.
// The hash decides both the order in which entries are stored inside a leaf
// tree and, one byte per depth level, the bucket an entry falls into once a
// tree grows past NormalizedSizeLimit and gets split. Because the placement
// only depends on the name and the depth, two trees with the same content
// always end up with the same shape and hence the same object id.
package storageorder

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

const (
	// MaxBuckets is the fan-out of a split tree.
	MaxBuckets = 32

	// MaxDepth is the number of hash bytes available for bucketing. A tree at
	// this depth is never split again.
	MaxDepth = 8

	// NormalizedSizeLimit is the default maximum number of direct entries a
	// leaf tree holds before it is split into buckets.
	NormalizedSizeLimit = 512
)

const (
	fnv64Offset uint64 = 0xcbf29ce484222325
	fnv64Prime  uint64 = 0x100000001b3
)

// Hash returns the FNV-1a hash of name. Each UTF-16 code unit is fed as two
// big-endian octets. Octets are sign extended before being folded into the
// hash so the values match the ones produced by existing repositories.
func Hash(name string) uint64 {
	hash := fnv64Offset
	for _, unit := range utf16.Encode([]rune(name)) {
		hash = update(hash, byte(unit>>8))
		hash = update(hash, byte(unit))
	}
	return hash
}

func update(hash uint64, octet byte) uint64 {
	hash ^= uint64(int64(int8(octet)))
	return hash * fnv64Prime
}

// ByteN returns the selector byte of hash for the given depth, most
// significant byte first.
func ByteN(hash uint64, depth int) byte {
	if depth < 0 || depth >= MaxDepth {
		panic(fmt.Sprintf("storageorder: depth too deep: %d", depth))
	}
	return byte(hash >> (8 * (MaxDepth - 1 - depth)))
}

// Bucket maps name to its bucket index at depth. depth must be in
// [0, MaxDepth).
func Bucket(name string, depth int) int {
	return BucketOf(Hash(name), depth)
}

// BucketOf is Bucket for an already computed hash.
func BucketOf(hash uint64, depth int) int {
	return int(ByteN(hash, depth)) * MaxBuckets / 256
}

// Compare orders two names by hash, falling back to lexicographic order on
// collisions. Hashes are compared unsigned so the resulting order agrees
// with the bucket order of a root tree.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	ha, hb := Hash(a), Hash(b)
	switch {
	case ha < hb:
		return -1
	case ha > hb:
		return 1
	}
	return strings.Compare(a, b)
}

// Less reports whether a sorts before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// ComparePaths orders full slash separated paths. It is the same hash
// construction keyed on the whole path instead of the last segment and is
// used for path-keyed listings such as staged conflicts.
func ComparePaths(a, b string) int {
	return Compare(a, b)
}

// PathBucket is the bucket of a full path at depth.
func PathBucket(path string, depth int) int {
	return Bucket(path, depth)
}
