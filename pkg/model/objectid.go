package model

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// IDLength is the size in bytes of an ObjectId.
const IDLength = sha1.Size

// ObjectId is the content hash identifying a stored object.
type ObjectId [IDLength]byte

// NullID is the all-zero id. It stands for an absent or deleted object.
var NullID ObjectId

// HashBytes returns the ObjectId of a canonical serialization.
func HashBytes(data []byte) ObjectId {
	return ObjectId(sha1.Sum(data))
}

// IsNull reports whether id is the NullID.
func (id ObjectId) IsNull() bool {
	return id == NullID
}

func (id ObjectId) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first n hex characters of id.
func (id ObjectId) Short(n int) string {
	s := id.String()
	if n <= 0 || n > len(s) {
		return s
	}
	return s[:n]
}

// Compare orders ids by their raw bytes.
func (id ObjectId) Compare(other ObjectId) int {
	return bytes.Compare(id[:], other[:])
}

// HasPrefix reports whether the hex form of id starts with prefix.
func (id ObjectId) HasPrefix(prefix string) bool {
	return strings.HasPrefix(id.String(), strings.ToLower(prefix))
}

// ParseObjectId parses the 40 character hex form of an id.
func ParseObjectId(s string) (ObjectId, error) {
	var id ObjectId
	if len(s) != 2*IDLength {
		return id, fmt.Errorf("invalid object id %q: expected %d hex characters", s, 2*IDLength)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return id, nil
}

// MustParseObjectId is ParseObjectId for ids known to be valid.
func MustParseObjectId(s string) ObjectId {
	id, err := ParseObjectId(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsHexPrefix reports whether s could be an abbreviated object id.
func IsHexPrefix(s string) bool {
	if len(s) == 0 || len(s) > 2*IDLength {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// PrefixBytes returns the raw bytes fully covered by a hex prefix. An odd
// trailing character is left out and has to be matched with HasPrefix.
func PrefixBytes(prefix string) ([]byte, error) {
	if !IsHexPrefix(prefix) {
		return nil, fmt.Errorf("invalid object id prefix %q", prefix)
	}
	even := prefix[:len(prefix)&^1]
	return hex.DecodeString(even)
}

// SortIDs sorts ids in place by byte order.
func SortIDs(ids []ObjectId) {
	slices.SortFunc(ids, func(a, b ObjectId) int { return a.Compare(b) })
}
