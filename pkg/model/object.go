package model

import "fmt"

// ObjectType discriminates the RevObject variants. The values are part of
// the persisted format.
type ObjectType uint8

const (
	TypeCommit      ObjectType = 0
	TypeTree        ObjectType = 1
	TypeFeature     ObjectType = 2
	TypeTag         ObjectType = 3
	TypeFeatureType ObjectType = 4

	TypeUnknown ObjectType = 0xFF
)

func (t ObjectType) String() string {
	switch t {
	case TypeCommit:
		return "COMMIT"
	case TypeTree:
		return "TREE"
	case TypeFeature:
		return "FEATURE"
	case TypeTag:
		return "TAG"
	case TypeFeatureType:
		return "FEATURETYPE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Valid reports whether t names one of the object variants.
func (t ObjectType) Valid() bool {
	return t <= TypeFeatureType
}

// RevObject is an immutable, content addressed object. The set of
// implementations is closed: *Commit, *Tree, *Feature, *FeatureType and
// *Tag.
type RevObject interface {
	ObjectID() ObjectId
	Type() ObjectType
	revObject()
}

// Person identifies the author, committer or tagger of an object.
type Person struct {
	Name  string
	Email string
	// Timestamp in milliseconds since the epoch.
	Timestamp int64
	// TimeZoneOffset in milliseconds.
	TimeZoneOffset int32
}

// Commit records a tree snapshot and its history.
type Commit struct {
	ID     ObjectId
	TreeID ObjectId
	// Parents are ordered, the first one is the mainline parent.
	Parents   []ObjectId
	Author    Person
	Committer Person
	Message   string
}

func (c *Commit) ObjectID() ObjectId { return c.ID }
func (c *Commit) Type() ObjectType   { return TypeCommit }
func (*Commit) revObject()           {}

// Timestamp is the committer timestamp in milliseconds.
func (c *Commit) Timestamp() int64 { return c.Committer.Timestamp }

// FirstParent returns the mainline parent, if any.
func (c *Commit) FirstParent() (ObjectId, bool) {
	if len(c.Parents) == 0 {
		return NullID, false
	}
	return c.Parents[0], true
}

// Tag names a commit.
type Tag struct {
	ID       ObjectId
	CommitID ObjectId
	Name     string
	Message  string
	Tagger   Person
}

func (t *Tag) ObjectID() ObjectId { return t.ID }
func (t *Tag) Type() ObjectType   { return TypeTag }
func (*Tag) revObject()           {}
