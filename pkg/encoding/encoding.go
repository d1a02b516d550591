// Package encoding implements the canonical binary form of repository
// objects.
//
// An encoded object is a single type byte followed by a protobuf wire
// message whose fields are always written in the same order. The ObjectId
// of an object is the SHA-1 of exactly these bytes, before any compression
// applied by the storage layer.
package encoding

import (
	"fmt"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

// Factory is the serialization boundary used by the object databases.
// Decode(id, Encode(obj)) must reproduce obj.
type Factory interface {
	Encode(obj model.RevObject) ([]byte, error)
	Decode(id model.ObjectId, data []byte) (model.RevObject, error)
}

// Binary is the canonical Factory.
var Binary Factory = binaryFactory{}

type binaryFactory struct{}

func (binaryFactory) Encode(obj model.RevObject) ([]byte, error) { return Encode(obj) }

func (binaryFactory) Decode(id model.ObjectId, data []byte) (model.RevObject, error) {
	return Decode(id, data)
}

// EmptyTreeID is the id of the tree without entries.
var EmptyTreeID = mustSeal(&model.Tree{})

func mustSeal(obj model.RevObject) model.ObjectId {
	if _, err := Seal(obj); err != nil {
		panic(err)
	}
	return obj.ObjectID()
}

// NewEmptyTree returns a sealed empty tree.
func NewEmptyTree() *model.Tree {
	return &model.Tree{ID: EmptyTreeID}
}

// Encode returns the canonical bytes of obj. The ID field of obj is not
// part of the encoding.
func Encode(obj model.RevObject) ([]byte, error) {
	w := &writer{buf: []byte{byte(obj.Type())}}
	var err error
	switch o := obj.(type) {
	case *model.Commit:
		err = writeCommit(w, o)
	case *model.Tree:
		err = writeTree(w, o)
	case *model.Feature:
		err = writeFeature(w, o)
	case *model.FeatureType:
		err = writeFeatureType(w, o)
	case *model.Tag:
		err = writeTag(w, o)
	default:
		err = fmt.Errorf("unsupported object %T", obj)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", obj.Type(), err)
	}
	return w.buf, nil
}

// Decode parses canonical bytes. The returned object carries id. Decoding
// failures are reported as *model.CorruptDataError.
func Decode(id model.ObjectId, data []byte) (model.RevObject, error) {
	if len(data) == 0 {
		return nil, &model.CorruptDataError{ID: id, Expected: model.TypeUnknown, Err: fmt.Errorf("empty object")}
	}
	typ := model.ObjectType(data[0])
	body := data[1:]

	var (
		obj model.RevObject
		err error
	)
	switch typ {
	case model.TypeCommit:
		var c *model.Commit
		c, err = readCommit(body)
		if c != nil {
			c.ID = id
		}
		obj = c
	case model.TypeTree:
		var t *model.Tree
		t, err = readTree(body)
		if t != nil {
			t.ID = id
		}
		obj = t
	case model.TypeFeature:
		var f *model.Feature
		f, err = readFeature(body)
		if f != nil {
			f.ID = id
		}
		obj = f
	case model.TypeFeatureType:
		var ft *model.FeatureType
		ft, err = readFeatureType(body)
		if ft != nil {
			ft.ID = id
		}
		obj = ft
	case model.TypeTag:
		var t *model.Tag
		t, err = readTag(body)
		if t != nil {
			t.ID = id
		}
		obj = t
	default:
		err = fmt.Errorf("unknown object type %d", data[0])
		typ = model.TypeUnknown
	}
	if err != nil {
		return nil, &model.CorruptDataError{ID: id, Expected: typ, Err: err}
	}
	return obj, nil
}

// DecodeAs decodes data and checks the object has the requested type.
func DecodeAs[T model.RevObject](f Factory, id model.ObjectId, data []byte) (T, error) {
	var zero T
	obj, err := f.Decode(id, data)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, &model.CorruptDataError{ID: id, Expected: typeOf[T](), Err: fmt.Errorf("found %s", obj.Type())}
	}
	return typed, nil
}

func typeOf[T model.RevObject]() model.ObjectType {
	var zero T
	switch any(zero).(type) {
	case *model.Commit:
		return model.TypeCommit
	case *model.Tree:
		return model.TypeTree
	case *model.Feature:
		return model.TypeFeature
	case *model.FeatureType:
		return model.TypeFeatureType
	case *model.Tag:
		return model.TypeTag
	}
	return model.TypeUnknown
}

// Seal encodes obj with the canonical Factory, stores the resulting id on
// it and returns the bytes.
func Seal(obj model.RevObject) ([]byte, error) {
	return SealWith(Binary, obj)
}

// SealWith is Seal for an arbitrary Factory.
func SealWith(f Factory, obj model.RevObject) ([]byte, error) {
	data, err := f.Encode(obj)
	if err != nil {
		return nil, err
	}
	SetID(obj, model.HashBytes(data))
	return data, nil
}

// HashObject returns the id obj would be stored under.
func HashObject(obj model.RevObject) (model.ObjectId, error) {
	data, err := Encode(obj)
	if err != nil {
		return model.NullID, err
	}
	return model.HashBytes(data), nil
}

// SetID stores id on obj.
func SetID(obj model.RevObject, id model.ObjectId) {
	switch o := obj.(type) {
	case *model.Commit:
		o.ID = id
	case *model.Tree:
		o.ID = id
	case *model.Feature:
		o.ID = id
	case *model.FeatureType:
		o.ID = id
	case *model.Tag:
		o.ID = id
	}
}
