package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

// GetAs fetches id and checks it has the requested type.
func GetAs[T model.RevObject](ctx context.Context, db ObjectDatabase, id model.ObjectId) (T, error) {
	var zero T
	obj, err := db.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, &model.CorruptDataError{
			ID:       id,
			Expected: expectedType[T](),
			Err:      fmt.Errorf("found %s", obj.Type()),
		}
	}
	return typed, nil
}

func expectedType[T model.RevObject]() model.ObjectType {
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

func GetCommit(ctx context.Context, db ObjectDatabase, id model.ObjectId) (*model.Commit, error) {
	return GetAs[*model.Commit](ctx, db, id)
}

func GetFeature(ctx context.Context, db ObjectDatabase, id model.ObjectId) (*model.Feature, error) {
	return GetAs[*model.Feature](ctx, db, id)
}

func GetFeatureType(ctx context.Context, db ObjectDatabase, id model.ObjectId) (*model.FeatureType, error) {
	return GetAs[*model.FeatureType](ctx, db, id)
}

func GetTag(ctx context.Context, db ObjectDatabase, id model.ObjectId) (*model.Tag, error) {
	return GetAs[*model.Tag](ctx, db, id)
}

// GetTree fetches a tree. The NullID and the empty tree id resolve to the
// empty tree even when it was never stored.
func GetTree(ctx context.Context, db ObjectDatabase, id model.ObjectId) (*model.Tree, error) {
	if id.IsNull() || id == encoding.EmptyTreeID {
		return encoding.NewEmptyTree(), nil
	}
	return GetAs[*model.Tree](ctx, db, id)
}

// GetIfPresent is Get returning false instead of a NotFoundError.
func GetIfPresent(ctx context.Context, db ObjectDatabase, id model.ObjectId) (model.RevObject, bool, error) {
	obj, err := db.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// ResolvePrefix resolves an abbreviated id to exactly one object.
func ResolvePrefix(ctx context.Context, db ObjectDatabase, prefix string) (model.ObjectId, error) {
	ids, err := db.LookUp(ctx, prefix)
	if err != nil {
		return model.NullID, err
	}
	switch len(ids) {
	case 0:
		return model.NullID, &model.NotFoundError{Kind: "object", Key: prefix}
	case 1:
		return ids[0], nil
	}
	return model.NullID, &model.AmbiguousReferenceError{Reference: prefix, Candidates: ids}
}
