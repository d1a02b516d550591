package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/refs"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

// minAbbrev is the shortest hex prefix accepted as an abbreviated id.
const minAbbrev = 4

var refSearchPrefixes = []string{"", refs.HeadsPrefix, refs.TagsPrefix, refs.RemotesPrefix}

// RevParse resolves an expression to an object id. The expression is a ref
// name, a full object id, or an abbreviated id of a stored object, optionally followed by ancestry
// suffixes: "^" or "^N" selects the N-th parent, "~N" follows first parents
// N times.
func (r *Repository) RevParse(ctx context.Context, expr string) (model.ObjectId, error) {
	base, suffix := expr, ""
	if i := strings.IndexAny(expr, "^~"); i >= 0 {
		base, suffix = expr[:i], expr[i:]
	}
	if base == "" {
		return model.NullID, &model.InvalidPathError{Path: expr, Reason: "empty revision"}
	}

	id, err := r.resolveBase(ctx, base)
	if err != nil {
		return model.NullID, err
	}
	for suffix != "" {
		op := suffix[0]
		suffix = suffix[1:]
		digits := len(suffix) - len(strings.TrimLeft(suffix, "0123456789"))
		n := 1
		if digits > 0 {
			if n, err = strconv.Atoi(suffix[:digits]); err != nil {
				return model.NullID, &model.InvalidPathError{Path: expr, Reason: err.Error()}
			}
			suffix = suffix[digits:]
		}
		switch op {
		case '^':
			id, err = r.parent(ctx, id, n)
		case '~':
			for i := 0; i < n && err == nil; i++ {
				id, err = r.parent(ctx, id, 1)
			}
		}
		if err != nil {
			return model.NullID, fmt.Errorf("%s: %w", expr, err)
		}
	}
	return id, nil
}

func (r *Repository) resolveBase(ctx context.Context, base string) (model.ObjectId, error) {
	for _, prefix := range refSearchPrefixes {
		id, err := refs.Resolve(ctx, r.refs, prefix+base)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.NullID, err
		}
	}
	if len(base) >= minAbbrev && model.IsHexPrefix(base) {
		if len(base) == 2*model.IDLength {
			return model.ParseObjectId(strings.ToLower(base))
		}
		return storage.ResolvePrefix(ctx, r.staging, strings.ToLower(base))
	}
	return model.NullID, &model.NotFoundError{Kind: "revision", Key: base}
}

// parent returns the n-th parent of the commit id names. The 0-th parent
// is the commit itself.
func (r *Repository) parent(ctx context.Context, id model.ObjectId, n int) (model.ObjectId, error) {
	obj, err := r.peel(ctx, id)
	if err != nil {
		return model.NullID, err
	}
	c, ok := obj.(*model.Commit)
	if !ok {
		return model.NullID, fmt.Errorf("%s is a %s, not a commit", id.Short(8), obj.Type())
	}
	if n == 0 {
		return c.ID, nil
	}
	if n > len(c.Parents) {
		return model.NullID, &model.NotFoundError{Kind: "parent", Key: fmt.Sprintf("%s^%d", c.ID.Short(8), n)}
	}
	return c.Parents[n-1], nil
}

// resolveTreeishOrEmpty is ResolveTreeish where an unborn HEAD names the
// empty tree.
func (r *Repository) resolveTreeishOrEmpty(ctx context.Context, treeish string) (model.ObjectId, error) {
	id, err := r.ResolveTreeish(ctx, treeish)
	if errors.Is(err, model.ErrNotFound) && treeish == r.heads.head {
		head, herr := r.Head(ctx)
		if herr == nil && head.IsNull() {
			return encoding.EmptyTreeID, nil
		}
	}
	return id, err
}
