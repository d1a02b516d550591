package objectdb

import (
	"context"
	"fmt"
	"iter"

	"github.com/yokosogithub/GeoGit-sub002/pkg/encoding"
	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
	"github.com/yokosogithub/GeoGit-sub002/pkg/storage"
)

// GraphHook records every commit written through it in the graph index.
type GraphHook struct {
	storage.ObjectDatabase
	graph storage.GraphDatabase
}

// NewGraphHook wraps db so commits put into it are added to graph.
func NewGraphHook(db storage.ObjectDatabase, graph storage.GraphDatabase) *GraphHook {
	return &GraphHook{ObjectDatabase: db, graph: graph}
}

func (g *GraphHook) Put(ctx context.Context, obj model.RevObject) (bool, error) {
	inserted, err := g.ObjectDatabase.Put(ctx, obj)
	if err != nil {
		return false, err
	}
	if c, ok := obj.(*model.Commit); ok {
		if err := g.record(ctx, c); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (g *GraphHook) PutRaw(ctx context.Context, id model.ObjectId, data []byte) (bool, error) {
	inserted, err := g.ObjectDatabase.PutRaw(ctx, id, data)
	if err != nil {
		return false, err
	}
	if len(data) > 0 && model.ObjectType(data[0]) == model.TypeCommit {
		c, err := encoding.DecodeAs[*model.Commit](encoding.Binary, id, data)
		if err != nil {
			return inserted, err
		}
		if err := g.record(ctx, c); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (g *GraphHook) PutAll(ctx context.Context, objects iter.Seq[model.RevObject], listener storage.BulkOpListener) error {
	var commits []*model.Commit
	err := g.ObjectDatabase.PutAll(ctx, func(yield func(model.RevObject) bool) {
		for obj := range objects {
			if c, ok := obj.(*model.Commit); ok {
				commits = append(commits, c)
			}
			if !yield(obj) {
				return
			}
		}
	}, listener)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if err := g.record(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (g *GraphHook) NewObjectInserter() *storage.ObjectInserter {
	return storage.NewObjectInserter(g)
}

func (g *GraphHook) record(ctx context.Context, c *model.Commit) error {
	if _, err := g.graph.Put(ctx, c.ID, c.Parents); err != nil {
		return fmt.Errorf("update graph for commit %s: %w", c.ID, err)
	}
	return nil
}
