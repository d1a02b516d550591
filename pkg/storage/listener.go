package storage

import (
	"sync/atomic"

	"github.com/yokosogithub/GeoGit-sub002/pkg/model"
)

// BulkOpListener is told the outcome of every item of a bulk operation.
// Implementations must be safe for concurrent use.
type BulkOpListener interface {
	Found(id model.ObjectId, storageSize int)
	Inserted(id model.ObjectId, storageSize int)
	Deleted(id model.ObjectId)
	NotFound(id model.ObjectId)
}

// NoopListener ignores every notification.
var NoopListener BulkOpListener = noopListener{}

type noopListener struct{}

func (noopListener) Found(model.ObjectId, int)    {}
func (noopListener) Inserted(model.ObjectId, int) {}
func (noopListener) Deleted(model.ObjectId)       {}
func (noopListener) NotFound(model.ObjectId)      {}

// ListenerOrNoop returns l, or NoopListener when l is nil.
func ListenerOrNoop(l BulkOpListener) BulkOpListener {
	if l == nil {
		return NoopListener
	}
	return l
}

// CountingListener counts outcomes.
type CountingListener struct {
	found, inserted, deleted, notFound atomic.Int64
	bytes                              atomic.Int64
}

func (c *CountingListener) Found(_ model.ObjectId, size int) {
	c.found.Add(1)
	c.bytes.Add(int64(size))
}

func (c *CountingListener) Inserted(_ model.ObjectId, size int) {
	c.inserted.Add(1)
	c.bytes.Add(int64(size))
}

func (c *CountingListener) Deleted(model.ObjectId)  { c.deleted.Add(1) }
func (c *CountingListener) NotFound(model.ObjectId) { c.notFound.Add(1) }

func (c *CountingListener) FoundCount() int64    { return c.found.Load() }
func (c *CountingListener) InsertedCount() int64 { return c.inserted.Load() }
func (c *CountingListener) DeletedCount() int64  { return c.deleted.Load() }
func (c *CountingListener) NotFoundCount() int64 { return c.notFound.Load() }

// Bytes is the total storage size of found and inserted objects.
func (c *CountingListener) Bytes() int64 { return c.bytes.Load() }

// Composite fans notifications out to every listener.
func Composite(listeners ...BulkOpListener) BulkOpListener {
	out := make(compositeListener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return NoopListener
	case 1:
		return out[0]
	}
	return out
}

type compositeListener []BulkOpListener

func (c compositeListener) Found(id model.ObjectId, size int) {
	for _, l := range c {
		l.Found(id, size)
	}
}

func (c compositeListener) Inserted(id model.ObjectId, size int) {
	for _, l := range c {
		l.Inserted(id, size)
	}
}

func (c compositeListener) Deleted(id model.ObjectId) {
	for _, l := range c {
		l.Deleted(id)
	}
}

func (c compositeListener) NotFound(id model.ObjectId) {
	for _, l := range c {
		l.NotFound(id)
	}
}
