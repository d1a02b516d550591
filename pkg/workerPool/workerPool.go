package workerpool

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	ErrGlobalBufferFull = errors.New("global buffer is full, wait for some tasks to finish or increase the buffer size")
	ErrRoomBufferFull   = errors.New("room buffer is full, wait for some tasks to finish or increase the buffer size")
	ErrPoolClosed       = errors.New("worker pool is closed")
)

// WorkerPool runs tasks on a fixed set of goroutines shared by every room.
type WorkerPool struct {
	config    Config
	taskQueue chan func()
	closed    atomic.Bool
	closeOnce sync.Once
	mu        sync.RWMutex
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}

	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	for run := range wp.taskQueue {
		run()
	}
}

// Workers returns the number of worker goroutines.
func (wp *WorkerPool) Workers() int {
	return wp.config.WorkerCount
}

// Close stops the workers once queued tasks are done.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		wp.mu.Lock()
		wp.closed.Store(true)
		close(wp.taskQueue)
		wp.mu.Unlock()
	})
}

func (wp *WorkerPool) enqueue(ctx context.Context, run func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed.Load() {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case wp.taskQueue <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result is the outcome of one task. Index is the submission order within
// its room.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Room groups related tasks and collects their results. A room holds at
// most size results, so it must not be given more than size tasks.
type Room[T any] struct {
	wp         *WorkerPool
	ctx        context.Context
	resultChan chan Result[T]
	wg         sync.WaitGroup
	next       atomic.Int64
	closeOnce  sync.Once
}

// CreateRoom returns a room for up to size tasks. Tasks receive ctx.
func CreateRoom[T any](ctx context.Context, wp *WorkerPool, size int) *Room[T] {
	if size < 1 {
		size = 1
	}
	return &Room[T]{
		wp:         wp,
		ctx:        ctx,
		resultChan: make(chan Result[T], size),
	}
}

// NewTaskWaitForFreeSlot queues job, blocking while the global queue is
// full. A task that cannot be queued still leaves a failed result in the
// room.
func (ro *Room[T]) NewTaskWaitForFreeSlot(job func(ctx context.Context) (T, error)) error {
	index := int(ro.next.Add(1) - 1)
	ro.wg.Add(1)
	err := ro.wp.enqueue(ro.ctx, func() {
		defer ro.wg.Done()
		var r Result[T]
		r.Index = index
		if err := ro.ctx.Err(); err != nil {
			r.Err = err
		} else {
			r.Value, r.Err = job(ro.ctx)
		}
		ro.resultChan <- r
	})
	if err != nil {
		select {
		case ro.resultChan <- Result[T]{Index: index, Err: err}:
		default:
		}
		ro.wg.Done()
	}
	return err
}

// NewTask queues job or fails immediately when either buffer is full.
func (ro *Room[T]) NewTask(job func(ctx context.Context) (T, error)) error {
	if len(ro.wp.taskQueue) == cap(ro.wp.taskQueue) {
		return ErrGlobalBufferFull
	}

	if int(ro.next.Load()) >= cap(ro.resultChan) {
		return ErrRoomBufferFull
	}

	return ro.NewTaskWaitForFreeSlot(job)
}

// Collect waits for every queued task and returns the results in
// submission order.
func (ro *Room[T]) Collect() []Result[T] {
	go ro.waitAndClose()
	results := make([]Result[T], 0, cap(ro.resultChan))

	for result := range ro.resultChan {
		results = append(results, result)
	}

	slices.SortFunc(results, func(a, b Result[T]) int { return a.Index - b.Index })
	return results
}

// Wait is Collect returning the values, or the first error in submission
// order.
func (ro *Room[T]) Wait() ([]T, error) {
	results := ro.Collect()
	values := make([]T, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		values[i] = r.Value
	}
	return values, nil
}

func (ro *Room[T]) waitAndClose() {
	ro.wg.Wait()
	ro.closeOnce.Do(func() { close(ro.resultChan) })
}
