package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

var (
	ErrQueueFull = errors.New("write queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

// Cache is the write side of the cache manager: write-through store calls
// under the table lock plus the invalidation hooks.
type Cache interface {
	Append(ctx context.Context, t store.Table, fields map[string]string) (store.Record, error)
	UpdateField(ctx context.Context, t store.Table, ref store.RecordRef, field, value string) error
	Delete(ctx context.Context, t store.Table, ref store.RecordRef) error
	Refresh(ctx context.Context, t store.Table) error
	Invalidate(userID string)
}

type Options struct {
	Workers      int
	QueueSize    int
	RetryBackoff time.Duration
	// WriteTimeout bounds every background store call.
	WriteTimeout time.Duration
}

type job struct {
	muts []Mutation
	fut  *Future
}

// Dispatcher is the only path by which anything writes to the store.
//
// Apply runs mutations inline and returns the first error unretried; the
// caller turns it into a reply. Submit queues a batch for the worker pool:
// each mutation is retried once after RetryBackoff on a transient error and
// the batch is dropped, with a log entry, if the retry fails too.
type Dispatcher struct {
	cache  Cache
	logger *zap.SugaredLogger
	opts   Options

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

func New(cache Cache, logger *zap.SugaredLogger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	d := &Dispatcher{
		cache:  cache,
		logger: logger,
		opts:   opts,
		jobs:   make(chan job, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Apply executes muts in order and stops at the first failure.
func (d *Dispatcher) Apply(ctx context.Context, muts ...Mutation) ([]Result, error) {
	results := make([]Result, 0, len(muts))
	for _, m := range muts {
		res, err := d.exec(ctx, m)
		if err != nil {
			d.logger.Warnw("write failed", "kind", m.Kind, "table", m.Table, "user", m.UserID, "err", err)
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Submit queues muts as one ordered batch and returns immediately.
func (d *Dispatcher) Submit(muts ...Mutation) *Future {
	fut := newFuture()
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		fut.resolve(nil, ErrClosed)
		return fut
	}
	select {
	case d.jobs <- job{muts: muts, fut: fut}:
	default:
		d.logger.Errorw("write queue full, dropping batch", "mutations", len(muts))
		fut.resolve(nil, ErrQueueFull)
	}
	return fut
}

// Close stops accepting batches and waits for queued ones to finish.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		d.runJob(id, j)
	}
}

func (d *Dispatcher) runJob(worker int, j job) {
	var (
		results []Result
		err     error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write batch panicked: %v", r)
			d.logger.Errorw("write batch panicked", "worker", worker, "panic", r)
		}
		j.fut.resolve(results, err)
	}()
	for _, m := range j.muts {
		var res Result
		res, err = d.execWithRetry(m)
		if err != nil {
			d.logger.Errorw("background write dropped", "worker", worker, "kind", m.Kind, "table", m.Table, "user", m.UserID, "err", err)
			return
		}
		results = append(results, res)
	}
}

func (d *Dispatcher) execWithRetry(m Mutation) (Result, error) {
	res, err := d.execTimeout(m)
	if err == nil || !store.IsTransient(err) {
		return res, err
	}
	d.logger.Warnw("background write failed, retrying once", "kind", m.Kind, "table", m.Table, "backoff", d.opts.RetryBackoff, "err", err)
	t := time.NewTimer(d.opts.RetryBackoff)
	<-t.C
	return d.execTimeout(m)
}

func (d *Dispatcher) execTimeout(m Mutation) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.WriteTimeout)
	defer cancel()
	return d.exec(ctx, m)
}

// exec performs one write and then reconciles the cache: the user's index
// entry is always dropped, and a deletion or an explicit Refresh reloads the
// whole table.
func (d *Dispatcher) exec(ctx context.Context, m Mutation) (Result, error) {
	res := Result{Mutation: m}
	var err error
	switch m.Kind {
	case AppendRow:
		res.Record, err = d.cache.Append(ctx, m.Table, m.Fields)
	case UpdateCell:
		err = d.cache.UpdateField(ctx, m.Table, m.Ref, m.Field, m.Value)
	case DeleteRow:
		// the cache reloads the table as part of the delete
		err = d.cache.Delete(ctx, m.Table, m.Ref)
	default:
		err = fmt.Errorf("unknown mutation kind %v", m.Kind)
	}
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", m.Kind, m.Table, err)
	}
	d.cache.Invalidate(m.UserID)
	if m.Refresh {
		if err := d.cache.Refresh(ctx, m.Table); err != nil {
			d.logger.Warnw("refresh after write failed", "table", m.Table, "err", err)
		}
	}
	return res, nil
}
