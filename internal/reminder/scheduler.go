// Package reminder schedules one-shot reminder deliveries and owns the
// Reminders table lifecycle.
package reminder

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Job is a scheduled callback.
type Job func(ctx context.Context)

// Handle identifies a scheduled job.
type Handle uint64

type item struct {
	handle Handle
	at     time.Time
	seq    uint64
	job    Job
	index  int
}

type jobHeap []*item

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Scheduler runs one-shot jobs at or after their fire time. Precision is
// bounded by the poll interval of Run. A job fires at most once.
type Scheduler struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	poll   time.Duration
	logger *zap.SugaredLogger
	queue  jobHeap
	items  map[Handle]*item
	seq    uint64
}

func NewScheduler(clock clockwork.Clock, poll time.Duration, logger *zap.SugaredLogger) *Scheduler {
	if poll <= 0 {
		poll = 15 * time.Second
	}
	return &Scheduler{
		clock:  clock,
		poll:   poll,
		logger: logger,
		items:  make(map[Handle]*item),
	}
}

func (s *Scheduler) Schedule(at time.Time, job Job) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	it := &item{handle: Handle(s.seq), at: at, seq: s.seq, job: job}
	heap.Push(&s.queue, it)
	s.items[it.handle] = it
	return it.handle
}

// Cancel removes a job that has not fired yet. It reports whether the job
// was still queued.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[h]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, it.index)
	delete(s.items, h)
	return true
}

// Len is the number of queued jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunDue fires every job whose time has come, in fire-time order, and
// returns how many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.clock.Now()
	var due []*item
	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].at.After(now) {
		it := heap.Pop(&s.queue).(*item)
		delete(s.items, it.handle)
		due = append(due, it)
	}
	s.mu.Unlock()

	for _, it := range due {
		s.fire(ctx, it)
	}
	return len(due)
}

func (s *Scheduler) fire(ctx context.Context, it *item) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("scheduled job panicked", "handle", it.handle, "panic", r)
		}
	}()
	it.job(ctx)
}

// Run polls for due jobs until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.poll)
	defer ticker.Stop()
	s.logger.Infow("scheduler started", "poll", s.poll)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("scheduler stopped", "queued", s.Len())
			return ctx.Err()
		case <-ticker.Chan():
			if n := s.RunDue(ctx); n > 0 {
				s.logger.Debugw("scheduled jobs fired", "count", n)
			}
		}
	}
}
