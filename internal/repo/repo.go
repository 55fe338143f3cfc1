// Package repo gives typed access to the cached tables and builds the
// mutations that keep the Users projection in step with the ledger.
package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/cache"
	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// Writer is the synchronous side of the dispatcher.
type Writer interface {
	Apply(ctx context.Context, muts ...dispatch.Mutation) ([]dispatch.Result, error)
}

type Repo struct {
	cache  cache.Reader
	memo   *cache.Memo
	loc    *time.Location
	floor  int
	logger *zap.SugaredLogger
	locks  *UserLocks
}

func New(reader cache.Reader, memo *cache.Memo, pol policy.Policy, logger *zap.SugaredLogger) *Repo {
	if memo == nil {
		memo = cache.NewMemo(0, 0)
	}
	return &Repo{
		cache:  reader,
		memo:   memo,
		loc:    pol.Location(),
		floor:  pol.XPFloor,
		logger: logger,
		locks:  NewUserLocks(),
	}
}

// Location is the zone persisted timestamps are read and written in.
func (r *Repo) Location() *time.Location { return r.loc }

// Lock takes the per-user lock shared by every component that reads and
// then rewrites a user's rows. The returned func releases it.
func (r *Repo) Lock(userID string) func() { return r.locks.Lock(userID) }

// decodeAll converts rows, skipping malformed ones.
func decodeAll[T any](r *Repo, table store.Table, recs []store.Record, decode func(store.Record, *time.Location) (T, error)) []T {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := decode(rec, r.loc)
		if err != nil {
			if errors.Is(err, entity.ErrMalformedRecord) {
				r.logger.Debugw("skipping malformed row", "table", table, "ref", rec.Ref.String(), "err", err)
				continue
			}
			r.logger.Warnw("skipping row", "table", table, "ref", rec.Ref.String(), "err", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (r *Repo) User(ctx context.Context, userID string) (entity.User, bool, error) {
	recs, err := r.cache.GetForUser(ctx, store.Users, userID)
	if err != nil {
		return entity.User{}, false, err
	}
	users := decodeAll(r, store.Users, recs, entity.UserFromRecord)
	if len(users) == 0 {
		return entity.User{}, false, nil
	}
	if len(users) > 1 {
		r.logger.Warnw("duplicate user rows, using the first", "user", userID, "rows", len(users))
	}
	return users[0], true, nil
}

// Users returns every user row in insertion order.
func (r *Repo) Users(ctx context.Context) ([]entity.User, error) {
	recs, err := r.cache.Get(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	return decodeAll(r, store.Users, recs, entity.UserFromRecord), nil
}

// ActiveSession returns the user's non-terminal session. More than one is
// an invariant violation: the most recently started row wins.
func (r *Repo) ActiveSession(ctx context.Context, userID string) (entity.Session, bool, error) {
	recs, err := r.cache.GetForUser(ctx, store.Sessions, userID)
	if err != nil {
		return entity.Session{}, false, err
	}
	sessions := decodeAll(r, store.Sessions, recs, entity.SessionFromRecord)
	s, ok := r.mostRecent(userID, sessions)
	return s, ok, nil
}

// Sessions returns one non-terminal session per user.
func (r *Repo) Sessions(ctx context.Context) ([]entity.Session, error) {
	recs, err := r.cache.Get(ctx, store.Sessions)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string][]entity.Session)
	var order []string
	for _, s := range decodeAll(r, store.Sessions, recs, entity.SessionFromRecord) {
		if _, ok := byUser[s.UserID]; !ok {
			order = append(order, s.UserID)
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}
	out := make([]entity.Session, 0, len(order))
	for _, id := range order {
		if s, ok := r.mostRecent(id, byUser[id]); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Repo) mostRecent(userID string, sessions []entity.Session) (entity.Session, bool) {
	if len(sessions) == 0 {
		return entity.Session{}, false
	}
	best := sessions[0]
	for _, s := range sessions[1:] {
		if !s.StartTime.Before(best.StartTime) {
			best = s
		}
	}
	if len(sessions) > 1 {
		r.logger.Warnw("multiple open sessions, using the most recent", "user", userID, "sessions", len(sessions), "session", best.ID)
	}
	return best, true
}

func (r *Repo) Tasks(ctx context.Context, userID string) ([]entity.Task, error) {
	recs, err := r.cache.GetForUser(ctx, store.Tasks, userID)
	if err != nil {
		return nil, err
	}
	return decodeAll(r, store.Tasks, recs, entity.TaskFromRecord), nil
}

// ActiveTask returns the latest Active task of the user.
func (r *Repo) ActiveTask(ctx context.Context, userID string) (entity.Task, bool, error) {
	tasks, err := r.Tasks(ctx, userID)
	if err != nil {
		return entity.Task{}, false, err
	}
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].Status == entity.TaskActive {
			return tasks[i], true, nil
		}
	}
	return entity.Task{}, false, nil
}

func (r *Repo) ActiveGoal(ctx context.Context, userID string) (entity.Goal, bool, error) {
	recs, err := r.cache.GetForUser(ctx, store.Goals, userID)
	if err != nil {
		return entity.Goal{}, false, err
	}
	goals := decodeAll(r, store.Goals, recs, entity.GoalFromRecord)
	for i := len(goals) - 1; i >= 0; i-- {
		if goals[i].Status == entity.GoalActive {
			return goals[i], true, nil
		}
	}
	return entity.Goal{}, false, nil
}

func (r *Repo) Plans(ctx context.Context, userID string) ([]entity.Plan, error) {
	recs, err := r.cache.GetForUser(ctx, store.Plans, userID)
	if err != nil {
		return nil, err
	}
	return decodeAll(r, store.Plans, recs, entity.PlanFromRecord), nil
}

// Ledger returns the user's activities in insertion order.
func (r *Repo) Ledger(ctx context.Context, userID string) ([]entity.Activity, error) {
	recs, err := r.cache.GetForUser(ctx, store.Activities, userID)
	if err != nil {
		return nil, err
	}
	return decodeAll(r, store.Activities, recs, entity.ActivityFromRecord), nil
}

// AllActivities returns the whole ledger in insertion order.
func (r *Repo) AllActivities(ctx context.Context) ([]entity.Activity, error) {
	recs, err := r.cache.Get(ctx, store.Activities)
	if err != nil {
		return nil, err
	}
	return decodeAll(r, store.Activities, recs, entity.ActivityFromRecord), nil
}

func (r *Repo) Reminders(ctx context.Context) ([]entity.Reminder, error) {
	recs, err := r.cache.Get(ctx, store.Reminders)
	if err != nil {
		return nil, err
	}
	return decodeAll(r, store.Reminders, recs, entity.ReminderFromRecord), nil
}

func (r *Repo) PendingReminders(ctx context.Context) ([]entity.Reminder, error) {
	all, err := r.Reminders(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rm := range all {
		if rm.Status == entity.ReminderPending {
			out = append(out, rm)
		}
	}
	return out, nil
}

// Reminder looks a reminder up by its id.
func (r *Repo) Reminder(ctx context.Context, id string) (entity.Reminder, bool, error) {
	all, err := r.Reminders(ctx)
	if err != nil {
		return entity.Reminder{}, false, err
	}
	for _, rm := range all {
		if rm.ID == id {
			return rm, true, nil
		}
	}
	return entity.Reminder{}, false, nil
}

// UserLocks is a set of per-user mutexes.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*userLock)}
}

func (l *UserLocks) Lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
