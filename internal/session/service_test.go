package session

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/auritra-bit/sunnie-bot-V2/internal/cache"
	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/notify"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/internal/repo"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

type scheduled struct {
	userID string
	at     time.Time
}

type fakeReminders struct {
	mu  sync.Mutex
	got []scheduled
}

func (f *fakeReminders) Schedule(_ context.Context, userID, _, _ string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, scheduled{userID: userID, at: at})
	return nil
}

type notes struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *notes) Notify(_ context.Context, x notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
	return nil
}

func (n *notes) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Kind
	for _, x := range n.got {
		out = append(out, x.Kind)
	}
	return out
}

type fixture struct {
	svc       *Service
	repo      *repo.Repo
	disp      *dispatch.Dispatcher
	adapter   *store.MemoryAdapter
	clock     *clockwork.FakeClock
	reminders *fakeReminders
	notes     *notes
	pol       policy.Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pol := policy.Default()
	pol.Timezone = "UTC"
	logger := zaptest.NewLogger(t).Sugar()
	adapter := store.NewMemoryAdapter()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	m := cache.NewManager(adapter, clock, logger, cache.Options{TTL: time.Hour})
	d := dispatch.New(m, logger, dispatch.Options{RetryBackoff: time.Millisecond})
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	r := repo.New(m, m.Memo(), pol, logger)
	f := &fixture{
		repo:      r,
		disp:      d,
		adapter:   adapter,
		clock:     clock,
		reminders: &fakeReminders{},
		notes:     &notes{},
		pol:       pol,
	}
	f.svc = NewService(r, d, f.reminders, f.notes, clock, utilities.NewIDs(1), pol, logger)
	return f
}

func (f *fixture) session(t *testing.T, userID string) (entity.Session, bool) {
	t.Helper()
	s, ok, err := f.repo.ActiveSession(context.Background(), userID)
	require.NoError(t, err)
	return s, ok
}

func TestStartStop_CreditsElapsedMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(47 * time.Minute)

	res, err := f.svc.Stop(ctx, "u1", "ana")
	require.NoError(t, err)
	assert.Equal(t, 47, res.StudyMinutes)
	assert.Equal(t, 94, res.XP)
	assert.False(t, res.NewBadge)

	_, open := f.session(t, "u1")
	assert.False(t, open)

	u, ok, err := f.repo.User(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 94, u.TotalXP)
	assert.Equal(t, 47, u.TotalStudyMinutes)

	ledger, err := f.repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, entity.ActionStudySession, ledger[0].Action)
	assert.Equal(t, 47, ledger[0].Duration)
}

func TestStart_RefusesSecondSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, "u1", "ana")
	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, 1, f.adapter.Len(store.Sessions))
}

func TestStop_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Stop(ctx, "u1", "ana")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = f.svc.Working(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = f.svc.Break(ctx, "u1", "ana", 0)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(2*time.Hour + time.Minute)
	sess, _ := f.session(t, "u1")
	ok, err := f.svc.WarnInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Stop(ctx, "u1", "ana")
	assert.ErrorIs(t, err, ErrInactive)
	_, err = f.svc.Break(ctx, "u1", "ana", 0)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestBreak_DefaultClampAndReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)

	res, err := f.svc.Break(ctx, "u1", "ana", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Minutes)
	assert.False(t, res.Clamped)

	_, err = f.svc.Break(ctx, "u1", "ana", 5*time.Minute)
	assert.ErrorIs(t, err, ErrOnBreak)

	_, err = f.svc.Working(ctx, "u1")
	require.NoError(t, err)
	res, err = f.svc.Break(ctx, "u1", "ana", 90*time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Clamped)
	assert.Equal(t, 60, res.Minutes)

	sess, _ := f.session(t, "u1")
	assert.Equal(t, entity.SessionBreak, sess.Status)
	assert.Equal(t, 60, sess.TotalBreakMinutes)
	require.Len(t, f.reminders.got, 2)
	assert.Equal(t, f.clock.Now().Add(time.Hour), f.reminders.got[1].at)
}

func TestWorking_ReturnsUnusedBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)

	_, err = f.svc.Break(ctx, "u1", "ana", 10*time.Minute)
	require.NoError(t, err)
	f.clock.Advance(4 * time.Minute)

	w, err := f.svc.Working(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.SessionBreak, w.From)
	assert.Equal(t, 6, w.Returned)

	sess, _ := f.session(t, "u1")
	assert.Equal(t, entity.SessionActive, sess.Status)
	assert.Equal(t, 4, sess.TotalBreakMinutes)
	assert.True(t, sess.BreakEndTime.IsZero())

	f.clock.Advance(16 * time.Minute)
	res, err := f.svc.Stop(ctx, "u1", "ana")
	require.NoError(t, err)
	// 40 minutes elapsed, 4 of them on break
	assert.Equal(t, 36, res.StudyMinutes)
}

func TestStop_DuringBreakCountsOnlyTakenBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	_, err = f.svc.Break(ctx, "u1", "ana", 10*time.Minute)
	require.NoError(t, err)
	f.clock.Advance(3 * time.Minute)

	res, err := f.svc.Stop(ctx, "u1", "ana")
	require.NoError(t, err)
	assert.Equal(t, 30, res.StudyMinutes)
}

func TestInactivity_WarnThenPenalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.repo.EnsureUser(ctx, f.disp, "u1", "ana", f.clock.Now())
	require.NoError(t, err)
	aw := f.repo.Award(u, nil, entity.Activity{
		ID: "att", UserID: "u1", Action: entity.ActionAttendance, XPEarned: 10, Timestamp: f.clock.Now(),
	}, f.clock.Now())
	_, err = f.disp.Apply(ctx, aw.Mutations...)
	require.NoError(t, err)

	sess, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, Keep, f.svc.Evaluate(sess, f.clock.Now()))

	f.clock.Advance(time.Minute)
	assert.Equal(t, Warn, f.svc.Evaluate(sess, f.clock.Now()))
	// not yet warned, so never straight to a penalty
	_, penalised, err := f.svc.PenalizeInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.False(t, penalised)

	warned, err := f.svc.WarnInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.True(t, warned)
	sess, _ = f.session(t, "u1")
	assert.Equal(t, entity.SessionWarning, sess.Status)

	f.clock.Advance(30 * time.Minute)
	assert.Equal(t, Penalize, f.svc.Evaluate(sess, f.clock.Now()))
	res, penalised, err := f.svc.PenalizeInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	require.True(t, penalised)
	assert.Equal(t, 10, res.Deducted)
	assert.Equal(t, 0, res.User.TotalXP)

	_, open := f.session(t, "u1")
	assert.False(t, open)
	stored, _, err := f.repo.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TotalXP)

	ledger, err := f.repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	last := ledger[len(ledger)-1]
	assert.Equal(t, entity.ActionInactivityPenalty, last.Action)
	assert.Less(t, last.XPEarned, 0)

	assert.Equal(t, []notify.Kind{notify.KindWarning, notify.KindPenalty}, f.notes.kinds())
}

func TestInactivity_WorkingClearsWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(2*time.Hour + 5*time.Minute)
	_, err = f.svc.WarnInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)

	w, err := f.svc.Working(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.SessionWarning, w.From)

	f.clock.Advance(time.Hour)
	sess, _ = f.session(t, "u1")
	assert.Equal(t, Keep, f.svc.Evaluate(sess, f.clock.Now()))
}

func TestEvaluate_BreakIdleCountsFromBreakEnd(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	sess := entity.Session{
		Status:       entity.SessionBreak,
		StartTime:    now.Add(-3 * time.Hour),
		LastActivity: now.Add(-3 * time.Hour),
		BreakEndTime: now.Add(-time.Hour),
	}
	assert.Equal(t, Keep, f.svc.Evaluate(sess, now))
	sess.Status = entity.SessionWarning
	assert.Equal(t, Keep, f.svc.Evaluate(sess, now.Add(90*time.Minute)))
	assert.Equal(t, Penalize, f.svc.Evaluate(sess, now.Add(91*time.Minute)))
}

// Random interleavings of commands and monitor passes from concurrent
// goroutines never leave a user with two open sessions.
func TestAtMostOneOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := []string{"u1", "u2", "u3"}

	check := func() {
		recs, err := f.adapter.GetAll(ctx, store.Sessions)
		require.NoError(t, err)
		seen := map[string]int{}
		for _, r := range recs {
			seen[r.Get("UserID")]++
		}
		for u, n := range seen {
			assert.LessOrEqual(t, n, 1, "user %s has %d open sessions", u, n)
		}
	}

	step := func(r *rand.Rand, userID string) {
		switch r.Intn(6) {
		case 0, 1:
			_, _ = f.svc.Start(ctx, userID, userID)
		case 2:
			_, _ = f.svc.Stop(ctx, userID, userID)
		case 3:
			_, _ = f.svc.Break(ctx, userID, userID, time.Duration(r.Intn(90))*time.Minute)
		case 4:
			_, _ = f.svc.Working(ctx, userID)
		case 5:
			if sess, ok, _ := f.repo.ActiveSession(ctx, userID); ok {
				switch f.svc.Evaluate(sess, f.clock.Now()) {
				case Warn:
					_, _ = f.svc.WarnInactive(ctx, userID, sess.ID)
				case Penalize:
					_, _, _ = f.svc.PenalizeInactive(ctx, userID, sess.ID)
				}
			}
		}
	}

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				r := rand.New(rand.NewSource(seed))
				for i := 0; i < 10; i++ {
					step(r, users[r.Intn(len(users))])
				}
			}(int64(round*10 + g))
		}
		wg.Wait()
		check()
		f.clock.Advance(time.Duration(rand.New(rand.NewSource(int64(round))).Intn(120)) * time.Minute)
	}
}

func failSessionDeletes(op string, table store.Table) error {
	if op == "delete" && table == store.Sessions {
		return store.ErrStoreUnavailable
	}
	return nil
}

func TestStop_FailedCloseCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	f.adapter.SetFault(failSessionDeletes)
	_, err = f.svc.Stop(ctx, "u1", "ana")
	require.ErrorIs(t, err, store.ErrStoreUnavailable)
	ledger, err := f.repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ledger)

	f.adapter.SetFault(nil)
	res, err := f.svc.Stop(ctx, "u1", "ana")
	require.NoError(t, err)
	assert.Equal(t, 30, res.StudyMinutes)

	ledger, err = f.repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
	u, _, err := f.repo.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 60, u.TotalXP)
}

func TestPenalize_FailedCloseDeductsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(2*time.Hour + time.Minute)
	warned, err := f.svc.WarnInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	require.True(t, warned)
	f.clock.Advance(30 * time.Minute)

	f.adapter.SetFault(failSessionDeletes)
	_, penalised, err := f.svc.PenalizeInactive(ctx, "u1", sess.ID)
	require.Error(t, err)
	assert.False(t, penalised)
	ledger, err := f.repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ledger)

	f.adapter.SetFault(nil)
	_, penalised, err = f.svc.PenalizeInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.True(t, penalised)
	_, penalised, err = f.svc.PenalizeInactive(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.False(t, penalised)

	ledger, err = f.repo.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

// stallingWriter parks the first write until released, holding Reconcile
// between its read and its write.
type stallingWriter struct {
	next    *dispatch.Dispatcher
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stallingWriter) Apply(ctx context.Context, muts ...dispatch.Mutation) ([]dispatch.Result, error) {
	w.once.Do(func() {
		close(w.entered)
		<-w.release
	})
	return w.next.Apply(ctx, muts...)
}

func TestReconcile_SerialisedWithStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.svc.Stop(ctx, "u1", "ana")
	require.NoError(t, err)
	u, _, err := f.repo.User(ctx, "u1")
	require.NoError(t, err)
	_, err = f.disp.Apply(ctx, dispatch.Update(store.Users, u.Ref, "u1", "TotalXP", "999"))
	require.NoError(t, err)

	_, err = f.svc.Start(ctx, "u1", "ana")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	w := &stallingWriter{next: f.disp, entered: make(chan struct{}), release: make(chan struct{})}
	reconciled := make(chan error, 1)
	go func() {
		_, err := f.repo.Reconcile(ctx, w, "u1", f.clock.Now())
		reconciled <- err
	}()
	<-w.entered

	stopped := make(chan error, 1)
	go func() {
		_, err := f.svc.Stop(ctx, "u1", "ana")
		stopped <- err
	}()
	select {
	case err := <-stopped:
		t.Fatalf("stop finished while reconcile held the user: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(w.release)
	require.NoError(t, <-reconciled)
	require.NoError(t, <-stopped)

	u, _, err = f.repo.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 80, u.TotalXP)
	assert.Equal(t, 40, u.TotalStudyMinutes)
}
