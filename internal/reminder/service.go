package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/notify"
	"github.com/auritra-bit/sunnie-bot-V2/internal/repo"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

// Dispatcher is the write path the service needs: synchronous writes for
// user commands, asynchronous ones for scheduled work.
type Dispatcher interface {
	Apply(ctx context.Context, muts ...dispatch.Mutation) ([]dispatch.Result, error)
	Submit(muts ...dispatch.Mutation) *dispatch.Future
}

// Service persists reminders and delivers them through the scheduler.
type Service struct {
	repo      *repo.Repo
	disp      Dispatcher
	sched     *Scheduler
	notifier  notify.Notifier
	clock     clockwork.Clock
	ids       *utilities.IDs
	retention time.Duration
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	handles map[string]Handle
	fired   map[string]struct{}
}

func NewService(r *repo.Repo, d Dispatcher, sched *Scheduler, n notify.Notifier, clock clockwork.Clock, ids *utilities.IDs, retention time.Duration, logger *zap.SugaredLogger) *Service {
	return &Service{
		repo:      r,
		disp:      d,
		sched:     sched,
		notifier:  n,
		clock:     clock,
		ids:       ids,
		retention: retention,
		logger:    logger,
		handles:   make(map[string]Handle),
		fired:     make(map[string]struct{}),
	}
}

// Create stores a Pending reminder and schedules its delivery.
func (s *Service) Create(ctx context.Context, userID, username, message string, at time.Time, typ entity.ReminderType) (entity.Reminder, error) {
	rm := entity.Reminder{
		ID:       s.ids.Reminder(),
		UserID:   userID,
		Username: username,
		Message:  message,
		At:       at,
		Status:   entity.ReminderPending,
		Type:     typ,
	}
	res, err := s.disp.Apply(ctx, dispatch.Append(store.Reminders, userID, rm.Fields(s.repo.Location())))
	if err != nil {
		return entity.Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	rm.Ref = res[0].Record.Ref
	s.schedule(rm)
	s.logger.Debugw("reminder scheduled", "reminder", rm.ID, "user", userID, "type", typ, "at", at)
	return rm, nil
}

// Schedule satisfies the session package's reminder dependency for breaks.
func (s *Service) Schedule(ctx context.Context, userID, username, message string, at time.Time) error {
	_, err := s.Create(ctx, userID, username, message, at, entity.ReminderBreak)
	return err
}

func (s *Service) schedule(rm entity.Reminder) {
	id := rm.ID
	h := s.sched.Schedule(rm.At, func(ctx context.Context) {
		s.Fire(ctx, id)
	})
	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()
}

// Fire delivers a reminder once. It re-reads the row: a missing or Sent
// reminder is a no-op. The Sent marking is written in the background; the
// returned future is nil when nothing was written.
func (s *Service) Fire(ctx context.Context, reminderID string) *dispatch.Future {
	s.mu.Lock()
	delete(s.handles, reminderID)
	if _, done := s.fired[reminderID]; done {
		s.mu.Unlock()
		return nil
	}
	s.fired[reminderID] = struct{}{}
	s.mu.Unlock()

	rm, ok, err := s.repo.Reminder(ctx, reminderID)
	if err != nil {
		s.logger.Warnw("reminder lookup failed", "reminder", reminderID, "err", err)
		s.forgetFired(reminderID)
		return nil
	}
	if !ok || rm.Status == entity.ReminderSent {
		return nil
	}

	fut := s.disp.Submit(dispatch.Update(store.Reminders, rm.Ref, rm.UserID, "Status", entity.ReminderSent))
	n := notify.Notification{UserID: rm.UserID, Username: rm.Username, Kind: notify.KindReminder, Message: deliveryText(rm)}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warnw("reminder delivery failed", "reminder", rm.ID, "user", rm.UserID, "err", err)
	}
	return fut
}

func (s *Service) forgetFired(id string) {
	s.mu.Lock()
	delete(s.fired, id)
	s.mu.Unlock()
}

func deliveryText(rm entity.Reminder) string {
	switch rm.Type {
	case entity.ReminderBreak:
		return fmt.Sprintf("⏰ %s, your break is over! Send `!working` to get back to it.", rm.Username)
	case entity.ReminderFocus:
		return fmt.Sprintf("🎯 %s, focus block done! %s", rm.Username, rm.Message)
	default:
		return fmt.Sprintf("🔔 %s, reminder: %s", rm.Username, rm.Message)
	}
}

// Cancel unschedules a reminder and deletes its row.
func (s *Service) Cancel(ctx context.Context, reminderID string) error {
	s.mu.Lock()
	h, ok := s.handles[reminderID]
	delete(s.handles, reminderID)
	s.mu.Unlock()
	if ok {
		s.sched.Cancel(h)
	}

	rm, found, err := s.repo.Reminder(ctx, reminderID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("reminder %s: %w", reminderID, store.ErrRecordNotFound)
	}
	_, err = s.disp.Apply(ctx, dispatch.Delete(store.Reminders, rm.Ref, rm.UserID))
	return err
}

// Restore schedules every Pending reminder found in the store. Overdue ones
// fire on the next scheduler poll.
func (s *Service) Restore(ctx context.Context) (int, error) {
	pending, err := s.repo.PendingReminders(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rm := range pending {
		s.mu.Lock()
		_, queued := s.handles[rm.ID]
		s.mu.Unlock()
		if queued {
			continue
		}
		s.schedule(rm)
		n++
	}
	s.logger.Infow("pending reminders restored", "count", n)
	return n, nil
}

// Sweep deletes Sent reminders older than the retention window.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	all, err := s.repo.Reminders(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.clock.Now().Add(-s.retention)
	n := 0
	for _, rm := range all {
		if rm.Status != entity.ReminderSent || !rm.At.Before(cutoff) {
			continue
		}
		if _, err := s.disp.Apply(ctx, dispatch.Delete(store.Reminders, rm.Ref, rm.UserID)); err != nil {
			return n, fmt.Errorf("sweep reminder %s: %w", rm.ID, err)
		}
		s.forgetFired(rm.ID)
		n++
	}
	if n > 0 {
		s.logger.Infow("old reminders swept", "count", n)
	}
	return n, nil
}

// Pending returns the user's reminders that have not fired yet.
func (s *Service) Pending(ctx context.Context, userID string) ([]entity.Reminder, error) {
	all, err := s.repo.PendingReminders(ctx)
	if err != nil {
		return nil, err
	}
	var out []entity.Reminder
	for _, rm := range all {
		if rm.UserID == userID {
			out = append(out, rm)
		}
	}
	return out, nil
}
