// Package session implements the study-session lifecycle:
//
//	None -> Active -> (Break <-> Active) -> Warning -> Active | penalised
//	Active | Break -> stopped
//
// Transitions for one user are serialised by the repo's per-user lock, so a
// user never has more than one open session row written by this process.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/notify"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/internal/repo"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

var (
	ErrAlreadyActive = errors.New("session already active")
	ErrNoSession     = errors.New("no active session")
	ErrNotActive     = errors.New("session is not active")
	ErrOnBreak       = errors.New("session is on break")
	// ErrInactive is returned for commands other than working while the
	// session is in Warning.
	ErrInactive = errors.New("session flagged inactive")
)

// ReminderScheduler schedules the end-of-break reminder.
type ReminderScheduler interface {
	Schedule(ctx context.Context, userID, username, message string, at time.Time) error
}

type Dispatcher interface {
	Apply(ctx context.Context, muts ...dispatch.Mutation) ([]dispatch.Result, error)
	Submit(muts ...dispatch.Mutation) *dispatch.Future
}

type Service struct {
	repo      *repo.Repo
	disp      Dispatcher
	reminders ReminderScheduler
	notifier  notify.Notifier
	clock     clockwork.Clock
	ids       *utilities.IDs
	pol       policy.Policy
	logger    *zap.SugaredLogger
}

func NewService(r *repo.Repo, d Dispatcher, reminders ReminderScheduler, n notify.Notifier, clock clockwork.Clock, ids *utilities.IDs, pol policy.Policy, logger *zap.SugaredLogger) *Service {
	return &Service{
		repo:      r,
		disp:      d,
		reminders: reminders,
		notifier:  n,
		clock:     clock,
		ids:       ids,
		pol:       pol,
		logger:    logger,
	}
}

func (s *Service) loc() *time.Location { return s.repo.Location() }

func (s *Service) update(sess entity.Session, field, value string) dispatch.Mutation {
	return dispatch.Update(store.Sessions, sess.Ref, sess.UserID, field, value)
}

// Current returns the user's open session.
func (s *Service) Current(ctx context.Context, userID string) (entity.Session, bool, error) {
	return s.repo.ActiveSession(ctx, userID)
}

func (s *Service) Start(ctx context.Context, userID, username string) (entity.Session, error) {
	defer s.repo.Lock(userID)()

	if _, ok, err := s.repo.ActiveSession(ctx, userID); err != nil {
		return entity.Session{}, err
	} else if ok {
		return entity.Session{}, ErrAlreadyActive
	}

	now := s.clock.Now()
	sess := entity.Session{
		ID:           s.ids.Row(),
		UserID:       userID,
		Username:     username,
		StartTime:    now,
		LastActivity: now,
		Status:       entity.SessionActive,
	}
	res, err := s.disp.Apply(ctx, dispatch.Append(store.Sessions, userID, sess.Fields(s.loc())))
	if err != nil {
		return entity.Session{}, fmt.Errorf("start session: %w", err)
	}
	sess.Ref = res[0].Record.Ref
	s.logger.Infow("session started", "user", userID, "session", sess.ID)
	return sess, nil
}

type BreakResult struct {
	Minutes int
	EndsAt  time.Time
	// Clamped is set when the requested break exceeded the maximum.
	Clamped bool
}

// Break pauses an Active session for d (the policy default when d <= 0,
// at most MaxBreak) and schedules a reminder for its end.
func (s *Service) Break(ctx context.Context, userID, username string, d time.Duration) (BreakResult, error) {
	defer s.repo.Lock(userID)()

	sess, ok, err := s.repo.ActiveSession(ctx, userID)
	if err != nil {
		return BreakResult{}, err
	}
	if !ok {
		return BreakResult{}, ErrNoSession
	}
	switch sess.Status {
	case entity.SessionBreak:
		return BreakResult{}, ErrOnBreak
	case entity.SessionWarning:
		return BreakResult{}, ErrInactive
	}

	var res BreakResult
	if d <= 0 {
		d = s.pol.DefaultBreak
	}
	if d > s.pol.MaxBreak {
		d = s.pol.MaxBreak
		res.Clamped = true
	}
	now := s.clock.Now()
	res.Minutes = int(d / time.Minute)
	res.EndsAt = now.Add(d)

	_, err = s.disp.Apply(ctx,
		s.update(sess, "Status", string(entity.SessionBreak)),
		s.update(sess, "BreakEndTime", entity.FormatTime(res.EndsAt, s.loc())),
		s.update(sess, "TotalBreakTime", fmt.Sprint(sess.TotalBreakMinutes+res.Minutes)),
		s.update(sess, "LastActivity", entity.FormatTime(now, s.loc())),
	)
	if err != nil {
		return BreakResult{}, fmt.Errorf("start break: %w", err)
	}
	if s.reminders != nil {
		msg := fmt.Sprintf("your %d minute break is over", res.Minutes)
		if err := s.reminders.Schedule(ctx, userID, username, msg, res.EndsAt); err != nil {
			s.logger.Warnw("break reminder not scheduled", "user", userID, "err", err)
		}
	}
	s.logger.Debugw("break started", "user", userID, "session", sess.ID, "minutes", res.Minutes)
	return res, nil
}

type WorkingResult struct {
	From entity.SessionStatus
	// Returned is the unused break time, in whole minutes, taken back off
	// the session's break total.
	Returned int
}

// Working marks the user as active again, ending a break or clearing a
// warning.
func (s *Service) Working(ctx context.Context, userID string) (WorkingResult, error) {
	defer s.repo.Lock(userID)()

	sess, ok, err := s.repo.ActiveSession(ctx, userID)
	if err != nil {
		return WorkingResult{}, err
	}
	if !ok {
		return WorkingResult{}, ErrNoSession
	}

	now := s.clock.Now()
	res := WorkingResult{From: sess.Status}
	muts := []dispatch.Mutation{s.update(sess, "LastActivity", entity.FormatTime(now, s.loc()))}
	if sess.Status != entity.SessionActive {
		muts = append(muts, s.update(sess, "Status", string(entity.SessionActive)))
	}
	if sess.Status == entity.SessionBreak {
		res.Returned = unusedBreak(sess, now)
		muts = append(muts,
			s.update(sess, "BreakEndTime", ""),
			s.update(sess, "TotalBreakTime", fmt.Sprint(sess.TotalBreakMinutes-res.Returned)),
		)
	}
	if _, err := s.disp.Apply(ctx, muts...); err != nil {
		return WorkingResult{}, fmt.Errorf("resume session: %w", err)
	}
	return res, nil
}

// unusedBreak is the whole minutes left of a running break.
func unusedBreak(sess entity.Session, now time.Time) int {
	if sess.Status != entity.SessionBreak || !sess.BreakEndTime.After(now) {
		return 0
	}
	n := int(sess.BreakEndTime.Sub(now) / time.Minute)
	if n > sess.TotalBreakMinutes {
		n = sess.TotalBreakMinutes
	}
	return n
}

type StopResult struct {
	Session      entity.Session
	StudyMinutes int
	XP           int
	User         entity.User
	Badge        string
	NewBadge     bool
}

// Stop closes an Active or Break session: it deletes the session row, then
// credits the study time to the ledger and the user.
func (s *Service) Stop(ctx context.Context, userID, username string) (StopResult, error) {
	defer s.repo.Lock(userID)()

	sess, ok, err := s.repo.ActiveSession(ctx, userID)
	if err != nil {
		return StopResult{}, err
	}
	if !ok {
		return StopResult{}, ErrNoSession
	}
	if sess.Status == entity.SessionWarning {
		return StopResult{}, ErrInactive
	}

	now := s.clock.Now()
	elapsed := int(now.Sub(sess.StartTime) / time.Minute)
	breaks := sess.TotalBreakMinutes - unusedBreak(sess, now)
	minutes := max(0, elapsed-breaks)
	xp := minutes * s.pol.XPPerMinute

	u, err := s.repo.EnsureUser(ctx, s.disp, userID, username, now)
	if err != nil {
		return StopResult{}, err
	}
	ledger, err := s.repo.Ledger(ctx, userID)
	if err != nil {
		return StopResult{}, err
	}
	aw := s.repo.Award(u, ledger, entity.Activity{
		ID:          s.ids.Activity(),
		UserID:      userID,
		Username:    username,
		Action:      entity.ActionStudySession,
		XPEarned:    xp,
		Duration:    minutes,
		Description: fmt.Sprintf("Study session: %d min, %d min break", minutes, breaks),
		Timestamp:   now,
	}, now)
	// The session row goes first: a batch that fails part way must not
	// leave the session open behind a credited ledger row.
	muts := append([]dispatch.Mutation{dispatch.Delete(store.Sessions, sess.Ref, userID)}, aw.Mutations...)
	if _, err := s.disp.Apply(ctx, muts...); err != nil {
		return StopResult{}, fmt.Errorf("stop session: %w", err)
	}

	res := StopResult{Session: sess, StudyMinutes: minutes, XP: xp, User: aw.User}
	res.Badge, res.NewBadge = aw.Unlocked()
	s.logger.Infow("session stopped", "user", userID, "session", sess.ID, "minutes", minutes, "xp", xp)
	return res, nil
}
