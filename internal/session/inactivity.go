package session

import (
	"context"
	"fmt"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/notify"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// Transition is what the inactivity monitor should do with a session.
type Transition int

const (
	Keep Transition = iota
	Warn
	Penalize
)

func (t Transition) String() string {
	switch t {
	case Warn:
		return "warn"
	case Penalize:
		return "penalize"
	default:
		return "keep"
	}
}

// Evaluate decides the monitor transition of sess at now. Active and Break
// sessions idle past the warning threshold are warned; a Warning session
// idle past threshold plus grace is penalised. A session is never
// penalised without first being warned.
func (s *Service) Evaluate(sess entity.Session, now time.Time) Transition {
	idle := now.Sub(sess.IdleSince())
	switch sess.Status {
	case entity.SessionWarning:
		if idle > s.pol.WarningThreshold+s.pol.GracePeriod {
			return Penalize
		}
	case entity.SessionActive, entity.SessionBreak:
		if idle > s.pol.WarningThreshold {
			return Warn
		}
	}
	return Keep
}

// recheck re-reads the user's session under the lock and confirms it is
// still sessionID and still due for want.
func (s *Service) recheck(ctx context.Context, userID, sessionID string, want Transition) (entity.Session, bool, error) {
	sess, ok, err := s.repo.ActiveSession(ctx, userID)
	if err != nil || !ok || sess.ID != sessionID {
		return entity.Session{}, false, err
	}
	if s.Evaluate(sess, s.clock.Now()) != want {
		return entity.Session{}, false, nil
	}
	return sess, true, nil
}

// WarnInactive moves an idle session to Warning and tells the user. The
// write runs on the dispatcher's worker pool; it reports whether the
// session was warned.
func (s *Service) WarnInactive(ctx context.Context, userID, sessionID string) (bool, error) {
	defer s.repo.Lock(userID)()

	sess, ok, err := s.recheck(ctx, userID, sessionID, Warn)
	if err != nil || !ok {
		return false, err
	}
	fut := s.disp.Submit(s.update(sess, "Status", string(entity.SessionWarning)))
	if _, err := fut.Wait(ctx); err != nil {
		return false, fmt.Errorf("warn session %s: %w", sessionID, err)
	}

	msg := fmt.Sprintf("⚠️ %s, you've been inactive for over %s. Send `!working` within %s or lose %d XP.",
		sess.Username, s.pol.WarningThreshold, s.pol.GracePeriod, s.pol.PenaltyXP)
	s.notify(ctx, sess, notify.KindWarning, msg)
	s.logger.Infow("session flagged inactive", "user", userID, "session", sessionID, "idleSince", sess.IdleSince())
	return true, nil
}

type PenaltyResult struct {
	Session entity.Session
	// Deducted is the XP actually removed after floor clamping.
	Deducted int
	User     entity.User
}

// PenalizeInactive ends a Warning session that stayed idle through the
// grace period: it records an InactivityPenalty, deducts XP down to the
// configured floor and deletes the session row. The writes run on the
// dispatcher's worker pool.
func (s *Service) PenalizeInactive(ctx context.Context, userID, sessionID string) (PenaltyResult, bool, error) {
	defer s.repo.Lock(userID)()

	sess, ok, err := s.recheck(ctx, userID, sessionID, Penalize)
	if err != nil || !ok {
		return PenaltyResult{}, false, err
	}
	now := s.clock.Now()
	u, found, err := s.repo.User(ctx, userID)
	if err != nil {
		return PenaltyResult{}, false, err
	}
	if !found {
		if u, err = s.repo.EnsureUser(ctx, s.disp, userID, sess.Username, now); err != nil {
			return PenaltyResult{}, false, err
		}
	}
	ledger, err := s.repo.Ledger(ctx, userID)
	if err != nil {
		return PenaltyResult{}, false, err
	}
	idle := now.Sub(sess.IdleSince()).Truncate(time.Minute)
	aw := s.repo.Award(u, ledger, entity.Activity{
		ID:          s.ids.Activity(),
		UserID:      userID,
		Username:    sess.Username,
		Action:      entity.ActionInactivityPenalty,
		XPEarned:    -s.pol.PenaltyXP,
		Duration:    int(idle / time.Minute),
		Description: fmt.Sprintf("Inactive for %s", idle),
		Timestamp:   now,
	}, now)
	muts := append([]dispatch.Mutation{dispatch.Delete(store.Sessions, sess.Ref, userID)}, aw.Mutations...)
	if _, err := s.disp.Submit(muts...).Wait(ctx); err != nil {
		return PenaltyResult{}, false, fmt.Errorf("penalize session %s: %w", sessionID, err)
	}

	res := PenaltyResult{Session: sess, Deducted: -aw.XPDelta(), User: aw.User}
	msg := fmt.Sprintf("⛔ %s, your session was ended for inactivity and you lost %d XP. Use `!start` to begin again.",
		sess.Username, res.Deducted)
	s.notify(ctx, sess, notify.KindPenalty, msg)
	s.logger.Infow("session penalised", "user", userID, "session", sessionID, "deducted", res.Deducted, "xp", aw.User.TotalXP)
	return res, true, nil
}

func (s *Service) notify(ctx context.Context, sess entity.Session, kind notify.Kind, msg string) {
	if s.notifier == nil {
		return
	}
	n := notify.Notification{UserID: sess.UserID, Username: sess.Username, Kind: kind, Message: msg}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warnw("notification failed", "user", sess.UserID, "kind", kind, "err", err)
	}
}
