package repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/cache"
	"github.com/auritra-bit/sunnie-bot-V2/internal/derive"
	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// projected lists the Users columns that are rewritten together on every
// XP or minute change.
var projected = []string{"TotalXP", "TotalStudyMinutes", "Rank", "Badges", "LastActive"}

// Project derives the Users projection from a ledger. The ledger is the
// source of truth; identity columns are kept from u.
func (r *Repo) Project(u entity.User, ledger []entity.Activity, now time.Time) entity.User {
	next := u
	next.TotalXP = derive.TotalXP(ledger, r.floor)
	next.TotalStudyMinutes = derive.StudyMinutes(ledger)
	next.CurrentStreak = derive.Streak(ledger, now, r.loc)
	next.Rank = derive.Rank(next.TotalXP)
	next.Badges = derive.Badges(next.TotalStudyMinutes)
	next.LastActive = now
	if next.Status == "" {
		next.Status = entity.UserStatusActive
	}
	return next
}

// Changes returns the cell updates that turn prev into next. The projected
// columns are always written; the rest only when they differ.
func (r *Repo) Changes(prev, next entity.User) []dispatch.Mutation {
	pf, nf := prev.Fields(r.loc), next.Fields(r.loc)
	muts := make([]dispatch.Mutation, 0, len(projected)+2)
	for _, col := range projected {
		muts = append(muts, dispatch.Update(store.Users, prev.Ref, prev.ID, col, nf[col]))
	}
	for _, col := range []string{"CurrentStreak", "Username", "Status"} {
		if pf[col] != nf[col] {
			muts = append(muts, dispatch.Update(store.Users, prev.Ref, prev.ID, col, nf[col]))
		}
	}
	return muts
}

// Award is a ledger entry plus the projection updates it implies.
type Award struct {
	Activity  entity.Activity
	Before    entity.User
	User      entity.User
	Mutations []dispatch.Mutation
}

// XPDelta is the change of the user's total, after floor clamping.
func (a Award) XPDelta() int { return a.User.TotalXP - a.Before.TotalXP }

// Unlocked reports the badge newly unlocked by the award, if any.
func (a Award) Unlocked() (string, bool) {
	return derive.NewlyUnlocked(a.Before.TotalStudyMinutes, a.User.TotalStudyMinutes)
}

// Award appends a to the ledger of u and projects the result. ledger is the
// user's current ledger. The returned mutations append first.
func (r *Repo) Award(u entity.User, ledger []entity.Activity, a entity.Activity, now time.Time) Award {
	if a.Month == "" {
		a.Month = entity.MonthKey(a.Timestamp, r.loc)
	}
	if a.Username == "" {
		a.Username = u.Username
	}
	full := make([]entity.Activity, 0, len(ledger)+1)
	full = append(append(full, ledger...), a)
	next := r.Project(u, full, now)

	muts := []dispatch.Mutation{dispatch.Append(store.Activities, u.ID, a.Fields(r.loc))}
	muts = append(muts, r.Changes(u, next)...)
	return Award{Activity: a, Before: u, User: next, Mutations: muts}
}

// EnsureUser returns the user's row, creating it on first interaction. A
// changed display name is written back.
func (r *Repo) EnsureUser(ctx context.Context, w Writer, userID, username string, now time.Time) (entity.User, error) {
	u, ok, err := r.User(ctx, userID)
	if err != nil {
		return entity.User{}, err
	}
	if ok {
		if username != "" && u.Username != username {
			if _, err := w.Apply(ctx, dispatch.Update(store.Users, u.Ref, userID, "Username", username)); err != nil {
				return entity.User{}, err
			}
			u.Username = username
		}
		return u, nil
	}

	u = entity.User{
		ID:         userID,
		Username:   username,
		Rank:       derive.Rank(0),
		JoinDate:   now,
		LastActive: now,
		Status:     entity.UserStatusActive,
	}
	res, err := w.Apply(ctx, dispatch.Append(store.Users, userID, u.Fields(r.loc)))
	if err != nil {
		return entity.User{}, err
	}
	u.Ref = res[0].Record.Ref
	r.logger.Infow("user created", "user", userID, "username", username)
	return u, nil
}

// Reconcile recomputes the user's row from the ledger and writes it back
// when it drifted. It reports whether anything was written. It takes the
// user lock, so callers must not hold it.
func (r *Repo) Reconcile(ctx context.Context, w Writer, userID string, now time.Time) (bool, error) {
	defer r.Lock(userID)()

	u, ok, err := r.User(ctx, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("reconcile %s: %w", userID, store.ErrRecordNotFound)
	}
	ledger, err := r.Ledger(ctx, userID)
	if err != nil {
		return false, err
	}
	next := r.Project(u, ledger, now)
	next.LastActive = u.LastActive
	if next.TotalXP == u.TotalXP && next.TotalStudyMinutes == u.TotalStudyMinutes &&
		next.CurrentStreak == u.CurrentStreak && derive.Consistent(u) {
		return false, nil
	}
	r.logger.Infow("reconciling user projection", "user", userID,
		"xp", u.TotalXP, "ledgerXP", next.TotalXP,
		"minutes", u.TotalStudyMinutes, "ledgerMinutes", next.TotalStudyMinutes)
	if _, err := w.Apply(ctx, r.Changes(u, next)...); err != nil {
		return false, err
	}
	return true, nil
}

// Streak is the user's attendance streak as of now, memoised per day and
// ledger length.
func (r *Repo) Streak(ctx context.Context, userID string, now time.Time) (int, error) {
	ledger, err := r.Ledger(ctx, userID)
	if err != nil {
		return 0, err
	}
	stamp := now.In(r.loc).Format(entity.DateLayout) + "/" + strconv.Itoa(len(ledger))
	return cache.Memoize(r.memo, userID, "streak", stamp, func() (int, error) {
		return derive.Streak(ledger, now, r.loc), nil
	})
}

// Leaderboard ranks the whole ledger inside w. Results are memoised per
// minute and ledger length.
func (r *Repo) Leaderboard(ctx context.Context, w derive.Window, now time.Time, topN int) ([]derive.Entry, error) {
	ledger, err := r.AllActivities(ctx)
	if err != nil {
		return nil, err
	}
	stamp := fmt.Sprintf("%s/%d/%d", now.In(r.loc).Format("2006-01-02T15:04"), len(ledger), topN)
	return cache.Memoize(r.memo, "*", "top-"+w.String(), stamp, func() ([]derive.Entry, error) {
		return derive.Leaderboard(ledger, w, now, r.loc, topN, r.floor), nil
	})
}
