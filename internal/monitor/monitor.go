// Package monitor runs the periodic inactivity scan over open sessions and
// the reminder retention sweep.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/internal/session"
)

// Sessions is the session-side capability the monitor drives.
type Sessions interface {
	Evaluate(sess entity.Session, now time.Time) session.Transition
	WarnInactive(ctx context.Context, userID, sessionID string) (bool, error)
	PenalizeInactive(ctx context.Context, userID, sessionID string) (session.PenaltyResult, bool, error)
}

// Lister returns one open session per user.
type Lister interface {
	Sessions(ctx context.Context) ([]entity.Session, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

const sweepEvery = time.Hour

type Report struct {
	Skipped   bool
	Scanned   int
	Warned    int
	Penalized int
	Failed    int
}

type Monitor struct {
	sessions Sessions
	lister   Lister
	sweeper  Sweeper
	clock    clockwork.Clock
	interval time.Duration
	cooldown time.Duration
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	lastScan  time.Time
	lastSweep time.Time
	penalized map[string]struct{}
}

func New(sessions Sessions, lister Lister, sweeper Sweeper, clock clockwork.Clock, pol policy.Policy, logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		sessions:  sessions,
		lister:    lister,
		sweeper:   sweeper,
		clock:     clock,
		interval:  pol.MonitorInterval,
		cooldown:  pol.MonitorCooldown,
		logger:    logger,
		penalized: make(map[string]struct{}),
	}
}

// Scan makes one pass over the open sessions. A call within the cooldown
// of the previous pass is skipped.
func (m *Monitor) Scan(ctx context.Context) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if !m.lastScan.IsZero() && now.Sub(m.lastScan) < m.cooldown {
		return Report{Skipped: true}, nil
	}
	m.lastScan = now

	open, err := m.lister.Sessions(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list sessions: %w", err)
	}
	rep := Report{Scanned: len(open)}
	live := make(map[string]struct{}, len(open))
	for _, sess := range open {
		live[sess.ID] = struct{}{}
		if _, done := m.penalized[sess.ID]; done {
			continue
		}
		if err := m.apply(ctx, sess, now, &rep); err != nil {
			rep.Failed++
			m.logger.Warnw("inactivity check failed", "user", sess.UserID, "session", sess.ID, "err", err)
		}
	}
	for id := range m.penalized {
		if _, ok := live[id]; !ok {
			delete(m.penalized, id)
		}
	}
	if rep.Warned > 0 || rep.Penalized > 0 {
		m.logger.Infow("inactivity scan", "scanned", rep.Scanned, "warned", rep.Warned, "penalized", rep.Penalized, "failed", rep.Failed)
	}
	return rep, nil
}

func (m *Monitor) apply(ctx context.Context, sess entity.Session, now time.Time, rep *Report) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	switch m.sessions.Evaluate(sess, now) {
	case session.Warn:
		ok, err := m.sessions.WarnInactive(ctx, sess.UserID, sess.ID)
		if err != nil {
			return err
		}
		if ok {
			rep.Warned++
		}
	case session.Penalize:
		_, ok, err := m.sessions.PenalizeInactive(ctx, sess.UserID, sess.ID)
		if err != nil {
			return err
		}
		if ok {
			m.penalized[sess.ID] = struct{}{}
			rep.Penalized++
		}
	}
	return nil
}

// Sweep runs the reminder retention sweep.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	if m.sweeper == nil {
		return 0, nil
	}
	n, err := m.sweeper.Sweep(ctx)
	m.mu.Lock()
	m.lastSweep = m.clock.Now()
	m.mu.Unlock()
	return n, err
}

func (m *Monitor) sweepDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSweep.IsZero() || m.clock.Since(m.lastSweep) >= sweepEvery
}

// Run scans every interval until ctx is done. Failures are logged and the
// loop carries on with the next tick.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Infow("inactivity monitor started", "interval", m.interval, "cooldown", m.cooldown)
	for {
		select {
		case <-ctx.Done():
			m.logger.Infow("inactivity monitor stopped")
			return ctx.Err()
		case <-ticker.Chan():
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("monitor tick panicked", "panic", r)
		}
	}()
	if _, err := m.Scan(ctx); err != nil {
		m.logger.Warnw("inactivity scan failed", "err", err)
	}
	if m.sweepDue() {
		if _, err := m.Sweep(ctx); err != nil {
			m.logger.Warnw("reminder sweep failed", "err", err)
		}
	}
}
