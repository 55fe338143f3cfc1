// Package app wires the bot's components together. Nothing is global: every
// dependency is built here and handed down explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/admin"
	"github.com/auritra-bit/sunnie-bot-V2/internal/ai"
	"github.com/auritra-bit/sunnie-bot-V2/internal/auth"
	"github.com/auritra-bit/sunnie-bot-V2/internal/bot"
	"github.com/auritra-bit/sunnie-bot-V2/internal/cache"
	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/monitor"
	"github.com/auritra-bit/sunnie-bot-V2/internal/notify"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/internal/reminder"
	"github.com/auritra-bit/sunnie-bot-V2/internal/repo"
	"github.com/auritra-bit/sunnie-bot-V2/internal/router"
	"github.com/auritra-bit/sunnie-bot-V2/internal/session"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/database"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

type Config struct {
	HTTPAddr string
	// StoreRate limits store requests per second; 0 disables the limit.
	StoreRate  float64
	StoreBurst int
	Database   database.Config
	Auth       auth.Config
	AI         ai.Config
	Notify     notify.Config
}

func ConfigFromEnv() Config {
	cfg := Config{
		HTTPAddr:   "0.0.0.0:8431",
		StoreBurst: 10,
		Database:   database.ConfigFromEnv(),
		Auth:       auth.ConfigFromEnv(),
		AI:         ai.ConfigFromEnv(),
		Notify:     notify.ConfigFromEnv(),
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STORE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.StoreRate = f
		}
	}
	if v := os.Getenv("STORE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StoreBurst = n
		}
	}
	return cfg
}

type options struct {
	clock   clockwork.Clock
	adapter store.Adapter
	ids     *utilities.IDs
}

type Option func(*options)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithAdapter skips the configured database and uses a.
func WithAdapter(a store.Adapter) Option { return func(o *options) { o.adapter = a } }

func WithIDs(ids *utilities.IDs) Option { return func(o *options) { o.ids = ids } }

type App struct {
	Config Config
	Policy policy.Policy
	Logger *zap.SugaredLogger
	Clock  clockwork.Clock

	DB         *sqlx.DB
	Cache      *cache.Manager
	Dispatcher *dispatch.Dispatcher
	Repo       *repo.Repo
	Scheduler  *reminder.Scheduler
	Reminders  *reminder.Service
	Sessions   *session.Service
	Monitor    *monitor.Monitor
	Bot        *bot.Bot
	Handler    http.Handler
}

// New builds the application. The caller owns the returned App and must
// Close it.
func New(ctx context.Context, cfg Config, pol policy.Policy, logger *zap.SugaredLogger, opts ...Option) (*App, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.ids == nil {
		o.ids = utilities.NewIDsFromEnv()
	}
	a := &App{Config: cfg, Policy: pol, Logger: logger, Clock: o.clock}

	adapter := o.adapter
	if adapter == nil {
		var err error
		adapter, err = a.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	if cfg.StoreRate > 0 {
		adapter = store.Throttle(adapter, cfg.StoreRate, cfg.StoreBurst)
	}

	a.Cache = cache.NewManager(adapter, a.Clock, logger.Named("cache"), cache.Options{TTL: pol.CacheTTL, MemoTTL: pol.CacheTTL})
	a.Dispatcher = dispatch.New(a.Cache, logger.Named("dispatch"), dispatch.Options{})
	a.Repo = repo.New(a.Cache, a.Cache.Memo(), pol, logger.Named("repo"))

	notifier := notify.New(cfg.Notify, logger.Named("notify"))
	a.Scheduler = reminder.NewScheduler(a.Clock, pol.SchedulerPoll, logger.Named("scheduler"))
	a.Reminders = reminder.NewService(a.Repo, a.Dispatcher, a.Scheduler, notifier, a.Clock, o.ids, pol.ReminderRetention, logger.Named("reminder"))
	a.Sessions = session.NewService(a.Repo, a.Dispatcher, a.Reminders, notifier, a.Clock, o.ids, pol, logger.Named("session"))
	a.Monitor = monitor.New(a.Sessions, a.Repo, a.Reminders, a.Clock, pol, logger.Named("monitor"))
	a.Bot = bot.New(bot.Deps{
		Repo:       a.Repo,
		Dispatcher: a.Dispatcher,
		Sessions:   a.Sessions,
		Reminders:  a.Reminders,
		AI:         ai.New(cfg.AI, logger.Named("ai")),
		Clock:      a.Clock,
		IDs:        o.ids,
		Policy:     pol,
		Logger:     logger.Named("bot"),
	})

	tokens := auth.NewTokenVerifier(cfg.Auth)
	a.Handler = router.RegisterRoutes(logger.Named("http"), router.Routes{
		Bot:    bot.NewHandler(a.Bot, logger.Named("bot")),
		Admin:  admin.NewHandler(auth.NewAdminKey(cfg.Auth), tokens, a.Cache, a.Reminders, a, logger.Named("admin")),
		Tokens: tokens,
	})
	if tokens == nil {
		logger.Warnw("TRANSPORT_JWT_SECRET not set; command routes are unauthenticated")
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Adapter, error) {
	if a.Config.Database.Driver == database.DriverMemory {
		a.Logger.Infow("using in-memory store; data is lost on exit")
		return store.NewMemoryAdapter(), nil
	}
	db, err := database.Connect(a.Config.Database)
	if err != nil {
		return nil, err
	}
	sa := store.NewSQLAdapter(db)
	if err := sa.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a.DB = db
	a.Logger.Infow("store connected", "driver", a.Config.Database.Driver)
	return sa, nil
}

// Run starts the background loops and blocks until ctx is done. Pending
// reminders are rescheduled first.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Reminders.Restore(ctx); err != nil {
		a.Logger.Warnw("restoring reminders failed", "err", err)
	}
	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context) error{
		"scheduler": a.Scheduler.Run,
		"monitor":   a.Monitor.Run,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Errorw("background loop exited", "loop", name, "err", err)
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}

// Reconcile rebuilds one user's row from the ledger.
func (a *App) Reconcile(ctx context.Context, userID string) (bool, error) {
	return a.Repo.Reconcile(ctx, a.Dispatcher, userID, a.Clock.Now())
}

// ReconcileAll rebuilds every user row and returns how many changed.
func (a *App) ReconcileAll(ctx context.Context) (int, error) {
	users, err := a.Repo.Users(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range users {
		changed, err := a.Reconcile(ctx, u.ID)
		if err != nil {
			return n, fmt.Errorf("reconcile %s: %w", u.ID, err)
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// Close drains queued writes and closes the database.
func (a *App) Close(ctx context.Context) error {
	err := a.Dispatcher.Close(ctx)
	if a.DB != nil {
		if cerr := a.DB.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// DrainTimeout bounds Close during shutdown.
const DrainTimeout = 10 * time.Second
