// Package bot turns decoded chat commands into replies. Every command
// returns a single human-readable string; errors never reach the transport.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/auritra-bit/sunnie-bot-V2/internal/derive"
	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/policy"
	"github.com/auritra-bit/sunnie-bot-V2/internal/reminder"
	"github.com/auritra-bit/sunnie-bot-V2/internal/repo"
	"github.com/auritra-bit/sunnie-bot-V2/internal/session"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
	"github.com/auritra-bit/sunnie-bot-V2/pkg/utilities"
)

// Command is one decoded chat command.
type Command struct {
	Name     string
	Args     string
	UserID   string
	Username string
}

// Answerer produces the reply to a free-form question.
type Answerer interface {
	Answer(ctx context.Context, prompt string) string
}

type Deps struct {
	Repo       *repo.Repo
	Dispatcher repo.Writer
	Sessions   *session.Service
	Reminders  *reminder.Service
	AI         Answerer
	Clock      clockwork.Clock
	IDs        *utilities.IDs
	Policy     policy.Policy
	Logger     *zap.SugaredLogger
}

type handler func(ctx context.Context, cmd Command) (string, error)

type route struct {
	run handler
	// anonymous commands work without a user id.
	anonymous bool
}

type Bot struct {
	repo      *repo.Repo
	disp      repo.Writer
	sessions  *session.Service
	reminders *reminder.Service
	ai        Answerer
	clock     clockwork.Clock
	ids       *utilities.IDs
	pol       policy.Policy
	logger    *zap.SugaredLogger
	routes    map[string]route
}

func New(d Deps) *Bot {
	b := &Bot{
		repo:      d.Repo,
		disp:      d.Dispatcher,
		sessions:  d.Sessions,
		reminders: d.Reminders,
		ai:        d.AI,
		clock:     d.Clock,
		ids:       d.IDs,
		pol:       d.Policy,
		logger:    d.Logger,
	}
	b.routes = map[string]route{
		"attend":    {run: b.attend},
		"start":     {run: b.attended(b.start)},
		"stop":      {run: b.stop},
		"working":   {run: b.working},
		"break":     {run: b.takeBreak},
		"remind":    {run: b.remind},
		"focus":     {run: b.attended(b.focus)},
		"task":      {run: b.attended(b.addTask)},
		"done":      {run: b.doneTask},
		"remove":    {run: b.removeTask},
		"pending":   {run: b.pendingTask},
		"comtask":   {run: b.completedTasks},
		"goal":      {run: b.goal},
		"complete":  {run: b.completeGoal},
		"summary":   {run: b.summary},
		"rank":      {run: b.rank},
		"top":       {run: b.leaderboard(derive.AllTime), anonymous: true},
		"weeklytop": {run: b.leaderboard(derive.Weekly), anonymous: true},
		"monthtop":  {run: b.leaderboard(derive.Monthly), anonymous: true},
		"streak":    {run: b.streak},
		"badges":    {run: b.badges},
		"plan":      {run: b.attended(b.addPlan)},
		"myplans":   {run: b.myPlans},
		"ai":        {run: b.askAI, anonymous: true},
		"report":    {run: b.report},
		"help":      {run: b.help, anonymous: true},
		"ping":      {run: b.ping, anonymous: true},
	}
	return b
}

// Handle runs cmd and returns its reply.
func (b *Bot) Handle(ctx context.Context, cmd Command) (reply string) {
	cmd.Name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cmd.Name), "!"))
	cmd.Args = strings.TrimSpace(cmd.Args)
	cmd.UserID = strings.TrimSpace(cmd.UserID)
	cmd.Username = strings.TrimSpace(cmd.Username)
	if cmd.Username == "" {
		cmd.Username = cmd.UserID
	}

	r, ok := b.routes[cmd.Name]
	if !ok {
		return fmt.Sprintf("❓ Unknown command `!%s`. Send `!help` to see what I can do.", cmd.Name)
	}
	if !r.anonymous && cmd.UserID == "" {
		return "⚠️ I couldn't tell who sent that command. Please try again."
	}

	defer func() {
		if p := recover(); p != nil {
			b.logger.Errorw("command panicked", "command", cmd.Name, "user", cmd.UserID, "panic", p)
			reply = somethingWrong(cmd.Username)
		}
	}()
	out, err := r.run(ctx, cmd)
	if err != nil {
		return b.failure(cmd, err)
	}
	return out
}

// Known reports whether name is a registered command.
func (b *Bot) Known(name string) bool {
	_, ok := b.routes[strings.ToLower(strings.TrimPrefix(name, "!"))]
	return ok
}

func (b *Bot) failure(cmd Command, err error) string {
	switch {
	case errors.Is(err, store.ErrStoreUnavailable),
		errors.Is(err, store.ErrStoreRateLimited),
		errors.Is(err, dispatch.ErrQueueFull),
		errors.Is(err, context.DeadlineExceeded):
		b.logger.Warnw("command failed on the store", "command", cmd.Name, "user", cmd.UserID, "err", err)
		return fmt.Sprintf("⏳ %s, the study tracker is busy right now. Please try again in a minute.", cmd.Username)
	}
	b.logger.Errorw("command failed", "command", cmd.Name, "user", cmd.UserID, "err", err)
	return somethingWrong(cmd.Username)
}

func somethingWrong(username string) string {
	return fmt.Sprintf("⚠️ %s, something went wrong on my side. Please try again later.", username)
}

// attended gates next behind today's attendance.
func (b *Bot) attended(next handler) handler {
	return func(ctx context.Context, cmd Command) (string, error) {
		ok, err := b.attendedToday(ctx, cmd.UserID)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("⚠️ %s, please mark your attendance first with `!attend`.", cmd.Username), nil
		}
		return next(ctx, cmd)
	}
}

func (b *Bot) attendedToday(ctx context.Context, userID string) (bool, error) {
	ledger, err := b.repo.Ledger(ctx, userID)
	if err != nil {
		return false, err
	}
	return derive.AttendedOn(ledger, b.clock.Now(), b.repo.Location()), nil
}
