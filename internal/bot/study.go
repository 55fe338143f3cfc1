package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/auritra-bit/sunnie-bot-V2/internal/derive"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/reminder"
	"github.com/auritra-bit/sunnie-bot-V2/internal/session"
)

// attend records today's attendance once per calendar day.
func (b *Bot) attend(ctx context.Context, cmd Command) (string, error) {
	defer b.repo.Lock(cmd.UserID)()

	now := b.clock.Now()
	u, err := b.repo.EnsureUser(ctx, b.disp, cmd.UserID, cmd.Username, now)
	if err != nil {
		return "", err
	}
	ledger, err := b.repo.Ledger(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if derive.AttendedOn(ledger, now, b.repo.Location()) {
		return fmt.Sprintf("⚠️ %s, your attendance for today is already recorded! ✅", cmd.Username), nil
	}
	aw := b.repo.Award(u, ledger, entity.Activity{
		ID:          b.ids.Activity(),
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Action:      entity.ActionAttendance,
		XPEarned:    b.pol.AttendXP,
		Description: "Daily attendance",
		Timestamp:   now,
	}, now)
	if _, err := b.disp.Apply(ctx, aw.Mutations...); err != nil {
		return "", fmt.Errorf("record attendance: %w", err)
	}
	return fmt.Sprintf("✅ %s, your attendance is logged and you earned %d XP! 🔥 Daily Streak: %d days.",
		cmd.Username, b.pol.AttendXP, aw.User.CurrentStreak), nil
}

func (b *Bot) start(ctx context.Context, cmd Command) (string, error) {
	if _, err := b.sessions.Start(ctx, cmd.UserID, cmd.Username); err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			return fmt.Sprintf("⚠️ %s, you already started a session. Use `!stop` before starting a new one.", cmd.Username), nil
		}
		return "", err
	}
	return fmt.Sprintf("⏱️ %s, your study session has started! Use `!stop` to end it. Happy studying 📚", cmd.Username), nil
}

func (b *Bot) stop(ctx context.Context, cmd Command) (string, error) {
	res, err := b.sessions.Stop(ctx, cmd.UserID, cmd.Username)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return fmt.Sprintf("⚠️ %s, you didn't start any session. Use `!start` to begin.", cmd.Username), nil
	case errors.Is(err, session.ErrInactive):
		return fmt.Sprintf("⚠️ %s, your session was flagged inactive. Send `!working` first, then `!stop`.", cmd.Username), nil
	case err != nil:
		return "", err
	}
	msg := fmt.Sprintf("👩🏻‍💻📓✍🏻 %s, you studied for %d minutes and earned %d XP.", cmd.Username, res.StudyMinutes, res.XP)
	if res.NewBadge {
		msg += fmt.Sprintf(" 🎖 %s, you unlocked a badge: %s! Keep it up!", cmd.Username, res.Badge)
	}
	return msg, nil
}

func (b *Bot) working(ctx context.Context, cmd Command) (string, error) {
	res, err := b.sessions.Working(ctx, cmd.UserID)
	if errors.Is(err, session.ErrNoSession) {
		return fmt.Sprintf("⚠️ %s, you have no running session. Use `!start` to begin.", cmd.Username), nil
	}
	if err != nil {
		return "", err
	}
	switch res.From {
	case entity.SessionBreak:
		if res.Returned > 0 {
			return fmt.Sprintf("💪 Welcome back, %s! Break ended early, %d unused minutes go back to your study time.", cmd.Username, res.Returned), nil
		}
		return fmt.Sprintf("💪 Welcome back, %s! Your break is over and the session is running again.", cmd.Username), nil
	case entity.SessionWarning:
		return fmt.Sprintf("👍 Thanks %s, inactivity warning cleared. Keep going!", cmd.Username), nil
	}
	return fmt.Sprintf("👍 %s, activity noted. Keep going!", cmd.Username), nil
}

// takeBreak pauses the session; the optional argument is in minutes.
func (b *Bot) takeBreak(ctx context.Context, cmd Command) (string, error) {
	var d time.Duration
	if cmd.Args != "" {
		n, err := strconv.Atoi(strings.Fields(cmd.Args)[0])
		if err != nil || n <= 0 {
			return fmt.Sprintf("⚠️ %s, use `!break` or `!break <minutes>`, like `!break 15`.", cmd.Username), nil
		}
		var ok bool
		if d, ok = reminder.Span(n, time.Minute); !ok {
			// the session clamps it to the break maximum
			d = reminder.MaxLead
		}
	}
	res, err := b.sessions.Break(ctx, cmd.UserID, cmd.Username, d)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return fmt.Sprintf("⚠️ %s, you have no running session. Use `!start` to begin.", cmd.Username), nil
	case errors.Is(err, session.ErrOnBreak):
		return fmt.Sprintf("☕ %s, you're already on a break. Send `!working` when you're back.", cmd.Username), nil
	case errors.Is(err, session.ErrInactive):
		return fmt.Sprintf("⚠️ %s, your session was flagged inactive. Send `!working` first.", cmd.Username), nil
	case err != nil:
		return "", err
	}
	msg := fmt.Sprintf("☕ %s, enjoy your %d minute break! I'll remind you at %s.",
		cmd.Username, res.Minutes, res.EndsAt.In(b.repo.Location()).Format("15:04"))
	if res.Clamped {
		msg += fmt.Sprintf(" (Breaks are capped at %d minutes.)", int(b.pol.MaxBreak/time.Minute))
	}
	return msg, nil
}

func (b *Bot) remind(ctx context.Context, cmd Command) (string, error) {
	if cmd.Args == "" {
		return fmt.Sprintf("⚠️ %s, try `!remind 20 min drink water` or `!remind 7pm revise notes`.", cmd.Username), nil
	}
	now := b.clock.Now().In(b.repo.Location())
	p := reminder.ParsePhrase(cmd.Args, now, b.pol.ReminderFallback)
	if p.Message == "" {
		p.Message = "time to check in!"
	}
	rm, err := b.reminders.Create(ctx, cmd.UserID, cmd.Username, p.Message, p.At, entity.ReminderCustom)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("⏰ %s, I'll remind you at %s: %s", cmd.Username, when(rm.At, now), rm.Message), nil
}

// focus starts a focus block; the optional argument is in minutes.
func (b *Bot) focus(ctx context.Context, cmd Command) (string, error) {
	d := b.pol.FocusDefault
	if cmd.Args != "" {
		n, err := strconv.Atoi(strings.Fields(cmd.Args)[0])
		span, ok := reminder.Span(n, time.Minute)
		if err != nil || !ok {
			return fmt.Sprintf("⚠️ %s, use `!focus` or `!focus <minutes>`, like `!focus 45`.", cmd.Username), nil
		}
		d = span
	}
	now := b.clock.Now()
	minutes := int(d / time.Minute)
	msg := fmt.Sprintf("You focused for %d minutes. Take a breather!", minutes)
	if _, err := b.reminders.Create(ctx, cmd.UserID, cmd.Username, msg, now.Add(d), entity.ReminderFocus); err != nil {
		return "", err
	}
	return fmt.Sprintf("🎯 %s, focus mode on for %d minutes. No distractions, I'll ping you when it's over!", cmd.Username, minutes), nil
}

// when renders at relative to now: a bare clock time today, with the date
// otherwise.
func when(at, now time.Time) string {
	at = at.In(now.Location())
	if at.Year() == now.Year() && at.YearDay() == now.YearDay() {
		return at.Format("15:04")
	}
	return at.Format("Jan 2 15:04")
}
