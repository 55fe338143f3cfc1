package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/auritra-bit/sunnie-bot-V2/internal/derive"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
)

// standing is the user's projection recomputed from the ledger.
func (b *Bot) standing(ctx context.Context, cmd Command) (entity.User, error) {
	u, _, err := b.repo.User(ctx, cmd.UserID)
	if err != nil {
		return entity.User{}, err
	}
	ledger, err := b.repo.Ledger(ctx, cmd.UserID)
	if err != nil {
		return entity.User{}, err
	}
	if u.ID == "" {
		u.ID, u.Username = cmd.UserID, cmd.Username
	}
	return b.repo.Project(u, ledger, b.clock.Now()), nil
}

func (b *Bot) summary(ctx context.Context, cmd Command) (string, error) {
	u, err := b.standing(ctx, cmd)
	if err != nil {
		return "", err
	}
	tasks, err := b.repo.Tasks(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	var done, pending int
	for _, t := range tasks {
		switch t.Status {
		case entity.TaskCompleted:
			done++
		case entity.TaskActive:
			pending++
		}
	}
	reminders, err := b.reminders.Pending(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📊 %s's Summary:\n"+
		"⏱️ Total Study Time: %dh %dm\n"+
		"⚜️ Total XP: %d (%s)\n"+
		"🔥 Streak: %d days\n"+
		"✅ Completed Tasks: %d\n"+
		"🕒 Pending Tasks: %d\n"+
		"⏰ Upcoming Reminders: %d",
		cmd.Username, u.TotalStudyMinutes/60, u.TotalStudyMinutes%60,
		u.TotalXP, u.Rank, u.CurrentStreak, done, pending, len(reminders)), nil
}

func (b *Bot) rank(ctx context.Context, cmd Command) (string, error) {
	u, err := b.standing(ctx, cmd)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("🏅 %s, you have %d XP. Your rank is: %s", cmd.Username, u.TotalXP, u.Rank), nil
}

var boardTitles = map[derive.Window]string{
	derive.AllTime: "🏆 Top %d Learners:",
	derive.Weekly:  "📆 Weekly Top %d Learners:",
	derive.Monthly: "🗓️ Monthly Top %d Learners:",
}

func (b *Bot) leaderboard(w derive.Window) handler {
	return func(ctx context.Context, cmd Command) (string, error) {
		entries, err := b.repo.Leaderboard(ctx, w, b.clock.Now(), b.pol.LeaderboardSize)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return fmt.Sprintf("📭 No XP earned in the %s window yet. Be the first!", w), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, boardTitles[w], b.pol.LeaderboardSize)
		for i, e := range entries {
			fmt.Fprintf(&sb, "\n%d. %s - %d XP", i+1, e.Name, e.XP)
		}
		return sb.String(), nil
	}
}

func (b *Bot) streak(ctx context.Context, cmd Command) (string, error) {
	n, err := b.repo.Streak(ctx, cmd.UserID, b.clock.Now())
	if err != nil {
		return "", err
	}
	if n == 0 {
		return fmt.Sprintf("🌱 %s, no streak yet today. Use `!attend` to start one!", cmd.Username), nil
	}
	return fmt.Sprintf("🔥 %s, your current streak is %d days! Keep it alive!", cmd.Username, n), nil
}

func (b *Bot) badges(ctx context.Context, cmd Command) (string, error) {
	u, err := b.standing(ctx, cmd)
	if err != nil {
		return "", err
	}
	next, hasNext := nextBadge(u.TotalStudyMinutes)
	if len(u.Badges) == 0 {
		return fmt.Sprintf("🎖 %s, no badges yet. Study %d more minutes to unlock %s!",
			cmd.Username, next.Min-u.TotalStudyMinutes, next.Name), nil
	}
	msg := fmt.Sprintf("🎖 %s, your badges: %s.", cmd.Username, strings.Join(u.Badges, ", "))
	if hasNext {
		msg += fmt.Sprintf(" Next: %s in %d minutes.", next.Name, next.Min-u.TotalStudyMinutes)
	}
	return msg, nil
}

func nextBadge(minutes int) (derive.Threshold, bool) {
	for _, t := range derive.BadgeTable {
		if t.Min > minutes {
			return t, true
		}
	}
	return derive.Threshold{}, false
}
