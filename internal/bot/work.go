package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/auritra-bit/sunnie-bot-V2/internal/dispatch"
	"github.com/auritra-bit/sunnie-bot-V2/internal/entity"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

const (
	completedShown = 3
	plansShown     = 5
)

func (b *Bot) addTask(ctx context.Context, cmd Command) (string, error) {
	if len(strings.Fields(cmd.Args)) < 2 {
		return fmt.Sprintf("⚠️ %s, please provide a task like: !task Physics Chapter 1 or !task Studying Math.", cmd.Username), nil
	}
	defer b.repo.Lock(cmd.UserID)()

	if _, ok, err := b.repo.ActiveTask(ctx, cmd.UserID); err != nil {
		return "", err
	} else if ok {
		return fmt.Sprintf("⚠️ %s, please complete your previous task first. Use `!done` to mark it as completed.", cmd.Username), nil
	}
	t := entity.Task{
		ID:          b.ids.Row(),
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Name:        cmd.Args,
		Status:      entity.TaskActive,
		CreatedDate: b.clock.Now(),
	}
	if _, err := b.disp.Apply(ctx, dispatch.Append(store.Tasks, cmd.UserID, t.Fields(b.repo.Location()))); err != nil {
		return "", fmt.Errorf("add task: %w", err)
	}
	return fmt.Sprintf("✏️ %s, your task '%s' has been added. Study well! Use `!done` to mark it as completed. Use `!remove` to remove it.", cmd.Username, t.Name), nil
}

func (b *Bot) doneTask(ctx context.Context, cmd Command) (string, error) {
	defer b.repo.Lock(cmd.UserID)()

	t, ok, err := b.repo.ActiveTask(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("⚠️ %s, you don't have any active task. Use `!task Your Task` to add one.", cmd.Username), nil
	}
	now := b.clock.Now()
	u, err := b.repo.EnsureUser(ctx, b.disp, cmd.UserID, cmd.Username, now)
	if err != nil {
		return "", err
	}
	ledger, err := b.repo.Ledger(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	aw := b.repo.Award(u, ledger, entity.Activity{
		ID:          b.ids.Activity(),
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Action:      entity.ActionTaskCompleted,
		XPEarned:    b.pol.TaskXP,
		Description: "Task: " + t.Name,
		Timestamp:   now,
	}, now)
	loc := b.repo.Location()
	muts := append(aw.Mutations,
		dispatch.Update(store.Tasks, t.Ref, cmd.UserID, "Status", entity.TaskCompleted),
		dispatch.Update(store.Tasks, t.Ref, cmd.UserID, "CompletedDate", entity.FormatTime(now, loc)),
		dispatch.Update(store.Tasks, t.Ref, cmd.UserID, "XPEarned", fmt.Sprint(b.pol.TaskXP)),
	)
	if _, err := b.disp.Apply(ctx, muts...); err != nil {
		return "", fmt.Errorf("complete task: %w", err)
	}
	return fmt.Sprintf("✅ %s, you completed your task '%s' and earned %d XP! Great job! 💪", cmd.Username, t.Name, b.pol.TaskXP), nil
}

// removeTask marks the active task Removed; the row stays for history.
func (b *Bot) removeTask(ctx context.Context, cmd Command) (string, error) {
	defer b.repo.Lock(cmd.UserID)()

	t, ok, err := b.repo.ActiveTask(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("⚠️ %s, you have no active task to remove. Use `!task Your Task` to add one.", cmd.Username), nil
	}
	if _, err := b.disp.Apply(ctx, dispatch.Update(store.Tasks, t.Ref, cmd.UserID, "Status", entity.TaskRemoved)); err != nil {
		return "", fmt.Errorf("remove task: %w", err)
	}
	return fmt.Sprintf("🗑️ %s, your task '%s' has been removed. Use `!task Your Task` to add a new one.", cmd.Username, t.Name), nil
}

func (b *Bot) pendingTask(ctx context.Context, cmd Command) (string, error) {
	t, ok, err := b.repo.ActiveTask(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("✅ %s, you have no pending tasks! Use `!task Your Task` to add one.", cmd.Username), nil
	}
	return fmt.Sprintf("🕒 %s, your current pending task is: '%s'. Keep going! Use `!done` to mark it as completed. Use `!remove` to remove it.", cmd.Username, t.Name), nil
}

func (b *Bot) completedTasks(ctx context.Context, cmd Command) (string, error) {
	tasks, err := b.repo.Tasks(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	var names []string
	for i := len(tasks) - 1; i >= 0 && len(names) < completedShown; i-- {
		if tasks[i].Status == entity.TaskCompleted {
			names = append(names, tasks[i].Name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("📭 %s, you haven't completed any tasks yet. Use `!task` to add one.", cmd.Username), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ %s, here are your last %d completed tasks:", cmd.Username, len(names))
	for i, n := range names {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, n)
	}
	return sb.String(), nil
}

// goal shows the active goal, or sets one when text is given.
func (b *Bot) goal(ctx context.Context, cmd Command) (string, error) {
	if cmd.Args == "" {
		g, ok, err := b.repo.ActiveGoal(ctx, cmd.UserID)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("🎯 %s, you have no goal yet. Set one with `!goal Finish chapter 5 this week`.", cmd.Username), nil
		}
		return fmt.Sprintf("🎯 %s, your current goal is: '%s'. Use `!complete` when you reach it!", cmd.Username, g.Text), nil
	}
	return b.attended(b.setGoal)(ctx, cmd)
}

func (b *Bot) setGoal(ctx context.Context, cmd Command) (string, error) {
	defer b.repo.Lock(cmd.UserID)()

	if g, ok, err := b.repo.ActiveGoal(ctx, cmd.UserID); err != nil {
		return "", err
	} else if ok {
		return fmt.Sprintf("⚠️ %s, you already have a goal: '%s'. Use `!complete` to finish it first.", cmd.Username, g.Text), nil
	}
	g := entity.Goal{
		ID:          b.ids.Row(),
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Text:        cmd.Args,
		CreatedDate: b.clock.Now(),
		Status:      entity.GoalActive,
	}
	if _, err := b.disp.Apply(ctx, dispatch.Append(store.Goals, cmd.UserID, g.Fields(b.repo.Location()))); err != nil {
		return "", fmt.Errorf("set goal: %w", err)
	}
	return fmt.Sprintf("🎯 %s, your goal '%s' is set! Use `!complete` when you achieve it.", cmd.Username, g.Text), nil
}

func (b *Bot) completeGoal(ctx context.Context, cmd Command) (string, error) {
	defer b.repo.Lock(cmd.UserID)()

	g, ok, err := b.repo.ActiveGoal(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("⚠️ %s, you don't have an active goal. Set one with `!goal Your Goal`.", cmd.Username), nil
	}
	now := b.clock.Now()
	u, err := b.repo.EnsureUser(ctx, b.disp, cmd.UserID, cmd.Username, now)
	if err != nil {
		return "", err
	}
	ledger, err := b.repo.Ledger(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	aw := b.repo.Award(u, ledger, entity.Activity{
		ID:          b.ids.Activity(),
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Action:      entity.ActionGoalCompleted,
		XPEarned:    b.pol.GoalXP,
		Description: "Goal: " + g.Text,
		Timestamp:   now,
	}, now)
	muts := append(aw.Mutations, dispatch.Update(store.Goals, g.Ref, cmd.UserID, "Status", entity.GoalCompleted))
	if _, err := b.disp.Apply(ctx, muts...); err != nil {
		return "", fmt.Errorf("complete goal: %w", err)
	}
	return fmt.Sprintf("🎉 %s, you achieved your goal '%s' and earned %d XP! Amazing work! 🌟", cmd.Username, g.Text, b.pol.GoalXP), nil
}

func (b *Bot) addPlan(ctx context.Context, cmd Command) (string, error) {
	if cmd.Args == "" {
		return fmt.Sprintf("⚠️ %s, tell me your plan like: !plan Revise algebra, then 2 past papers.", cmd.Username), nil
	}
	p := entity.Plan{
		ID:          b.ids.Row(),
		UserID:      cmd.UserID,
		Username:    cmd.Username,
		Text:        cmd.Args,
		CreatedDate: b.clock.Now(),
	}
	if _, err := b.disp.Apply(ctx, dispatch.Append(store.Plans, cmd.UserID, p.Fields(b.repo.Location()))); err != nil {
		return "", fmt.Errorf("add plan: %w", err)
	}
	return fmt.Sprintf("🗓️ %s, your plan is saved: '%s'. Use `!myplans` to see your plans.", cmd.Username, p.Text), nil
}

func (b *Bot) myPlans(ctx context.Context, cmd Command) (string, error) {
	plans, err := b.repo.Plans(ctx, cmd.UserID)
	if err != nil {
		return "", err
	}
	if len(plans) == 0 {
		return fmt.Sprintf("📭 %s, you have no plans yet. Use `!plan Your Plan` to add one.", cmd.Username), nil
	}
	if len(plans) > plansShown {
		plans = plans[len(plans)-plansShown:]
	}
	loc := b.repo.Location()
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓️ %s, your latest plans:", cmd.Username)
	for i := len(plans) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "\n%d. %s (%s)", len(plans)-i, plans[i].Text, plans[i].CreatedDate.In(loc).Format("Jan 2"))
	}
	return sb.String(), nil
}

// report files a report about another user: `!report <user> <reason>`.
func (b *Bot) report(ctx context.Context, cmd Command) (string, error) {
	target, reason, _ := strings.Cut(cmd.Args, " ")
	target = strings.TrimPrefix(strings.TrimSpace(target), "@")
	reason = strings.TrimSpace(reason)
	if target == "" || reason == "" {
		return fmt.Sprintf("⚠️ %s, use `!report <user> <reason>`.", cmd.Username), nil
	}
	r := entity.Report{
		ID:         b.ids.Row(),
		ReporterID: cmd.UserID,
		Reporter:   cmd.Username,
		Target:     target,
		Reason:     reason,
		Timestamp:  b.clock.Now(),
	}
	if _, err := b.disp.Apply(ctx, dispatch.Append(store.Reports, cmd.UserID, r.Fields(b.repo.Location()))); err != nil {
		return "", fmt.Errorf("file report: %w", err)
	}
	b.logger.Infow("user reported", "reporter", cmd.UserID, "target", target, "report", r.ID)
	return fmt.Sprintf("📨 Thanks %s, your report about %s has been sent to the moderators.", cmd.Username, target), nil
}
