package bot

import (
	"context"
	"fmt"
	"strings"
)

const helpText = `📖 Sunnie-BOT commands:
!attend - mark today's attendance (+XP)
!start / !stop - begin or end a study session
!break [minutes] - take a break (default 10, max 60)
!working - back from a break, or clear an inactivity warning
!focus [minutes] - start a focus block with an end reminder
!remind <time> <text> - e.g. !remind 20 min stretch, !remind 7pm revise
!task <text> / !done / !remove / !pending / !comtask - manage your task
!goal [text] / !complete - set, show or finish your goal
!plan <text> / !myplans - save and list study plans
!summary / !rank / !streak / !badges - your progress
!top / !weeklytop / !monthtop - leaderboards
!ai <question> - ask the study assistant
!report <user> <reason> - report a user to the moderators
!ping - check that I'm awake`

// maxAIReply keeps answers within a chat message.
const maxAIReply = 400

func (b *Bot) help(context.Context, Command) (string, error) { return helpText, nil }

func (b *Bot) ping(context.Context, Command) (string, error) { return "🟢 Sunnie-BOT is alive!", nil }

func (b *Bot) askAI(ctx context.Context, cmd Command) (string, error) {
	if cmd.Args == "" {
		return "🤖 Ask me something, like `!ai how do I stay focused?`", nil
	}
	prompt := fmt.Sprintf("You are Sunnie, a friendly study assistant. Answer briefly and helpfully.\nQuestion: %s\nAnswer:", cmd.Args)
	answer := strings.TrimSpace(b.ai.Answer(ctx, prompt))
	if r := []rune(answer); len(r) > maxAIReply {
		answer = strings.TrimSpace(string(r[:maxAIReply-1])) + "…"
	}
	return answer, nil
}
