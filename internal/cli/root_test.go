package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auritra-bit/sunnie-bot-V2/internal/app"
	"github.com/auritra-bit/sunnie-bot-V2/internal/store"
)

// newOptions shares one in-memory store across invocations so commands
// see each other's writes.
func newOptions(t *testing.T) *RootOptions {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("POLICY_TIMEZONE", "UTC")
	t.Setenv("TRANSPORT_JWT_SECRET", "")
	t.Setenv("ADMIN_KEY_HASH", "")
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	return &RootOptions{appOptions: []app.Option{
		app.WithAdapter(store.NewMemoryAdapter()),
		app.WithClock(clock),
	}}
}

func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sunnie", cmd.Use)

	for _, name := range []string{"serve", "exec", "reconcile", "leaderboard"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, newOptions(t), "--format", "xml", "leaderboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExec(t *testing.T) {
	opts := newOptions(t)

	out, err := execute(t, opts, "exec", "ping")
	require.NoError(t, err)
	assert.Equal(t, "🟢 Sunnie-BOT is alive!\n", out)

	out, err = execute(t, opts, "exec", "--id", "42", "--user", "ana", "attend")
	require.NoError(t, err)
	assert.Contains(t, out, "ana, your attendance is logged and you earned 10 XP!")

	out, err = execute(t, opts, "exec", "--id", "42", "--user", "ana", "task", "Physics", "chapter", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "'Physics chapter 3' has been added")

	_, err = execute(t, opts, "exec", "dance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestExec_JSON(t *testing.T) {
	out, err := execute(t, newOptions(t), "--format", "json", "exec", "ping")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ping", got["command"])
	assert.Equal(t, "🟢 Sunnie-BOT is alive!", got["reply"])
}

func TestLeaderboard(t *testing.T) {
	opts := newOptions(t)

	out, err := execute(t, opts, "leaderboard")
	require.NoError(t, err)
	assert.Equal(t, "no activity yet\n", out)

	_, err = execute(t, opts, "exec", "--id", "1", "--user", "ana", "attend")
	require.NoError(t, err)
	_, err = execute(t, opts, "exec", "--id", "2", "--user", "ben", "attend")
	require.NoError(t, err)
	_, err = execute(t, opts, "exec", "--id", "2", "--user", "ben", "task", "Read chapter two")
	require.NoError(t, err)
	_, err = execute(t, opts, "exec", "--id", "2", "--user", "ben", "done")
	require.NoError(t, err)

	out, err = execute(t, opts, "leaderboard", "--window", "weekly")
	require.NoError(t, err)
	assert.Equal(t, "1. ben - 25 XP\n2. ana - 10 XP\n", out)

	out, err = execute(t, opts, "--format", "json", "leaderboard", "--top", "1")
	require.NoError(t, err)
	var got struct {
		Window  string `json:"window"`
		Entries []struct {
			Rank int    `json:"rank"`
			Name string `json:"name"`
			XP   int    `json:"xp"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "all-time", got.Window)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "ben", got.Entries[0].Name)
	assert.Equal(t, 25, got.Entries[0].XP)

	_, err = execute(t, opts, "leaderboard", "--window", "daily")
	require.Error(t, err)
}

func TestReconcile(t *testing.T) {
	opts := newOptions(t)
	_, err := execute(t, opts, "exec", "--id", "42", "--user", "ana", "attend")
	require.NoError(t, err)

	out, err := execute(t, opts, "reconcile")
	require.NoError(t, err)
	assert.Equal(t, "0 user(s) repaired\n", out)

	out, err = execute(t, opts, "reconcile", "--id", "42")
	require.NoError(t, err)
	assert.Equal(t, "42: up to date\n", out)

	_, err = execute(t, opts, "reconcile", "--id", "ghost")
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}
