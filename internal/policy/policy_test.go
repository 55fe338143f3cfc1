package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsNormalized(t *testing.T) {
	d := Default()
	assert.Equal(t, d, Normalize(d))
	assert.Equal(t, 2, d.XPPerMinute)
	assert.Equal(t, 2*time.Hour, d.WarningThreshold)
	assert.Equal(t, 50*time.Minute, d.ReminderFallback)
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := "attend_xp: 12\nwarning_threshold: 90m\ntimezone: UTC\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := LoadFile(Default(), path)
	require.NoError(t, err)
	assert.Equal(t, 12, p.AttendXP)
	assert.Equal(t, 90*time.Minute, p.WarningThreshold)
	assert.Equal(t, "UTC", p.Timezone)
	// untouched keys keep defaults
	assert.Equal(t, 15, p.TaskXP)
}

func TestFromEnv_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("task_xp: 30\n"), 0o644))
	t.Setenv("POLICY_FILE", path)
	t.Setenv("POLICY_TASK_XP", "40")
	t.Setenv("POLICY_MAX_BREAK", "45m")

	p, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 40, p.TaskXP)
	assert.Equal(t, 45*time.Minute, p.MaxBreak)
}

func TestFromEnv_BadFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("POLICY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	p, err := FromEnv()
	assert.Error(t, err)
	assert.Equal(t, Default(), p)
}

func TestNormalize_RepairsInvalidValues(t *testing.T) {
	p := Default()
	p.PenaltyXP = -5
	p.MaxBreak = 0
	p.DefaultBreak = 3 * time.Hour
	p.LeaderboardSize = 0
	p.Timezone = "Mars/Olympus"

	n := Normalize(p)
	assert.Equal(t, 20, n.PenaltyXP)
	assert.Equal(t, time.Hour, n.MaxBreak)
	assert.Equal(t, time.Hour, n.DefaultBreak)
	assert.Equal(t, 5, n.LeaderboardSize)
	assert.Equal(t, "", n.Timezone)
	assert.Equal(t, time.Local, n.Location())
}

func TestLocation(t *testing.T) {
	p := Default()
	p.Timezone = "UTC"
	assert.Equal(t, time.UTC.String(), p.Location().String())
}
