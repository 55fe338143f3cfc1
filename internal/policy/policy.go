package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the gameplay and timing knobs of the bot.
type Policy struct {
	AttendXP    int `yaml:"attend_xp"`
	XPPerMinute int `yaml:"xp_per_minute"`
	TaskXP      int `yaml:"task_xp"`
	GoalXP      int `yaml:"goal_xp"`
	PenaltyXP   int `yaml:"penalty_xp"`
	// XPFloor is the lowest TotalXP a penalty can push a user to.
	XPFloor int `yaml:"xp_floor"`

	WarningThreshold time.Duration `yaml:"warning_threshold"`
	GracePeriod      time.Duration `yaml:"grace_period"`
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	MonitorCooldown  time.Duration `yaml:"monitor_cooldown"`
	SchedulerPoll    time.Duration `yaml:"scheduler_poll"`

	DefaultBreak      time.Duration `yaml:"default_break"`
	MaxBreak          time.Duration `yaml:"max_break"`
	FocusDefault      time.Duration `yaml:"focus_default"`
	ReminderFallback  time.Duration `yaml:"reminder_fallback"`
	ReminderRetention time.Duration `yaml:"reminder_retention"`

	CacheTTL        time.Duration `yaml:"cache_ttl"`
	LeaderboardSize int           `yaml:"leaderboard_size"`

	// Timezone decides where calendar days start for attendance, streaks
	// and the monthly leaderboard. Empty means the server's local zone.
	Timezone string `yaml:"timezone"`
}

// Default returns the built-in policy.
func Default() Policy {
	return Policy{
		AttendXP:          10,
		XPPerMinute:       2,
		TaskXP:            15,
		GoalXP:            25,
		PenaltyXP:         20,
		XPFloor:           0,
		WarningThreshold:  2 * time.Hour,
		GracePeriod:       30 * time.Minute,
		MonitorInterval:   time.Minute,
		MonitorCooldown:   30 * time.Second,
		SchedulerPoll:     15 * time.Second,
		DefaultBreak:      10 * time.Minute,
		MaxBreak:          time.Hour,
		FocusDefault:      25 * time.Minute,
		ReminderFallback:  50 * time.Minute,
		ReminderRetention: 7 * 24 * time.Hour,
		CacheTTL:          30 * time.Second,
		LeaderboardSize:   5,
	}
}

// LoadFile overlays the YAML document at path onto p.
func LoadFile(p Policy, path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy: %w", err)
	}
	return p, nil
}

// FromEnv builds the policy from defaults, then POLICY_FILE, then
// POLICY_* variables.
func FromEnv() (Policy, error) {
	p := Default()
	if path := strings.TrimSpace(os.Getenv("POLICY_FILE")); path != "" {
		var err error
		if p, err = LoadFile(p, path); err != nil {
			return Normalize(Default()), err
		}
	}
	envInt(&p.AttendXP, "POLICY_ATTEND_XP")
	envInt(&p.XPPerMinute, "POLICY_XP_PER_MINUTE")
	envInt(&p.TaskXP, "POLICY_TASK_XP")
	envInt(&p.GoalXP, "POLICY_GOAL_XP")
	envInt(&p.PenaltyXP, "POLICY_PENALTY_XP")
	envInt(&p.XPFloor, "POLICY_XP_FLOOR")
	envInt(&p.LeaderboardSize, "POLICY_LEADERBOARD_SIZE")
	envDuration(&p.WarningThreshold, "POLICY_WARNING_THRESHOLD")
	envDuration(&p.GracePeriod, "POLICY_GRACE_PERIOD")
	envDuration(&p.MonitorInterval, "POLICY_MONITOR_INTERVAL")
	envDuration(&p.MonitorCooldown, "POLICY_MONITOR_COOLDOWN")
	envDuration(&p.SchedulerPoll, "POLICY_SCHEDULER_POLL")
	envDuration(&p.DefaultBreak, "POLICY_DEFAULT_BREAK")
	envDuration(&p.MaxBreak, "POLICY_MAX_BREAK")
	envDuration(&p.FocusDefault, "POLICY_FOCUS_DEFAULT")
	envDuration(&p.ReminderFallback, "POLICY_REMINDER_FALLBACK")
	envDuration(&p.ReminderRetention, "POLICY_REMINDER_RETENTION")
	envDuration(&p.CacheTTL, "POLICY_CACHE_TTL")
	if v, ok := os.LookupEnv("POLICY_TIMEZONE"); ok {
		p.Timezone = v
	}
	return Normalize(p), nil
}

func envInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Normalize replaces out-of-range values with defaults.
func Normalize(p Policy) Policy {
	d := Default()
	nonNeg := func(v *int, def int) {
		if *v < 0 {
			*v = def
		}
	}
	positive := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	nonNeg(&p.AttendXP, d.AttendXP)
	nonNeg(&p.XPPerMinute, d.XPPerMinute)
	nonNeg(&p.TaskXP, d.TaskXP)
	nonNeg(&p.GoalXP, d.GoalXP)
	nonNeg(&p.PenaltyXP, d.PenaltyXP)
	if p.LeaderboardSize <= 0 {
		p.LeaderboardSize = d.LeaderboardSize
	}
	positive(&p.WarningThreshold, d.WarningThreshold)
	positive(&p.GracePeriod, d.GracePeriod)
	positive(&p.MonitorInterval, d.MonitorInterval)
	if p.MonitorCooldown < 0 {
		p.MonitorCooldown = d.MonitorCooldown
	}
	positive(&p.SchedulerPoll, d.SchedulerPoll)
	positive(&p.DefaultBreak, d.DefaultBreak)
	positive(&p.MaxBreak, d.MaxBreak)
	if p.DefaultBreak > p.MaxBreak {
		p.DefaultBreak = p.MaxBreak
	}
	positive(&p.FocusDefault, d.FocusDefault)
	positive(&p.ReminderFallback, d.ReminderFallback)
	positive(&p.ReminderRetention, d.ReminderRetention)
	positive(&p.CacheTTL, d.CacheTTL)
	p.Timezone = strings.TrimSpace(p.Timezone)
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			p.Timezone = ""
		}
	}
	return p
}

// Location resolves Timezone, falling back to time.Local.
func (p Policy) Location() *time.Location {
	if p.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
