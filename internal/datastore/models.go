package datastore

import (
	"slices"
	"time"
)

// Document types stored in the vault.
const (
	TypeActivity = "activity"
	TypeSettings = "settings"
)

// Activity is one tracked span of work. Times are unix milliseconds; a nil
// To means the activity is still running.
type Activity struct {
	ID       string   `json:"-"`
	Rev      string   `json:"-"`
	Task     string   `json:"task"`
	Tags     []string `json:"tags"`
	From     int64    `json:"from"`
	To       *int64   `json:"to"`
	Timezone string   `json:"timezone,omitempty"`
}

// Running reports whether the activity has no end time.
func (a Activity) Running() bool { return a.To == nil }

// Start returns From as a time.
func (a Activity) Start() time.Time { return time.UnixMilli(a.From) }

// End returns To as a time, or nil while running.
func (a Activity) End() *time.Time {
	if a.To == nil {
		return nil
	}
	t := time.UnixMilli(*a.To)
	return &t
}

// Duration is the elapsed time of the activity, measured up to now while it
// runs. Inconsistent data (end before start) yields zero.
func (a Activity) Duration(now time.Time) time.Duration {
	end := now.UnixMilli()
	if a.To != nil {
		end = *a.To
	}
	if end < a.From {
		return 0
	}
	return time.Duration(end-a.From) * time.Millisecond
}

// HasTag reports whether tag is one of the activity's tags.
func (a Activity) HasTag(tag string) bool { return slices.Contains(a.Tags, tag) }

// PrimaryTag is the first tag, used to group reports.
func (a Activity) PrimaryTag() string {
	if len(a.Tags) == 0 {
		return "untagged"
	}
	return a.Tags[0]
}

func (a Activity) clone() Activity {
	a.Tags = slices.Clone(a.Tags)
	if a.To != nil {
		to := *a.To
		a.To = &to
	}
	return a
}

// Patch changes selected fields of an activity. Nil fields are left alone.
type Patch struct {
	Task     *string
	Tags     *[]string
	From     *int64
	To       *int64
	ClearTo  bool
	Timezone *string
}

func (p Patch) apply(a Activity) Activity {
	if p.Task != nil {
		a.Task = *p.Task
	}
	if p.Tags != nil {
		a.Tags = slices.Clone(*p.Tags)
	}
	if p.From != nil {
		a.From = *p.From
	}
	if p.To != nil {
		to := *p.To
		a.To = &to
	}
	if p.ClearTo {
		a.To = nil
	}
	if p.Timezone != nil {
		a.Timezone = *p.Timezone
	}
	return a
}

// Filter selects activities. Zero fields match everything.
type Filter struct {
	Tag   string
	Query string
	// From and To bound the start time, From inclusive and To exclusive.
	From    time.Time
	To      time.Time
	Running *bool
	Limit   int
}

// SyncMode selects how settings configure replication.
type SyncMode string

const (
	SyncDisabled SyncMode = "disabled"
	SyncRemote   SyncMode = "remote"
)

// Settings is the per-device settings document.
type Settings struct {
	ID               string   `json:"-"`
	Rev              string   `json:"-"`
	SyncMode         SyncMode `json:"sync_mode"`
	RemoteURL        string   `json:"remote_url,omitempty"`
	RemoteLive       bool     `json:"remote_live"`
	RemoteRetry      bool     `json:"remote_retry"`
	Theme            string   `json:"theme"`
	DailyGoalMinutes int      `json:"daily_goal_minutes"`
	WeekStart        string   `json:"week_start"`
}

// SettingsID is the settings document id of a device.
func SettingsID(deviceID string) string { return "settings-" + deviceID }

// DefaultSettings returns the settings a device starts with.
func DefaultSettings(deviceID string) Settings {
	return Settings{
		ID:               SettingsID(deviceID),
		SyncMode:         SyncDisabled,
		RemoteLive:       true,
		RemoteRetry:      true,
		Theme:            "dark",
		DailyGoalMinutes: 480,
		WeekStart:        "monday",
	}
}

// withDefaults fills fields an older or partial document left empty.
func (s Settings) withDefaults(deviceID string) Settings {
	d := DefaultSettings(deviceID)
	if s.SyncMode == "" {
		s.SyncMode = d.SyncMode
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.DailyGoalMinutes <= 0 {
		s.DailyGoalMinutes = d.DailyGoalMinutes
	}
	if s.WeekStart == "" {
		s.WeekStart = d.WeekStart
	}
	return s
}

// SettingsPatch changes selected settings. Nil fields are left alone.
type SettingsPatch struct {
	SyncMode         *SyncMode
	RemoteURL        *string
	RemoteLive       *bool
	RemoteRetry      *bool
	Theme            *string
	DailyGoalMinutes *int
	WeekStart        *string
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.SyncMode != nil {
		s.SyncMode = *p.SyncMode
	}
	if p.RemoteURL != nil {
		s.RemoteURL = *p.RemoteURL
	}
	if p.RemoteLive != nil {
		s.RemoteLive = *p.RemoteLive
	}
	if p.RemoteRetry != nil {
		s.RemoteRetry = *p.RemoteRetry
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.DailyGoalMinutes != nil {
		s.DailyGoalMinutes = *p.DailyGoalMinutes
	}
	if p.WeekStart != nil {
		s.WeekStart = *p.WeekStart
	}
	return s
}

// DaySummary is the time spent on one tag on one day.
type DaySummary struct {
	Date         string
	Tag          string
	TotalSeconds int64
	Count        int
}

// TodayStats summarizes the current day.
type TodayStats struct {
	Total   time.Duration
	Count   int
	Goal    time.Duration
	Running *Activity
}

// GoalProgress is Total/Goal clamped to [0, 1].
func (t TodayStats) GoalProgress() float64 {
	if t.Goal <= 0 {
		return 0
	}
	p := float64(t.Total) / float64(t.Goal)
	if p > 1 {
		return 1
	}
	return p
}
