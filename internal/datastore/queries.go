package datastore

import (
	"sort"
	"strings"
	"time"
)

// Activities returns all activities, newest first.
func (d *DataStore) Activities() []Activity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Activity, len(d.activities))
	for i, a := range d.activities {
		out[i] = a.clone()
	}
	return out
}

// GetActivityByID returns the cached activity id.
func (d *DataStore) GetActivityByID(id string) (Activity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.activities {
		if a.ID == id {
			return a.clone(), true
		}
	}
	return Activity{}, false
}

// GetActivities returns the activities matching f, newest first.
func (d *DataStore) GetActivities(f Filter) []Activity {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Activity
	for _, a := range d.activities {
		if f.Tag != "" && !a.HasTag(f.Tag) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(a.Task), query) {
			continue
		}
		if !f.From.IsZero() && a.From < f.From.UnixMilli() {
			continue
		}
		if !f.To.IsZero() && a.From >= f.To.UnixMilli() {
			continue
		}
		if f.Running != nil && a.Running() != *f.Running {
			continue
		}
		out = append(out, a.clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// RunningActivities returns every activity without an end time.
func (d *DataStore) RunningActivities() []Activity {
	return d.GetActivities(Filter{Running: boolPtr(true)})
}

// GetCurrentActivity returns the most recently started running activity.
func (d *DataStore) GetCurrentActivity() (Activity, bool) {
	running := d.GetActivities(Filter{Running: boolPtr(true), Limit: 1})
	if len(running) == 0 {
		return Activity{}, false
	}
	return running[0], true
}

// Settings returns this device's settings, or the defaults before the
// settings document has been loaded.
func (d *DataStore) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// UniqueTags returns every tag in use, sorted.
func (d *DataStore) UniqueTags() []string {
	d.mu.RLock()
	seen := make(map[string]struct{})
	for _, a := range d.activities {
		for _, t := range a.Tags {
			seen[t] = struct{}{}
		}
	}
	d.mu.RUnlock()

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// TodayStats totals the part of every activity that falls on now's day.
func (d *DataStore) TodayStats(now time.Time) TodayStats {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	settings := d.Settings()
	stats := TodayStats{Goal: time.Duration(settings.DailyGoalMinutes) * time.Minute}

	for _, a := range d.Activities() {
		start := a.Start()
		end := now
		if e := a.End(); e != nil {
			end = *e
		}
		if start.Before(dayEnd) && !start.Before(dayStart) {
			stats.Count++
		}
		stats.Total += overlap(start, end, dayStart, dayEnd)
		if a.Running() && stats.Running == nil {
			running := a
			stats.Running = &running
		}
	}
	return stats
}

// DailySummary totals activities started in [from, to) per day and primary
// tag, in from's location. Running activities count up to now.
func (d *DataStore) DailySummary(from, to, now time.Time) []DaySummary {
	loc := from.Location()
	type key struct{ date, tag string }
	totals := make(map[key]*DaySummary)

	for _, a := range d.GetActivities(Filter{From: from, To: to}) {
		k := key{date: a.Start().In(loc).Format("2006-01-02"), tag: a.PrimaryTag()}
		s, ok := totals[k]
		if !ok {
			s = &DaySummary{Date: k.date, Tag: k.tag}
			totals[k] = s
		}
		s.TotalSeconds += int64(a.Duration(now) / time.Second)
		s.Count++
	}

	out := make([]DaySummary, 0, len(totals))
	for _, s := range totals {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

func overlap(start, end, lo, hi time.Time) time.Duration {
	if start.Before(lo) {
		start = lo
	}
	if end.After(hi) {
		end = hi
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func boolPtr(b bool) *bool { return &b }
