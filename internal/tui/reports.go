package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/sealtrack/internal/datastore"
	"github.com/sadopc/sealtrack/internal/session"
)

type reportMode int

const (
	reportDaily reportMode = iota
	reportWeekly
)

type reportsModel struct {
	manager *session.Manager
	width   int
	height  int

	mode      reportMode
	summaries []datastore.DaySummary
	weekStart string
	offset    int // periods back from the current one

	chart barchart.Model
}

func newReportsModel(m *session.Manager) reportsModel {
	return reportsModel{
		manager:   m,
		weekStart: "monday",
		chart:     barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	summaries []datastore.DaySummary
	weekStart string
}

func (r reportsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ds, err := r.manager.DataStore()
		if err != nil {
			return nil
		}
		now := time.Now()
		r.weekStart = ds.Settings().WeekStart
		from, to := r.dateRange(now)
		return reportsDataMsg{
			summaries: ds.DailySummary(from, to, now),
			weekStart: r.weekStart,
		}
	}
}

func (r reportsModel) dateRange(now time.Time) (time.Time, time.Time) {
	today := startOfDay(now)

	switch r.mode {
	case reportWeekly:
		start := weekStart(today, r.weekStart).AddDate(0, 0, -7*r.offset)
		return start, start.AddDate(0, 0, 7)
	default:
		end := today.AddDate(0, 0, 1-7*r.offset)
		return end.AddDate(0, 0, -7), end
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.summaries = msg.summaries
		r.weekStart = msg.weekStart
		r.buildChart(time.Now())
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Filter):
			if r.mode == reportDaily {
				r.mode = reportWeekly
			} else {
				r.mode = reportDaily
			}
			r.offset = 0
			return r, r.refresh()
		}
	}
	return r, nil
}

// buildChart draws one stacked bar per day, one segment per tag.
func (r *reportsModel) buildChart(now time.Time) {
	height := 12
	if r.height > 30 {
		height = 16
	}
	r.chart = barchart.New(max(r.width-8, 20), height)

	byDay := make(map[string][]barchart.BarValue)
	for _, s := range r.summaries {
		byDay[s.Date] = append(byDay[s.Date], barchart.BarValue{
			Name:  s.Tag,
			Value: float64(s.TotalSeconds) / 3600,
			Style: lipgloss.NewStyle().Foreground(tagColor(s.Tag)),
		})
	}

	from, to := r.dateRange(now)
	var bars []barchart.BarData
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		values, ok := byDay[day.Format("2006-01-02")]
		if !ok {
			values = []barchart.BarValue{{Style: lipgloss.NewStyle().Foreground(colorSubtle)}}
		}
		bars = append(bars, barchart.BarData{Label: day.Format("Mon 02"), Values: values})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) totalSeconds() int64 {
	var total int64
	for _, s := range r.summaries {
		total += s.TotalSeconds
	}
	return total
}

func (r reportsModel) view() string {
	w := r.width - 4

	dailyTab := inactiveTabStyle.Render("Daily")
	weeklyTab := inactiveTabStyle.Render("Weekly")
	if r.mode == reportDaily {
		dailyTab = activeTabStyle.Render("Daily")
	} else {
		weeklyTab = activeTabStyle.Render("Weekly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	from, to := r.dateRange(time.Now())
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s to %s  total %s",
		from.Format("Jan 02"), to.AddDate(0, 0, -1).Format("Jan 02, 2006"), formatHours(r.totalSeconds())))

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", dateLabel,
	)

	nav := mutedStyle.Render("  ←/→: navigate  t: switch mode")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", r.renderLegend(), "", r.renderSummaryTable(w), "", nav,
		),
	)
}

func (r reportsModel) renderSummaryTable(w int) string {
	if len(r.summaries) == 0 {
		return mutedStyle.Render("  Nothing tracked in this range")
	}

	var b strings.Builder
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %-12s %-20s %10s %8s", "Day", "Tag", "Time", "Entries")))
	b.WriteString("\n" + mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 54))))
	for _, s := range r.summaries {
		fmt.Fprintf(&b, "\n  %-12s %s %-18s %10s %8d",
			s.Date, tagDot(s.Tag), truncate(s.Tag, 18), formatSeconds(s.TotalSeconds), s.Count)
	}
	return b.String()
}

func (r reportsModel) renderLegend() string {
	seen := make(map[string]bool)
	var tags []string
	for _, s := range r.summaries {
		if !seen[s.Tag] {
			seen[s.Tag] = true
			tags = append(tags, s.Tag)
		}
	}
	if len(tags) == 0 {
		return ""
	}
	sort.Strings(tags)
	items := make([]string, 0, len(tags))
	for _, t := range tags {
		items = append(items, fmt.Sprintf("%s %s", tagDot(t), t))
	}
	return "  " + strings.Join(items, "  ")
}
