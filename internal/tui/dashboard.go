package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/sealtrack/internal/datastore"
	"github.com/sadopc/sealtrack/internal/session"
)

const recentLimit = 5

type dashboardModel struct {
	manager *session.Manager
	timer   timerModel
	width   int
	height  int

	stats  datastore.TodayStats
	recent []datastore.Activity
	tags   []string

	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	formTask *string
	formTags *string
}

func newDashboardModel(m *session.Manager) dashboardModel {
	task, tags := "", ""
	return dashboardModel{
		manager:  m,
		timer:    newTimerModel(m),
		formTask: &task,
		formTags: &tags,
	}
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
}

func (d dashboardModel) isRunning() bool { return d.timer.running() }
func (d dashboardModel) elapsed() time.Duration {
	return d.timer.currentElapsed()
}

type dashboardDataMsg struct {
	stats  datastore.TodayStats
	recent []datastore.Activity
	tags   []string
}

func (d dashboardModel) loadData() tea.Cmd {
	return func() tea.Msg {
		ds, err := d.manager.DataStore()
		if err != nil {
			return nil
		}
		return dashboardDataMsg{
			stats:  ds.TodayStats(time.Now()),
			recent: ds.GetActivities(datastore.Filter{Limit: recentLimit}),
			tags:   ds.UniqueTags(),
		}
	}
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if d.formActive && d.form != nil {
		return d.updateForm(msg)
	}

	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.stats = msg.stats
		d.recent = msg.recent
		d.tags = msg.tags
		d.timer.reload()
		return d, nil

	case tickMsg:
		d.timer.tick(time.Time(msg))
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Start), key.Matches(msg, keys.New):
			return d.showForm()
		case key.Matches(msg, keys.Stop):
			return d.stopTimer()
		}
	}
	return d, nil
}

func (d dashboardModel) showForm() (dashboardModel, tea.Cmd) {
	*d.formTask = ""
	*d.formTags = ""
	if d.timer.current != nil {
		*d.formTags = strings.Join(d.timer.current.Tags, ", ")
	}

	d.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Task").Value(d.formTask).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("task is required")
					}
					return nil
				}),
			huh.NewInput().Title("Tags (comma separated)").
				Suggestions(d.tags).
				Value(d.formTags),
		).Title("Start activity"),
	).WithShowHelp(true).WithShowErrors(true)

	d.formActive = true
	return d, d.form.Init()
}

func (d dashboardModel) updateForm(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		d.formActive = false
		d.form = nil
		return d, nil
	}

	form, cmd := d.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		d.form = f
	}

	if d.form.State == huh.StateCompleted {
		d.formActive = false
		d.form = nil
		return d.startTimer(strings.TrimSpace(*d.formTask), parseTags(*d.formTags))
	}
	return d, cmd
}

func (d dashboardModel) startTimer(task string, tags []string) (dashboardModel, tea.Cmd) {
	id, err := d.timer.start(task, tags)
	if err != nil {
		return d, errorStatus("Start failed", err)
	}
	return d, tea.Batch(
		d.loadData(),
		func() tea.Msg { return timerStartedMsg{id: id} },
	)
}

func (d dashboardModel) stopTimer() (dashboardModel, tea.Cmd) {
	stopped, err := d.timer.stop()
	if err != nil {
		return d, errorStatus("Stop failed", err)
	}
	if !stopped {
		return d, nil
	}
	return d, tea.Batch(
		d.loadData(),
		func() tea.Msg { return timerStoppedMsg{} },
	)
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	contentWidth := d.width - 4

	if d.formActive && d.form != nil {
		return activePanelStyle.Width(contentWidth).Render(d.form.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		d.renderTimerPanel(contentWidth),
		d.renderTodayPanel(contentWidth),
		d.renderRecentPanel(contentWidth),
	)
}

func (d dashboardModel) renderTimerPanel(w int) string {
	if a := d.timer.current; a != nil {
		timeDisplay := timerRunningStyle.Width(w - 6).Render(formatDuration(d.timer.currentElapsed()))
		indicator := successStyle.Render("●  RUNNING")

		taskLine := highlightStyle.Render(a.Task)
		if len(a.Tags) > 0 {
			taskLine += mutedStyle.Render("  #" + strings.Join(a.Tags, " #"))
		}

		content := lipgloss.JoinVertical(lipgloss.Center, timeDisplay, indicator, taskLine)
		return activePanelStyle.Width(w).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		timerStyle.Width(w-6).Render("00:00:00"),
		mutedStyle.Render("■  STOPPED"),
		mutedStyle.Render("Press s to start tracking"),
	)
	return panelStyle.Width(w).Render(content)
}

func (d dashboardModel) renderTodayPanel(w int) string {
	secs := int64(d.stats.Total / time.Second)
	header := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render("Today"),
		highlightStyle.Render(formatSeconds(secs)),
		mutedStyle.Render(fmt.Sprintf("(%d activities)", d.stats.Count)),
	)

	goalSecs := int64(d.stats.Goal / time.Second)
	goal := fmt.Sprintf("Goal %s  %s %3.0f%%",
		formatHours(goalSecs),
		progressBar(d.stats.GoalProgress(), min(w-30, 40)),
		d.stats.GoalProgress()*100,
	)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, header, "", goal))
}

func progressBar(p float64, width int) string {
	if width < 5 {
		width = 5
	}
	filled := int(p * float64(width))
	bar := strings.Repeat("█", filled)
	rest := strings.Repeat("░", width-filled)
	if p >= 1 {
		return successStyle.Render(bar)
	}
	return highlightStyle.Render(bar) + mutedStyle.Render(rest)
}

func (d dashboardModel) renderRecentPanel(w int) string {
	title := titleStyle.Render("Recent Activities")
	if len(d.recent) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No activities yet"),
		)
		return panelStyle.Width(w).Render(content)
	}

	now := d.timer.now
	rows := []string{title}
	for _, a := range d.recent {
		status := "✓"
		dur := formatDuration(a.Duration(now))
		if a.Running() {
			status = "●"
			dur = "running"
		}
		rows = append(rows, fmt.Sprintf("  %s %s  %s %-24s %s",
			status,
			a.Start().Local().Format("Jan 02 15:04"),
			tagDot(a.PrimaryTag()),
			truncate(a.Task, 24),
			dur,
		))
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
