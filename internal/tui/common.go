package tui

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/sealtrack/internal/datastore"
	"github.com/sadopc/sealtrack/internal/replica"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewActivities
	viewReports
	viewSettings
)

var viewNames = []string{"Dashboard", "Activities", "Reports", "Settings"}

// --- Messages ---

type timerStartedMsg struct {
	id string
}

type timerStoppedMsg struct{}

type unlockedMsg struct {
	username string
}

type lockedMsg struct{}

type syncMsg struct {
	info replica.Info
}

type settingsChangedMsg struct {
	settings datastore.Settings
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

const storeTimeout = 10 * time.Second

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func errorStatus(prefix string, err error) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: fmt.Sprintf("%s: %v", prefix, err), isError: true}
	}
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatSeconds(secs int64) string {
	return formatDuration(time.Duration(secs) * time.Second)
}

func formatHours(secs int64) string {
	h := float64(secs) / 3600
	return fmt.Sprintf("%.1fh", h)
}

// parseTags splits a comma separated list, dropping blanks and duplicates.
func parseTags(s string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}

var tagColors = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

// tagColor picks a stable palette color for a tag.
func tagColor(tag string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tag))
	return lipgloss.Color(tagColors[h.Sum32()%uint32(len(tagColors))])
}

func tagDot(tag string) string {
	return lipgloss.NewStyle().Foreground(tagColor(tag)).Render("●")
}

// weekStart returns the first day of the week containing day.
func weekStart(day time.Time, start string) time.Time {
	first := time.Monday
	if start == "sunday" {
		first = time.Sunday
	}
	diff := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -diff)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
