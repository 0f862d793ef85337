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

const inputTimeLayout = "2006-01-02 15:04"

type activitiesModel struct {
	manager *session.Manager
	width   int
	height  int

	activities []datastore.Activity
	tags       []string
	tagFilter  string // "" shows every tag
	cursor     int

	formActive   bool
	confirmingID string // activity awaiting delete confirmation
	form         *huh.Form
	editingID    string // "" when the form creates a new activity

	// Form field pointers (survive value copies)
	formTask *string
	formTags *string
	formFrom *string
	formTo   *string
}

func newActivitiesModel(m *session.Manager) activitiesModel {
	task, tags, from, to := "", "", "", ""
	return activitiesModel{
		manager:  m,
		formTask: &task,
		formTags: &tags,
		formFrom: &from,
		formTo:   &to,
	}
}

func (a *activitiesModel) setSize(w, h int) {
	a.width = w
	a.height = h
}

type activitiesDataMsg struct {
	activities []datastore.Activity
	tags       []string
}

func (a activitiesModel) refresh() tea.Cmd {
	filter := a.tagFilter
	return func() tea.Msg {
		ds, err := a.manager.DataStore()
		if err != nil {
			return nil
		}
		return activitiesDataMsg{
			activities: ds.GetActivities(datastore.Filter{Tag: filter}),
			tags:       ds.UniqueTags(),
		}
	}
}

func (a activitiesModel) selected() (datastore.Activity, bool) {
	if a.cursor < 0 || a.cursor >= len(a.activities) {
		return datastore.Activity{}, false
	}
	return a.activities[a.cursor], true
}

func (a activitiesModel) update(msg tea.Msg) (activitiesModel, tea.Cmd) {
	if a.formActive && a.form != nil {
		return a.updateForm(msg)
	}

	switch msg := msg.(type) {
	case activitiesDataMsg:
		a.activities = msg.activities
		a.tags = msg.tags
		if a.cursor >= len(a.activities) {
			a.cursor = max(0, len(a.activities)-1)
		}
		return a, nil

	case tea.KeyMsg:
		if a.confirmingID != "" {
			return a.updateConfirm(msg)
		}
		return a.updateList(msg)
	}
	return a, nil
}

func (a activitiesModel) updateList(msg tea.KeyMsg) (activitiesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, keys.Down):
		if a.cursor < len(a.activities)-1 {
			a.cursor++
		}
	case key.Matches(msg, keys.New):
		return a.showForm(nil)
	case key.Matches(msg, keys.Edit):
		if act, ok := a.selected(); ok {
			return a.showForm(&act)
		}
	case key.Matches(msg, keys.Delete):
		if act, ok := a.selected(); ok {
			a.confirmingID = act.ID
		}
	case key.Matches(msg, keys.Stop):
		if act, ok := a.selected(); ok && act.Running() {
			return a, a.stop(act.ID)
		}
	case key.Matches(msg, keys.Filter):
		a.tagFilter = nextTag(a.tags, a.tagFilter)
		a.cursor = 0
		return a, a.refresh()
	}
	return a, nil
}

// nextTag cycles through "", tags[0], tags[1], ... and back to "".
func nextTag(tags []string, current string) string {
	if current == "" {
		if len(tags) == 0 {
			return ""
		}
		return tags[0]
	}
	for i, t := range tags {
		if t == current && i+1 < len(tags) {
			return tags[i+1]
		}
	}
	return ""
}

func (a activitiesModel) updateConfirm(msg tea.KeyMsg) (activitiesModel, tea.Cmd) {
	id := a.confirmingID
	a.confirmingID = ""
	if msg.String() != "y" {
		return a, nil
	}
	return a, a.mutate("Deleted activity", func(ds *datastore.DataStore) error {
		ctx, cancel := storeContext()
		defer cancel()
		if err := ds.DeleteActivity(ctx, id); err != nil {
			return err
		}
		return ds.Flush(ctx)
	})
}

func (a activitiesModel) stop(id string) tea.Cmd {
	return a.mutate("Activity stopped", func(ds *datastore.DataStore) error {
		ctx, cancel := storeContext()
		defer cancel()
		if err := ds.StopActivity(ctx, id, time.Now()); err != nil {
			return err
		}
		return ds.Flush(ctx)
	})
}

// mutate runs fn against the datastore and reports the outcome.
func (a activitiesModel) mutate(done string, fn func(ds *datastore.DataStore) error) tea.Cmd {
	return func() tea.Msg {
		ds, err := a.manager.DataStore()
		if err == nil {
			err = fn(ds)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return mutationDoneMsg{status: done}
	}
}

type mutationDoneMsg struct {
	status string
}

func (a activitiesModel) showForm(act *datastore.Activity) (activitiesModel, tea.Cmd) {
	title := "New activity"
	a.editingID = ""
	*a.formTask = ""
	*a.formTags = ""
	*a.formFrom = time.Now().Format(inputTimeLayout)
	*a.formTo = ""
	if act != nil {
		title = "Edit activity"
		a.editingID = act.ID
		*a.formTask = act.Task
		*a.formTags = strings.Join(act.Tags, ", ")
		*a.formFrom = act.Start().Local().Format(inputTimeLayout)
		if end := act.End(); end != nil {
			*a.formTo = end.Local().Format(inputTimeLayout)
		}
	}

	a.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Task").Value(a.formTask).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("task is required")
					}
					return nil
				}),
			huh.NewInput().Title("Tags (comma separated)").
				Suggestions(a.tags).
				Value(a.formTags),
			huh.NewInput().Title("Start (YYYY-MM-DD HH:MM)").Value(a.formFrom).
				Validate(func(s string) error {
					_, err := parseInputTime(s)
					return err
				}),
			huh.NewInput().Title("End (empty while running)").Value(a.formTo).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := parseInputTime(s)
					return err
				}),
		).Title(title),
	).WithShowHelp(true).WithShowErrors(true)

	a.formActive = true
	return a, a.form.Init()
}

func parseInputTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(inputTimeLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, errors.New("use YYYY-MM-DD HH:MM")
	}
	return t, nil
}

func (a activitiesModel) updateForm(msg tea.Msg) (activitiesModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "esc" {
		a.formActive = false
		a.form = nil
		return a, nil
	}

	form, cmd := a.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.form = f
	}

	if a.form.State == huh.StateCompleted {
		a.formActive = false
		a.form = nil
		return a, a.save()
	}
	return a, cmd
}

// save writes the form values, creating or patching an activity.
func (a activitiesModel) save() tea.Cmd {
	task := strings.TrimSpace(*a.formTask)
	tags := parseTags(*a.formTags)
	if tags == nil {
		tags = []string{}
	}
	from, err := parseInputTime(*a.formFrom)
	if err != nil {
		return errorStatus("Invalid start", err)
	}
	var to *int64
	if strings.TrimSpace(*a.formTo) != "" {
		end, err := parseInputTime(*a.formTo)
		if err != nil {
			return errorStatus("Invalid end", err)
		}
		if end.Before(from) {
			return errorStatus("Invalid end", errors.New("end is before start"))
		}
		ms := end.UnixMilli()
		to = &ms
	}
	fromMs := from.UnixMilli()
	id := a.editingID

	if id == "" {
		return a.mutate("Activity added", func(ds *datastore.DataStore) error {
			ctx, cancel := storeContext()
			defer cancel()
			if _, err := ds.SaveActivity(ctx, datastore.Activity{Task: task, Tags: tags, From: fromMs, To: to}); err != nil {
				return err
			}
			return ds.Flush(ctx)
		})
	}
	return a.mutate("Activity updated", func(ds *datastore.DataStore) error {
		ctx, cancel := storeContext()
		defer cancel()
		p := datastore.Patch{Task: &task, Tags: &tags, From: &fromMs, To: to, ClearTo: to == nil}
		if err := ds.UpdateActivity(ctx, id, p); err != nil {
			return err
		}
		return ds.Flush(ctx)
	})
}

func (a activitiesModel) view() string {
	w := a.width - 4

	if a.formActive && a.form != nil {
		return activePanelStyle.Width(w).Render(a.form.View())
	}

	filter := "all tags"
	if a.tagFilter != "" {
		filter = "#" + a.tagFilter
	}
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Activities"), "  ",
		mutedStyle.Render(fmt.Sprintf("%d shown, %s", len(a.activities), filter)),
	)

	rows := []string{header, ""}
	if len(a.activities) == 0 {
		rows = append(rows, mutedStyle.Render("  No activities. Press n to add one."))
	}

	visible := max(1, a.height-10)
	start := 0
	if a.cursor >= visible {
		start = a.cursor - visible + 1
	}
	now := time.Now()
	for i := start; i < len(a.activities) && i < start+visible; i++ {
		act := a.activities[i]
		cursor := "  "
		style := normalItemStyle
		if i == a.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		end := "running"
		if e := act.End(); e != nil {
			end = e.Local().Format("15:04")
		}
		line := fmt.Sprintf("%s%s-%-7s  %-28s %s",
			cursor,
			act.Start().Local().Format("Jan 02 15:04"),
			end,
			truncate(act.Task, 28),
			formatDuration(act.Duration(now)),
		)
		tags := ""
		for _, t := range act.Tags {
			tags += " " + tagDot(t) + " " + t
		}
		rows = append(rows, style.Render(line)+tags)
	}

	rows = append(rows, "")
	if a.confirmingID != "" {
		rows = append(rows, warningStyle.Render("  Delete this activity? y: confirm  any key: cancel"))
	} else {
		rows = append(rows, mutedStyle.Render("  n: new  enter: edit  d: delete  x: stop  t: filter tag"))
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
