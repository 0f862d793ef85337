package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/sealtrack/internal/export"
	"github.com/sadopc/sealtrack/internal/session"
)

// App is the root Bubble Tea model. While the session is locked it only
// shows the unlock form.
type App struct {
	manager  *session.Manager
	notifier *Notifier
	width    int
	height   int

	locked        bool
	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int
	exportDir     string

	unlock     unlockModel
	dashboard  dashboardModel
	activities activitiesModel
	reports    reportsModel
	settings   settingsModel

	help      help.Model
	status    string
	statusErr bool
}

// NewApp builds the UI around m. Notifications reach the UI only if n's
// DataStoreOptions were passed to the manager and n.OnLock was registered.
func NewApp(m *session.Manager, n *Notifier) App {
	h := help.New()
	h.ShowAll = false

	if n == nil {
		n = NewNotifier()
	}
	home, _ := os.UserHomeDir()

	a := App{
		manager:    m,
		notifier:   n,
		locked:     !m.IsUnlocked(),
		activeView: viewDashboard,
		exportDir:  home,
		unlock:     newUnlockModel(m),
		dashboard:  newDashboardModel(m),
		activities: newActivitiesModel(m),
		reports:    newReportsModel(m),
		settings:   newSettingsModel(m),
		help:       h,
	}
	a.unlock, _ = a.unlock.reset()
	return a
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), a.notifier.wait()}
	if a.locked {
		cmds = append(cmds, a.unlock.form.Init())
	} else {
		cmds = append(cmds, a.refreshAll())
	}
	return tea.Batch(cmds...)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.unlock.setSize(a.width, a.height)
		a.dashboard.setSize(a.width, contentHeight)
		a.activities.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case notifyMsg:
		model, cmd := a.Update(msg.msg)
		return model, tea.Batch(cmd, a.notifier.wait())

	case tickMsg:
		cmds := []tea.Cmd{tickCmd()}
		if !a.locked && !a.manager.IsUnlocked() {
			model, cmd := a.becomeLocked()
			return model, tea.Batch(append(cmds, cmd)...)
		}
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.update(msg)
		return a, tea.Batch(append(cmds, cmd)...)

	case lockedMsg:
		if a.locked {
			return a, nil
		}
		return a.becomeLocked()

	case unlockedMsg:
		a.locked = false
		a.activeView = viewDashboard
		a.setStatus("Unlocked "+msg.username, false)
		if ds, err := a.manager.DataStore(); err == nil {
			setTheme(ds.Settings().Theme)
		}
		return a, a.refreshAll()
	}

	if a.locked {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "ctrl+c" {
			return a, tea.Quit
		}
		var cmd tea.Cmd
		a.unlock, cmd = a.unlock.update(msg)
		return a, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		a.manager.Touch()

		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Lock):
			a.manager.Lock()
			return a.becomeLocked()
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Sync):
			a.settings.syncing = true
			a.setStatus("Syncing...", false)
			return a, a.settings.syncNow()
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewDashboard
			return a, a.dashboard.loadData()
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewActivities
			return a, a.activities.refresh()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewReports
			return a, a.reports.refresh()
		case key.Matches(msg, keys.Tab4):
			a.activeView = viewSettings
			return a, a.settings.refresh()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	case statusMsg:
		a.setStatus(msg.text, msg.isError)
		return a, nil

	case timerStartedMsg:
		a.setStatus("Timer started", false)
		return a, a.refreshAll()

	case timerStoppedMsg:
		a.setStatus("Timer stopped", false)
		return a, a.refreshAll()

	case mutationDoneMsg:
		a.setStatus(msg.status, false)
		return a, a.refreshAll()

	case syncMsg:
		a.settings, _ = a.settings.update(msg)
		if msg.info.Failed() {
			a.setStatus("Sync failed: "+msg.info.Err().Error(), true)
			return a, nil
		}
		if msg.info.DocsRead > 0 {
			return a, a.refreshAll()
		}
		return a, nil

	case syncDoneMsg:
		a.settings, _ = a.settings.update(msg)
		switch {
		case msg.err != nil:
			a.setStatus(fmt.Sprintf("Sync failed: %v", msg.err), true)
		case msg.info.Failed():
			a.setStatus("Sync failed: "+msg.info.Err().Error(), true)
		default:
			a.setStatus("Synced: "+msg.info.String(), false)
		}
		return a, a.refreshAll()

	case settingsChangedMsg:
		setTheme(msg.settings.Theme)
		a.settings, _ = a.settings.update(settingsDataMsg{settings: msg.settings})
		return a, tea.Batch(a.reports.refresh(), a.dashboard.loadData())

	case deleteDoneMsg:
		switch {
		case msg.err != nil:
			a.setStatus(fmt.Sprintf("Delete failed: %v", msg.err), true)
		case msg.everywhere:
			a.setStatus("All data deleted here and on the remote", false)
		default:
			a.setStatus("All local data deleted", false)
		}
		return a, a.refreshAll()

	case exportDoneMsg:
		a.setStatus("Exported to "+msg.path, false)
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a *App) setStatus(text string, isError bool) {
	a.status = text
	a.statusErr = isError
}

// becomeLocked drops every cached view model and shows the unlock form.
func (a App) becomeLocked() (tea.Model, tea.Cmd) {
	a.locked = true
	a.exportPicking = false
	a.dashboard = newDashboardModel(a.manager)
	a.activities = newActivitiesModel(a.manager)
	a.reports = newReportsModel(a.manager)
	a.settings = newSettingsModel(a.manager)
	contentHeight := a.height - 4
	a.dashboard.setSize(a.width, contentHeight)
	a.activities.setSize(a.width, contentHeight)
	a.reports.setSize(a.width, contentHeight)
	a.settings.setSize(a.width, contentHeight)
	a.setStatus("Locked", false)

	var cmd tea.Cmd
	a.unlock, cmd = a.unlock.reset()
	return a, cmd
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewActivities:
		a.activities, cmd = a.activities.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}

	// Data messages go to their view whichever tab is showing.
	switch msg.(type) {
	case dashboardDataMsg:
		if a.activeView != viewDashboard {
			a.dashboard, cmd = a.dashboard.update(msg)
		}
	case activitiesDataMsg:
		if a.activeView != viewActivities {
			a.activities, cmd = a.activities.update(msg)
		}
	case reportsDataMsg:
		if a.activeView != viewReports {
			a.reports, cmd = a.reports.update(msg)
		}
	case settingsDataMsg:
		if a.activeView != viewSettings {
			a.settings, cmd = a.settings.update(msg)
		}
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.formActive
	case viewActivities:
		return a.activities.formActive || a.activities.confirmingID != ""
	case viewSettings:
		return a.settings.formActive || a.settings.confirming != confirmNone
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.loadData()
	case viewActivities:
		return a.activities.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) refreshAll() tea.Cmd {
	return tea.Batch(
		a.dashboard.loadData(),
		a.activities.refresh(),
		a.reports.refresh(),
		a.settings.refresh(),
	)
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}
	if a.locked {
		return a.unlock.view()
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewDashboard:
		content = a.dashboard.view()
	case viewActivities:
		content = a.activities.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	contentHeight := max(a.height-lipgloss.Height(header)-lipgloss.Height(footer), 1)

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("sealtrack")
	if user := a.manager.Username(); user != "" {
		title += mutedStyle.Render(" · " + user)
	}
	gap := max(a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4, 1)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.statusErr {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	timerInfo := ""
	if a.dashboard.isRunning() {
		timerInfo = successStyle.Render(" ● " + formatDuration(a.dashboard.elapsed()))
	}

	left := footerStyle.Render(helpView)
	right := timerInfo + status

	gap := max(a.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

func (a App) renderExportPicker() string {
	formats := []string{"CSV", "JSON"}
	rows := []string{titleStyle.Render("Export Format"), ""}
	for i, f := range formats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))

	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < 1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes the decrypted activities as plaintext CSV or JSON.
func (a App) doExport(format int) tea.Cmd {
	return func() tea.Msg {
		ds, err := a.manager.DataStore()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		activities := ds.Activities()
		dateStr := time.Now().Format("2006-01-02")

		var path string
		if format == 0 {
			path = filepath.Join(a.exportDir, fmt.Sprintf("sealtrack-export-%s.csv", dateStr))
			if err := export.ToCSV(activities, path); err != nil {
				return statusMsg{text: fmt.Sprintf("CSV error: %v", err), isError: true}
			}
		} else {
			path = filepath.Join(a.exportDir, fmt.Sprintf("sealtrack-export-%s.json", dateStr))
			if err := export.ToJSON(activities, path); err != nil {
				return statusMsg{text: fmt.Sprintf("JSON error: %v", err), isError: true}
			}
		}

		return exportDoneMsg{path: path}
	}
}
