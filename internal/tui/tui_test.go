package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/sealtrack/internal/accounts"
	"github.com/sadopc/sealtrack/internal/datastore"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
	"github.com/sadopc/sealtrack/internal/session"
)

func newTestManager(t *testing.T) *session.Manager {
	t.Helper()
	dir := t.TempDir()
	reg, err := accounts.Open(filepath.Join(dir, "accounts.toml"))
	if err != nil {
		t.Fatalf("open accounts: %v", err)
	}
	m := session.NewManager(session.Options{
		DataDir:       dir,
		SyncInterval:  time.Hour,
		RemoteTimeout: time.Second,
	}, reg)
	t.Cleanup(m.Lock)
	return m
}

func newUnlockedManager(t *testing.T) *session.Manager {
	t.Helper()
	m := newTestManager(t)
	if err := m.CreateAccountAndUnlock(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return m
}

func mustStore(t *testing.T, m *session.Manager) *datastore.DataStore {
	t.Helper()
	ds, err := m.DataStore()
	if err != nil {
		t.Fatalf("datastore: %v", err)
	}
	return ds
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// ============================================================
// Timer model
// ============================================================

func TestTimerStartStop(t *testing.T) {
	m := newUnlockedManager(t)

	tm := newTimerModel(m)
	if tm.running() {
		t.Fatal("timer should start stopped")
	}

	id, err := tm.start("write report", []string{"work"})
	if err != nil {
		t.Fatal(err)
	}
	if !tm.running() {
		t.Fatal("timer should be running after start")
	}
	if tm.current.ID != id || tm.current.Task != "write report" {
		t.Fatalf("current = %+v, want id %s", tm.current, id)
	}

	stopped, err := tm.stop()
	if err != nil {
		t.Fatal(err)
	}
	if !stopped {
		t.Fatal("stop should report a stopped activity")
	}
	if tm.running() {
		t.Fatal("timer should be stopped")
	}

	a, ok := mustStore(t, m).GetActivityByID(id)
	if !ok || a.Running() {
		t.Fatalf("activity should be stored and finished, got %+v", a)
	}
}

func TestTimerStopWhenStopped(t *testing.T) {
	tm := newTimerModel(newUnlockedManager(t))

	stopped, err := tm.stop()
	if err != nil {
		t.Fatal(err)
	}
	if stopped {
		t.Fatal("stop on stopped timer should report false")
	}
}

func TestTimerStartReplacesRunning(t *testing.T) {
	m := newUnlockedManager(t)
	tm := newTimerModel(m)

	first, _ := tm.start("first", nil)
	second, err := tm.start("second", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tm.current.ID != second {
		t.Fatalf("current = %s, want %s", tm.current.ID, second)
	}
	if a, _ := mustStore(t, m).GetActivityByID(first); a.Running() {
		t.Fatal("first activity should have been stopped")
	}
}

func TestTimerElapsed(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()

	from := time.Now().Add(-90 * time.Second)
	if _, err := ds.SaveActivity(ctx, datastore.Activity{Task: "t", From: from.UnixMilli()}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	tm := newTimerModel(m)
	tm.reload()
	if !tm.running() {
		t.Fatal("reload should pick up the running activity")
	}
	tm.tick(from.Add(2 * time.Minute))
	if got := tm.currentElapsed(); got != 2*time.Minute {
		t.Fatalf("elapsed = %v, want 2m", got)
	}
}

func TestTimerWhileLocked(t *testing.T) {
	m := newTestManager(t)
	tm := newTimerModel(m)

	if _, err := tm.start("t", nil); err == nil {
		t.Fatal("start should fail while locked")
	}
	tm.reload()
	if tm.running() {
		t.Fatal("locked timer should not be running")
	}
}

// ============================================================
// Helpers
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{time.Second, "00:00:01"},
		{time.Minute, "00:01:00"},
		{time.Hour + time.Minute + time.Second, "01:01:01"},
		{25 * time.Hour, "25:00:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatSecondsAndHours(t *testing.T) {
	if got := formatSeconds(3661); got != "01:01:01" {
		t.Fatalf("formatSeconds = %q", got)
	}
	if got := formatHours(5400); got != "1.5h" {
		t.Fatalf("formatHours = %q", got)
	}
}

func TestParseTags(t *testing.T) {
	got := parseTags(" work, code ,,work, ")
	if len(got) != 2 || got[0] != "work" || got[1] != "code" {
		t.Fatalf("parseTags = %v", got)
	}
	if parseTags("") != nil {
		t.Fatal("empty input should give no tags")
	}
}

func TestNextTag(t *testing.T) {
	tags := []string{"a", "b"}
	steps := []string{"a", "b", "", "a"}
	cur := ""
	for i, want := range steps {
		cur = nextTag(tags, cur)
		if cur != want {
			t.Fatalf("step %d: got %q, want %q", i, cur, want)
		}
	}
	if nextTag(nil, "") != "" {
		t.Fatal("no tags should keep the filter empty")
	}
}

func TestTagColorStable(t *testing.T) {
	if tagColor("work") != tagColor("work") {
		t.Fatal("tag color should be stable")
	}
}

func TestWeekStart(t *testing.T) {
	wed := time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC)
	if got := weekStart(wed, "monday"); got.Day() != 16 {
		t.Fatalf("monday week start = %v", got)
	}
	if got := weekStart(wed, "sunday"); got.Day() != 15 {
		t.Fatalf("sunday week start = %v", got)
	}
	sun := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := weekStart(sun, "sunday"); !got.Equal(sun) {
		t.Fatalf("sunday is its own week start, got %v", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("a long task name", 6); got != "a lon…" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestParseInputTime(t *testing.T) {
	got, err := parseInputTime(" 2026-03-14 09:30 ")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hour() != 9 || got.Minute() != 30 {
		t.Fatalf("parsed %v", got)
	}
	if _, err := parseInputTime("yesterday"); err == nil {
		t.Fatal("expected error for free text")
	}
}

func TestViewNames(t *testing.T) {
	if len(viewNames) != int(viewSettings)+1 {
		t.Fatalf("viewNames has %d entries for %d views", len(viewNames), viewSettings+1)
	}
}

// ============================================================
// Dashboard
// ============================================================

func TestDashboardLoadData(t *testing.T) {
	m := newUnlockedManager(t)
	d := newDashboardModel(m)

	d, _ = d.startTimer("focus", []string{"deep"})
	if !d.isRunning() {
		t.Fatal("dashboard should be running")
	}

	msg, ok := d.loadData()().(dashboardDataMsg)
	if !ok {
		t.Fatal("loadData should return dashboardDataMsg")
	}
	if msg.stats.Count != 1 || msg.stats.Running == nil {
		t.Fatalf("stats = %+v", msg.stats)
	}
	if len(msg.recent) != 1 || len(msg.tags) != 1 || msg.tags[0] != "deep" {
		t.Fatalf("recent = %v tags = %v", msg.recent, msg.tags)
	}

	d.setSize(100, 40)
	d, _ = d.update(msg)
	if !strings.Contains(d.view(), "RUNNING") {
		t.Fatal("view should show the running timer")
	}

	d, _ = d.stopTimer()
	if d.isRunning() {
		t.Fatal("dashboard should be stopped")
	}
}

func TestDashboardLoadDataLocked(t *testing.T) {
	d := newDashboardModel(newTestManager(t))
	if msg := d.loadData()(); msg != nil {
		t.Fatalf("locked load should produce no message, got %T", msg)
	}
}

func TestDashboardStartKeyOpensForm(t *testing.T) {
	d := newDashboardModel(newUnlockedManager(t))
	d, _ = d.update(runes("s"))
	if !d.formActive {
		t.Fatal("s should open the start form")
	}
	d, _ = d.update(tea.KeyMsg{Type: tea.KeyEsc})
	if d.formActive {
		t.Fatal("esc should close the form")
	}
}

// ============================================================
// Activities
// ============================================================

func TestActivitiesDeleteFlow(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()
	to := time.Now().UnixMilli()
	if _, err := ds.SaveActivity(ctx, datastore.Activity{Task: "old", From: to - 1000, To: &to}); err != nil {
		t.Fatal(err)
	}
	_ = ds.Flush(ctx)

	a := newActivitiesModel(m)
	a, _ = a.update(a.refresh()())
	if len(a.activities) != 1 {
		t.Fatalf("activities = %d, want 1", len(a.activities))
	}

	a, _ = a.update(runes("d"))
	if a.confirmingID == "" {
		t.Fatal("d should ask for confirmation")
	}
	a, cmd := a.update(runes("y"))
	if cmd == nil {
		t.Fatal("confirming should return a delete command")
	}
	if _, ok := cmd().(mutationDoneMsg); !ok {
		t.Fatal("delete should succeed")
	}
	if len(ds.Activities()) != 0 {
		t.Fatal("activity should be deleted")
	}
}

func TestActivitiesDeleteCancelled(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()
	_, _ = ds.SaveActivity(ctx, datastore.Activity{Task: "keep", From: 1000})
	_ = ds.Flush(ctx)

	a := newActivitiesModel(m)
	a, _ = a.update(a.refresh()())
	a, _ = a.update(runes("d"))
	a, cmd := a.update(runes("n"))
	if cmd != nil || a.confirmingID != "" {
		t.Fatal("any other key should cancel the delete")
	}
	if len(ds.Activities()) != 1 {
		t.Fatal("activity should still exist")
	}
}

func TestActivitiesSaveForm(t *testing.T) {
	m := newUnlockedManager(t)
	a := newActivitiesModel(m)

	*a.formTask = "meeting"
	*a.formTags = "work, sync"
	*a.formFrom = "2026-03-14 09:00"
	*a.formTo = "2026-03-14 10:30"
	if _, ok := a.save()().(mutationDoneMsg); !ok {
		t.Fatal("save should succeed")
	}

	got := mustStore(t, m).Activities()
	if len(got) != 1 {
		t.Fatalf("activities = %d, want 1", len(got))
	}
	if got[0].Duration(time.Now()) != 90*time.Minute {
		t.Fatalf("duration = %v, want 90m", got[0].Duration(time.Now()))
	}

	a.editingID = got[0].ID
	*a.formTo = ""
	if _, ok := a.save()().(mutationDoneMsg); !ok {
		t.Fatal("edit should succeed")
	}
	if a2, _ := mustStore(t, m).GetActivityByID(got[0].ID); !a2.Running() {
		t.Fatal("clearing the end should make the activity running")
	}
}

func TestActivitiesSaveRejectsEndBeforeStart(t *testing.T) {
	a := newActivitiesModel(newUnlockedManager(t))
	*a.formTask = "x"
	*a.formFrom = "2026-03-14 10:00"
	*a.formTo = "2026-03-14 09:00"

	msg, ok := a.save()().(statusMsg)
	if !ok || !msg.isError {
		t.Fatalf("expected error status, got %#v", msg)
	}
}

func TestActivitiesTagFilter(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()
	_, _ = ds.SaveActivity(ctx, datastore.Activity{Task: "a", Tags: []string{"home"}, From: 1000})
	_, _ = ds.SaveActivity(ctx, datastore.Activity{Task: "b", Tags: []string{"work"}, From: 2000})
	_ = ds.Flush(ctx)

	a := newActivitiesModel(m)
	a, _ = a.update(a.refresh()())
	a, cmd := a.update(runes("t"))
	if a.tagFilter != "home" {
		t.Fatalf("filter = %q, want home", a.tagFilter)
	}
	a, _ = a.update(cmd())
	if len(a.activities) != 1 || a.activities[0].Task != "a" {
		t.Fatalf("filtered = %v", a.activities)
	}
}

// ============================================================
// Reports
// ============================================================

func TestReportsDateRange(t *testing.T) {
	r := newReportsModel(newTestManager(t))
	now := time.Date(2026, 3, 18, 15, 0, 0, 0, time.UTC)

	from, to := r.dateRange(now)
	if to.Sub(from) != 7*24*time.Hour || to.Day() != 19 {
		t.Fatalf("daily range = %v..%v", from, to)
	}

	r.mode = reportWeekly
	from, _ = r.dateRange(now)
	if from.Weekday() != time.Monday || from.Day() != 16 {
		t.Fatalf("weekly start = %v", from)
	}

	r.offset = 1
	from, _ = r.dateRange(now)
	if from.Day() != 9 {
		t.Fatalf("previous week start = %v", from)
	}
}

func TestReportsRefresh(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()
	start := time.Now().Add(-2 * time.Hour)
	end := start.Add(time.Hour).UnixMilli()
	_, _ = ds.SaveActivity(ctx, datastore.Activity{Task: "a", Tags: []string{"work"}, From: start.UnixMilli(), To: &end})
	_ = ds.Flush(ctx)

	r := newReportsModel(m)
	r.setSize(100, 40)
	msg, ok := r.refresh()().(reportsDataMsg)
	if !ok {
		t.Fatal("refresh should return reportsDataMsg")
	}
	if len(msg.summaries) == 0 {
		t.Fatal("expected a summary row")
	}
	r, _ = r.update(msg)
	if r.totalSeconds() != 3600 {
		t.Fatalf("total = %d, want 3600", r.totalSeconds())
	}
	if !strings.Contains(r.view(), "work") {
		t.Fatal("view should list the tag")
	}
}

// ============================================================
// Settings
// ============================================================

func TestSettingsPatch(t *testing.T) {
	s := newSettingsModel(newTestManager(t))
	*s.syncMode = "remote"
	*s.remoteURL = "http://localhost:5984/db"
	*s.live = true
	*s.theme = "light"
	*s.dailyGoal = "300"
	*s.weekStart = "sunday"

	p := s.patch()
	if *p.SyncMode != datastore.SyncRemote || *p.RemoteURL != "http://localhost:5984/db" {
		t.Fatalf("sync fields not patched: %+v", p)
	}
	if !*p.RemoteLive || *p.RemoteRetry {
		t.Fatal("booleans not patched")
	}
	if *p.DailyGoalMinutes != 300 || *p.WeekStart != "sunday" || *p.Theme != "light" {
		t.Fatal("general fields not patched")
	}

	*s.dailyGoal = "lots"
	if s.patch().DailyGoalMinutes != nil {
		t.Fatal("unparseable goal should be left alone")
	}
}

func TestSettingsSave(t *testing.T) {
	m := newUnlockedManager(t)
	s := newSettingsModel(m)
	s, _ = s.update(s.refresh()())

	*s.syncMode = string(s.settings.SyncMode)
	*s.theme = "light"
	*s.dailyGoal = "120"
	*s.weekStart = "monday"

	msg, ok := s.saveSettings()().(settingsChangedMsg)
	if !ok {
		t.Fatal("save should return settingsChangedMsg")
	}
	if msg.settings.Theme != "light" || msg.settings.DailyGoalMinutes != 120 {
		t.Fatalf("saved = %+v", msg.settings)
	}
}

func TestSettingsSaveInvalid(t *testing.T) {
	s := newSettingsModel(newUnlockedManager(t))
	*s.syncMode = "remote"
	*s.remoteURL = ""
	*s.theme = "dark"
	*s.dailyGoal = "60"
	*s.weekStart = "monday"

	msg, ok := s.saveSettings()().(statusMsg)
	if !ok || !msg.isError {
		t.Fatalf("expected error status, got %#v", msg)
	}
}

func TestSettingsSyncWithoutRemote(t *testing.T) {
	s := newSettingsModel(newUnlockedManager(t))
	msg := s.syncNow()().(syncDoneMsg)
	if msg.err == nil {
		t.Fatal("sync without remote should fail")
	}
}

func TestSettingsDeleteLocal(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()
	_, _ = ds.SaveActivity(ctx, datastore.Activity{Task: "gone", From: 1000})
	_ = ds.Flush(ctx)

	s := newSettingsModel(m)
	s, _ = s.update(runes("D"))
	if s.confirming != confirmDeleteLocal {
		t.Fatal("D should ask for confirmation")
	}
	s, cmd := s.update(runes("y"))
	msg := cmd().(deleteDoneMsg)
	if msg.err != nil {
		t.Fatalf("delete: %v", msg.err)
	}
	if len(ds.Activities()) != 0 {
		t.Fatal("local data should be gone")
	}
}

func TestSettingsRecordsSync(t *testing.T) {
	s := newSettingsModel(newTestManager(t))
	s.setSize(100, 40)
	s, _ = s.update(syncMsg{info: replica.Info{Direction: replica.DirectionBoth, DocsRead: 2}})
	if s.lastSync == nil || s.lastSync.DocsRead != 2 {
		t.Fatal("sync info not recorded")
	}
	if !strings.Contains(s.view(), "Last sync") {
		t.Fatal("view should show the last sync")
	}
}

// ============================================================
// Unlock
// ============================================================

func TestUnlockError(t *testing.T) {
	if got := unlockError(apperrors.InvalidPassphrase(nil)); got != "Wrong passphrase" {
		t.Fatalf("unlockError = %q", got)
	}
	if got := unlockError(os.ErrPermission); !strings.HasPrefix(got, "Unlock failed") {
		t.Fatalf("unlockError = %q", got)
	}
}

func TestUnlockCommand(t *testing.T) {
	m := newTestManager(t)
	u := newUnlockModel(m)
	*u.username = "bob"
	*u.pass = "pw"

	msg := u.unlock(true)().(unlockResultMsg)
	if msg.err != nil {
		t.Fatalf("create: %v", msg.err)
	}
	if !m.IsUnlocked() || m.Username() != "bob" {
		t.Fatal("manager should be unlocked as bob")
	}

	m.Lock()
	*u.pass = "wrong"
	msg = u.unlock(false)().(unlockResultMsg)
	if msg.err == nil {
		t.Fatal("wrong passphrase should fail")
	}

	u, _ = u.update(msg)
	if u.err != "Wrong passphrase" || u.stage != stageCredentials {
		t.Fatalf("err = %q stage = %d", u.err, u.stage)
	}
}

// ============================================================
// App
// ============================================================

func TestNewAppLocked(t *testing.T) {
	app := NewApp(newTestManager(t), nil)
	if !app.locked {
		t.Fatal("app should start locked")
	}
	model, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	if !strings.Contains(model.View(), "sealtrack") {
		t.Fatal("locked view should show the unlock panel")
	}
}

func TestAppLoadingState(t *testing.T) {
	app := NewApp(newTestManager(t), nil)
	if app.View() != "Loading..." {
		t.Fatal("zero-size app should show loading")
	}
}

func TestAppUnlockedView(t *testing.T) {
	app := NewApp(newUnlockedManager(t), nil)
	if app.locked {
		t.Fatal("app should follow the unlocked manager")
	}
	model, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := model.View()
	for _, name := range viewNames {
		if !strings.Contains(view, name) {
			t.Fatalf("header missing tab %q", name)
		}
	}
	if !strings.Contains(view, "alice") {
		t.Fatal("header should show the user")
	}
}

func TestAppLockKey(t *testing.T) {
	m := newUnlockedManager(t)
	app := NewApp(m, nil)

	model, _ := app.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if !model.(App).locked {
		t.Fatal("ctrl+l should lock the app")
	}
	if m.IsUnlocked() {
		t.Fatal("ctrl+l should lock the session")
	}
}

func TestAppTickDetectsLock(t *testing.T) {
	m := newUnlockedManager(t)
	app := NewApp(m, nil)

	m.Lock()
	model, _ := app.Update(tickMsg(time.Now()))
	if !model.(App).locked {
		t.Fatal("tick should notice the session locked")
	}
}

func TestAppUnlockedMsg(t *testing.T) {
	m := newTestManager(t)
	app := NewApp(m, nil)

	if err := m.CreateAccountAndUnlock(context.Background(), "carol", "pw"); err != nil {
		t.Fatal(err)
	}
	model, _ := app.Update(unlockedMsg{username: "carol"})
	got := model.(App)
	if got.locked {
		t.Fatal("app should be unlocked")
	}
	if !strings.Contains(got.status, "carol") {
		t.Fatalf("status = %q", got.status)
	}
}

func TestAppStatusMessage(t *testing.T) {
	app := NewApp(newUnlockedManager(t), nil)
	model, _ := app.Update(statusMsg{text: "boom", isError: true})
	got := model.(App)
	if got.status != "boom" || !got.statusErr {
		t.Fatalf("status = %q err = %v", got.status, got.statusErr)
	}
}

func TestAppNotifierMessage(t *testing.T) {
	n := NewNotifier()
	app := NewApp(newUnlockedManager(t), n)

	n.OnSettings(datastore.Settings{Theme: "light", WeekStart: "sunday"})
	msg := n.wait()()
	model, cmd := app.Update(msg)
	if cmd == nil {
		t.Fatal("notifier messages should re-arm the wait")
	}
	if model.(App).settings.settings.WeekStart != "sunday" {
		t.Fatal("settings view should see the change")
	}
	if currentTheme != "light" {
		t.Fatalf("theme = %q, want light", currentTheme)
	}
	setTheme("dark")
}

func TestAppExport(t *testing.T) {
	m := newUnlockedManager(t)
	ds := mustStore(t, m)
	ctx := context.Background()
	_, _ = ds.SaveActivity(ctx, datastore.Activity{Task: "export me", From: 1000})
	_ = ds.Flush(ctx)

	app := NewApp(m, nil)
	app.exportDir = t.TempDir()

	for format, ext := range []string{".csv", ".json"} {
		msg, ok := app.doExport(format)().(exportDoneMsg)
		if !ok {
			t.Fatalf("export %s failed", ext)
		}
		if filepath.Ext(msg.path) != ext {
			t.Fatalf("path = %s, want %s", msg.path, ext)
		}
		data, err := os.ReadFile(msg.path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "export me") {
			t.Fatalf("%s export missing activity", ext)
		}
	}
}

// ============================================================
// Notifier, keys, styles
// ============================================================

func TestNotifierNeverBlocks(t *testing.T) {
	n := NewNotifier()
	for i := 0; i < 200; i++ {
		n.OnLock()
	}
	if _, ok := n.wait()().(notifyMsg); !ok {
		t.Fatal("wait should return notifyMsg")
	}
}

func TestKeyMapHelp(t *testing.T) {
	if len(keys.ShortHelp()) == 0 {
		t.Fatal("short help should not be empty")
	}
	if len(keys.FullHelp()) != 5 {
		t.Fatalf("full help groups = %d, want 5", len(keys.FullHelp()))
	}
}

func TestSetTheme(t *testing.T) {
	defer setTheme("dark")

	setTheme("light")
	if currentTheme != "light" {
		t.Fatal("theme not applied")
	}
	setTheme("neon")
	if currentTheme != "dark" {
		t.Fatal("unknown theme should fall back to dark")
	}
	if titleStyle.Render("x") == "" {
		t.Fatal("styles should render")
	}
}
