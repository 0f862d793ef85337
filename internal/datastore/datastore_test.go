package datastore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/sealtrack/internal/crypto"
	"github.com/sadopc/sealtrack/internal/docdb"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
	"github.com/sadopc/sealtrack/internal/vault"
)

// fakeVault records writes and never delivers events on its own.
type fakeVault struct {
	mu       sync.Mutex
	handlers vault.Handlers
	puts     []vault.Document
	deletes  []string
	deleted  bool
}

func (f *fakeVault) SetHandlers(h vault.Handlers) {
	f.mu.Lock()
	f.handlers = h
	f.mu.Unlock()
}

func (f *fakeVault) Put(_ context.Context, docType string, doc vault.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.ID == "" {
		doc.ID = "generated"
	}
	f.puts = append(f.puts, doc)
	return doc.ID, nil
}

func (f *fakeVault) Delete(_ context.Context, docType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, docType+":"+id)
	return nil
}

func (f *fakeVault) Flush(context.Context) error { return nil }
func (f *fakeVault) ConnectRemote(context.Context, replica.Options) error {
	return nil
}
func (f *fakeVault) DisconnectRemote() {}
func (f *fakeVault) Connected() bool { return false }
func (f *fakeVault) SyncNow(context.Context) (replica.Info, error) {
	return replica.Info{}, apperrors.ErrNoRemote
}
func (f *fakeVault) DeleteAllLocal(context.Context) error {
	f.deleted = true
	return nil
}
func (f *fakeVault) DeleteAllAndSync(context.Context) error {
	return apperrors.ErrNoRemote
}

func activityDoc(t *testing.T, id string, a Activity) vault.Document {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return vault.Document{ID: id, Rev: "1-x", Data: data}
}

func ms(v int64) *int64 { return &v }

// newVaultStore wires a DataStore to a real vault over an in-memory db.
func newVaultStore(t *testing.T, appID string, opts ...Option) *DataStore {
	t.Helper()
	db, err := docdb.OpenMemory()
	require.NoError(t, err)
	h, err := crypto.New("p1")
	require.NoError(t, err)
	v := vault.New(db, h)
	t.Cleanup(func() {
		v.Close()
		db.Close()
	})
	return New(v, appID, opts...)
}

func TestMutationsDoNotTouchCache(t *testing.T) {
	fv := &fakeVault{}
	d := New(fv, "dev")
	ctx := context.Background()

	id, err := d.SaveActivity(ctx, Activity{Task: "write", From: 1000})
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
	assert.Empty(t, d.Activities(), "cache changes only through handlers")
	require.Len(t, fv.puts, 1)
	assert.JSONEq(t, `{"task":"write","tags":[],"from":1000,"to":null}`, string(fv.puts[0].Data))

	d.HandleChange(TypeActivity, activityDoc(t, id, Activity{Task: "write", From: 1000}))
	require.Len(t, d.Activities(), 1)
	assert.Equal(t, "1-x", d.Activities()[0].Rev)
}

func TestHandleChangeOrdersByFromDescending(t *testing.T) {
	d := New(&fakeVault{}, "dev")

	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a", From: 2000}))
	d.HandleChange(TypeActivity, activityDoc(t, "b", Activity{Task: "b", From: 5000}))
	d.HandleChange(TypeActivity, activityDoc(t, "c", Activity{Task: "c", From: 1000}))
	// Moving a to the front by editing its start.
	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a2", From: 9000}))

	got := d.Activities()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "a2", got[0].Task)

	d.HandleDelete(TypeActivity, "b")
	got = d.Activities()
	assert.Equal(t, []string{"a", "c"}, []string{got[0].ID, got[1].ID})

	d.HandleDelete(TypeActivity, "missing")
	assert.Len(t, d.Activities(), 2)
}

func TestHandleChangeIgnoresMalformedAndUnknown(t *testing.T) {
	d := New(&fakeVault{}, "dev")
	d.HandleChange(TypeActivity, vault.Document{ID: "x", Data: json.RawMessage(`"nope"`)})
	d.HandleChange("project", vault.Document{ID: "x", Data: json.RawMessage(`{}`)})
	assert.Empty(t, d.Activities())
}

func TestForeignSettingsIgnored(t *testing.T) {
	var applied []Settings
	d := New(&fakeVault{}, "dev", WithSettingsListener(func(s Settings) { applied = append(applied, s) }))

	d.HandleChange(TypeSettings, vault.Document{ID: SettingsID("other"), Rev: "1-a", Data: json.RawMessage(`{"theme":"light"}`)})
	assert.Equal(t, "dark", d.Settings().Theme)
	assert.Empty(t, applied)

	d.HandleChange(TypeSettings, vault.Document{ID: SettingsID("dev"), Rev: "1-b", Data: json.RawMessage(`{"theme":"light"}`)})
	s := d.Settings()
	assert.Equal(t, "light", s.Theme)
	assert.Equal(t, "1-b", s.Rev)
	assert.Equal(t, 480, s.DailyGoalMinutes, "missing fields take defaults")
	require.Len(t, applied, 1)
	assert.Equal(t, "light", applied[0].Theme)

	d.HandleDelete(TypeSettings, SettingsID("other"))
	assert.Equal(t, "light", d.Settings().Theme)
	d.HandleDelete(TypeSettings, SettingsID("dev"))
	assert.Equal(t, "dark", d.Settings().Theme)
}

func TestUpdateAndDeleteRequireCachedActivity(t *testing.T) {
	fv := &fakeVault{}
	d := New(fv, "dev")
	ctx := context.Background()

	assert.ErrorIs(t, d.UpdateActivity(ctx, "missing", Patch{}), apperrors.ErrNotFound)
	assert.ErrorIs(t, d.DeleteActivity(ctx, "missing"), apperrors.ErrNotFound)
	assert.ErrorIs(t, d.StopActivity(ctx, "missing", time.Now()), apperrors.ErrNotFound)
	assert.Empty(t, fv.puts)
	assert.Empty(t, fv.deletes)

	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a", Tags: []string{"work"}, From: 1000}))
	task := "renamed"
	require.NoError(t, d.UpdateActivity(ctx, "a", Patch{Task: &task}))
	require.Len(t, fv.puts, 1)
	assert.Equal(t, "1-x", fv.puts[0].Rev, "updates carry the cached rev")
	assert.JSONEq(t, `{"task":"renamed","tags":["work"],"from":1000,"to":null}`, string(fv.puts[0].Data))

	require.NoError(t, d.DeleteActivity(ctx, "a"))
	assert.Equal(t, []string{"activity:a"}, fv.deletes)
}

func TestReadsReturnCopies(t *testing.T) {
	d := New(&fakeVault{}, "dev")
	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a", Tags: []string{"work"}, From: 1000}))

	got := d.Activities()
	got[0].Tags[0] = "mutated"
	a, ok := d.GetActivityByID("a")
	require.True(t, ok)
	assert.Equal(t, []string{"work"}, a.Tags)
}

func TestGetActivitiesFilter(t *testing.T) {
	d := New(&fakeVault{}, "dev")
	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "Write docs", Tags: []string{"work"}, From: 1000, To: ms(2000)}))
	d.HandleChange(TypeActivity, activityDoc(t, "b", Activity{Task: "gym", Tags: []string{"health"}, From: 3000, To: ms(4000)}))
	d.HandleChange(TypeActivity, activityDoc(t, "c", Activity{Task: "review", Tags: []string{"work", "code"}, From: 5000}))

	assert.Len(t, d.GetActivities(Filter{Tag: "work"}), 2)
	assert.Len(t, d.GetActivities(Filter{Query: "DOCS"}), 1)
	assert.Len(t, d.GetActivities(Filter{From: time.UnixMilli(3000)}), 2)
	assert.Len(t, d.GetActivities(Filter{To: time.UnixMilli(3000)}), 1)
	assert.Len(t, d.GetActivities(Filter{Running: boolPtr(true)}), 1)
	assert.Len(t, d.GetActivities(Filter{Running: boolPtr(false)}), 2)
	assert.Len(t, d.GetActivities(Filter{Limit: 2}), 2)

	cur, ok := d.GetCurrentActivity()
	require.True(t, ok)
	assert.Equal(t, "c", cur.ID)
	assert.Equal(t, []string{"code", "health", "work"}, d.UniqueTags())
}

func TestDurationClampsInconsistentData(t *testing.T) {
	a := Activity{From: 5000, To: ms(1000)}
	assert.Equal(t, time.Duration(0), a.Duration(time.UnixMilli(9000)))
	running := Activity{From: 1000}
	assert.Equal(t, 2*time.Second, running.Duration(time.UnixMilli(3000)))
	assert.Equal(t, "untagged", running.PrimaryTag())
}

func TestTodayStats(t *testing.T) {
	d := New(&fakeVault{}, "dev")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// Spans midnight: only the hour after midnight counts.
	d.HandleChange(TypeActivity, activityDoc(t, "night", Activity{
		Task: "night", From: midnight.Add(-time.Hour).UnixMilli(), To: ms(midnight.Add(time.Hour).UnixMilli()),
	}))
	d.HandleChange(TypeActivity, activityDoc(t, "run", Activity{Task: "run", From: now.Add(-30 * time.Minute).UnixMilli()}))
	d.HandleChange(TypeActivity, activityDoc(t, "old", Activity{
		Task: "old", From: midnight.AddDate(0, 0, -2).UnixMilli(), To: ms(midnight.AddDate(0, 0, -2).Add(time.Hour).UnixMilli()),
	}))

	stats := d.TodayStats(now)
	assert.Equal(t, 90*time.Minute, stats.Total)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 8*time.Hour, stats.Goal)
	require.NotNil(t, stats.Running)
	assert.Equal(t, "run", stats.Running.ID)
	assert.InDelta(t, 90.0/480.0, stats.GoalProgress(), 1e-9)
}

func TestDailySummary(t *testing.T) {
	d := New(&fakeVault{}, "dev")
	day1 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a", Tags: []string{"work"}, From: day1.UnixMilli(), To: ms(day1.Add(time.Hour).UnixMilli())}))
	d.HandleChange(TypeActivity, activityDoc(t, "b", Activity{Task: "b", Tags: []string{"work"}, From: day1.Add(2 * time.Hour).UnixMilli(), To: ms(day1.Add(3 * time.Hour).UnixMilli())}))
	d.HandleChange(TypeActivity, activityDoc(t, "c", Activity{Task: "c", From: day2.UnixMilli(), To: ms(day2.Add(30 * time.Minute).UnixMilli())}))

	from := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	got := d.DailySummary(from, from.AddDate(0, 0, 7), day2.Add(time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, DaySummary{Date: "2026-03-09", Tag: "work", TotalSeconds: 7200, Count: 2}, got[0])
	assert.Equal(t, DaySummary{Date: "2026-03-10", Tag: "untagged", TotalSeconds: 1800, Count: 1}, got[1])
}

func TestDeleteAllResetsContainers(t *testing.T) {
	fv := &fakeVault{}
	d := New(fv, "dev")
	ctx := context.Background()
	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a", From: 1}))

	err := d.DeleteAllAndSync(ctx)
	require.ErrorIs(t, err, apperrors.ErrNoRemote)
	assert.Len(t, d.Activities(), 1, "a failed delete keeps the cache")

	require.NoError(t, d.DeleteAllLocal(ctx))
	assert.True(t, fv.deleted)
	assert.Empty(t, d.Activities())
}

func TestPurge(t *testing.T) {
	fv := &fakeVault{}
	d := New(fv, "dev")
	d.HandleChange(TypeActivity, activityDoc(t, "a", Activity{Task: "a", From: 1}))

	d.Purge()
	assert.Empty(t, d.Activities())
	assert.Nil(t, fv.handlers.OnChange)
}

// ============================================================
// Through a real vault
// ============================================================

func TestStartActivityStopsPrevious(t *testing.T) {
	d := newVaultStore(t, "dev")
	ctx := context.Background()
	t0 := time.UnixMilli(1_000_000)

	first, err := d.StartActivity(ctx, "first", []string{"work"}, t0)
	require.NoError(t, err)
	require.NoError(t, d.Flush(ctx))

	second, err := d.StartActivity(ctx, "second", nil, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, d.Flush(ctx))

	a, ok := d.GetActivityByID(first)
	require.True(t, ok)
	require.NotNil(t, a.To)
	assert.Equal(t, t0.Add(time.Minute).UnixMilli(), *a.To)
	assert.Equal(t, 2, docdb.Generation(a.Rev))

	cur, ok := d.GetCurrentActivity()
	require.True(t, ok)
	assert.Equal(t, second, cur.ID)

	_, err = d.StartActivity(ctx, "", nil, t0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSettingsRoundTrip(t *testing.T) {
	var themes []string
	d := newVaultStore(t, "dev", WithSettingsListener(func(s Settings) { themes = append(themes, s.Theme) }))
	ctx := context.Background()

	require.NoError(t, d.EnsureSettings(ctx))
	require.NoError(t, d.Flush(ctx))
	s := d.Settings()
	assert.Equal(t, SyncDisabled, s.SyncMode)
	assert.NotEmpty(t, s.Rev)

	require.NoError(t, d.EnsureSettings(ctx))
	require.NoError(t, d.Flush(ctx))
	assert.Equal(t, s.Rev, d.Settings().Rev, "ensure does not rewrite existing settings")

	theme := "light"
	require.NoError(t, d.SaveSettings(ctx, SettingsPatch{Theme: &theme}.Apply(s)))
	require.NoError(t, d.Flush(ctx))
	assert.Equal(t, "light", d.Settings().Theme)
	assert.Equal(t, []string{"dark", "light"}, themes)
}

func TestDeleteThroughVault(t *testing.T) {
	d := newVaultStore(t, "dev")
	ctx := context.Background()

	id, err := d.SaveActivity(ctx, Activity{Task: "gone", From: 10})
	require.NoError(t, err)
	require.NoError(t, d.Flush(ctx))
	require.Len(t, d.Activities(), 1)

	require.NoError(t, d.DeleteActivity(ctx, id))
	require.NoError(t, d.Flush(ctx))
	assert.Empty(t, d.Activities())
}
