package syncmgr

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/sealtrack/internal/datastore"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
)

type fakeStore struct {
	settings    datastore.Settings
	saved       int
	connects    []replica.Options
	disconnects int
	connectErr  error
	connected   bool
}

func (f *fakeStore) Settings() datastore.Settings { return f.settings }

func (f *fakeStore) SaveSettings(_ context.Context, s datastore.Settings) error {
	f.saved++
	f.settings = s
	return nil
}

func (f *fakeStore) Flush(context.Context) error { return nil }

func (f *fakeStore) ConnectRemote(_ context.Context, opts replica.Options) error {
	f.connects = append(f.connects, opts)
	f.connected = f.connectErr == nil
	return f.connectErr
}

func (f *fakeStore) DisconnectRemote() {
	f.disconnects++
	f.connected = false
}

func (f *fakeStore) Connected() bool { return f.connected }

func ptr[T any](v T) *T { return &v }

func TestActiveConfig(t *testing.T) {
	s := datastore.DefaultSettings("dev")
	assert.Nil(t, ActiveConfig(s))

	s.SyncMode = datastore.SyncRemote
	assert.Nil(t, ActiveConfig(s), "remote mode without url is inactive")

	s.RemoteURL = "http://localhost:5984/db"
	s.RemoteLive = true
	s.RemoteRetry = false
	cfg := ActiveConfig(s)
	require.NotNil(t, cfg)
	assert.Equal(t, replica.Options{URL: "http://localhost:5984/db", Live: true}, *cfg)
}

func TestConnectToSync(t *testing.T) {
	ctx := context.Background()

	off := &fakeStore{settings: datastore.DefaultSettings("dev")}
	ConnectToSync(ctx, off, zerolog.Nop())
	assert.Empty(t, off.connects)

	on := &fakeStore{settings: datastore.DefaultSettings("dev"), connectErr: errors.New("boom")}
	on.settings.SyncMode = datastore.SyncRemote
	on.settings.RemoteURL = "http://host/db"
	ConnectToSync(ctx, on, zerolog.Nop())
	assert.Len(t, on.connects, 1, "errors are logged, never returned")
}

func TestUpdateSettingsReconnectsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{settings: datastore.DefaultSettings("dev")}

	// Display-only change: no sync churn.
	s, err := UpdateSettings(ctx, st, datastore.SettingsPatch{Theme: ptr("light")}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "light", s.Theme)
	assert.Equal(t, 1, st.saved)
	assert.Zero(t, st.disconnects)
	assert.Empty(t, st.connects)

	// Enabling sync connects.
	_, err = UpdateSettings(ctx, st, datastore.SettingsPatch{
		SyncMode:  ptr(datastore.SyncRemote),
		RemoteURL: ptr("http://host/db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, st.disconnects)
	require.Len(t, st.connects, 1)
	assert.Equal(t, "http://host/db", st.connects[0].URL)

	// Same config again: nothing happens.
	_, err = UpdateSettings(ctx, st, datastore.SettingsPatch{DailyGoalMinutes: ptr(300)}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, st.disconnects)
	assert.Len(t, st.connects, 1)

	// Changing live mode reconnects.
	_, err = UpdateSettings(ctx, st, datastore.SettingsPatch{RemoteLive: ptr(false)}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, st.disconnects)
	require.Len(t, st.connects, 2)
	assert.False(t, st.connects[1].Live)

	// Disabling sync disconnects without connecting.
	_, err = UpdateSettings(ctx, st, datastore.SettingsPatch{SyncMode: ptr(datastore.SyncDisabled)}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 3, st.disconnects)
	assert.Len(t, st.connects, 2)
}

func TestUpdateSettingsConnectFailureIsNotReturned(t *testing.T) {
	st := &fakeStore{settings: datastore.DefaultSettings("dev"), connectErr: apperrors.ErrConfiguration}
	_, err := UpdateSettings(context.Background(), st, datastore.SettingsPatch{
		SyncMode:  ptr(datastore.SyncRemote),
		RemoteURL: ptr("http://host/db"),
	}, zerolog.Nop())
	assert.NoError(t, err)
	assert.Equal(t, datastore.SyncRemote, st.settings.SyncMode)
}

func TestUpdateSettingsValidation(t *testing.T) {
	cases := []datastore.SettingsPatch{
		{SyncMode: ptr(datastore.SyncMode("cloud"))},
		{SyncMode: ptr(datastore.SyncRemote)},
		{SyncMode: ptr(datastore.SyncRemote), RemoteURL: ptr("ftp://x/db")},
		{Theme: ptr("neon")},
		{WeekStart: ptr("friday")},
		{DailyGoalMinutes: ptr(0)},
		{DailyGoalMinutes: ptr(2000)},
	}
	for _, p := range cases {
		st := &fakeStore{settings: datastore.DefaultSettings("dev")}
		_, err := UpdateSettings(context.Background(), st, p, zerolog.Nop())
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Zero(t, st.saved)
	}
}

func TestUpdateSettingsRestartsStoppedLiveSync(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{settings: datastore.DefaultSettings("dev")}
	st.settings.SyncMode = datastore.SyncRemote
	st.settings.RemoteURL = "http://host/db"
	st.settings.RemoteLive = true

	// The live loop ended on its own after a failed pass.
	st.connected = false
	_, err := UpdateSettings(ctx, st, datastore.SettingsPatch{Theme: ptr("light")}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, st.connects, 1)
	assert.True(t, st.connects[0].Live)

	// Running again: unrelated changes leave it alone.
	_, err = UpdateSettings(ctx, st, datastore.SettingsPatch{Theme: ptr("dark")}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, st.connects, 1)
}
