// Package session owns the locked/unlocked state of the application. While
// unlocked it holds exactly one open database, vault and datastore for one
// account; locking closes them and drops every decrypted value.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadopc/sealtrack/internal/accounts"
	"github.com/sadopc/sealtrack/internal/crypto"
	"github.com/sadopc/sealtrack/internal/datastore"
	"github.com/sadopc/sealtrack/internal/docdb"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
	"github.com/sadopc/sealtrack/internal/syncmgr"
	"github.com/sadopc/sealtrack/internal/vault"
)

// Options configures a Manager.
type Options struct {
	DataDir string
	AppName string
	// LockAfter locks the session after this much inactivity; <= 0 never
	// locks automatically.
	LockAfter     time.Duration
	SyncInterval  time.Duration
	RemoteTimeout time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithDataStoreOptions passes extra options to every DataStore the manager
// creates, for example UI listeners.
func WithDataStoreOptions(opts ...datastore.Option) Option {
	return func(m *Manager) { m.dsOpts = append(m.dsOpts, opts...) }
}

// WithDialer replaces the remote factory of every vault.
func WithDialer(d vault.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

type unlocked struct {
	username string
	db       *docdb.DB
	helper   *crypto.Helper
	vault    *vault.Store
	store    *datastore.DataStore
}

// Manager is the session state machine.
type Manager struct {
	opts     Options
	registry *accounts.Registry
	log      zerolog.Logger
	dsOpts   []datastore.Option
	dialer   vault.Dialer

	mu      sync.Mutex
	current *unlocked
	timer   *time.Timer
	onLock  []func()
}

// NewManager returns a locked manager.
func NewManager(opts Options, registry *accounts.Registry, options ...Option) *Manager {
	if opts.AppName == "" {
		opts.AppName = "sealtrack"
	}
	m := &Manager{opts: opts, registry: registry, log: zerolog.Nop()}
	for _, o := range options {
		o(m)
	}
	return m
}

// DBPath returns the database file of username on device deviceID.
func (m *Manager) DBPath(username, deviceID string) string {
	return filepath.Join(m.opts.DataDir, fmt.Sprintf("%s-%s-%s.db", m.opts.AppName, username, deviceID))
}

// Unlock opens username's database with passphrase. A passphrase that does
// not decrypt the stored data fails with ErrInvalidPassphrase and leaves the
// manager locked. An already unlocked session is locked first.
func (m *Manager) Unlock(ctx context.Context, username, passphrase string) error {
	if err := accounts.ValidateUsername(username); err != nil {
		return err
	}
	if passphrase == "" {
		return apperrors.Validation("passphrase is empty")
	}

	m.Lock()

	deviceID, err := m.registry.DeviceID(username)
	if err != nil {
		return fmt.Errorf("resolve device: %w", err)
	}

	u, err := m.open(ctx, username, deviceID, passphrase)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = u
	m.resetTimerLocked()
	m.mu.Unlock()

	m.log.Info().Str("user", username).Msg("unlocked")

	// Replication runs in the vault's own goroutine; this only starts it.
	syncmgr.ConnectToSync(ctx, u.store, m.log)
	return nil
}

func (m *Manager) open(ctx context.Context, username, deviceID, passphrase string) (*unlocked, error) {
	helper, err := crypto.New(passphrase)
	if err != nil {
		return nil, err
	}

	db, err := docdb.Open(m.DBPath(username, deviceID))
	if err != nil {
		helper.Wipe()
		return nil, fmt.Errorf("open database: %w", err)
	}

	vopts := []vault.Option{
		vault.WithLogger(m.log.With().Str("component", "vault").Logger()),
		vault.WithSyncInterval(m.opts.SyncInterval),
		vault.WithRemoteTimeout(m.opts.RemoteTimeout),
	}
	if m.dialer != nil {
		vopts = append(vopts, vault.WithDialer(m.dialer))
	}
	v := vault.New(db, helper, vopts...)

	dsOpts := append([]datastore.Option{
		datastore.WithLogger(m.log.With().Str("component", "datastore").Logger()),
	}, m.dsOpts...)
	store := datastore.New(v, deviceID, dsOpts...)

	fail := func(err error) (*unlocked, error) {
		store.Purge()
		v.Close()
		helper.Wipe()
		db.Close()
		return nil, err
	}

	if err := v.LoadAll(ctx); err != nil {
		if errors.Is(err, apperrors.ErrInvalidPassphrase) {
			m.log.Warn().Str("user", username).Msg("unlock rejected")
		}
		return fail(err)
	}
	if err := store.EnsureSettings(ctx); err != nil {
		return fail(fmt.Errorf("create settings: %w", err))
	}
	if err := store.Flush(ctx); err != nil {
		return fail(err)
	}

	return &unlocked{username: username, db: db, helper: helper, vault: v, store: store}, nil
}

// CreateAccountAndUnlock registers username and unlocks it.
func (m *Manager) CreateAccountAndUnlock(ctx context.Context, username, passphrase string) error {
	if passphrase == "" {
		return apperrors.Validation("passphrase is empty")
	}
	if _, err := m.registry.Register(username); err != nil {
		return err
	}
	return m.Unlock(ctx, username, passphrase)
}

// Lock stops replication, closes the database and drops all decrypted
// state. Locking a locked manager does nothing.
func (m *Manager) Lock() {
	m.mu.Lock()
	u := m.current
	m.current = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	listeners := append([]func(){}, m.onLock...)
	m.mu.Unlock()

	if u == nil {
		return
	}

	u.store.DisconnectRemote()
	u.vault.Close()
	u.store.Purge()
	u.helper.Wipe()
	if err := u.db.Close(); err != nil {
		m.log.Warn().Err(err).Msg("close database")
	}
	m.log.Info().Str("user", u.username).Msg("locked")

	for _, fn := range listeners {
		fn()
	}
}

// DataStore returns the unlocked account's datastore and counts as
// activity for auto-lock.
func (m *Manager) DataStore() (*datastore.DataStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, apperrors.ErrLocked
	}
	m.resetTimerLocked()
	return m.current.store, nil
}

// Touch records user activity.
func (m *Manager) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.resetTimerLocked()
	}
}

// IsUnlocked reports the current state.
func (m *Manager) IsUnlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Username returns the unlocked user, or "" when locked.
func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.username
}

// Accounts lists registered usernames.
func (m *Manager) Accounts() []string { return m.registry.List() }

// OnLock registers fn to run after every lock.
func (m *Manager) OnLock(fn func()) {
	m.mu.Lock()
	m.onLock = append(m.onLock, fn)
	m.mu.Unlock()
}

// UpdateSettings changes the unlocked account's settings and restarts sync
// when needed.
func (m *Manager) UpdateSettings(ctx context.Context, p datastore.SettingsPatch) (datastore.Settings, error) {
	store, err := m.DataStore()
	if err != nil {
		return datastore.Settings{}, err
	}
	return syncmgr.UpdateSettings(ctx, store, p, m.log)
}

// SyncNow runs one replication pass for the unlocked account.
func (m *Manager) SyncNow(ctx context.Context) (replica.Info, error) {
	store, err := m.DataStore()
	if err != nil {
		return replica.Info{}, err
	}
	return store.SyncNow(ctx)
}

func (m *Manager) resetTimerLocked() {
	if m.opts.LockAfter <= 0 {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(m.opts.LockAfter, func() {
		m.mu.Lock()
		stale := m.timer != t
		m.mu.Unlock()
		if stale {
			return
		}
		m.log.Info().Dur("after", m.opts.LockAfter).Msg("locking after inactivity")
		m.Lock()
	})
	m.timer = t
}
