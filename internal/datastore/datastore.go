// Package datastore is the in-memory, decrypted view of one unlocked
// account. Its collections change only when the vault delivers a change or
// delete event; the mutation methods write through the vault and return
// without touching the cache.
package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
	"github.com/sadopc/sealtrack/internal/vault"
)

// Vault is the encrypted store the cache is fed by. *vault.Store
// implements it.
type Vault interface {
	SetHandlers(h vault.Handlers)
	Put(ctx context.Context, docType string, doc vault.Document) (string, error)
	Delete(ctx context.Context, docType, id string) error
	Flush(ctx context.Context) error
	ConnectRemote(ctx context.Context, opts replica.Options) error
	DisconnectRemote()
	Connected() bool
	SyncNow(ctx context.Context) (replica.Info, error)
	DeleteAllLocal(ctx context.Context) error
	DeleteAllAndSync(ctx context.Context) error
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *DataStore) { d.log = log }
}

// WithSettingsListener is called after this device's settings change, on
// the delivering goroutine.
func WithSettingsListener(fn func(Settings)) Option {
	return func(d *DataStore) { d.onSettings = fn }
}

// WithSyncListener receives every replication pass summary.
func WithSyncListener(fn func(replica.Info)) Option {
	return func(d *DataStore) { d.onSync = fn }
}

// DataStore caches the decrypted activities and this device's settings.
type DataStore struct {
	vault Vault
	appID string
	log   zerolog.Logger

	onSettings func(Settings)
	onSync     func(replica.Info)

	mu          sync.RWMutex
	activities  []Activity
	settings    Settings
	hasSettings bool
}

// New returns a DataStore for the device appID and registers its handlers
// on v.
func New(v Vault, appID string, opts ...Option) *DataStore {
	d := &DataStore{
		vault:    v,
		appID:    appID,
		log:      zerolog.Nop(),
		settings: DefaultSettings(appID),
	}
	for _, opt := range opts {
		opt(d)
	}
	v.SetHandlers(vault.Handlers{
		OnChange: d.HandleChange,
		OnDelete: d.HandleDelete,
		OnSync:   d.HandleSync,
		OnError:  d.handleError,
	})
	return d
}

// AppID returns the device id the store was created for.
func (d *DataStore) AppID() string { return d.appID }

// ============================================================
// Event handlers
// ============================================================

// HandleChange applies one decrypted document to the cache.
func (d *DataStore) HandleChange(docType string, doc vault.Document) {
	switch docType {
	case TypeActivity:
		var a Activity
		if err := json.Unmarshal(doc.Data, &a); err != nil {
			d.log.Warn().Err(err).Str("id", doc.ID).Msg("ignoring malformed activity")
			return
		}
		a.ID, a.Rev = doc.ID, doc.Rev

		d.mu.Lock()
		replaced := false
		for i := range d.activities {
			if d.activities[i].ID == a.ID {
				d.activities[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			d.activities = append(d.activities, a)
		}
		sort.SliceStable(d.activities, func(i, j int) bool {
			return d.activities[i].From > d.activities[j].From
		})
		d.mu.Unlock()

	case TypeSettings:
		if doc.ID != SettingsID(d.appID) {
			return
		}
		var s Settings
		if err := json.Unmarshal(doc.Data, &s); err != nil {
			d.log.Warn().Err(err).Msg("ignoring malformed settings")
			return
		}
		s = s.withDefaults(d.appID)
		s.ID, s.Rev = doc.ID, doc.Rev

		d.mu.Lock()
		d.settings = s
		d.hasSettings = true
		d.mu.Unlock()

		if d.onSettings != nil {
			d.onSettings(s)
		}

	default:
		d.log.Debug().Str("type", docType).Msg("ignoring unknown document type")
	}
}

// HandleDelete removes a deleted document from the cache.
func (d *DataStore) HandleDelete(docType, id string) {
	switch docType {
	case TypeActivity:
		d.mu.Lock()
		kept := d.activities[:0]
		for _, a := range d.activities {
			if a.ID != id {
				kept = append(kept, a)
			}
		}
		clear(d.activities[len(kept):])
		d.activities = kept
		d.mu.Unlock()

	case TypeSettings:
		if id != SettingsID(d.appID) {
			return
		}
		d.mu.Lock()
		d.settings = DefaultSettings(d.appID)
		d.hasSettings = false
		d.mu.Unlock()
	}
}

// HandleSync forwards a replication summary to the sync listener.
func (d *DataStore) HandleSync(info replica.Info) {
	if info.Failed() {
		d.log.Warn().Err(info.Err()).Str("pass", info.String()).Msg("sync pass had errors")
	}
	if d.onSync != nil {
		d.onSync(info)
	}
}

func (d *DataStore) handleError(err error) {
	d.log.Warn().Err(err).Msg("document skipped")
}

// ============================================================
// Mutations
// ============================================================

// SaveActivity stores a new or updated activity and returns its id. The
// cache reflects it once the vault delivers the change.
func (d *DataStore) SaveActivity(ctx context.Context, a Activity) (string, error) {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode activity: %w", err)
	}
	id, err := d.vault.Put(ctx, TypeActivity, vault.Document{ID: a.ID, Rev: a.Rev, Data: data})
	if err != nil {
		return "", fmt.Errorf("save activity: %w", err)
	}
	return id, nil
}

// UpdateActivity applies p to the cached activity id.
func (d *DataStore) UpdateActivity(ctx context.Context, id string, p Patch) error {
	a, ok := d.GetActivityByID(id)
	if !ok {
		return fmt.Errorf("update activity %s: %w", id, apperrors.ErrNotFound)
	}
	_, err := d.SaveActivity(ctx, p.apply(a))
	return err
}

// StopActivity sets the end time of id to at.
func (d *DataStore) StopActivity(ctx context.Context, id string, at time.Time) error {
	to := at.UnixMilli()
	return d.UpdateActivity(ctx, id, Patch{To: &to})
}

// DeleteActivity deletes the cached activity id.
func (d *DataStore) DeleteActivity(ctx context.Context, id string) error {
	if _, ok := d.GetActivityByID(id); !ok {
		return fmt.Errorf("delete activity %s: %w", id, apperrors.ErrNotFound)
	}
	if err := d.vault.Delete(ctx, TypeActivity, id); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return nil
}

// StartActivity creates a running activity, then stops every activity that
// was running before it. A failure after the create leaves more than one
// activity running; the next start or an explicit stop resolves it.
func (d *DataStore) StartActivity(ctx context.Context, task string, tags []string, now time.Time) (string, error) {
	if task == "" {
		return "", apperrors.Validation("activity task is empty")
	}
	running := d.RunningActivities()

	tz := now.Location().String()
	if tz == "Local" || tz == "UTC" {
		tz = ""
	}
	id, err := d.SaveActivity(ctx, Activity{Task: task, Tags: tags, From: now.UnixMilli(), Timezone: tz})
	if err != nil {
		return "", err
	}
	for _, a := range running {
		if err := d.StopActivity(ctx, a.ID, now); err != nil {
			return id, fmt.Errorf("stop previous activity %s: %w", a.ID, err)
		}
	}
	return id, nil
}

// SaveSettings writes this device's settings document.
func (d *DataStore) SaveSettings(ctx context.Context, s Settings) error {
	d.mu.RLock()
	rev := ""
	if d.hasSettings {
		rev = d.settings.Rev
	}
	d.mu.RUnlock()

	s.ID = SettingsID(d.appID)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := d.vault.Put(ctx, TypeSettings, vault.Document{ID: s.ID, Rev: rev, Data: data}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// EnsureSettings creates the default settings document when this device has
// none yet.
func (d *DataStore) EnsureSettings(ctx context.Context) error {
	d.mu.RLock()
	has := d.hasSettings
	d.mu.RUnlock()
	if has {
		return nil
	}
	return d.SaveSettings(ctx, DefaultSettings(d.appID))
}

// Flush waits for pending vault events to reach the cache.
func (d *DataStore) Flush(ctx context.Context) error {
	return d.vault.Flush(ctx)
}

// ============================================================
// Remote
// ============================================================

// ConnectRemote starts replicating with the remote in opts.
func (d *DataStore) ConnectRemote(ctx context.Context, opts replica.Options) error {
	return d.vault.ConnectRemote(ctx, opts)
}

// DisconnectRemote stops replication; the remote stays configured.
func (d *DataStore) DisconnectRemote() { d.vault.DisconnectRemote() }

// Connected reports whether replication is running.
func (d *DataStore) Connected() bool { return d.vault.Connected() }

// SyncNow runs one push and pull pass against the configured remote.
func (d *DataStore) SyncNow(ctx context.Context) (replica.Info, error) {
	return d.vault.SyncNow(ctx)
}

// DeleteAllLocal removes all local data and empties the cache.
func (d *DataStore) DeleteAllLocal(ctx context.Context) error {
	if err := d.vault.DeleteAllLocal(ctx); err != nil {
		return err
	}
	d.reset()
	return nil
}

// DeleteAllAndSync removes all data here and on the remote and empties the
// cache. It fails without deleting anything when no remote is configured.
func (d *DataStore) DeleteAllAndSync(ctx context.Context) error {
	if err := d.vault.DeleteAllAndSync(ctx); err != nil {
		return err
	}
	d.reset()
	return nil
}

func (d *DataStore) reset() {
	d.mu.Lock()
	clear(d.activities)
	d.activities = nil
	d.settings = DefaultSettings(d.appID)
	d.hasSettings = false
	d.mu.Unlock()
}

// Purge detaches from the vault and drops all decrypted state.
func (d *DataStore) Purge() {
	d.vault.SetHandlers(vault.Handlers{})
	d.reset()
	d.mu.Lock()
	d.settings = Settings{}
	d.mu.Unlock()
}
