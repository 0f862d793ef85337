// Package syncmgr decides when this device replicates, based on its
// settings document.
package syncmgr

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sadopc/sealtrack/internal/datastore"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
)

// Store is the part of the datastore sync orchestration needs.
type Store interface {
	Settings() datastore.Settings
	SaveSettings(ctx context.Context, s datastore.Settings) error
	Flush(ctx context.Context) error
	ConnectRemote(ctx context.Context, opts replica.Options) error
	DisconnectRemote()
	Connected() bool
}

// ActiveConfig returns the replication configuration s asks for, or nil
// when sync is disabled or no remote URL is set.
func ActiveConfig(s datastore.Settings) *replica.Options {
	if s.SyncMode != datastore.SyncRemote || s.RemoteURL == "" {
		return nil
	}
	return &replica.Options{
		URL:   s.RemoteURL,
		Live:  s.RemoteLive,
		Retry: s.RemoteRetry,
	}
}

func sameConfig(a, b *replica.Options) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// ConnectToSync starts replication if the current settings ask for it.
// Failures are logged; local work never depends on the remote.
func ConnectToSync(ctx context.Context, st Store, log zerolog.Logger) {
	cfg := ActiveConfig(st.Settings())
	if cfg == nil {
		return
	}
	if err := st.ConnectRemote(ctx, *cfg); err != nil {
		log.Warn().Err(err).Msg("could not start sync")
	}
}

// Validate checks settings values before they are saved.
func Validate(s datastore.Settings) error {
	switch s.SyncMode {
	case datastore.SyncDisabled:
	case datastore.SyncRemote:
		if s.RemoteURL == "" {
			return apperrors.Validation("remote sync needs a remote url")
		}
		if _, _, err := replica.ParseURL(s.RemoteURL); err != nil {
			return apperrors.Validation("remote url: %v", err)
		}
	default:
		return apperrors.Validation("unknown sync mode %q", s.SyncMode)
	}
	switch s.Theme {
	case "dark", "light":
	default:
		return apperrors.Validation("unknown theme %q", s.Theme)
	}
	switch s.WeekStart {
	case "monday", "sunday":
	default:
		return apperrors.Validation("week start must be monday or sunday, got %q", s.WeekStart)
	}
	if s.DailyGoalMinutes <= 0 || s.DailyGoalMinutes > 24*60 {
		return apperrors.Validation("daily goal must be between 1 and 1440 minutes")
	}
	return nil
}

// UpdateSettings applies p, saves the result and restarts replication when
// the effective sync configuration changed or live replication has stopped.
// Connect failures are logged, not returned.
func UpdateSettings(ctx context.Context, st Store, p datastore.SettingsPatch, log zerolog.Logger) (datastore.Settings, error) {
	prev := st.Settings()
	next := p.Apply(prev)
	if err := Validate(next); err != nil {
		return prev, err
	}

	if err := st.SaveSettings(ctx, next); err != nil {
		return prev, fmt.Errorf("update settings: %w", err)
	}
	if err := st.Flush(ctx); err != nil {
		return prev, fmt.Errorf("update settings: %w", err)
	}

	before, after := ActiveConfig(prev), ActiveConfig(next)
	// A live loop without retry ends after a failed pass; saving settings
	// starts it again.
	stopped := after != nil && after.Live && !st.Connected()
	if !sameConfig(before, after) || stopped {
		st.DisconnectRemote()
		if after != nil {
			if err := st.ConnectRemote(ctx, *after); err != nil {
				log.Warn().Err(err).Msg("could not restart sync")
			}
		}
		log.Info().Bool("enabled", after != nil).Msg("sync configuration changed")
	}
	return st.Settings(), nil
}
