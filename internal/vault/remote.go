package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/sadopc/sealtrack/internal/docdb"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
)

type liveRemote struct {
	opts   replica.Options
	rep    *replica.Replicator
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Store) withDefaults(opts replica.Options) replica.Options {
	if opts.Interval <= 0 {
		opts.Interval = s.interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.timeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.batch
	}
	return opts
}

func (s *Store) replicator(opts replica.Options) (*replica.Replicator, replica.Remote, error) {
	remote, err := s.dial(opts)
	if err != nil {
		return nil, nil, err
	}
	return replica.NewReplicator(s.db, remote, opts, s.log, s.reportSync), remote, nil
}

// reportSync hands a pass summary to OnSync through the dispatch queue.
func (s *Store) reportSync(info replica.Info) {
	if err := s.q.push(event{kind: kindSync, info: info}); err != nil {
		s.log.Debug().Str("pass", info.String()).Msg("dropping sync report after close")
	}
}

// notifyLive runs under the database write lock.
func (s *Store) notifyLive() {
	if lr := s.currentLive(); lr != nil {
		lr.rep.Notify()
	}
}

func (s *Store) currentLive() *liveRemote {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	return s.live
}

// ConnectRemote starts replication with the remote in opts, replacing any
// running replication. Only an invalid configuration is returned as an
// error; network failures are reported through OnSync and the store keeps
// working locally.
func (s *Store) ConnectRemote(ctx context.Context, opts replica.Options) error {
	if _, _, err := replica.ParseURL(opts.URL); err != nil {
		return err
	}
	opts = s.withDefaults(opts)

	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	s.disconnect()

	rep, remote, err := s.replicator(opts)
	if err != nil {
		return fmt.Errorf("connect remote: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	lr := &liveRemote{opts: opts, rep: rep, cancel: cancel, done: make(chan struct{})}

	s.remoteMu.Lock()
	cfg := opts
	s.configured = &cfg
	s.live = lr
	s.remoteMu.Unlock()

	s.log.Info().Str("remote", fmt.Sprint(remote)).Bool("live", opts.Live).Msg("connecting remote")

	go func() {
		defer close(lr.done)
		defer s.clearLive(lr)
		if err := remote.EnsureDatabase(runCtx); err != nil {
			if runCtx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("remote database unavailable")
			s.reportSync(replica.Info{Direction: replica.DirectionBoth, Errors: []error{err}})
			if !opts.Retry {
				return
			}
		}
		if !opts.Live {
			s.reportSync(rep.Once(runCtx))
			return
		}
		if err := rep.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Msg("live replication stopped")
		}
	}()
	return nil
}

// DisconnectRemote stops replication and waits for it to finish. The remote
// stays configured for SyncNow and DeleteAllAndSync.
func (s *Store) DisconnectRemote() {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	s.disconnect()
}

func (s *Store) disconnect() {
	s.remoteMu.Lock()
	lr := s.live
	s.live = nil
	s.remoteMu.Unlock()
	if lr == nil {
		return
	}
	lr.cancel()
	<-lr.done
	s.log.Info().Msg("remote disconnected")
}

// clearLive forgets lr once its replication ended on its own.
func (s *Store) clearLive(lr *liveRemote) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	if s.live == lr {
		s.live = nil
	}
}

// Remote returns the configured remote, if any.
func (s *Store) Remote() (replica.Options, bool) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	if s.configured == nil {
		return replica.Options{}, false
	}
	return *s.configured, true
}

// Connected reports whether replication is running. A one-shot pass or a
// live loop that stopped after a failure is no longer connected.
func (s *Store) Connected() bool {
	return s.currentLive() != nil
}

// SyncNow runs one push and pull pass against the configured remote. Network
// failures are returned in the Info, not as an error.
func (s *Store) SyncNow(ctx context.Context) (replica.Info, error) {
	opts, ok := s.Remote()
	if !ok {
		return replica.Info{}, apperrors.ErrNoRemote
	}

	rep, remote, err := s.replicator(opts)
	if err != nil {
		return replica.Info{}, fmt.Errorf("sync now: %w", err)
	}
	// Share the live replicator so passes never overlap.
	if lr := s.currentLive(); lr != nil {
		rep = lr.rep
	}

	var info replica.Info
	if err := remote.EnsureDatabase(ctx); err != nil {
		info = replica.Info{Direction: replica.DirectionBoth, Errors: []error{err}}
	} else {
		info = rep.Once(ctx)
	}
	s.reportSync(info)
	return info, nil
}

// DeleteAllLocal stops replication, removes every local document and
// forgets the remote.
func (s *Store) DeleteAllLocal(ctx context.Context) error {
	s.DisconnectRemote()
	if err := s.Flush(ctx); err != nil {
		return err
	}
	if err := s.db.Clear(ctx); err != nil {
		return fmt.Errorf("delete local data: %w", err)
	}
	s.q.reset()

	s.remoteMu.Lock()
	s.configured = nil
	s.remoteMu.Unlock()

	s.log.Info().Msg("local data deleted")
	return nil
}

// DeleteAllAndSync deletes every document here and on the remote. It fails
// with ErrNoRemote before touching anything when no remote is configured,
// and keeps the local database when the deletions could not be pushed.
func (s *Store) DeleteAllAndSync(ctx context.Context) error {
	opts, ok := s.Remote()
	if !ok {
		return fmt.Errorf("delete everywhere: %w", apperrors.ErrNoRemote)
	}
	s.DisconnectRemote()

	rep, remote, err := s.replicator(opts)
	if err != nil {
		return fmt.Errorf("delete everywhere: %w", err)
	}
	if err := remote.EnsureDatabase(ctx); err != nil {
		return fmt.Errorf("delete everywhere: %w", err)
	}

	// Pull first so documents only the remote has are tombstoned too.
	if info := rep.Pull(ctx); info.Failed() {
		s.reportSync(info)
		return fmt.Errorf("delete everywhere: pull: %w", info.Err())
	}

	docs, err := s.db.AllDocs(ctx)
	if err != nil {
		return fmt.Errorf("delete everywhere: %w", err)
	}
	for _, doc := range docs {
		if _, err := s.db.Delete(ctx, doc.ID, doc.Rev); err != nil && !errors.Is(err, docdb.ErrNotFound) {
			return fmt.Errorf("delete everywhere: %w", err)
		}
	}

	push := rep.Push(ctx)
	s.reportSync(push)
	if push.Failed() {
		return fmt.Errorf("delete everywhere: push: %w", push.Err())
	}

	return s.DeleteAllLocal(ctx)
}
