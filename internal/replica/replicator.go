package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/sadopc/sealtrack/internal/docdb"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 100
)

// Options configures replication with one remote database.
type Options struct {
	URL string
	// Live keeps replicating until the context is cancelled.
	Live bool
	// Retry backs off and tries again after a failed live pass. Without it
	// the live loop ends on the first failure.
	Retry     bool
	Interval  time.Duration
	Timeout   time.Duration
	BatchSize int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Equal reports whether two option sets describe the same replication.
func (o Options) Equal(other Options) bool {
	return o.URL == other.URL && o.Live == other.Live && o.Retry == other.Retry
}

// Direction of a replication pass.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// Info summarizes one replication pass.
type Info struct {
	Direction   Direction
	DocsRead    int
	DocsWritten int
	Errors      []error
}

// Idle reports whether the pass moved nothing and failed nothing.
func (i Info) Idle() bool {
	return i.DocsRead == 0 && i.DocsWritten == 0 && len(i.Errors) == 0
}

// Failed reports whether the pass recorded any error.
func (i Info) Failed() bool { return len(i.Errors) > 0 }

// Err joins the recorded errors.
func (i Info) Err() error { return errors.Join(i.Errors...) }

func (i Info) String() string {
	s := fmt.Sprintf("%s: read %d, written %d", i.Direction, i.DocsRead, i.DocsWritten)
	if len(i.Errors) > 0 {
		s += fmt.Sprintf(", %d errors", len(i.Errors))
	}
	return s
}

func (i *Info) merge(other Info) {
	i.DocsRead += other.DocsRead
	i.DocsWritten += other.DocsWritten
	i.Errors = append(i.Errors, other.Errors...)
}

// Remote is the replication target. *Client implements it.
type Remote interface {
	ID() string
	EnsureDatabase(ctx context.Context) error
	Changes(ctx context.Context, since Seq, limit int) (ChangesResponse, error)
	BulkDocs(ctx context.Context, docs []json.RawMessage) ([]BulkResult, error)
}

// Replicator moves documents between a local database and a remote one.
type Replicator struct {
	local  *docdb.DB
	remote Remote
	opts   Options
	log    zerolog.Logger
	report func(Info)
	wake   chan struct{}

	// mu keeps passes from overlapping so checkpoints only move forward.
	mu sync.Mutex
}

// NewReplicator returns a replicator. report, when set, receives every
// non-idle live pass.
func NewReplicator(local *docdb.DB, remote Remote, opts Options, log zerolog.Logger, report func(Info)) *Replicator {
	return &Replicator{
		local:  local,
		remote: remote,
		opts:   opts.withDefaults(),
		log:    log,
		report: report,
		wake:   make(chan struct{}, 1),
	}
}

// Notify schedules a live pass soon. It never blocks.
func (r *Replicator) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Replicator) pushKey() string { return "replica:push:" + r.remote.ID() }
func (r *Replicator) pullKey() string { return "replica:pull:" + r.remote.ID() }

// Push sends local changes since the last push checkpoint. Documents that
// were pulled from this remote are skipped.
func (r *Replicator) Push(ctx context.Context) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.push(ctx)
}

func (r *Replicator) push(ctx context.Context) Info {
	info := Info{Direction: DirectionPush}

	cp, err := r.local.GetLocal(ctx, r.pushKey())
	if err != nil {
		info.Errors = append(info.Errors, err)
		return info
	}
	var since int64
	if cp != "" {
		since, _ = strconv.ParseInt(cp, 10, 64)
	}

	for {
		docs, err := r.local.Changes(ctx, since, r.opts.BatchSize)
		if err != nil {
			info.Errors = append(info.Errors, err)
			return info
		}
		if len(docs) == 0 {
			return info
		}

		batch := make([]json.RawMessage, 0, len(docs))
		for _, doc := range docs {
			if doc.Origin == r.remote.ID() {
				continue
			}
			raw, err := EncodeDoc(doc)
			if err != nil {
				info.Errors = append(info.Errors, err)
				return info
			}
			batch = append(batch, raw)
		}
		info.DocsRead += len(batch)

		if len(batch) > 0 {
			results, err := r.remote.BulkDocs(ctx, batch)
			if err != nil {
				info.Errors = append(info.Errors, err)
				return info
			}
			failed := false
			for _, res := range results {
				if res.Error != "" {
					failed = true
					info.Errors = append(info.Errors, fmt.Errorf("push %s: %s: %s", res.ID, res.Error, res.Reason))
				}
			}
			// new_edits=false servers may legitimately return an empty list.
			if len(results) == 0 {
				info.DocsWritten += len(batch)
			} else {
				info.DocsWritten += len(results) - countFailed(results)
			}
			if failed {
				return info
			}
		}

		since = docs[len(docs)-1].Seq
		if err := r.local.PutLocal(ctx, r.pushKey(), strconv.FormatInt(since, 10)); err != nil {
			info.Errors = append(info.Errors, err)
			return info
		}
		if len(docs) < r.opts.BatchSize {
			return info
		}
	}
}

func countFailed(results []BulkResult) int {
	n := 0
	for _, res := range results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// Pull applies remote changes since the last pull checkpoint. Each document
// is written through the local database on its own, so an aborted pass never
// leaves a document half applied.
func (r *Replicator) Pull(ctx context.Context) Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pull(ctx)
}

func (r *Replicator) pull(ctx context.Context) Info {
	info := Info{Direction: DirectionPull}

	cp, err := r.local.GetLocal(ctx, r.pullKey())
	if err != nil {
		info.Errors = append(info.Errors, err)
		return info
	}
	since := Seq(cp)

	for {
		resp, err := r.remote.Changes(ctx, since, r.opts.BatchSize)
		if err != nil {
			info.Errors = append(info.Errors, err)
			return info
		}

		for _, ch := range resp.Results {
			info.DocsRead++
			doc, err := changeDoc(ch)
			if err != nil {
				info.Errors = append(info.Errors, err)
				return info
			}
			applied, err := r.local.PutReplicated(ctx, doc, r.remote.ID())
			if err != nil {
				info.Errors = append(info.Errors, err)
				return info
			}
			if applied {
				info.DocsWritten++
			}
		}

		if len(resp.Results) == 0 || resp.LastSeq == since {
			return info
		}
		since = resp.LastSeq
		if err := r.local.PutLocal(ctx, r.pullKey(), string(since)); err != nil {
			info.Errors = append(info.Errors, err)
			return info
		}
		if len(resp.Results) < r.opts.BatchSize {
			return info
		}
	}
}

func changeDoc(ch Change) (docdb.Doc, error) {
	if len(ch.Doc) > 0 && string(ch.Doc) != "null" {
		return DecodeDoc(ch.Doc)
	}
	if len(ch.Changes) == 0 {
		return docdb.Doc{}, fmt.Errorf("pull %s: change has no revision", ch.ID)
	}
	if !ch.Deleted {
		return docdb.Doc{}, fmt.Errorf("pull %s: change has no document body", ch.ID)
	}
	return docdb.Doc{ID: ch.ID, Rev: ch.Changes[0].Rev, Deleted: true}, nil
}

// Once runs a push followed by a pull.
func (r *Replicator) Once(ctx context.Context) Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := Info{Direction: DirectionBoth}
	info.merge(r.push(ctx))
	if ctx.Err() == nil {
		info.merge(r.pull(ctx))
	}
	observe(info)
	return info
}

// pass runs Once. After a failure the remote database is ensured first,
// since a remote that restarted may have lost it.
func (r *Replicator) pass(ctx context.Context, recovering bool) Info {
	if recovering {
		if err := r.remote.EnsureDatabase(ctx); err != nil {
			info := Info{Direction: DirectionBoth, Errors: []error{err}}
			observe(info)
			return info
		}
	}
	return r.Once(ctx)
}

// Run replicates until ctx is cancelled: a pass on start, then every
// Interval and on Notify. Failed passes back off exponentially when Retry is
// set; otherwise Run returns the first failure.
func (r *Replicator) Run(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = time.Second
	exp.MaxInterval = 5 * time.Minute
	exp.MaxElapsedTime = 0
	exp.Reset()

	timer := time.NewTimer(0)
	defer timer.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-r.wake:
			if failing {
				continue
			}
		}

		info := r.pass(ctx, failing)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !info.Idle() && r.report != nil {
			r.report(info)
		}

		wait := r.opts.Interval
		if info.Failed() {
			if !r.opts.Retry {
				return info.Err()
			}
			failing = true
			wait = exp.NextBackOff()
			r.log.Warn().Err(info.Err()).Dur("retry_in", wait).Msg("replication pass failed")
		} else {
			failing = false
			exp.Reset()
			if !info.Idle() {
				r.log.Debug().Str("pass", info.String()).Msg("replication pass")
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
	}
}
