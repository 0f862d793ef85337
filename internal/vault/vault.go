// Package vault is the encrypted document store. Every document is
// encrypted before it reaches the local database and decrypted when it comes
// back out of the change feed. Handlers see only decrypted documents and are
// called from a single dispatcher goroutine in commit order.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sadopc/sealtrack/internal/crypto"
	"github.com/sadopc/sealtrack/internal/docdb"
	apperrors "github.com/sadopc/sealtrack/internal/errors"
	"github.com/sadopc/sealtrack/internal/replica"
)

// FormatVersion is the stored body version understood by this package.
const FormatVersion = 1

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("vault closed")

// Document is a decrypted document. Data is the JSON payload without id and
// rev.
type Document struct {
	ID   string
	Rev  string
	Data json.RawMessage
}

// Handlers receive decrypted events. Any field may be nil.
type Handlers struct {
	OnChange func(docType string, doc Document)
	OnDelete func(docType, id string)
	OnSync   func(info replica.Info)
	OnError  func(err error)
}

// Dialer builds the remote for a replication configuration.
type Dialer func(opts replica.Options) (replica.Remote, error)

// DialHTTP is the default Dialer.
func DialHTTP(opts replica.Options) (replica.Remote, error) {
	return replica.NewClient(opts.URL, opts.Timeout)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithSyncInterval sets the live replication interval.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// WithRemoteTimeout bounds every remote request.
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithBatchSize sets the replication batch size.
func WithBatchSize(n int) Option {
	return func(s *Store) { s.batch = n }
}

// WithDialer replaces the remote factory.
func WithDialer(d Dialer) Option {
	return func(s *Store) { s.dial = d }
}

type storedBody struct {
	Data string `json:"data"`
	V    int    `json:"v"`
}

// Store is the encrypted document store for one unlocked session.
type Store struct {
	db     *docdb.DB
	helper *crypto.Helper
	log    zerolog.Logger

	interval time.Duration
	timeout  time.Duration
	batch    int
	dial     Dialer

	hmu      sync.RWMutex
	handlers Handlers

	q           *queue
	unsubscribe func()

	// connectMu serializes ConnectRemote and DisconnectRemote.
	connectMu  sync.Mutex
	remoteMu   sync.Mutex
	configured *replica.Options
	live       *liveRemote
}

// New wraps db so that every document is encrypted with helper. It starts
// the dispatcher; call Close to stop it.
func New(db *docdb.DB, helper *crypto.Helper, opts ...Option) *Store {
	s := &Store{
		db:     db,
		helper: helper,
		log:    zerolog.Nop(),
		dial:   DialHTTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.q = newQueue(s.deliver)
	s.unsubscribe = db.Subscribe(s.onFeed)
	return s
}

// SetHandlers replaces the event handlers.
func (s *Store) SetHandlers(h Handlers) {
	s.hmu.Lock()
	s.handlers = h
	s.hmu.Unlock()
}

func (s *Store) currentHandlers() Handlers {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.handlers
}

// Put encrypts doc and writes it under docType. An empty ID gets a new
// UUID; the logical id is returned. The decrypted document reaches handlers
// through OnChange once the write is committed.
func (s *Store) Put(ctx context.Context, docType string, doc Document) (string, error) {
	if err := validType(docType); err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	data := doc.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if !json.Valid(data) {
		return "", apperrors.Validation("%s %s: payload is not valid JSON", docType, doc.ID)
	}

	envelope, err := s.helper.Encrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("encrypt %s: %w", docType, err)
	}
	body, err := json.Marshal(storedBody{Data: envelope, V: FormatVersion})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", docType, err)
	}

	if _, err := s.db.Put(ctx, storageID(docType, doc.ID), doc.Rev, body); err != nil {
		return "", fmt.Errorf("put %s: %w", docType, err)
	}
	return doc.ID, nil
}

// Delete tombstones the current revision of docType/id.
func (s *Store) Delete(ctx context.Context, docType, id string) error {
	if err := validType(docType); err != nil {
		return err
	}
	sid := storageID(docType, id)

	for attempt := 0; attempt < 3; attempt++ {
		cur, err := s.db.Get(ctx, sid)
		if errors.Is(err, docdb.ErrNotFound) || (err == nil && cur.Deleted) {
			return fmt.Errorf("delete %s %s: %w", docType, id, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", docType, err)
		}
		_, err = s.db.Delete(ctx, sid, cur.Rev)
		if errors.Is(err, docdb.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", docType, err)
		}
		return nil
	}
	return fmt.Errorf("delete %s %s: %w", docType, id, docdb.ErrConflict)
}

// LoadAll decrypts every stored document and delivers it to OnChange. Any
// decrypt failure means the passphrase does not match the stored data and is
// reported as ErrInvalidPassphrase; nothing is delivered in that case.
func (s *Store) LoadAll(ctx context.Context) error {
	docs, err := s.db.AllDocs(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}

	events := make([]event, 0, len(docs))
	for _, doc := range docs {
		ev, ok, err := s.decode(doc)
		if err != nil {
			s.log.Debug().Err(err).Str("id", doc.ID).Msg("load failed to decrypt document")
			return apperrors.InvalidPassphrase(err)
		}
		if ok {
			events = append(events, ev)
		}
	}

	if err := s.q.push(events...); err != nil {
		return err
	}
	return s.Flush(ctx)
}

// Flush waits until every event committed before the call has been handed to
// the handlers. It must not be called from a handler.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.q.push(event{kind: kindBarrier, barrier: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects the remote, stops the dispatcher and drops pending
// events. The database itself stays open.
func (s *Store) Close() {
	s.DisconnectRemote()
	s.unsubscribe()
	s.q.close()
}

// onFeed runs under the database write lock, so it only decodes and queues.
func (s *Store) onFeed(doc docdb.Doc) {
	if doc.Origin == "" {
		s.notifyLive()
	}
	ev, ok, err := s.decode(doc)
	if err != nil {
		ev = event{kind: kindError, err: err, seq: doc.Seq}
	} else if !ok {
		return
	}
	if err := s.q.push(ev); err != nil {
		s.log.Debug().Err(err).Str("id", doc.ID).Msg("dropping change after close")
	}
}

// decode turns a stored document into an event. ok is false for documents
// outside the <type>:<id> namespace.
func (s *Store) decode(doc docdb.Doc) (event, bool, error) {
	docType, id, ok := splitID(doc.ID)
	if !ok {
		return event{}, false, nil
	}
	if doc.Deleted {
		return event{kind: kindDelete, docType: docType, id: id, sid: doc.ID, seq: doc.Seq}, true, nil
	}

	var body storedBody
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		return event{}, false, apperrors.NewDecryptionError("malformed document body", err)
	}
	if body.V != FormatVersion {
		return event{}, false, apperrors.NewDecryptionError(fmt.Sprintf("unsupported format version %d", body.V), nil)
	}
	plain, err := s.helper.Decrypt(body.Data)
	if err != nil {
		return event{}, false, err
	}
	if !json.Valid([]byte(plain)) {
		return event{}, false, apperrors.NewDecryptionError("payload is not JSON", nil)
	}

	return event{
		kind:    kindChange,
		docType: docType,
		sid:     doc.ID,
		seq:     doc.Seq,
		doc:     Document{ID: id, Rev: doc.Rev, Data: json.RawMessage(plain)},
	}, true, nil
}

func (s *Store) deliver(ev event) {
	h := s.currentHandlers()
	switch ev.kind {
	case kindChange:
		if h.OnChange != nil {
			h.OnChange(ev.docType, ev.doc)
		}
	case kindDelete:
		if h.OnDelete != nil {
			h.OnDelete(ev.docType, ev.id)
		}
	case kindSync:
		if h.OnSync != nil {
			h.OnSync(ev.info)
		}
	case kindError:
		s.log.Warn().Err(ev.err).Msg("skipping undecryptable document")
		if h.OnError != nil {
			h.OnError(ev.err)
		}
	}
}

func validType(docType string) error {
	if docType == "" || strings.Contains(docType, ":") {
		return apperrors.Validation("invalid document type %q", docType)
	}
	return nil
}

func storageID(docType, id string) string { return docType + ":" + id }

func splitID(sid string) (docType, id string, ok bool) {
	docType, id, ok = strings.Cut(sid, ":")
	if !ok || docType == "" || id == "" {
		return "", "", false
	}
	return docType, id, true
}
