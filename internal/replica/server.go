package replica

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sadopc/sealtrack/internal/docdb"
)

// Server is a minimal remote replica. Each database is a docdb database,
// held in memory when dir is empty and stored as <dir>/<db>.db otherwise.
// It never sees plaintext: clients only push encrypted document bodies.
type Server struct {
	dir string
	log zerolog.Logger

	mu  sync.Mutex
	dbs map[string]*docdb.DB

	router *mux.Router
}

// NewServer returns a server storing databases under dir ("" = in memory).
func NewServer(dir string, log zerolog.Logger) *Server {
	s := &Server{dir: dir, log: log, dbs: make(map[string]*docdb.DB)}

	r := mux.NewRouter()
	db := "/{db:[A-Za-z0-9][A-Za-z0-9_.\\-]*}"
	r.HandleFunc(db, s.handleCreate).Methods(http.MethodPut)
	r.HandleFunc(db, s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc(db, s.handleDestroy).Methods(http.MethodDelete)
	r.HandleFunc(db+"/_changes", s.handleChanges).Methods(http.MethodGet)
	r.HandleFunc(db+"/_bulk_docs", s.handleBulkDocs).Methods(http.MethodPost)
	s.router = r
	return s
}

// Router exposes the route table so callers can mount extra handlers.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close closes every open database.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, db := range s.dbs {
		errs = append(errs, db.Close())
		delete(s.dbs, name)
	}
	return errors.Join(errs...)
}

func (s *Server) dbPath(name string) string {
	return filepath.Join(s.dir, name+".db")
}

// lookup returns the named database, opening it from disk if it exists there.
func (s *Server) lookup(name string) (*docdb.DB, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[name]; ok {
		return db, true, nil
	}
	if s.dir == "" {
		return nil, false, nil
	}
	if _, err := os.Stat(s.dbPath(name)); err != nil {
		return nil, false, nil
	}
	db, err := docdb.Open(s.dbPath(name))
	if err != nil {
		return nil, false, err
	}
	s.dbs[name] = db
	return db, true, nil
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["db"]

	s.mu.Lock()
	_, exists := s.dbs[name]
	if !exists && s.dir != "" {
		_, err := os.Stat(s.dbPath(name))
		exists = err == nil
	}
	if exists {
		s.mu.Unlock()
		s.writeError(w, http.StatusPreconditionFailed, "file_exists", "The database could not be created, the file already exists.")
		return
	}

	var (
		db  *docdb.DB
		err error
	)
	if s.dir == "" {
		db, err = docdb.OpenMemory()
	} else {
		db, err = docdb.Open(s.dbPath(name))
	}
	if err == nil {
		s.dbs[name] = db
	}
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return
	}

	s.log.Info().Str("db", name).Msg("database created")
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["db"]
	db, ok, err := s.lookup(name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return
	}

	s.mu.Lock()
	delete(s.dbs, name)
	s.mu.Unlock()
	db.Close()

	if s.dir != "" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			os.Remove(s.dbPath(name) + suffix)
		}
	}
	s.log.Info().Str("db", name).Msg("database deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["db"]
	db, ok := s.mustDB(w, name)
	if !ok {
		return
	}
	count, err := db.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return
	}
	seq, err := db.LastSeq(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DBInfo{DBName: name, DocCount: count, UpdateSeq: SeqOf(seq)})
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	db, ok := s.mustDB(w, mux.Vars(r)["db"])
	if !ok {
		return
	}

	q := r.URL.Query()
	var since int64
	if v := q.Get("since"); v != "" && v != "0" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "bad_request", "invalid since sequence")
			return
		}
		since = n
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "bad_request", "invalid limit")
			return
		}
		limit = n
	}
	includeDocs := q.Get("include_docs") == "true"

	docs, err := db.Changes(r.Context(), since, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return
	}

	out := ChangesResponse{Results: make([]Change, 0, len(docs)), LastSeq: SeqOf(since)}
	for _, doc := range docs {
		ch := Change{
			Seq:     SeqOf(doc.Seq),
			ID:      doc.ID,
			Changes: []RevRef{{Rev: doc.Rev}},
			Deleted: doc.Deleted,
		}
		if includeDocs {
			raw, err := EncodeDoc(doc)
			if err != nil {
				s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
				return
			}
			ch.Doc = raw
		}
		out.Results = append(out.Results, ch)
		out.LastSeq = ch.Seq
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBulkDocs(w http.ResponseWriter, r *http.Request) {
	db, ok := s.mustDB(w, mux.Vars(r)["db"])
	if !ok {
		return
	}

	var req BulkDocsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	newEdits := req.NewEdits == nil || *req.NewEdits

	results := make([]BulkResult, 0, len(req.Docs))
	for _, raw := range req.Docs {
		doc, err := DecodeDoc(raw)
		if err != nil {
			results = append(results, BulkResult{Error: "bad_request", Reason: err.Error()})
			continue
		}
		results = append(results, s.apply(r, db, doc, newEdits))
	}
	writeJSON(w, http.StatusCreated, results)
}

func (s *Server) apply(r *http.Request, db *docdb.DB, doc docdb.Doc, newEdits bool) BulkResult {
	ctx := r.Context()
	if !newEdits {
		if _, err := db.PutReplicated(ctx, doc, ""); err != nil {
			return BulkResult{ID: doc.ID, Error: "bad_request", Reason: err.Error()}
		}
		return BulkResult{ID: doc.ID, Rev: doc.Rev, OK: true}
	}

	var (
		stored docdb.Doc
		err    error
	)
	if doc.Deleted {
		stored, err = db.Delete(ctx, doc.ID, doc.Rev)
	} else {
		stored, err = db.Put(ctx, doc.ID, doc.Rev, doc.Body)
	}
	switch {
	case errors.Is(err, docdb.ErrConflict):
		return BulkResult{ID: doc.ID, Error: "conflict", Reason: "Document update conflict."}
	case errors.Is(err, docdb.ErrNotFound):
		return BulkResult{ID: doc.ID, Error: "not_found", Reason: "missing"}
	case err != nil:
		return BulkResult{ID: doc.ID, Error: "bad_request", Reason: err.Error()}
	}
	return BulkResult{ID: stored.ID, Rev: stored.Rev, OK: true}
}

func (s *Server) mustDB(w http.ResponseWriter, name string) (*docdb.DB, bool) {
	db, ok, err := s.lookup(name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
		return nil, false
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
		return nil, false
	}
	return db, true
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, reason string) {
	if status >= http.StatusInternalServerError {
		s.log.Error().Int("status", status).Str("reason", reason).Msg("replica request failed")
	}
	writeJSON(w, status, map[string]string{"error": code, "reason": reason})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
