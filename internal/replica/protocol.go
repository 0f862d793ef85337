// Package replica replicates a local docdb database with a remote replica
// over a subset of the CouchDB HTTP protocol: database create/delete/info,
// GET /{db}/_changes and POST /{db}/_bulk_docs with new_edits=false.
package replica

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sadopc/sealtrack/internal/docdb"
)

// Seq is an opaque update sequence. Servers may send it as a JSON number or a
// JSON string; it is only ever echoed back as the next since value.
type Seq string

// UnmarshalJSON accepts numbers, strings and null.
func (s *Seq) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Seq(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("seq: %w", err)
		}
		*s = Seq(n.String())
	}
	return nil
}

// MarshalJSON writes integer sequences as numbers and anything else as a
// string.
func (s Seq) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(s), 10, 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

// SeqOf formats a local sequence number.
func SeqOf(n int64) Seq { return Seq(strconv.FormatInt(n, 10)) }

// DBInfo is the body of GET /{db}.
type DBInfo struct {
	DBName    string `json:"db_name"`
	DocCount  int    `json:"doc_count"`
	UpdateSeq Seq    `json:"update_seq"`
}

// RevRef names one leaf revision in a change row.
type RevRef struct {
	Rev string `json:"rev"`
}

// Change is one row of a _changes response.
type Change struct {
	Seq     Seq             `json:"seq"`
	ID      string          `json:"id"`
	Changes []RevRef        `json:"changes"`
	Deleted bool            `json:"deleted,omitempty"`
	Doc     json.RawMessage `json:"doc,omitempty"`
}

// ChangesResponse is the body of GET /{db}/_changes.
type ChangesResponse struct {
	Results []Change `json:"results"`
	LastSeq Seq      `json:"last_seq"`
}

// BulkDocsRequest is the body of POST /{db}/_bulk_docs.
type BulkDocsRequest struct {
	Docs     []json.RawMessage `json:"docs"`
	NewEdits *bool             `json:"new_edits,omitempty"`
}

// BulkResult is one element of a _bulk_docs response.
type BulkResult struct {
	ID     string `json:"id"`
	Rev    string `json:"rev,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// EncodeDoc renders a stored document in wire form: its body fields plus
// _id, _rev and, for tombstones, _deleted.
func EncodeDoc(doc docdb.Doc) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if !doc.Deleted && len(doc.Body) > 0 {
		if err := json.Unmarshal(doc.Body, &fields); err != nil {
			return nil, fmt.Errorf("encode %s: %w", doc.ID, err)
		}
	}
	id, _ := json.Marshal(doc.ID)
	rev, _ := json.Marshal(doc.Rev)
	fields["_id"] = id
	fields["_rev"] = rev
	if doc.Deleted {
		fields["_deleted"] = json.RawMessage("true")
	}
	return json.Marshal(fields)
}

// DecodeDoc parses a wire document. Underscore-prefixed fields other than
// _id, _rev and _deleted are dropped.
func DecodeDoc(raw json.RawMessage) (docdb.Doc, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return docdb.Doc{}, fmt.Errorf("decode doc: %w", err)
	}

	var doc docdb.Doc
	if v, ok := fields["_id"]; ok {
		if err := json.Unmarshal(v, &doc.ID); err != nil {
			return docdb.Doc{}, fmt.Errorf("decode _id: %w", err)
		}
	}
	if v, ok := fields["_rev"]; ok {
		if err := json.Unmarshal(v, &doc.Rev); err != nil {
			return docdb.Doc{}, fmt.Errorf("decode _rev: %w", err)
		}
	}
	if v, ok := fields["_deleted"]; ok {
		if err := json.Unmarshal(v, &doc.Deleted); err != nil {
			return docdb.Doc{}, fmt.Errorf("decode _deleted: %w", err)
		}
	}
	if doc.ID == "" {
		return docdb.Doc{}, fmt.Errorf("decode doc: missing _id")
	}

	for k := range fields {
		if strings.HasPrefix(k, "_") {
			delete(fields, k)
		}
	}
	if doc.Deleted {
		doc.Body = json.RawMessage(`{}`)
		return doc, nil
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return docdb.Doc{}, fmt.Errorf("decode %s body: %w", doc.ID, err)
	}
	doc.Body = body
	return doc, nil
}
