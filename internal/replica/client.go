package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/sadopc/sealtrack/internal/errors"
)

// DefaultTimeout bounds every remote request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client talks to one database on a remote replica.
type Client struct {
	client *resty.Client
	db     string
	// display is the URL without credentials, safe to log.
	display string
	id      string
}

// ParseURL validates a remote URL of the form
// http(s)://[user:pass@]host[:port]/<db> and returns it with the database
// name split off.
func ParseURL(rawURL string) (*url.URL, string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, "", apperrors.Configuration("remote url is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", apperrors.Configuration("remote url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", apperrors.Configuration("remote url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, "", apperrors.Configuration("remote url has no host")
	}
	db := strings.Trim(u.Path, "/")
	if db == "" || strings.Contains(db, "/") {
		return nil, "", apperrors.Configuration("remote url must name exactly one database")
	}
	return u, db, nil
}

// NewClient returns a client for rawURL. Credentials in the URL userinfo are
// sent as basic auth.
func NewClient(rawURL string, timeout time.Duration) (*Client, error) {
	u, db, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := u.Scheme + "://" + u.Host
	c := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if u.User != nil {
		pass, _ := u.User.Password()
		c.SetBasicAuth(u.User.Username(), pass)
	}

	display := base + "/" + db
	h := fnv.New64a()
	_, _ = h.Write([]byte(display))

	return &Client{
		client:  c,
		db:      db,
		display: display,
		id:      strconv.FormatUint(h.Sum64(), 16),
	}, nil
}

// DB returns the remote database name.
func (c *Client) DB() string { return c.db }

// ID is a stable identifier of the remote database, used for checkpoints and
// origin tags.
func (c *Client) ID() string { return c.id }

func (c *Client) String() string { return c.display }

func (c *Client) path(suffix string) string {
	return "/" + url.PathEscape(c.db) + suffix
}

// EnsureDatabase creates the remote database. An existing database is not an
// error.
func (c *Client) EnsureDatabase(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Put(c.path(""))
	if err != nil {
		return fmt.Errorf("create remote db: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusCreated, http.StatusAccepted, http.StatusOK, http.StatusPreconditionFailed:
		return nil
	}
	return statusError("create remote db", resp)
}

// DeleteDatabase drops the remote database. A missing database is not an
// error.
func (c *Client) DeleteDatabase(ctx context.Context) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Delete(c.path(""))
	if err != nil {
		return fmt.Errorf("delete remote db: %w", err)
	}
	if resp.IsSuccess() || resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return statusError("delete remote db", resp)
}

// Info returns the remote database info.
func (c *Client) Info(ctx context.Context) (DBInfo, error) {
	var info DBInfo
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&info).
		Get(c.path(""))
	if err != nil {
		return DBInfo{}, fmt.Errorf("remote db info: %w", err)
	}
	if !resp.IsSuccess() {
		return DBInfo{}, statusError("remote db info", resp)
	}
	return info, nil
}

// Changes reads up to limit changes after since, with documents included.
func (c *Client) Changes(ctx context.Context, since Seq, limit int) (ChangesResponse, error) {
	params := map[string]string{"include_docs": "true"}
	if since != "" {
		params["since"] = string(since)
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var out ChangesResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(c.path("/_changes"))
	if err != nil {
		return ChangesResponse{}, fmt.Errorf("remote changes: %w", err)
	}
	if !resp.IsSuccess() {
		return ChangesResponse{}, statusError("remote changes", resp)
	}
	return out, nil
}

// BulkDocs writes docs as already-revisioned replicas (new_edits=false).
func (c *Client) BulkDocs(ctx context.Context, docs []json.RawMessage) ([]BulkResult, error) {
	newEdits := false
	var out []BulkResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&BulkDocsRequest{Docs: docs, NewEdits: &newEdits}).
		SetResult(&out).
		Post(c.path("/_bulk_docs"))
	if err != nil {
		return nil, fmt.Errorf("remote bulk docs: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError("remote bulk docs", resp)
	}
	return out, nil
}

func statusError(op string, resp *resty.Response) error {
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s: status %d: %s: %s", op, resp.StatusCode(), body.Error, body.Reason)
	}
	return fmt.Errorf("%s: status %d", op, resp.StatusCode())
}
