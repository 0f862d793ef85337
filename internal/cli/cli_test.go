package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadopc/sealtrack/internal/accounts"
	"github.com/sadopc/sealtrack/internal/replica"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["accounts"])
	assert.NotNil(t, cmd.PersistentFlags().Lookup("data-dir"))
}

func TestRootRejectsBadConfig(t *testing.T) {
	t.Setenv("SEALTRACK_LOG_FORMAT", "xml")
	_, err := execute(t, "accounts", "list", "--data-dir", t.TempDir())
	require.Error(t, err)
}

func TestAccountsListEmpty(t *testing.T) {
	out, err := execute(t, "accounts", "list", "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "no accounts")
}

func TestAccountsList(t *testing.T) {
	dir := t.TempDir()
	reg, err := accounts.Open(filepath.Join(dir, "accounts.toml"))
	require.NoError(t, err)
	acct, err := reg.Register("alice")
	require.NoError(t, err)

	out, err := execute(t, "accounts", "list", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, acct.DeviceID)
}

func TestAccountsRemovePurge(t *testing.T) {
	dir := t.TempDir()
	reg, err := accounts.Open(filepath.Join(dir, "accounts.toml"))
	require.NoError(t, err)
	acct, err := reg.Register("alice")
	require.NoError(t, err)

	dbPath := filepath.Join(dir, "sealtrack-alice-"+acct.DeviceID+".db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("x"), 0o600))

	out, err := execute(t, "accounts", "remove", "alice", "--purge", "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "removed alice")

	assert.NoFileExists(t, dbPath)
	assert.NoFileExists(t, dbPath+"-wal")

	reopened, err := accounts.Open(filepath.Join(dir, "accounts.toml"))
	require.NoError(t, err)
	assert.Empty(t, reopened.List())
}

func TestAccountsRemoveKeepsDatabase(t *testing.T) {
	dir := t.TempDir()
	reg, err := accounts.Open(filepath.Join(dir, "accounts.toml"))
	require.NoError(t, err)
	acct, err := reg.Register("alice")
	require.NoError(t, err)
	dbPath := filepath.Join(dir, "sealtrack-alice-"+acct.DeviceID+".db")
	require.NoError(t, os.WriteFile(dbPath, []byte("x"), 0o600))

	_, err = execute(t, "accounts", "remove", "alice", "--data-dir", dir)
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestAccountsRemoveUnknown(t *testing.T) {
	_, err := execute(t, "accounts", "remove", "nobody", "--data-dir", t.TempDir())
	require.Error(t, err)
}

func TestReplicaHandlerServesMetricsAndDatabases(t *testing.T) {
	srv := replica.NewServer("", zerolog.Nop())
	t.Cleanup(func() { _ = srv.Close() })
	ts := httptest.NewServer(newReplicaHandler(srv))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/acts", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/acts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, t.TempDir(), zerolog.Nop()) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
