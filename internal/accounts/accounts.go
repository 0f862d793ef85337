// Package accounts keeps the list of local accounts and the device id each
// one uses, in a TOML file next to the databases.
package accounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	apperrors "github.com/sadopc/sealtrack/internal/errors"
)

// ErrAccountExists is returned by Register for a known username.
var ErrAccountExists = errors.New("account already exists")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Account is one registered local account.
type Account struct {
	DeviceID  string    `toml:"device_id"`
	CreatedAt time.Time `toml:"created_at"`
}

type registryFile struct {
	Accounts map[string]Account `toml:"accounts"`
}

// Registry is the account list stored at one path.
type Registry struct {
	path string

	mu   sync.Mutex
	file registryFile
}

// ValidateUsername rejects empty names and names that are unsafe in a file
// name.
func ValidateUsername(username string) error {
	if username == "" {
		return apperrors.Validation("username is empty")
	}
	if !usernamePattern.MatchString(username) {
		return apperrors.Validation("username %q may only use letters, digits, '.', '_' and '-'", username)
	}
	return nil
}

// Open loads the registry at path. A missing file is an empty registry.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, file: registryFile{Accounts: make(map[string]Account)}}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return r, nil
	}
	if _, err := toml.DecodeFile(path, &r.file); err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	if r.file.Accounts == nil {
		r.file.Accounts = make(map[string]Account)
	}
	return r, nil
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// List returns every username, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.file.Accounts))
	for name := range r.file.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists reports whether username is registered.
func (r *Registry) Exists(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.file.Accounts[username]
	return ok
}

// Get returns the registered account of username.
func (r *Registry) Get(username string) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.file.Accounts[username]
	return acct, ok
}

// Register adds username with a fresh device id.
func (r *Registry) Register(username string) (Account, error) {
	if err := ValidateUsername(username); err != nil {
		return Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.file.Accounts[username]; ok {
		return Account{}, fmt.Errorf("register %s: %w", username, ErrAccountExists)
	}
	acct := Account{DeviceID: uuid.New().String(), CreatedAt: time.Now().UTC().Truncate(time.Second)}
	r.file.Accounts[username] = acct
	if err := r.save(); err != nil {
		delete(r.file.Accounts, username)
		return Account{}, err
	}
	return acct, nil
}

// DeviceID returns the device id of username, registering the account when
// it is not known yet.
func (r *Registry) DeviceID(username string) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}

	r.mu.Lock()
	acct, ok := r.file.Accounts[username]
	r.mu.Unlock()
	if ok && acct.DeviceID != "" {
		return acct.DeviceID, nil
	}

	acct, err := r.Register(username)
	if errors.Is(err, ErrAccountExists) {
		// Registered concurrently.
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.file.Accounts[username].DeviceID, nil
	}
	if err != nil {
		return "", err
	}
	return acct.DeviceID, nil
}

// Remove forgets username. The account's database file is left alone.
func (r *Registry) Remove(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.file.Accounts[username]; !ok {
		return fmt.Errorf("remove %s: %w", username, apperrors.ErrNotFound)
	}
	delete(r.file.Accounts, username)
	return r.save()
}

func (r *Registry) save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create accounts directory: %w", err)
	}

	tmp := r.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	if err := toml.NewEncoder(file).Encode(r.file); err != nil {
		file.Close()
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}
