package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/secret"
)

// Keys held in local_state.
const (
	KeyAuthToken      = "auth_token"
	KeyAuthEmail      = "auth_email"
	KeyAccountID      = "account_id"
	KeyDeviceID       = "device_id"
	KeyFamily         = "family"
	KeyCurrentUser    = "current_user"
	KeyGitHubSync     = "github_sync"
	KeyLastSync       = "last_sync"
	KeyAPIURL         = "api_url"
	KeyDeepSeekAPIKey = "deepseek_api_key"
)

// sealedKeys are encrypted at rest when a sealer is configured.
var sealedKeys = map[string]bool{
	KeyAuthToken:      true,
	KeyGitHubSync:     true,
	KeyDeepSeekAPIKey: true,
}

// StateStore is the device-resident key/value cache.
type StateStore struct {
	db     *sql.DB
	sealer *secret.Sealer
}

// NewStateStore returns a StateStore. sealer may be nil.
func NewStateStore(db *sql.DB, sealer *secret.Sealer) *StateStore {
	return &StateStore{db: db, sealer: sealer}
}

// Get returns the value for key, or "" when it is not set.
func (s *StateStore) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM local_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %q: %w", key, err)
	}
	if sealedKeys[key] {
		value, err = s.sealer.Open(value)
		if err != nil {
			return "", fmt.Errorf("open state %q: %w", key, err)
		}
	}
	return value, nil
}

func (s *StateStore) Set(key, value string) error {
	if sealedKeys[key] {
		var err error
		value, err = s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("seal state %q: %w", key, err)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO local_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

func (s *StateStore) Delete(keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.Exec(`DELETE FROM local_state WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete state %q: %w", key, err)
		}
	}
	return nil
}

// Token returns the session token. It satisfies backend.TokenSource.
func (s *StateStore) Token() (string, error) {
	return s.Get(KeyAuthToken)
}

// Session returns the persisted login, or nil when logged out.
func (s *StateStore) Session() (*model.Session, error) {
	token, err := s.Get(KeyAuthToken)
	if err != nil || token == "" {
		return nil, err
	}
	email, err := s.Get(KeyAuthEmail)
	if err != nil {
		return nil, err
	}
	accountID, err := s.Get(KeyAccountID)
	if err != nil {
		return nil, err
	}
	return &model.Session{Token: token, Email: email, AccountID: accountID}, nil
}

func (s *StateStore) SetSession(sess model.Session) error {
	if err := s.Set(KeyAuthToken, sess.Token); err != nil {
		return err
	}
	if err := s.Set(KeyAuthEmail, sess.Email); err != nil {
		return err
	}
	return s.Set(KeyAccountID, sess.AccountID)
}

// ClearSession drops the token and identity of the logged-in account.
func (s *StateStore) ClearSession() error {
	return s.Delete(KeyAuthToken, KeyAuthEmail, KeyAccountID)
}

// SyncSettings returns the remote sync settings, or nil when none are saved.
func (s *StateStore) SyncSettings() (*model.SyncSettings, error) {
	raw, err := s.Get(KeyGitHubSync)
	if err != nil || raw == "" {
		return nil, err
	}
	var settings model.SyncSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("decode sync settings: %w", err)
	}
	return &settings, nil
}

func (s *StateStore) SetSyncSettings(settings model.SyncSettings) error {
	if settings.FilePath == "" {
		settings.FilePath = model.DefaultSyncFilePath
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode sync settings: %w", err)
	}
	return s.Set(KeyGitHubSync, string(data))
}

func (s *StateStore) ClearSyncSettings() error {
	return s.Delete(KeyGitHubSync)
}

// LastSync returns the time of the last successful sync, or nil.
func (s *StateStore) LastSync() (*time.Time, error) {
	raw, err := s.Get(KeyLastSync)
	if err != nil || raw == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse last sync: %w", err)
	}
	return &t, nil
}

func (s *StateStore) SetLastSync(t time.Time) error {
	return s.Set(KeyLastSync, t.UTC().Format(time.RFC3339Nano))
}

// DeviceID returns the device identity, generating and persisting it the
// first time. It is never regenerated.
func (s *StateStore) DeviceID() (string, error) {
	id, err := s.Get(KeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO local_state (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
		KeyDeviceID, id, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create device id: %w", err)
	}
	// Another writer may have won the insert.
	return s.Get(KeyDeviceID)
}
