package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	storeVersion  = 1
	storeFileName = "identity.json"
	appDirName    = "repairdesk"
)

// persisted is the on-disk form of a session. Only the refresh token is
// needed to restore; the rest is for humans poking at the file.
type persisted struct {
	Version      int       `json:"version"`
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	RefreshToken string    `json:"refreshToken"`
	SavedAt      time.Time `json:"savedAt"`
}

// Store keeps the refresh token between runs in
// ~/.local/state/repairdesk/identity.json (respecting XDG_STATE_HOME).
type Store struct {
	dir string
}

// NewStore creates a Store in dir. Pass "" for the default XDG state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Store{dir: dir}
}

// Path returns the full path to the session file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, storeFileName)
}

// Load returns the saved session, or nil if there is none.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	if p.RefreshToken == "" {
		return nil, nil
	}
	return &Session{UID: p.UID, Email: p.Email, RefreshToken: p.RefreshToken}, nil
}

// Save writes the session using temp-file-then-rename. The file is 0600.
func (s *Store) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(persisted{
		Version:      storeVersion,
		UID:          sess.UID,
		Email:        sess.Email,
		RefreshToken: sess.RefreshToken,
		SavedAt:      time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".identity-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming session file: %w", err)
	}
	committed = true
	return nil
}

// Clear removes the session file. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
