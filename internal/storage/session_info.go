// Package storage persists machine-local session metadata so a session can be
// resumed against the same upstream conversation.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when no metadata exists for a session id.
var ErrNotFound = errors.New("session info not found")

// SessionInfo is durable, machine-local session metadata.
type SessionInfo struct {
	// SessionID is the local session id.
	SessionID string `json:"sessionId"`
	// AgentType is the upstream implementation serving the session.
	AgentType string `json:"agentType,omitempty"`
	// ResumeToken is the upstream correlation id captured from the first
	// init event.
	ResumeToken string `json:"resumeToken,omitempty"`
	// PermissionMode is the session's most recent permission mode.
	PermissionMode string `json:"permissionMode,omitempty"`
	// WorkDir is the session's working directory.
	WorkDir string `json:"workDir,omitempty"`
	// PlanFilePath is the last plan file written in plan mode.
	PlanFilePath string `json:"planFilePath,omitempty"`
	// UpdatedAtMs is the wall-clock timestamp of the most recent write.
	UpdatedAtMs int64 `json:"updatedAtMs,omitempty"`
}

// Store reads and writes SessionInfo entries under a home directory.
type Store struct {
	home string
}

// NewStore returns a Store rooted at home.
func NewStore(home string) (*Store, error) {
	if strings.TrimSpace(home) == "" {
		return nil, fmt.Errorf("missing delight home")
	}
	return &Store{home: home}, nil
}

// Home returns the store's root directory.
func (s *Store) Home() string {
	if s == nil {
		return ""
	}
	return s.home
}

// Load reads the entry for sessionID. It returns ErrNotFound when none
// exists.
func (s *Store) Load(sessionID string) (SessionInfo, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SessionInfo{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return SessionInfo{}, err
	}
	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session info %s: %w", sessionID, err)
	}
	return info, nil
}

// Save writes info atomically.
func (s *Store) Save(info SessionInfo) error {
	if strings.TrimSpace(info.SessionID) == "" {
		return fmt.Errorf("missing session id")
	}
	path, err := s.path(info.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	info.UpdatedAtMs = time.Now().UnixMilli()
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Update loads, mutates and persists the entry for sessionID, creating it
// when missing.
func (s *Store) Update(sessionID string, update func(*SessionInfo)) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("missing session id")
	}
	info, err := s.Load(sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		info = SessionInfo{SessionID: sessionID}
	case err != nil:
		return err
	}
	update(&info)
	info.SessionID = sessionID
	return s.Save(info)
}

// Delete removes the entry for sessionID. Deleting a missing entry is not an
// error.
func (s *Store) Delete(sessionID string) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return err
	}
	return nil
}

// List returns every stored entry, most recently updated first.
func (s *Store) List() ([]SessionInfo, error) {
	if s == nil {
		return nil, fmt.Errorf("nil store")
	}
	dirs, err := os.ReadDir(filepath.Join(s.home, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]SessionInfo, 0, len(dirs))
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		info, err := s.Load(d.Name())
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAtMs > out[j].UpdatedAtMs })
	return out, nil
}

// path returns the absolute path for a session's metadata file.
func (s *Store) path(sessionID string) (string, error) {
	if s == nil || strings.TrimSpace(s.home) == "" {
		return "", fmt.Errorf("missing delight home")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	sessionID = strings.ReplaceAll(sessionID, string(os.PathSeparator), "_")
	return filepath.Join(s.home, "sessions", sessionID, "session.json"), nil
}
