package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON file per embed code id under a base directory.
// Files are named session-<code>.json with the code sanitized for the
// filesystem, so multiple widgets on one machine never collide.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir. The directory is
// created lazily on first save, not here, so constructing a store on a
// read-only filesystem still succeeds.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(codeID string) string {
	return filepath.Join(s.dir, "session-"+sanitizeCode(codeID)+".json")
}

// Load reads the persisted state for a code id. Missing, unreadable,
// malformed or wrong-version records all return a non-nil error; callers
// continue with Fresh().
func (s *FileStore) Load(codeID string) (State, error) {
	data, err := os.ReadFile(s.path(codeID))
	if err != nil {
		return Fresh(), fmt.Errorf("store: reading state for %s: %w", codeID, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return Fresh(), fmt.Errorf("store: corrupt state for %s: %w", codeID, err)
	}
	if st.Version != CurrentVersion {
		return Fresh(), fmt.Errorf("store: unknown state version %d for %s", st.Version, codeID)
	}
	if st.GreetingIndex < 0 {
		st.GreetingIndex = 0
	}

	return st, nil
}

// Save writes the state for a code id. The write is atomic per file
// (temp file + rename) so a crash mid-write never leaves a half-record
// behind to be read as corrupt.
func (s *FileStore) Save(codeID string, st State) error {
	st.Version = CurrentVersion

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: encoding state for %s: %w", codeID, err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("store: creating %s: %w", s.dir, err)
	}

	path := s.path(codeID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: writing state for %s: %w", codeID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: committing state for %s: %w", codeID, err)
	}

	return nil
}

// sanitizeCode makes an opaque embed code id safe to use in a filename.
func sanitizeCode(codeID string) string {
	var b strings.Builder
	for _, r := range codeID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
