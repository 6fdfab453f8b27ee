package images

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agini/astro-notion-blog/internal/config"
)

// FileState records one downloaded image.
type FileState struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// downloadState is the on-disk state document. Files is keyed by the
// SHA256 of the source URL so expiring signed query strings on hosted
// files do not produce duplicate keys for the same object.
type downloadState struct {
	ImageDir string                `json:"image_dir"`
	Files    map[string]*FileState `json:"files"`
}

// StateTracker tracks which image URLs have already been downloaded so
// repeated syncs skip unchanged files.
type StateTracker struct {
	state    *downloadState
	filePath string
	mu       sync.RWMutex
	dirty    bool
}

// NewStateTracker creates a tracker scoped to one image directory. State
// files live under the per-user state dir, one per directory.
func NewStateTracker(imageDir string) (*StateTracker, error) {
	stateDir, err := config.GetStateDir()
	if err != nil {
		return nil, err
	}

	dirHash := HashString(imageDir)[:12]
	filePath := filepath.Join(stateDir, "images-"+dirHash+".json")

	st := &StateTracker{
		filePath: filePath,
		state: &downloadState{
			ImageDir: imageDir,
			Files:    make(map[string]*FileState),
		},
	}

	// Corrupt state is treated as empty; everything re-downloads.
	if err := st.load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("ignoring unreadable download state", "path", filePath, "error", err)
	}

	if st.state.ImageDir != imageDir {
		st.state = &downloadState{
			ImageDir: imageDir,
			Files:    make(map[string]*FileState),
		}
	}

	return st, nil
}

func (st *StateTracker) load() error {
	data, err := os.ReadFile(st.filePath)
	if err != nil {
		return err
	}

	state := &downloadState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}

	if state.Files == nil {
		state.Files = make(map[string]*FileState)
	}

	st.state = state
	return nil
}

// Save persists the state to disk if anything changed since the last save.
func (st *StateTracker) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.dirty {
		return nil
	}

	data, err := json.MarshalIndent(st.state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(st.filePath, data, 0644); err != nil {
		return err
	}

	st.dirty = false
	return nil
}

// AlreadyDownloaded reports whether the URL was fetched before and the
// destination file still exists on disk.
func (st *StateTracker) AlreadyDownloaded(url string) (*FileState, bool) {
	st.mu.RLock()
	fs, ok := st.state.Files[urlKey(url)]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if _, err := os.Stat(fs.Path); err != nil {
		return nil, false
	}
	return fs, true
}

// MarkDownloaded records a completed download.
func (st *StateTracker) MarkDownloaded(url, path string, sizeBytes int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Files[urlKey(url)] = &FileState{
		Path:      path,
		SizeBytes: sizeBytes,
		FetchedAt: time.Now(),
	}
	st.dirty = true
}

// Clear forgets all tracked downloads.
func (st *StateTracker) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Files = make(map[string]*FileState)
	st.dirty = true
}

// Count returns the number of tracked downloads.
func (st *StateTracker) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.state.Files)
}

// TotalBytes returns the summed size of all tracked downloads.
func (st *StateTracker) TotalBytes() int64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var total int64
	for _, fs := range st.state.Files {
		total += fs.SizeBytes
	}
	return total
}

func urlKey(url string) string {
	return HashString(url)
}

// HashString computes the SHA256 hash of a string, hex encoded.
func HashString(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
