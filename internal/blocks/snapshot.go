package blocks

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// FileSnapshots serves block trees materialized as <dir>/<container id>.json.
// Missing or unreadable files are treated as cache misses so a stale or
// partial snapshot directory never breaks a sync.
type FileSnapshots struct {
	dir string
}

// NewFileSnapshots creates a snapshot store rooted at dir.
func NewFileSnapshots(dir string) *FileSnapshots {
	return &FileSnapshots{dir: dir}
}

// Load reads the snapshot for a container id, if one exists.
func (s *FileSnapshots) Load(containerID string) ([]Block, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, containerID+".json"))
	if err != nil {
		return nil, false
	}

	var bs []Block
	if err := json.Unmarshal(data, &bs); err != nil {
		slog.Warn("ignoring malformed block snapshot", "container_id", containerID, "error", err)
		return nil, false
	}
	return bs, true
}

// Store writes a resolved tree as a snapshot for later offline builds.
func (s *FileSnapshots) Store(containerID string, bs []Block) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(bs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, containerID+".json"), data, 0644)
}
