package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stateFile is the on-disk layout of the JSON backend.
type stateFile struct {
	LastSeen map[string]Marker `json:"last_seen"`
}

// JSONCursors persists cursors to a single JSON file.
type JSONCursors struct {
	*cursorMap
	path string
}

// OpenJSONCursors loads path if it exists, otherwise starts empty.
func OpenJSONCursors(path string) (*JSONCursors, error) {
	initial := map[string]Marker{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read state file: %w", err)
	default:
		var st stateFile
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("parse state file: %w", err)
		}
		for k, v := range st.LastSeen {
			initial[CursorKey(k)] = v
		}
	}

	return &JSONCursors{cursorMap: newCursorMap(initial), path: path}, nil
}

// Flush rewrites the whole file through a temp file and rename. Nothing is
// written when no cursor changed since the last flush.
func (j *JSONCursors) Flush(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.dirty) == 0 {
		return nil
	}
	changed := j.takeDirty()

	data, err := json.MarshalIndent(stateFile{LastSeen: j.last}, "", "  ")
	if err != nil {
		j.restoreDirty(changed)
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := writeFileAtomic(j.path, data); err != nil {
		j.restoreDirty(changed)
		return err
	}
	return nil
}

func (j *JSONCursors) Close() error {
	return j.Flush(context.Background())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
