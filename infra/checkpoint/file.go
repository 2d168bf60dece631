package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the position in a small JSON document, replaced atomically
// on every save.
type FileStore struct {
	path string
}

type fileState struct {
	FileIndex  uint32 `json:"fileIndex"`
	ByteOffset uint32 `json:"byteOffset"`
}

func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load() (Position, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Position{}, false, nil
		}
		return Position{}, false, err
	}
	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		return Position{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return Position{File: st.FileIndex, Offset: st.ByteOffset}, true, nil
}

func (s *FileStore) Save(pos Position) error {
	data, err := json.MarshalIndent(fileState{FileIndex: pos.File, ByteOffset: pos.Offset}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".checkpoint-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Close() error { return nil }
