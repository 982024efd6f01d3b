package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ledgerfund/internal/model"
)

// JsonlStorage writes proposal snapshots to a JSONL file. Each snapshot
// replaces the file contents; a snapshot is a full view, not a delta.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutSnapshot writes proposals as JSON lines, newest first as given.
func (s *JsonlStorage) PutSnapshot(proposals []model.ProposalRecord) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, proposal := range proposals {
		line, err := json.Marshal(proposal)
		if err != nil {
			return fmt.Errorf("marshal proposal: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write proposal: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
