// Package config provides the checkpoint store and runtime settings for issue-relay.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alan/issue-relay/cmd"
	"gopkg.in/yaml.v3"
)

// ErrCorruptState is returned when a checkpoint file exists but cannot be parsed
var ErrCorruptState = errors.New("corrupt checkpoint state")

// Store persists a checkpoint to a single file
type Store struct {
	path string

	// rename is swapped in tests to simulate a crash between write and rename
	rename func(oldpath, newpath string) error
}

// NewStore creates a store for the checkpoint file at path
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		rename: os.Rename,
	}
}

// Path returns the checkpoint file location
func (s *Store) Path() string {
	return s.path
}

// storedCheckpoint accepts the sent_issue key written by older state files
type storedCheckpoint struct {
	cmd.Checkpoint `yaml:",inline"`
	SentIssue      bool `json:"sent_issue,omitempty" yaml:"sent_issue,omitempty"`
}

// Load reads the checkpoint, returning a fresh one if the file does not exist
func (s *Store) Load() (*cmd.Checkpoint, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // Path is from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cmd.NewCheckpoint(), nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptState, s.path)
	}

	var stored storedCheckpoint
	if err := s.unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrCorruptState, s.path, err)
	}

	checkpoint := stored.Checkpoint
	if stored.SentIssue {
		checkpoint.IssueAnnounced = true
	}
	if checkpoint.SeenCommentIDs == nil {
		checkpoint.SeenCommentIDs = []int64{}
	}

	return &checkpoint, nil
}

// Save atomically replaces the checkpoint file: the record is written to a
// temporary file in the same directory and renamed into place.
func (s *Store) Save(checkpoint *cmd.Checkpoint) error {
	data, err := s.marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := s.rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return nil
}

// syncDir flushes the rename to disk; not every platform supports fsync on directories
func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // Directory of the configured checkpoint path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) marshal(checkpoint *cmd.Checkpoint) ([]byte, error) {
	if s.isYAML() {
		return yaml.Marshal(checkpoint)
	}
	return json.MarshalIndent(checkpoint, "", "  ")
}

func (s *Store) unmarshal(data []byte, stored *storedCheckpoint) error {
	if s.isYAML() {
		return yaml.Unmarshal(data, stored)
	}
	return json.Unmarshal(data, stored)
}
