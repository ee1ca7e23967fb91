// Package runstore persists reconciliation run artifacts: the stage
// reports and, when stage 2 completed, the patched canonical document.
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// Stage markers for a persisted run.
const (
	StagePR1 = "pr1"
	StagePR2 = "pr2"
	StagePR3 = "pr3"
)

// Run is one reconciliation run and whatever stages it completed.
// Reports are audit artifacts; a later run never consumes them as
// pipeline state.
type Run struct {
	ID        string    `json:"id"`
	InputPath string    `json:"input_path"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PR1 *model.PR1Report `json:"pr1,omitempty"`
	PR2 *model.PR2Report `json:"pr2,omitempty"`
	PR3 *model.PR3Report `json:"pr3,omitempty"`

	PatchedDocument model.Document `json:"patched_document,omitempty"`
}

// Backend is a run persistence store.
type Backend interface {
	Save(ctx context.Context, run *Run) error
	Load(ctx context.Context, id string) (*Run, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Run, error)
	Name() string
	Close() error
}

// NewRun creates a run record for an input file.
func NewRun(id, inputPath string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        id,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStage records stage completion and bumps the update time.
func (r *Run) SetStage(stage string) {
	r.Stage = stage
	r.UpdatedAt = time.Now().UTC()
}

// LocalBackend stores runs as JSON files under a directory.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates a filesystem run store rooted at dir.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating run store directory: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) path(id string) string {
	return filepath.Join(b.dir, id+".run.json")
}

// Save writes the run atomically via a temp file rename.
func (b *LocalBackend) Save(ctx context.Context, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	tempPath := b.path(run.ID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, b.path(run.ID))
}

// Load reads a run by id. Missing runs return os.ErrNotExist.
func (b *LocalBackend) Load(ctx context.Context, id string) (*Run, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		return nil, err
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", id, err)
	}
	return &run, nil
}

// Delete removes a run.
func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	return os.Remove(b.path(id))
}

// List returns all stored runs, newest first.
func (b *LocalBackend) List(ctx context.Context) ([]*Run, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var runs []*Run
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".run.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, entry.Name()))
		if err != nil {
			continue
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// Name returns "local".
func (b *LocalBackend) Name() string { return "local" }

// Close is a no-op for the local backend.
func (b *LocalBackend) Close() error { return nil }
