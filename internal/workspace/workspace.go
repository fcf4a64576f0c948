// Package workspace manages the shared filesystem region for a team run:
// a uniquely named root with per-task result files and an artifacts area.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// maxNameLen bounds sanitized path components.
const maxNameLen = 64

// Workspace is a team's on-disk working area.
type Workspace struct {
	// Root is the workspace directory: <parent>/<team>-<unique>.
	Root string
}

// TaskRecord is the persisted form of one finished task.
type TaskRecord struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Output    string `json:"output"`
	Timestamp string `json:"timestamp"`
}

// New creates a workspace under parent for the named team. The directory
// name carries a unique suffix so concurrent runs never collide.
func New(parent, teamName string) (*Workspace, error) {
	unique := uuid.New().String()[:8]
	root := filepath.Join(parent, fmt.Sprintf("%s-%s", Sanitize(teamName), unique))

	for _, dir := range []string{
		filepath.Join(root, "tasks"),
		filepath.Join(root, "artifacts"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace directory: %w", err)
		}
	}

	return &Workspace{Root: root}, nil
}

// WriteTaskResult persists one task's outcome as tasks/<id>.json. Distinct
// sanitized filenames keep concurrent writers from contending.
func (w *Workspace) WriteTaskResult(id, output, status string) error {
	record := TaskRecord{
		ID:        id,
		Status:    status,
		Output:    output,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task record: %w", err)
	}

	path := filepath.Join(w.Root, "tasks", Sanitize(id)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write task record: %w", err)
	}
	return nil
}

// ArtifactsDir returns the shared artifacts directory.
func (w *Workspace) ArtifactsDir() string {
	return filepath.Join(w.Root, "artifacts")
}

// Sanitize replaces path-hostile characters with underscores and bounds the
// length so any task id or team name becomes a safe filename component.
func Sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for _, c := range name {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			out = append(out, byte(c))
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return string(out)
}
