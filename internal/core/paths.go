package core

import (
	"path/filepath"

	"github.com/google/uuid"
)

// ScratchRoot is the parent directory for per-job download scratch dirs.
// Keeping it under the media root guarantees moves into task directories
// stay on one filesystem.
func ScratchRoot(mediaRoot string) string {
	return filepath.Join(mediaRoot, "tmp")
}

// TaskPath returns the directory that holds a task's image files.
func TaskPath(mediaRoot string, projectId, taskId uuid.UUID) string {
	return filepath.Join(mediaRoot, "project", projectId.String(), "task", taskId.String())
}
