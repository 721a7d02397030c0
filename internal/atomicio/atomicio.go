// Package atomicio provides the atomic write-to-temp-then-rename helper
// shared by the event store's snapshot, the merge coordinator's state
// file, and the Lamport clock. It generalizes the teacher's own
// temp-file-then-rename idiom (internal/engine writes status files
// directly with os.WriteFile; here the same intent is made crash-safe via
// renameio, which also fsyncs the containing directory on POSIX).
package atomicio

import (
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile atomically replaces path's contents with data.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}

// WriteJSON atomically replaces path's contents with the indented JSON
// encoding of v.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFile(path, append(data, '\n'), 0o644)
}

// ReadJSON reads and decodes path into v. It returns os.ErrNotExist
// unwrapped so callers can use os.IsNotExist/errors.Is directly.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
