package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/webtex/frame"
)

// Dump rewrites a single file with the latest frame. Readers of the file
// see either the previous image or the new one, never a partial write.
// It is a diagnostic aid.
type Dump struct {
	path string
}

// NewDump creates a Dump sink writing to path. The directory is created
// on first write.
func NewDump(path string) *Dump { return &Dump{path: path} }

func (d *Dump) Send(_ context.Context, f frame.Frame) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dump: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".webtex-*")
	if err != nil {
		return fmt.Errorf("dump: temp: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(f.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("dump: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dump: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("dump: rename: %w", err)
	}
	return nil
}

func (d *Dump) Close() error { return nil }
