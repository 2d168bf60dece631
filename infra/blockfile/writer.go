package blockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"blockrelay/infra/block"
)

var ErrBadOrigin = errors.New("blockfile: origin offset smaller than record size")

// Writer puts blocks back at their origin coordinates. Writing the same
// block twice leaves the file unchanged, which makes redelivery harmless.
type Writer struct {
	dir  string
	sync bool
	log  *slog.Logger
}

type WriterOption func(*Writer)

// WithoutSync skips the fsync after each write.
func WithoutSync() WriterOption {
	return func(w *Writer) { w.sync = false }
}

func NewWriter(dir string, logger *slog.Logger, opts ...WriterOption) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create block dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{dir: dir, sync: true, log: logger}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// WriteBlock opens (creating if needed) the origin file, writes the record so
// that it ends at OriginOffset and closes the file again.
func (w *Writer) WriteBlock(b block.Block) error {
	if err := b.Validate(); err != nil {
		return err
	}
	start, ok := b.Start()
	if !ok {
		return fmt.Errorf("%w: file %d offset %d length %d", ErrBadOrigin, b.OriginFile, b.OriginOffset, b.Length)
	}

	path := FilePath(w.dir, b.OriginFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(block.Encode(b), start); err != nil {
		f.Close()
		return fmt.Errorf("write %s at %d: %w", path, start, err)
	}
	if w.sync {
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	w.log.Debug("wrote block", "file", b.OriginFile, "offset", start, "length", b.Length)
	return f.Close()
}
