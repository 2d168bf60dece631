package blockfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"blockrelay/infra/block"
	"blockrelay/infra/checkpoint"
)

// Status is the outcome of a successful Cursor.Next call.
type Status uint8

const (
	// NotYetAvailable means the producer has not written the next record
	// yet. It is not an error; the caller retries later.
	NotYetAvailable Status = iota
	Record
)

func (s Status) String() string {
	if s == Record {
		return "RECORD"
	}
	return "NOT_YET_AVAILABLE"
}

// Result carries the block when Status is Record.
type Result struct {
	Status Status
	Block  block.Block
}

var ErrOffsetOverflow = errors.New("blockfile: offset does not fit in 32 bits")

// Cursor reads records sequentially across the rotating file sequence.
// It owns its file handle exclusively and is not safe for concurrent use.
type Cursor struct {
	dir    string
	file   uint32
	offset int64
	f      *os.File
	blocks int
	log    *slog.Logger
}

// Open positions a cursor at pos. The file is opened lazily, so a file that
// does not exist yet is not an error.
func Open(dir string, pos checkpoint.Position, logger *slog.Logger) *Cursor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cursor{
		dir:    dir,
		file:   pos.File,
		offset: int64(pos.Offset),
		log:    logger,
	}
}

// Position is the next unread byte.
func (c *Cursor) Position() checkpoint.Position {
	return checkpoint.Position{File: c.file, Offset: uint32(c.offset)}
}

// Next reads the record at the cursor. When not a single byte is available
// at the current position the cursor moves to the start of the next file and
// tries once more; if that file does not exist the cursor stays where it was.
// Malformed records return a *block.DecodeError and leave the cursor in place.
func (c *Cursor) Next() (Result, error) {
	res, empty, err := c.read()
	if err != nil || !empty {
		return res, err
	}
	if !c.rotate() {
		return Result{}, nil
	}
	res, _, err = c.read()
	return res, err
}

// read reports empty when nothing at all could be read at the cursor.
func (c *Cursor) read() (Result, bool, error) {
	if c.f == nil {
		f, err := os.Open(FilePath(c.dir, c.file))
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, true, nil
		}
		if err != nil {
			return Result{}, false, err
		}
		c.log.Debug("opened block file", "file", c.file, "offset", c.offset)
		c.f = f
	}

	var hdr [block.HeaderSize]byte
	n, err := c.f.ReadAt(hdr[:], c.offset)
	if err != nil && err != io.EOF {
		return Result{}, false, err
	}
	switch {
	case n == 0:
		return Result{}, true, nil
	case n < 4:
		return Result{}, false, nil
	case binary.LittleEndian.Uint32(hdr[:4]) == 0:
		// preallocated, not yet written
		return Result{}, false, nil
	case n < block.HeaderSize:
		return Result{}, false, nil
	}

	h, err := block.DecodeHeader(hdr[:])
	if err != nil {
		return Result{}, false, err
	}

	info, err := c.f.Stat()
	if err != nil {
		return Result{}, false, err
	}
	remaining := info.Size() - c.offset - block.HeaderSize
	if int64(h.Length) > remaining {
		return Result{}, false, &block.DecodeError{Kind: block.Truncated, Want: h.Length, Got: int(remaining)}
	}

	end := c.offset + block.HeaderSize + int64(h.Length)
	if end > math.MaxUint32 {
		return Result{}, false, fmt.Errorf("%w: file %d end %d", ErrOffsetOverflow, c.file, end)
	}

	payload := make([]byte, h.Length)
	n, err = c.f.ReadAt(payload, c.offset+block.HeaderSize)
	if err != nil && err != io.EOF {
		return Result{}, false, err
	}
	b, err := block.Decode(hdr[:], payload[:n])
	if err != nil {
		return Result{}, false, err
	}

	b.OriginFile = c.file
	b.OriginOffset = uint32(end)
	c.offset = end
	c.blocks++
	return Result{Status: Record, Block: b}, false, nil
}

func (c *Cursor) rotate() bool {
	next := c.file + 1
	f, err := os.Open(FilePath(c.dir, next))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("open next block file", "file", next, "error", err)
		}
		c.log.Debug("waiting for next block file", "file", next)
		return false
	}
	c.closeFile()
	c.f = f
	c.file = next
	c.offset = 0
	c.log.Debug("rotated to block file", "file", next)
	return true
}

func (c *Cursor) closeFile() {
	if c.f == nil {
		return
	}
	c.log.Debug("closing block file", "file", c.file, "blocks", c.blocks)
	_ = c.f.Close()
	c.f = nil
	c.blocks = 0
}

func (c *Cursor) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.log.Debug("closed block file", "file", c.file, "blocks", c.blocks)
	c.f = nil
	return err
}
