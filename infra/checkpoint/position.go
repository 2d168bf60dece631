// Package checkpoint persists the relay's read cursor so a restarted relay
// resumes where the last flushed batch ended.
package checkpoint

import (
	"errors"
	"fmt"
)

// Position identifies the next unread byte of the rotating file sequence.
type Position struct {
	File   uint32
	Offset uint32
}

// Less orders positions lexicographically by (File, Offset).
func (p Position) Less(o Position) bool {
	if p.File != o.File {
		return p.File < o.File
	}
	return p.Offset < o.Offset
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.File, p.Offset)
}

// Store is the durable home of a Position.
type Store interface {
	// Load returns the persisted position. ok is false when nothing has been
	// saved yet.
	Load() (pos Position, ok bool, err error)
	Save(Position) error
	Close() error
}

var ErrRegression = errors.New("checkpoint: position moved backwards")

// Resume loads the persisted position, falling back to start when the store
// is empty.
func Resume(s Store, start Position) (Position, error) {
	pos, ok, err := s.Load()
	if err != nil {
		return Position{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return start, nil
	}
	return pos, nil
}
