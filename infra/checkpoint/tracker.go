package checkpoint

// Tracker holds the in-memory cursor and persists it in batches. The
// persisted position therefore trails the true read position by at most
// every-1 records.
type Tracker struct {
	store     Store
	every     int
	pos       Position
	persisted Position
	pending   int
}

func NewTracker(store Store, start Position, every int) *Tracker {
	if every <= 0 {
		every = 1
	}
	return &Tracker{store: store, every: every, pos: start, persisted: start}
}

func (t *Tracker) Position() Position { return t.pos }

// Persisted returns the last position handed to the store.
func (t *Tracker) Persisted() Position { return t.persisted }

// Advance records that everything before p has been handed to the transport.
// It flushes once every configured batch and reports whether it did.
func (t *Tracker) Advance(p Position) (bool, error) {
	if p.Less(t.pos) {
		return false, ErrRegression
	}
	t.pos = p
	t.pending++
	if t.pending < t.every {
		return false, nil
	}
	return true, t.Flush()
}

// Flush persists the current position if it changed since the last save.
func (t *Tracker) Flush() error {
	if t.pending == 0 && t.pos == t.persisted {
		return nil
	}
	if err := t.store.Save(t.pos); err != nil {
		return err
	}
	t.persisted = t.pos
	t.pending = 0
	return nil
}
