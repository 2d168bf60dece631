package checkpoint

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type recordingStore struct {
	saved []Position
	fail  error
}

func (s *recordingStore) Load() (Position, bool, error) {
	if len(s.saved) == 0 {
		return Position{}, false, nil
	}
	return s.saved[len(s.saved)-1], true, nil
}

func (s *recordingStore) Save(p Position) error {
	if s.fail != nil {
		return s.fail
	}
	s.saved = append(s.saved, p)
	return nil
}

func (s *recordingStore) Close() error { return nil }

func TestPositionLess(t *testing.T) {
	require.True(t, Position{0, 100}.Less(Position{1, 0}))
	require.True(t, Position{1, 0}.Less(Position{1, 1}))
	require.False(t, Position{1, 1}.Less(Position{1, 1}))
	require.False(t, Position{2, 0}.Less(Position{1, 999}))
}

func TestPebbleStore(t *testing.T) {
	s, err := OpenPebbleWithOptions("ckpt", "relay-a", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Load()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save(Position{File: 3, Offset: 1 << 30}))
	pos, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Position{File: 3, Offset: 1 << 30}, pos)
}

func TestPebbleStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenPebble(dir, "relay")
	require.NoError(t, err)
	require.NoError(t, s.Save(Position{File: 9, Offset: 12}))
	require.NoError(t, s.Close())

	s, err = OpenPebble(dir, "relay")
	require.NoError(t, err)
	defer s.Close()
	pos, err := Resume(s, Position{})
	require.NoError(t, err)
	require.Equal(t, Position{File: 9, Offset: 12}, pos)
}

func TestDecodePositionSkipsUnknownFields(t *testing.T) {
	b := encodePosition(Position{File: 1, Offset: 2})
	b = protowire.AppendTag(b, 7, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	pos, err := decodePosition(b)
	require.NoError(t, err)
	require.Equal(t, Position{File: 1, Offset: 2}, pos)

	_, err = decodePosition([]byte{0x08})
	require.Error(t, err)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	s, err := OpenFile(path)
	require.NoError(t, err)

	pos, err := Resume(s, Position{File: 4, Offset: 8})
	require.NoError(t, err)
	require.Equal(t, Position{File: 4, Offset: 8}, pos)

	require.NoError(t, s.Save(Position{File: 5, Offset: 120}))
	require.NoError(t, s.Save(Position{File: 5, Offset: 240}))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Position{File: 5, Offset: 240}, got)

	entries, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestTrackerFlushesInBatches(t *testing.T) {
	st := &recordingStore{}
	tr := NewTracker(st, Position{}, 3)

	for i := uint32(1); i <= 7; i++ {
		flushed, err := tr.Advance(Position{File: 0, Offset: i * 10})
		require.NoError(t, err)
		require.Equal(t, i%3 == 0, flushed)
	}
	require.Equal(t, []Position{{0, 30}, {0, 60}}, st.saved)
	require.Equal(t, Position{0, 60}, tr.Persisted())

	require.NoError(t, tr.Flush())
	require.Equal(t, Position{0, 70}, st.saved[len(st.saved)-1])

	// nothing new: no extra write
	require.NoError(t, tr.Flush())
	require.Len(t, st.saved, 3)
}

func TestTrackerRejectsRegression(t *testing.T) {
	tr := NewTracker(&recordingStore{}, Position{File: 2, Offset: 50}, 10)
	_, err := tr.Advance(Position{File: 1, Offset: 900})
	require.ErrorIs(t, err, ErrRegression)
	require.Equal(t, Position{File: 2, Offset: 50}, tr.Position())
}

func TestTrackerPersistedIsMonotonic(t *testing.T) {
	st := &recordingStore{}
	tr := NewTracker(st, Position{}, 5)
	rng := rand.New(rand.NewSource(1))

	pos := Position{}
	for i := 0; i < 500; i++ {
		if rng.Intn(20) == 0 {
			pos = Position{File: pos.File + 1}
		}
		pos.Offset += uint32(8 + rng.Intn(64))
		_, err := tr.Advance(pos)
		require.NoError(t, err)
		if rng.Intn(7) == 0 {
			require.NoError(t, tr.Flush())
		}
	}
	require.NoError(t, tr.Flush())

	for i := 1; i < len(st.saved); i++ {
		require.False(t, st.saved[i].Less(st.saved[i-1]), "save %d regressed", i)
	}
	require.Equal(t, pos, st.saved[len(st.saved)-1])
}

func TestTrackerSaveFailureKeepsPersisted(t *testing.T) {
	st := &recordingStore{fail: errors.New("disk full")}
	tr := NewTracker(st, Position{}, 1)

	_, err := tr.Advance(Position{Offset: 12})
	require.Error(t, err)
	require.Equal(t, Position{}, tr.Persisted())
	require.Equal(t, Position{Offset: 12}, tr.Position())
}
