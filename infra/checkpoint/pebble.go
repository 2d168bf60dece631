package checkpoint

import (
	"errors"
	"fmt"
	"math"

	"github.com/cockroachdb/pebble"
	"google.golang.org/protobuf/encoding/protowire"
)

const keyPrefix = "checkpoint/"

// PebbleStore keeps positions in a pebble database, one key per relay name.
// Pebble's directory lock keeps a second relay off the same store.
type PebbleStore struct {
	db  *pebble.DB
	key []byte
}

func OpenPebble(dir, name string) (*PebbleStore, error) {
	return OpenPebbleWithOptions(dir, name, &pebble.Options{})
}

func OpenPebbleWithOptions(dir, name string, opts *pebble.Options) (*PebbleStore, error) {
	if name == "" {
		name = "default"
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	return &PebbleStore{db: db, key: []byte(keyPrefix + name)}, nil
}

func (s *PebbleStore) Load() (Position, bool, error) {
	val, closer, err := s.db.Get(s.key)
	if errors.Is(err, pebble.ErrNotFound) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	defer closer.Close()

	pos, err := decodePosition(val)
	if err != nil {
		return Position{}, false, err
	}
	return pos, true, nil
}

func (s *PebbleStore) Save(pos Position) error {
	return s.db.Set(s.key, encodePosition(pos), pebble.Sync)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// value encoding: protobuf wire format, field 1 = file, field 2 = offset
func encodePosition(p Position) []byte {
	b := make([]byte, 0, 12)
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.File))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Offset))
	return b
}

func decodePosition(b []byte) (Position, error) {
	var p Position
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Position{}, fmt.Errorf("decode checkpoint: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.VarintType || (num != 1 && num != 2) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Position{}, fmt.Errorf("decode checkpoint: %w", protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return Position{}, fmt.Errorf("decode checkpoint: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if v > math.MaxUint32 {
			return Position{}, fmt.Errorf("decode checkpoint: field %d overflows uint32", num)
		}
		if num == 1 {
			p.File = uint32(v)
		} else {
			p.Offset = uint32(v)
		}
	}
	return p, nil
}
