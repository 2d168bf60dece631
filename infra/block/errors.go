package block

import "fmt"

// ErrorKind classifies a decode failure.
type ErrorKind uint8

const (
	BadMagic ErrorKind = iota + 1
	Truncated
	ZeroLength
)

func (k ErrorKind) String() string {
	switch k {
	case BadMagic:
		return "BAD_MAGIC"
	case Truncated:
		return "TRUNCATED"
	case ZeroLength:
		return "ZERO_LENGTH"
	default:
		return "UNKNOWN"
	}
}

// Sentinels for errors.Is.
var (
	ErrBadMagic   = &DecodeError{Kind: BadMagic}
	ErrTruncated  = &DecodeError{Kind: Truncated}
	ErrZeroLength = &DecodeError{Kind: ZeroLength}
)

// DecodeError is returned for a malformed record. It is local to one record.
type DecodeError struct {
	Kind  ErrorKind
	Magic uint32
	Want  uint32
	Got   int
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case BadMagic:
		return fmt.Sprintf("block: bad magic %#08x != %#08x", e.Magic, Magic)
	case Truncated:
		return fmt.Sprintf("block: truncated record, want %d bytes, got %d", e.Want, e.Got)
	case ZeroLength:
		return "block: zero length record"
	default:
		return "block: decode error"
	}
}

// Is matches any DecodeError of the same kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}
