// Package block implements the fixed binary framing of relayed records and
// the envelope that carries their origin coordinates over the broker.
//
// On disk:      [magic:4][length:4][payload:length]
// On the wire:  [originFile:4][originOffset:4][magic:4][length:4][payload:length]
//
// All integers are little-endian uint32.
package block

import "encoding/binary"

// Magic is the sentinel every record header must start with.
const Magic uint32 = 0xD9B4BEF9

const (
	// HeaderSize is the size of [magic][length].
	HeaderSize = 8
	// EnvelopeSize is the size of the [originFile][originOffset] prefix.
	EnvelopeSize = 8
)

// Header is the on-disk record prefix.
type Header struct {
	Magic  uint32
	Length uint32
}

// Block is one record of the rotating store together with its origin
// coordinates. OriginOffset is the offset immediately after the record.
type Block struct {
	Magic        uint32
	Length       uint32
	Payload      []byte
	OriginFile   uint32
	OriginOffset uint32
}

// Size is the on-disk size of the record.
func (b Block) Size() int64 {
	return HeaderSize + int64(b.Length)
}

// Start is the offset of the record header within OriginFile.
func (b Block) Start() (int64, bool) {
	start := int64(b.OriginOffset) - b.Size()
	return start, start >= 0
}

// Validate reports whether the block is well-formed.
func (b Block) Validate() error {
	if b.Magic != Magic {
		return &DecodeError{Kind: BadMagic, Magic: b.Magic}
	}
	if b.Length == 0 {
		return &DecodeError{Kind: ZeroLength}
	}
	if int(b.Length) != len(b.Payload) {
		return &DecodeError{Kind: Truncated, Want: b.Length, Got: len(b.Payload)}
	}
	return nil
}

// DecodeHeader parses a header. It fails with BadMagic or ZeroLength; a
// buffer shorter than HeaderSize is Truncated.
func DecodeHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, &DecodeError{Kind: Truncated, Want: HeaderSize, Got: len(raw)}
	}
	h := Header{
		Magic:  binary.LittleEndian.Uint32(raw[0:4]),
		Length: binary.LittleEndian.Uint32(raw[4:8]),
	}
	if h.Magic != Magic {
		return h, &DecodeError{Kind: BadMagic, Magic: h.Magic}
	}
	if h.Length == 0 {
		return h, &DecodeError{Kind: ZeroLength}
	}
	return h, nil
}

// Decode builds a Block from a raw header and the bytes that followed it.
// Origin coordinates are left zero; the caller fills them in.
func Decode(rawHeader, rawPayload []byte) (Block, error) {
	h, err := DecodeHeader(rawHeader)
	if err != nil {
		return Block{}, err
	}
	if uint64(len(rawPayload)) < uint64(h.Length) {
		return Block{}, &DecodeError{Kind: Truncated, Want: h.Length, Got: len(rawPayload)}
	}
	return Block{
		Magic:   h.Magic,
		Length:  h.Length,
		Payload: rawPayload[:h.Length],
	}, nil
}

// Encode returns the on-disk representation of b.
func Encode(b Block) []byte {
	buf := make([]byte, HeaderSize+len(b.Payload))
	putHeader(buf, b)
	copy(buf[HeaderSize:], b.Payload)
	return buf
}

// EncodeEnvelope returns the broker payload for b.
func EncodeEnvelope(b Block) []byte {
	buf := make([]byte, EnvelopeSize+HeaderSize+len(b.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], b.OriginFile)
	binary.LittleEndian.PutUint32(buf[4:8], b.OriginOffset)
	putHeader(buf[EnvelopeSize:], b)
	copy(buf[EnvelopeSize+HeaderSize:], b.Payload)
	return buf
}

// DecodeEnvelope parses a broker payload. The payload slice of the returned
// block aliases msg.
func DecodeEnvelope(msg []byte) (Block, error) {
	if len(msg) < EnvelopeSize+HeaderSize {
		return Block{}, &DecodeError{Kind: Truncated, Want: EnvelopeSize + HeaderSize, Got: len(msg)}
	}
	b, err := Decode(msg[EnvelopeSize:EnvelopeSize+HeaderSize], msg[EnvelopeSize+HeaderSize:])
	if err != nil {
		return Block{}, err
	}
	b.OriginFile = binary.LittleEndian.Uint32(msg[0:4])
	b.OriginOffset = binary.LittleEndian.Uint32(msg[4:8])
	return b, nil
}

func putHeader(buf []byte, b Block) {
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(b.Payload)))
}
