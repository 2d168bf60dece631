package blockfile

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"blockrelay/infra/block"
)

// ScanResult describes how much of a block file holds valid records.
type ScanResult struct {
	Records    int
	ValidBytes int64
	// Tail is the number of bytes after the last valid record: a record
	// still being appended, zero preallocation or garbage.
	Tail int64
	// Err is the decode error that stopped the scan, if any.
	Err error
}

// Scan walks the file at path header by header, skipping payloads, and stops
// at the first record that is incomplete or malformed.
func Scan(path string) (ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ScanResult{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ScanResult{}, err
	}
	size := info.Size()

	var res ScanResult
	var hdr [block.HeaderSize]byte
	for {
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return res, err
		}
		if binary.LittleEndian.Uint32(hdr[:4]) == 0 {
			break
		}
		h, err := block.DecodeHeader(hdr[:])
		if err != nil {
			res.Err = err
			break
		}
		end := res.ValidBytes + block.HeaderSize + int64(h.Length)
		if end > size {
			res.Err = &block.DecodeError{Kind: block.Truncated, Want: h.Length, Got: int(size - res.ValidBytes - block.HeaderSize)}
			break
		}
		if _, err := f.Seek(int64(h.Length), io.SeekCurrent); err != nil {
			return res, err
		}
		res.Records++
		res.ValidBytes = end
	}
	res.Tail = size - res.ValidBytes
	return res, nil
}
