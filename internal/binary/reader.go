// Package binary provides bounds-checked little-endian primitives over a
// byte slice, shared by the ELF loader and the DWARF walker.
package binary

import (
	"encoding/binary"

	"github.com/orizon-lang/dwarfidx/internal/direrr"
)

// Reader is a cursor over a borrowed byte slice. Every returned []byte
// aliases buf; String is the one read that returns a copy.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// At returns a Reader positioned at off within the same backing slice.
func At(buf []byte, off int) (*Reader, error) {
	if off < 0 || off > len(buf) {
		return nil, direrr.Eof("binary.At")
	}

	return &Reader{buf: buf, pos: off}, nil
}

// Pos returns the current cursor offset.
func (r *Reader) Pos() int { return r.pos }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Seek repositions the cursor to an absolute offset within buf.
func (r *Reader) Seek(off int) error {
	if off < 0 || off > len(r.buf) {
		return direrr.Eof("binary.Seek")
	}

	r.pos = off

	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.Len() {
		return direrr.Eof("binary.Skip")
	}

	r.pos += n

	return nil
}

func (r *Reader) need(n int) error {
	if n > r.Len() {
		return direrr.Eof("binary.read")
	}

	return nil
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}

	v := r.buf[r.pos]
	r.pos++

	return v, nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2

	return v, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4

	return v, nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8

	return v, nil
}

// Bytes returns the next n bytes, aliasing the backing slice.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, direrr.Eof("binary.Bytes")
	}

	if err := r.need(n); err != nil {
		return nil, err
	}

	v := r.buf[r.pos : r.pos+n]
	r.pos += n

	return v, nil
}

// String reads bytes up to (not including) the next NUL and advances past
// it. Returns direrr.Eof if no NUL is found before the end of buf.
func (r *Reader) String() (string, error) {
	b, err := r.NulTerminatedBytes()
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// NulTerminatedBytes is String without the copy: it returns a slice
// aliasing the backing buffer, up to (not including) the next NUL, and
// advances past it.
func (r *Reader) NulTerminatedBytes() ([]byte, error) {
	rest := r.buf[r.pos:]

	i := indexByte(rest, 0)
	if i < 0 {
		return nil, direrr.Eof("binary.NulTerminatedBytes: unterminated")
	}

	b := rest[:i]
	r.pos += i + 1

	return b, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}

	return -1
}

// Uleb128 decodes an unsigned LEB128 value per the DWARF encoding rules.
func (r *Reader) Uleb128() (uint64, error) {
	var (
		result uint64
		shift  uint
	)

	for {
		b, err := r.U8()
		if err != nil {
			return 0, err
		}

		if shift == 63 && b&0x7f > 1 {
			return 0, direrr.NotImplemented("uleb128 overflow")
		}

		if shift > 63 && b&0x7f != 0 {
			return 0, direrr.NotImplemented("uleb128 overflow")
		}

		result |= uint64(b&0x7f) << shift

		if b&0x80 == 0 {
			return result, nil
		}

		shift += 7
	}
}

// Sleb128 decodes a signed LEB128 value per the DWARF encoding rules.
func (r *Reader) Sleb128() (int64, error) {
	var (
		result int64
		shift  uint
		b      uint8
		err    error
	)

	for {
		b, err = r.U8()
		if err != nil {
			return 0, err
		}

		if shift < 64 {
			result |= int64(b&0x7f) << shift
		}

		shift += 7

		if b&0x80 == 0 {
			break
		}
	}

	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}

	return result, nil
}
