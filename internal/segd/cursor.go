package segd

import (
	"bytes"
	"encoding/binary"

	"github.com/icza/bitio"
)

// NotSet marks an optional header value that was absent or carried its
// all-ones sentinel.
const NotSet = -1

// Cursor gives bounds-checked sequential access to an immutable buffer.
// A failed read leaves the offset unchanged.
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func NewCursorAt(buf []byte, off int) *Cursor {
	return &Cursor{buf: buf, off: off}
}

func (c *Cursor) Offset() int    { return c.off }
func (c *Cursor) Len() int       { return len(c.buf) }
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

func (c *Cursor) check(n int) error {
	if n < 0 || c.off < 0 || c.off+n > len(c.buf) {
		return newError(ErrOutOfBounds, c.off, "need %d bytes, %d remaining", n, c.Remaining())
	}
	return nil
}

func (c *Cursor) Seek(off int) error {
	if off < 0 || off > len(c.buf) {
		return newError(ErrOutOfBounds, off, "seek beyond %d bytes", len(c.buf))
	}
	c.off = off
	return nil
}

func (c *Cursor) Skip(n int) error {
	if err := c.check(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Peek returns the next n bytes without advancing. The slice aliases the buffer.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	return c.buf[c.off : c.off+n], nil
}

// Take returns the next n bytes and advances past them.
func (c *Cursor) Take(n int) ([]byte, error) {
	b, err := c.Peek(n)
	if err != nil {
		return nil, err
	}
	c.off += n
	return b, nil
}

// ReadUint reads an n-byte unsigned integer, 1 <= n <= 8.
func (c *Cursor) ReadUint(n int, order binary.ByteOrder) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, newError(ErrOutOfBounds, c.off, "unsupported integer width %d", n)
	}
	b, err := c.Take(n)
	if err != nil {
		return 0, err
	}
	return uintBytes(b, order), nil
}

// ReadInt reads an n-byte two's complement integer.
func (c *Cursor) ReadInt(n int, order binary.ByteOrder) (int64, error) {
	u, err := c.ReadUint(n, order)
	if err != nil {
		return 0, err
	}
	return signExtend(u, uint(n*8)), nil
}

// ReadBCD reads nibbles BCD digits starting at the current byte and
// advances by the bytes they occupy.
func (c *Cursor) ReadBCD(nibbles int) (int, error) {
	n := (nibbles + 1) / 2
	b, err := c.Peek(n)
	if err != nil {
		return 0, err
	}
	v, err := DecodeBCD(b, 0, nibbles)
	if err != nil {
		return 0, rebase(err, c.off)
	}
	c.off += n
	return v, nil
}

// ReadBits reads bitLength bits starting bitOffset bits past the current
// offset. Bit 0 is the most significant bit of the current byte. The
// cursor does not move.
func (c *Cursor) ReadBits(bitOffset, bitLength int) (uint64, error) {
	if bitOffset < 0 || bitLength < 0 || bitLength > 64 {
		return 0, newError(ErrOutOfBounds, c.off, "bad bit range %d+%d", bitOffset, bitLength)
	}
	if bitLength == 0 {
		return 0, nil
	}
	first := c.off + bitOffset/8
	last := c.off + (bitOffset+bitLength+7)/8
	if first < 0 || last > len(c.buf) {
		return 0, newError(ErrOutOfBounds, first, "bit range %d+%d exceeds buffer", bitOffset, bitLength)
	}
	r := bitio.NewReader(bytes.NewReader(c.buf[first:last]))
	if skip := bitOffset % 8; skip > 0 {
		if _, err := r.ReadBits(uint8(skip)); err != nil {
			return 0, newError(ErrOutOfBounds, first, "%v", err)
		}
	}
	v, err := r.ReadBits(uint8(bitLength))
	if err != nil {
		return 0, newError(ErrOutOfBounds, first, "%v", err)
	}
	return v, nil
}

// DecodeBCD decodes count BCD digits from b starting at nibble index
// nibble, where nibble 0 is the high half of b[0].
func DecodeBCD(b []byte, nibble, count int) (int, error) {
	if nibble < 0 || count < 0 || (nibble+count+1)/2 > len(b) {
		return 0, newError(ErrOutOfBounds, nibble/2, "%d BCD digits at nibble %d exceed %d bytes", count, nibble, len(b))
	}
	v := 0
	for i := nibble; i < nibble+count; i++ {
		d := nibbleAt(b, i)
		if d > 9 {
			return 0, newError(ErrInvalidBCD, i/2, "nibble %#x", d)
		}
		v = v*10 + int(d)
	}
	return v, nil
}

func nibbleAt(b []byte, i int) byte {
	if i%2 == 0 {
		return b[i/2] >> 4
	}
	return b[i/2] & 0x0f
}

func allOnes(b []byte, nibble, count int) bool {
	for i := nibble; i < nibble+count; i++ {
		if nibbleAt(b, i) != 0x0f {
			return false
		}
	}
	return true
}

func uintBytes(b []byte, order binary.ByteOrder) uint64 {
	var v uint64
	if order == binary.LittleEndian {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func signExtend(v uint64, bits uint) int64 {
	if bits == 0 || bits >= 64 {
		return int64(v)
	}
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
