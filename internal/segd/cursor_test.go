package segd

import (
	"encoding/binary"
	"errors"
	"testing"
)

type bcdCase struct {
	name    string
	buf     []byte
	nibble  int
	count   int
	want    int
	wantErr error
}

func TestDecodeBCD(t *testing.T) {
	tests := []bcdCase{
		{name: "two bytes", buf: []byte{0x12, 0x34}, count: 4, want: 1234},
		{name: "odd start", buf: []byte{0x12, 0x34}, nibble: 1, count: 3, want: 234},
		{name: "single digit", buf: []byte{0x09}, nibble: 1, count: 1, want: 9},
		{name: "zero digits", buf: []byte{0xff}, count: 0, want: 0},
		{name: "past end", buf: []byte{0x12}, nibble: 1, count: 2, wantErr: ErrOutOfBounds},
	}
	for nib := byte(0x0a); nib <= 0x0f; nib++ {
		tests = append(tests, bcdCase{name: "nibble " + string("ABCDEF"[nib-0x0a]), buf: []byte{0x10 | nib}, count: 2, wantErr: ErrInvalidBCD})
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBCD(tt.buf, tt.nibble, tt.count)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBCD: %v", err)
			}
			if got != tt.want {
				t.Fatalf("DecodeBCD = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecodeBCDAllDigits(t *testing.T) {
	for d := 0; d <= 9; d++ {
		got, err := DecodeBCD([]byte{byte(d<<4 | d)}, 0, 2)
		if err != nil {
			t.Fatalf("digit %d: %v", d, err)
		}
		if got != d*11 {
			t.Fatalf("digit %d decoded to %d", d, got)
		}
	}
}

func TestCursorReads(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x98, 0x76, 0xff}
	c := NewCursor(buf)
	v, err := c.ReadUint(2, binary.BigEndian)
	if err != nil || v != 0x0102 {
		t.Fatalf("ReadUint = %#x, %v", v, err)
	}
	v, err = c.ReadUint(2, binary.LittleEndian)
	if err != nil || v != 0x0403 {
		t.Fatalf("ReadUint little endian = %#x, %v", v, err)
	}
	bcd, err := c.ReadBCD(4)
	if err != nil || bcd != 9876 {
		t.Fatalf("ReadBCD = %d, %v", bcd, err)
	}
	if c.Offset() != 6 || c.Remaining() != 1 {
		t.Fatalf("offset %d remaining %d", c.Offset(), c.Remaining())
	}
	s, err := c.ReadInt(1, binary.BigEndian)
	if err != nil || s != -1 {
		t.Fatalf("ReadInt = %d, %v", s, err)
	}
}

func TestCursorOutOfBoundsLeavesOffset(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	if err := c.Skip(1); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	checks := map[string]func() error{
		"ReadUint": func() error { _, err := c.ReadUint(4, binary.BigEndian); return err },
		"ReadBCD":  func() error { _, err := c.ReadBCD(6); return err },
		"Peek":     func() error { _, err := c.Peek(3); return err },
		"Take":     func() error { _, err := c.Take(3); return err },
		"Skip":     func() error { return c.Skip(5) },
		"ReadBits": func() error { _, err := c.ReadBits(4, 16); return err },
	}
	for name, fn := range checks {
		err := fn()
		if !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("%s: err = %v, want ErrOutOfBounds", name, err)
		}
		if c.Offset() != 1 {
			t.Fatalf("%s moved offset to %d", name, c.Offset())
		}
	}
	var de *DecodeError
	if _, err := c.Take(10); !errors.As(err, &de) || de.Offset != 1 {
		t.Fatalf("error offset = %+v", de)
	}
}

func TestCursorReadBits(t *testing.T) {
	c := NewCursorAt([]byte{0x00, 0xab, 0xcd, 0xef}, 1)
	tests := []struct {
		offset, length int
		want           uint64
	}{
		{0, 4, 0xa},
		{4, 4, 0xb},
		{4, 12, 0xbcd},
		{3, 6, 0x17},
		{0, 24, 0xabcdef},
		{7, 1, 1},
	}
	for _, tt := range tests {
		got, err := c.ReadBits(tt.offset, tt.length)
		if err != nil {
			t.Fatalf("ReadBits(%d,%d): %v", tt.offset, tt.length, err)
		}
		if got != tt.want {
			t.Fatalf("ReadBits(%d,%d) = %#x, want %#x", tt.offset, tt.length, got, tt.want)
		}
	}
	if c.Offset() != 1 {
		t.Fatalf("ReadBits moved the cursor to %d", c.Offset())
	}
}
