// Package segdtest builds synthetic SEG-D records for tests.
package segdtest

import (
	"encoding/binary"
	"math"
)

const block = 32

// Record describes a synthetic record. Zero values give a minimal valid
// header for the chosen revision.
type Record struct {
	Revision         int
	FileNumber       int
	Format           int
	Year             int
	Day              int
	Hour             int
	Minute           int
	Second           int
	Manufacturer     int
	BaseScanInterval int // 1/16 ms
	ScanTypes        int
	SkewBlocks       int
	Extended         []byte
	External         string
	TrailerBlocks    int
	SourceLine       int
	SourcePoint      int
	ChannelSets      []ChannelSet
	Traces           []Trace
	Tail             []byte
}

type ChannelSet struct {
	ScanType        int
	Number          int
	Start           int // 2 ms units
	End             int
	Channels        int
	SubscanExponent int
	Descale         uint16
	Empty           bool
	// revision 3 only
	Samples      int
	IntervalUS   int
	DescaleFloat float32
	Format       int
}

type Trace struct {
	ScanType      int
	ChannelSet    int
	Number        int
	TimingWord    int // 1/256 ms
	Extensions    int
	ReceiverLine  int
	ReceiverPoint int
	Samples       int // extension #1 sample count
	Format        int // extension #1 format override
	SensorType    int
	Data          []byte
}

// Bytes encodes the record.
func (r Record) Bytes() []byte {
	var out []byte
	out = append(out, r.gh1()...)
	if r.Revision > 0 {
		out = append(out, r.gh2()...)
	}
	if r.Revision >= 3 {
		out = append(out, r.gh3()...)
	}
	for _, cs := range r.ChannelSets {
		out = append(out, r.channelSet(cs)...)
	}
	out = append(out, make([]byte, r.SkewBlocks*block)...)
	out = append(out, pad(r.Extended)...)
	out = append(out, pad([]byte(r.External))...)
	for _, t := range r.Traces {
		out = append(out, TraceBlock(t)...)
	}
	out = append(out, make([]byte, r.TrailerBlocks*block)...)
	out = append(out, r.Tail...)
	return out
}

func (r Record) additional() int {
	switch {
	case r.Revision == 0:
		return 0
	case r.Revision >= 3:
		return 2
	}
	return 1
}

func (r Record) gh1() []byte {
	b := make([]byte, block)
	PutBCD(b, 0, 4, r.FileNumber)
	PutBCD(b, 4, 4, or(r.Format, 8058))
	PutBCD(b, 20, 2, or(r.Year, 24)%100)
	PutBits(b, 22, 1, uint64(r.additional()))
	PutBCD(b, 23, 3, or(r.Day, 1))
	PutBCD(b, 26, 2, r.Hour)
	PutBCD(b, 28, 2, r.Minute)
	PutBCD(b, 30, 2, r.Second)
	PutBCD(b, 32, 2, r.Manufacturer)
	b[22] = byte(or(r.BaseScanInterval, 16))
	PutBCD(b, 51, 3, 8)
	PutBCD(b, 54, 2, or(r.ScanTypes, 1))
	perScan := len(r.ChannelSets) / or(r.ScanTypes, 1)
	PutBCD(b, 56, 2, perScan)
	PutBCD(b, 58, 2, r.SkewBlocks)
	PutBCD(b, 60, 2, blocks(len(r.Extended)))
	PutBCD(b, 62, 2, blocks(len(r.External)))
	return b
}

func (r Record) gh2() []byte {
	b := make([]byte, block)
	b[10] = byte(r.Revision)
	binary.BigEndian.PutUint16(b[12:14], uint16(r.TrailerBlocks))
	b[18] = 2
	return b
}

func (r Record) gh3() []byte {
	b := make([]byte, block)
	PutBits(b, 6, 6, uint64(r.SourceLine)&0xffffff)
	PutBits(b, 16, 6, uint64(r.SourcePoint)&0xffffff)
	b[18] = 3
	return b
}

func (r Record) channelSet(cs ChannelSet) []byte {
	size := block
	if r.Revision >= 3 {
		size = 3 * block
	}
	b := make([]byte, size)
	if cs.Empty {
		return b
	}
	PutBCD(b, 0, 2, or(cs.ScanType, 1))
	PutBCD(b, 2, 2, cs.Number)
	binary.BigEndian.PutUint16(b[2:4], uint16(cs.Start))
	binary.BigEndian.PutUint16(b[4:6], uint16(cs.End))
	binary.BigEndian.PutUint16(b[6:8], cs.Descale)
	PutBCD(b, 16, 4, cs.Channels)
	PutBits(b, 22, 1, uint64(cs.SubscanExponent))
	if r.Revision >= 3 {
		binary.BigEndian.PutUint32(b[32:36], uint32(cs.Samples))
		binary.BigEndian.PutUint32(b[36:40], uint32(cs.IntervalUS))
		binary.BigEndian.PutUint32(b[40:44], math.Float32bits(cs.DescaleFloat))
		binary.BigEndian.PutUint32(b[44:48], uint32(cs.Format))
	}
	return b
}

// TraceBlock encodes a trace header, its extensions and data.
func TraceBlock(t Trace) []byte {
	h := make([]byte, 20+t.Extensions*block)
	h[0], h[1] = 0xff, 0xff
	PutBCD(h, 4, 2, or(t.ScanType, 1))
	PutBCD(h, 6, 2, or(t.ChannelSet, 1))
	PutBCD(h, 8, 4, t.Number)
	PutBits(h, 12, 6, uint64(t.TimingWord))
	h[9] = byte(t.Extensions)
	if t.Extensions >= 1 {
		e := h[20:]
		PutBits(e, 0, 6, uint64(t.ReceiverLine)&0xffffff)
		PutBits(e, 6, 6, uint64(t.ReceiverPoint)&0xffffff)
		PutBits(e, 14, 6, uint64(t.Samples))
		e[20] = byte(t.SensorType)
		PutBCD(e, 42, 4, t.Format)
	}
	return append(h, t.Data...)
}

// PutBCD writes v as count BCD digits starting at nibble index nibble.
func PutBCD(b []byte, nibble, count, v int) {
	for i := nibble + count - 1; i >= nibble; i-- {
		putNibble(b, i, byte(v%10))
		v /= 10
	}
}

// PutBits writes the low count*4 bits of v starting at nibble index nibble.
func PutBits(b []byte, nibble, count int, v uint64) {
	for i := nibble + count - 1; i >= nibble; i-- {
		putNibble(b, i, byte(v&0x0f))
		v >>= 4
	}
}

func putNibble(b []byte, i int, v byte) {
	if i%2 == 0 {
		b[i/2] = b[i/2]&0x0f | v<<4
	} else {
		b[i/2] = b[i/2]&0xf0 | v&0x0f
	}
}

func Int16s(order binary.ByteOrder, vals ...int16) []byte {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		order.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func Int32s(vals ...int32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(b[i*4:], uint32(v))
	}
	return b
}

func Float32s(vals ...float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func Float64s(vals ...float64) []byte {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func pad(b []byte) []byte {
	out := make([]byte, blocks(len(b))*block)
	copy(out, b)
	return out
}

func blocks(n int) int {
	return (n + block - 1) / block
}

func or(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
