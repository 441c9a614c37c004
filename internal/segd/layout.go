package segd

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

type Encoding int

const (
	EncBCD Encoding = iota
	EncUint
	EncInt
	EncFraction
	EncFloat32
	EncFloat64
	EncASCII
)

func (e Encoding) String() string {
	switch e {
	case EncBCD:
		return "bcd"
	case EncUint:
		return "uint"
	case EncInt:
		return "int"
	case EncFraction:
		return "fraction"
	case EncFloat32:
		return "float32"
	case EncFloat64:
		return "float64"
	case EncASCII:
		return "ascii"
	}
	return "unknown"
}

// FieldSpec places one header field. Offsets and widths are in nibbles so
// that half-byte fields such as the julian day fit the same table.
type FieldSpec struct {
	Name     string
	Nibble   int
	Nibbles  int
	Enc      Encoding
	Unit     string
	Optional bool
}

// Layout is the fixed block layout of one header type.
type Layout struct {
	Name   string
	Size   int
	Fields []FieldSpec
}

// HeaderField is one decoded field. It only lives for the duration of a
// header decode; typed constructors copy what they need out of it.
type HeaderField struct {
	Name   string
	Raw    []byte
	Value  float64
	Text   string
	Unit   string
	Absent bool
}

type fieldSet struct {
	layout string
	fields map[string]HeaderField
}

func (s fieldSet) int(name string) int {
	f, ok := s.fields[name]
	if !ok || f.Absent {
		return NotSet
	}
	return int(f.Value)
}

func (s fieldSet) float(name string) float64 {
	return s.fields[name].Value
}

func (s fieldSet) text(name string) string {
	return s.fields[name].Text
}

func (s fieldSet) absent(name string) bool {
	f, ok := s.fields[name]
	return !ok || f.Absent
}

// DecodeFields decodes every field of a layout in table order. It backs
// the header dumps; typed decoders are the normal entry point.
func DecodeFields(buf []byte, l Layout) ([]HeaderField, error) {
	fs, err := decodeLayout(buf, l, NotSet)
	if err != nil {
		return nil, err
	}
	out := make([]HeaderField, 0, len(l.Fields))
	for _, spec := range l.Fields {
		out = append(out, fs.fields[spec.Name])
	}
	return out, nil
}

// decodeLayout runs a layout table over buf. The whole block must be
// present; a short buffer never yields a partial header.
func decodeLayout(buf []byte, l Layout, rev int) (fieldSet, error) {
	c := NewCursor(buf)
	if _, err := c.Peek(l.Size); err != nil {
		return fieldSet{}, annotate(err, l.Name, "", rev)
	}
	set := fieldSet{layout: l.Name, fields: make(map[string]HeaderField, len(l.Fields))}
	for _, spec := range l.Fields {
		f, err := decodeField(c, buf, spec)
		if err != nil {
			return fieldSet{}, annotate(err, l.Name, spec.Name, rev)
		}
		set.fields[spec.Name] = f
	}
	return set, nil
}

func decodeField(c *Cursor, buf []byte, spec FieldSpec) (HeaderField, error) {
	first := spec.Nibble / 2
	last := (spec.Nibble + spec.Nibbles + 1) / 2
	if last > len(buf) {
		return HeaderField{}, newError(ErrOutOfBounds, first, "field ends at byte %d", last)
	}
	f := HeaderField{Name: spec.Name, Raw: buf[first:last], Unit: spec.Unit}
	if spec.Optional && allOnes(buf, spec.Nibble, spec.Nibbles) {
		f.Absent = true
		return f, nil
	}
	bits := spec.Nibbles * 4
	if err := c.Seek(0); err != nil {
		return f, err
	}
	switch spec.Enc {
	case EncBCD:
		v, err := DecodeBCD(buf, spec.Nibble, spec.Nibbles)
		if err != nil {
			return f, err
		}
		f.Value = float64(v)
	case EncUint:
		v, err := c.ReadBits(spec.Nibble*4, bits)
		if err != nil {
			return f, err
		}
		f.Value = float64(v)
	case EncInt:
		v, err := c.ReadBits(spec.Nibble*4, bits)
		if err != nil {
			return f, err
		}
		f.Value = float64(signExtend(v, uint(bits)))
	case EncFraction:
		v, err := c.ReadBits(spec.Nibble*4, bits)
		if err != nil {
			return f, err
		}
		f.Value = math.Ldexp(float64(v), -bits)
	case EncFloat32, EncFloat64:
		if err := c.Seek(first); err != nil {
			return f, err
		}
		v, err := c.ReadUint(last-first, binary.BigEndian)
		if err != nil {
			return f, err
		}
		if spec.Enc == EncFloat32 {
			f.Value = float64(math.Float32frombits(uint32(v)))
		} else {
			f.Value = math.Float64frombits(v)
		}
	case EncASCII:
		f.Text = decodeText(f.Raw)
	}
	return f, nil
}

// decodeText converts Latin-1 header text to UTF-8 and trims padding.
func decodeText(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		out = raw
	}
	return strings.TrimSpace(string(out))
}
