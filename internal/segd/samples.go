package segd

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/icza/bitio"
)

// Demultiplexed sample format codes.
const (
	Format20Bit    = 8015
	FormatQuat8    = 8022
	FormatQuat16   = 8024
	FormatInt8     = 8032
	FormatInt16    = 8034
	FormatInt24    = 8036
	FormatInt32    = 8038
	FormatHex8     = 8042
	FormatHex16    = 8044
	FormatIBMFloat = 8048
	FormatFloat32  = 8058
	FormatFloat64  = 8080
)

// SampleWidthBits returns the bits per sample implied by a demultiplexed
// format code. The width is known even for codes this package cannot
// decode, which lets the assembler skip those traces and stay aligned.
func SampleWidthBits(code int) (int, bool) {
	if code/100 != 80 {
		return 0, false
	}
	switch code % 10 {
	case 2:
		return 8, true
	case 4:
		return 16, true
	case 5:
		return 20, true
	case 6:
		return 24, true
	case 8:
		return 32, true
	case 0:
		return 64, true
	}
	return 0, false
}

// SampleBlockSize is the data block length of n samples in format code.
func SampleBlockSize(code, n int) (int, bool) {
	bits, ok := SampleWidthBits(code)
	if !ok || n < 0 {
		return 0, false
	}
	if bits == 20 {
		// four samples per ten byte group
		return (n + 3) / 4 * 10, true
	}
	return n * bits / 8, true
}

// IsSupportedFormat reports whether DecodeSamples can decode code.
func IsSupportedFormat(code int) bool {
	switch code {
	case Format20Bit, FormatInt8, FormatInt16, FormatInt24, FormatInt32,
		FormatIBMFloat, FormatFloat32, FormatFloat64:
		return true
	}
	return false
}

// DecodeSamples decodes n samples of format code from block. Integer
// formats are multiplied by descale when it is non-zero.
func DecodeSamples(code int, block []byte, n int, order binary.ByteOrder, descale float64) ([]float64, error) {
	if !IsSupportedFormat(code) {
		return nil, newError(ErrUnsupportedSampleFormat, 0, "format %04d", code)
	}
	size, _ := SampleBlockSize(code, n)
	if len(block) < size {
		return nil, newError(ErrOutOfBounds, len(block), "format %04d needs %d bytes for %d samples, have %d", code, size, n, len(block))
	}
	if order == nil {
		order = binary.BigEndian
	}
	if descale == 0 {
		descale = 1
	}
	out := make([]float64, n)
	switch code {
	case Format20Bit:
		if err := decode20Bit(block[:size], out); err != nil {
			return nil, err
		}
	case FormatInt8:
		for i := range out {
			out[i] = float64(int8(block[i])) * descale
		}
	case FormatInt16:
		for i := range out {
			out[i] = float64(int16(order.Uint16(block[i*2:]))) * descale
		}
	case FormatInt24:
		for i := range out {
			out[i] = float64(signExtend(uintBytes(block[i*3:i*3+3], order), 24)) * descale
		}
	case FormatInt32:
		for i := range out {
			out[i] = float64(int32(order.Uint32(block[i*4:]))) * descale
		}
	case FormatIBMFloat:
		for i := range out {
			out[i] = IBMToFloat64(order.Uint32(block[i*4:]))
		}
	case FormatFloat32:
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(block[i*4:])))
		}
	case FormatFloat64:
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(block[i*8:]))
		}
	}
	return out, nil
}

// decode20Bit unpacks 8015 groups: four 4 bit exponents, then four 16 bit
// two's complement mantissas. value = mantissa * 2^(exponent-15).
func decode20Bit(block []byte, out []float64) error {
	r := bitio.NewReader(bytes.NewReader(block))
	var exps [4]uint64
	for g := 0; g < len(out); g += 4 {
		for i := range exps {
			exps[i] = r.TryReadBits(4)
		}
		for i := 0; i < 4; i++ {
			m := int16(r.TryReadBits(16))
			if g+i < len(out) {
				out[g+i] = math.Ldexp(float64(m), int(exps[i])-15)
			}
		}
		if r.TryError != nil {
			return newError(ErrOutOfBounds, g/4*10, "20 bit group: %v", r.TryError)
		}
	}
	return nil
}

// IBMToFloat64 converts an IBM System/360 single precision value:
// sign bit, 7 bit base-16 exponent biased by 64, 24 bit fraction.
func IBMToFloat64(v uint32) float64 {
	frac := v & 0x00ffffff
	if frac == 0 {
		return 0
	}
	exp := int((v>>24)&0x7f) - 64
	f := math.Ldexp(float64(frac), 4*exp-24)
	if v&0x80000000 != 0 {
		return -f
	}
	return f
}
