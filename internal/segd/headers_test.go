package segd

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"example.com/segdgate/internal/segd/segdtest"
)

func TestDecodeGeneralHeader1(t *testing.T) {
	rec := segdtest.Record{
		Revision:         1,
		FileNumber:       4321,
		Format:           FormatInt16,
		Year:             2023,
		Day:              45,
		Hour:             13,
		Minute:           7,
		Second:           59,
		Manufacturer:     SercelManufacturer,
		BaseScanInterval: 32,
		ScanTypes:        1,
		SkewBlocks:       2,
		External:         "LINE 12",
		ChannelSets:      []segdtest.ChannelSet{{Number: 1}, {Number: 2}},
	}
	h, err := DecodeGeneralHeader1(rec.Bytes())
	if err != nil {
		t.Fatalf("DecodeGeneralHeader1: %v", err)
	}
	want := time.Date(2023, time.February, 14, 13, 7, 59, 0, time.UTC)
	if !h.Time.Equal(want) {
		t.Fatalf("Time = %v, want %v", h.Time, want)
	}
	checks := []struct {
		name      string
		got, want int
	}{
		{"FileNumber", h.FileNumber, 4321},
		{"FormatCode", h.FormatCode, FormatInt16},
		{"AdditionalBlocks", h.AdditionalBlocks, 1},
		{"ManufacturerCode", h.ManufacturerCode, SercelManufacturer},
		{"BaseScanInterval", h.BaseScanInterval, 32},
		{"ScanTypes", h.ScanTypes, 1},
		{"ChannelSetsPerScan", h.ChannelSetsPerScan, 2},
		{"SkewBlocks", h.SkewBlocks, 2},
		{"ExtendedHeaderBlocks", h.ExtendedHeaderBlocks, 0},
		{"ExternalHeaderBlocks", h.ExternalHeaderBlocks, 1},
		{"RecordLength", h.RecordLength, 8},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if h.BaseInterval() != 2*time.Millisecond {
		t.Fatalf("BaseInterval = %v", h.BaseInterval())
	}
}

func TestGeneralHeader1Sentinels(t *testing.T) {
	b := segdtest.Record{}.Bytes()[:BlockSize]
	b[0], b[1] = 0xff, 0xff
	b[28] = 0xff
	b[30] = 0xff
	h, err := DecodeGeneralHeader1(b)
	if err != nil {
		t.Fatalf("DecodeGeneralHeader1: %v", err)
	}
	if h.FileNumber != NotSet || h.ChannelSetsPerScan != NotSet || h.ExtendedHeaderBlocks != NotSet {
		t.Fatalf("sentinels not honoured: %+v", h)
	}
}

func TestGeneralHeader1Errors(t *testing.T) {
	base := segdtest.Record{}.Bytes()[:BlockSize]
	tests := []struct {
		name    string
		mutate  func([]byte)
		wantErr error
		field   string
	}{
		{name: "format nibble", mutate: func(b []byte) { b[2] = 0x8a }, wantErr: ErrInvalidBCD, field: "format_code"},
		{name: "hour nibble", mutate: func(b []byte) { b[13] = 0x1f }, wantErr: ErrInvalidBCD, field: "hour"},
		{name: "julian day zero", mutate: func(b []byte) { b[11] &= 0xf0; b[12] = 0 }, wantErr: ErrMalformedHeader, field: "julian_day"},
		{name: "hour range", mutate: func(b []byte) { b[13] = 0x25 }, wantErr: ErrMalformedHeader, field: "hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := append([]byte(nil), base...)
			tt.mutate(b)
			_, err := DecodeGeneralHeader1(b)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Field != tt.field || de.Header != GeneralHeader1Layout.Name {
				t.Fatalf("error context = %+v", de)
			}
		})
	}
}

func TestHeadersShortBuffer(t *testing.T) {
	full := make([]byte, SercelExtendedSize)
	prof, _ := ProfileFor(3)
	decoders := map[string]struct {
		size int
		fn   func([]byte) error
	}{
		"gh1":          {BlockSize, func(b []byte) error { _, err := DecodeGeneralHeader1(b); return err }},
		"gh2":          {BlockSize, func(b []byte) error { _, err := DecodeGeneralHeader2(b); return err }},
		"gh3":          {BlockSize, func(b []byte) error { _, err := DecodeGeneralHeader3(b); return err }},
		"channel set":  {ChannelSetSizeV3, func(b []byte) error { _, err := DecodeChannelSet(b, prof); return err }},
		"trace header": {TraceHeaderSize, func(b []byte) error { _, err := DecodeTraceHeader(b); return err }},
		"extension 1":  {TraceExtensionSize, func(b []byte) error { _, err := DecodeTraceExtension1(b); return err }},
		"sercel":       {SercelExtendedSize, func(b []byte) error { _, err := DecodeSercelExtendedHeader(b); return err }},
	}
	for name, d := range decoders {
		for _, n := range []int{0, 1, d.size - 1} {
			if err := d.fn(full[:n]); !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("%s with %d bytes: err = %v, want ErrOutOfBounds", name, n, err)
			}
		}
	}
}

func TestDecodeChannelSet(t *testing.T) {
	prof, _ := ProfileFor(1)
	b := make([]byte, BlockSize)
	segdtest.PutBCD(b, 0, 2, 1)
	segdtest.PutBCD(b, 2, 2, 3)
	binary.BigEndian.PutUint16(b[2:4], 10)
	binary.BigEndian.PutUint16(b[4:6], 510)
	b[6], b[7] = 0x80, 0x82 // exponent -(2 + 0.5)
	segdtest.PutBCD(b, 16, 4, 48)
	b[10] = 0x10
	b[11] = 0x12
	segdtest.PutBCD(b, 24, 4, 200)
	b[28] = 0x01
	cs, err := DecodeChannelSet(b, prof)
	if err != nil {
		t.Fatalf("DecodeChannelSet: %v", err)
	}
	if cs.ScanType != 1 || cs.Number != 3 || cs.Channels != 48 || cs.ChannelType != 1 {
		t.Fatalf("unexpected descriptor %+v", cs)
	}
	if cs.SubscanExponent != 1 || cs.GainControl != 2 || cs.AliasFilterFreq != 200 || cs.TraceExtensions != 1 {
		t.Fatalf("unexpected descriptor %+v", cs)
	}
	if want := math.Exp2(-2.5); cs.Descale != want {
		t.Fatalf("Descale = %v, want %v", cs.Descale, want)
	}
	cs.derive(16)
	if cs.Interval != 500*time.Microsecond {
		t.Fatalf("Interval = %v", cs.Interval)
	}
	if cs.Samples != 2000 {
		t.Fatalf("Samples = %d, want 2000", cs.Samples)
	}
}

func TestDecodeChannelSetEmptyAndInvalid(t *testing.T) {
	prof, _ := ProfileFor(0)
	cs, err := DecodeChannelSet(make([]byte, BlockSize), prof)
	if err != nil || !cs.Empty {
		t.Fatalf("empty descriptor = %+v, %v", cs, err)
	}
	b := make([]byte, BlockSize)
	b[0] = 0x01
	if _, err := DecodeChannelSet(b, prof); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("channel set 0: err = %v", err)
	}
}

func TestDecodeTraceExtension1(t *testing.T) {
	blk := segdtest.TraceBlock(segdtest.Trace{Number: 12, Extensions: 1, ReceiverLine: -25, ReceiverPoint: 1001, Samples: 500, Format: FormatFloat32, SensorType: 3})
	th, err := DecodeTraceHeader(blk)
	if err != nil {
		t.Fatalf("DecodeTraceHeader: %v", err)
	}
	if th.TraceNumber != 12 || th.Extensions != 1 || th.ChannelSet != 1 {
		t.Fatalf("trace header %+v", th)
	}
	e, err := DecodeTraceExtension1(blk[TraceHeaderSize:])
	if err != nil {
		t.Fatalf("DecodeTraceExtension1: %v", err)
	}
	if e.ReceiverLine != -25 || e.ReceiverPoint != 1001 || e.SamplesPerTrace != 500 || e.SampleFormat != FormatFloat32 || e.SensorType != 3 {
		t.Fatalf("extension %+v", e)
	}

	// sentinel receiver line falls back to the extended field
	ext := make([]byte, TraceExtensionSize)
	ext[0], ext[1], ext[2] = 0xff, 0xff, 0xff
	segdtest.PutBits(ext, 20, 6, 77)
	ext[13], ext[14] = 0x80, 0x00
	e, err = DecodeTraceExtension1(ext)
	if err != nil {
		t.Fatalf("DecodeTraceExtension1: %v", err)
	}
	if e.ReceiverLine != 77.5 {
		t.Fatalf("ReceiverLine = %v, want 77.5", e.ReceiverLine)
	}
}

func TestLineFractionsAreFixedPoint(t *testing.T) {
	tests := []struct {
		name  string
		whole uint64 // 24-bit two's complement
		frac  uint64 // 16-bit binary fraction
		want  float64
	}{
		{name: "positive", whole: 2, frac: 0x8000, want: 2.5},
		{name: "negative", whole: 0xFFFFFE, frac: 0x8000, want: -1.5},
		{name: "negative quarter", whole: 0xFFFFFF, frac: 0x4000, want: -0.75},
		{name: "negative whole", whole: 0xFFFFF6, frac: 0, want: -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gh3 := make([]byte, BlockSize)
			segdtest.PutBits(gh3, 6, 6, tt.whole)
			segdtest.PutBits(gh3, 12, 4, tt.frac)
			segdtest.PutBits(gh3, 16, 6, tt.whole)
			segdtest.PutBits(gh3, 22, 4, tt.frac)
			h, err := DecodeGeneralHeader3(gh3)
			if err != nil {
				t.Fatalf("DecodeGeneralHeader3: %v", err)
			}
			if h.SourceLine != tt.want || h.SourcePoint != tt.want {
				t.Fatalf("source line %v point %v, want %v", h.SourceLine, h.SourcePoint, tt.want)
			}

			ext := make([]byte, TraceExtensionSize)
			segdtest.PutBits(ext, 0, 6, 0xFFFFFF)
			segdtest.PutBits(ext, 6, 6, 0xFFFFFF)
			segdtest.PutBits(ext, 20, 6, tt.whole)
			segdtest.PutBits(ext, 26, 4, tt.frac)
			segdtest.PutBits(ext, 30, 6, tt.whole)
			segdtest.PutBits(ext, 36, 4, tt.frac)
			e, err := DecodeTraceExtension1(ext)
			if err != nil {
				t.Fatalf("DecodeTraceExtension1: %v", err)
			}
			if e.ReceiverLine != tt.want || e.ReceiverPoint != tt.want {
				t.Fatalf("receiver line %v point %v, want %v", e.ReceiverLine, e.ReceiverPoint, tt.want)
			}
		})
	}
}

func TestDecodeSercelHeaders(t *testing.T) {
	ext := make([]byte, SercelExtendedSize)
	binary.BigEndian.PutUint32(ext[4:8], 2000)
	binary.BigEndian.PutUint32(ext[8:12], 96)
	binary.BigEndian.PutUint32(ext[36:40], 1234)
	copy(ext[544:560], "48.3")
	binary.BigEndian.PutUint64(ext[572:580], math.Float64bits(512345.5))
	binary.BigEndian.PutUint64(ext[876:884], uint64(time.Hour/time.Microsecond))
	h, err := DecodeSercelExtendedHeader(ext)
	if err != nil {
		t.Fatalf("DecodeSercelExtendedHeader: %v", err)
	}
	if h.SampleRate != 2000 || h.TotalTraces != 96 || h.ShotNumber != 1234 || h.SoftwareVersion != "48.3" || h.SourceEasting != 512345.5 {
		t.Fatalf("extended header %+v", h)
	}
	if want := gpsEpoch.Add(time.Hour); !h.GPSTime.Equal(want) {
		t.Fatalf("GPSTime = %v, want %v", h.GPSTime, want)
	}

	blocks := make([]byte, 6*TraceExtensionSize)
	binary.BigEndian.PutUint64(blocks[0:8], math.Float64bits(100.25))
	blocks[32+20] = 1
	binary.BigEndian.PutUint32(blocks[160+16:160+20], math.Float32bits(42))
	sx, err := DecodeSercelTraceExtensions(blocks)
	if err != nil {
		t.Fatalf("DecodeSercelTraceExtensions: %v", err)
	}
	if sx.Blocks != 6 || sx.ReceiverEasting != 100.25 || !sx.ResistanceError || sx.TraceMax != 42 {
		t.Fatalf("trace extensions %+v", sx)
	}
}
