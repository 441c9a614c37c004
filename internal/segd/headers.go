package segd

import (
	"math"
	"time"
)

// GeneralHeader1 is the first 32 byte block of every record. Optional
// counts hold NotSet when the field carries its sentinel and the value
// lives in general header #2.
type GeneralHeader1 struct {
	FileNumber           int
	FormatCode           int
	GeneralConstants     int
	Year                 int
	JulianDay            int
	Hour                 int
	Minute               int
	Second               int
	Time                 time.Time
	AdditionalBlocks     int
	ManufacturerCode     int
	ManufacturerSerial   int
	BytesPerScan         int
	BaseScanInterval     int // 1/16 ms units
	Polarity             int
	RecordType           int
	RecordLength         int
	ScanTypes            int
	ChannelSetsPerScan   int
	SkewBlocks           int
	ExtendedHeaderBlocks int
	ExternalHeaderBlocks int
}

// BaseInterval converts the base scan interval to a duration.
func (h GeneralHeader1) BaseInterval() time.Duration {
	return time.Duration(h.BaseScanInterval) * time.Millisecond / 16
}

// RecordDuration is the declared record length, or zero when GH2 carries it.
func (h GeneralHeader1) RecordDuration() time.Duration {
	if h.RecordLength == NotSet {
		return 0
	}
	return time.Duration(h.RecordLength) * 512 * time.Millisecond
}

func DecodeGeneralHeader1(buf []byte) (GeneralHeader1, error) {
	fs, err := decodeLayout(buf, GeneralHeader1Layout, NotSet)
	if err != nil {
		return GeneralHeader1{}, err
	}
	h := GeneralHeader1{
		FileNumber:           fs.int("file_number"),
		FormatCode:           fs.int("format_code"),
		GeneralConstants:     fs.int("general_constants"),
		Year:                 fullYear(fs.int("year")),
		JulianDay:            fs.int("julian_day"),
		Hour:                 fs.int("hour"),
		Minute:               fs.int("minute"),
		Second:               fs.int("second"),
		AdditionalBlocks:     fs.int("additional_blocks"),
		ManufacturerCode:     fs.int("manufacturer_code"),
		ManufacturerSerial:   fs.int("manufacturer_serial"),
		BytesPerScan:         fs.int("bytes_per_scan"),
		BaseScanInterval:     fs.int("base_scan_interval"),
		Polarity:             fs.int("polarity"),
		RecordType:           fs.int("record_type"),
		RecordLength:         fs.int("record_length"),
		ScanTypes:            fs.int("scan_types"),
		ChannelSetsPerScan:   fs.int("channel_sets_per_scan"),
		SkewBlocks:           fs.int("skew_blocks"),
		ExtendedHeaderBlocks: fs.int("extended_header_blocks"),
		ExternalHeaderBlocks: fs.int("external_header_blocks"),
	}
	switch {
	case h.JulianDay < 1 || h.JulianDay > 366:
		return h, malformed(GeneralHeader1Layout, "julian_day", "day %d out of range", h.JulianDay)
	case h.Hour > 23:
		return h, malformed(GeneralHeader1Layout, "hour", "hour %d out of range", h.Hour)
	case h.Minute > 59:
		return h, malformed(GeneralHeader1Layout, "minute", "minute %d out of range", h.Minute)
	case h.Second > 59:
		return h, malformed(GeneralHeader1Layout, "second", "second %d out of range", h.Second)
	}
	h.Time = time.Date(h.Year, time.January, 1, h.Hour, h.Minute, h.Second, 0, time.UTC).AddDate(0, 0, h.JulianDay-1)
	return h, nil
}

// fullYear maps the two digit header year onto 1970..2069.
func fullYear(yy int) int {
	if yy < 70 {
		return 2000 + yy
	}
	return 1900 + yy
}

type GeneralHeader2 struct {
	ExpandedFileNumber    int
	ExtendedChannelSets   int
	ExtendedHeaderBlocks  int
	ExternalHeaderBlocks  int
	RevisionMajor         int
	RevisionMinor         int
	TrailerBlocks         int
	ExtendedRecordLength  int // ms
	BlockNumber           int
	ExtendedGeneralBlocks int
}

func DecodeGeneralHeader2(buf []byte) (GeneralHeader2, error) {
	fs, err := decodeLayout(buf, GeneralHeader2Layout, NotSet)
	if err != nil {
		return GeneralHeader2{}, err
	}
	return GeneralHeader2{
		ExpandedFileNumber:    fs.int("expanded_file_number"),
		ExtendedChannelSets:   fs.int("extended_channel_sets"),
		ExtendedHeaderBlocks:  fs.int("extended_header_blocks"),
		ExternalHeaderBlocks:  fs.int("external_header_blocks"),
		RevisionMajor:         fs.int("revision_major"),
		RevisionMinor:         fs.int("revision_minor"),
		TrailerBlocks:         fs.int("trailer_blocks"),
		ExtendedRecordLength:  fs.int("extended_record_length"),
		BlockNumber:           fs.int("block_number"),
		ExtendedGeneralBlocks: fs.int("extended_general_blocks"),
	}, nil
}

type GeneralHeader3 struct {
	ExpandedFileNumber int
	SourceLine         float64
	SourcePoint        float64
	SourcePointIndex   int
	PhaseControl       int
	VibratorType       int
	PhaseAngle         int
	BlockNumber        int
	SourceSet          int
}

func DecodeGeneralHeader3(buf []byte) (GeneralHeader3, error) {
	fs, err := decodeLayout(buf, GeneralHeader3Layout, NotSet)
	if err != nil {
		return GeneralHeader3{}, err
	}
	return GeneralHeader3{
		ExpandedFileNumber: fs.int("expanded_file_number"),
		SourceLine:         fs.float("source_line") + fs.float("source_line_fraction"),
		SourcePoint:        fs.float("source_point") + fs.float("source_point_fraction"),
		SourcePointIndex:   fs.int("source_point_index"),
		PhaseControl:       fs.int("phase_control"),
		VibratorType:       fs.int("vibrator_type"),
		PhaseAngle:         fs.int("phase_angle"),
		BlockNumber:        fs.int("block_number"),
		SourceSet:          fs.int("source_set"),
	}, nil
}

// ChannelSet describes a group of channels that share acquisition
// parameters. Samples and Interval are filled in from the general header
// timing once the descriptor is placed in a record.
type ChannelSet struct {
	ScanType           int
	Number             int
	StartTime          int // 2 ms units
	EndTime            int // 2 ms units
	Descale            float64
	Channels           int
	ChannelType        int
	SubscanExponent    int
	GainControl        int
	AliasFilterFreq    int
	AliasFilterSlope   int
	LowCutFreq         int
	LowCutSlope        int
	Notches            [3]int
	ExtendedNumber     int
	ExtendedHeaderFlag int
	TraceExtensions    int
	VerticalStack      int
	CableNumber        int
	ArrayForming       int
	SampleFormat       int
	Empty              bool

	Samples  int
	Interval time.Duration
}

// Key identifies the set within its record.
func (cs ChannelSet) Key() ChannelSetKey {
	return ChannelSetKey{ScanType: cs.ScanType, Number: cs.Number}
}

type ChannelSetKey struct {
	ScanType int
	Number   int
}

func DecodeChannelSet(buf []byte, prof Profile) (ChannelSet, error) {
	layout := prof.ChannelSet
	if len(buf) >= layout.Size && isZero(buf[:layout.Size]) {
		return ChannelSet{Empty: true, Descale: 1}, nil
	}
	fs, err := decodeLayout(buf, layout, prof.Revision)
	if err != nil {
		return ChannelSet{}, err
	}
	cs := ChannelSet{
		ScanType:           fs.int("scan_type"),
		Number:             fs.int("channel_set"),
		StartTime:          fs.int("start_time"),
		EndTime:            fs.int("end_time"),
		Channels:           fs.int("channels"),
		ChannelType:        fs.int("channel_type"),
		SubscanExponent:    fs.int("subscan_exponent"),
		GainControl:        fs.int("gain_control"),
		AliasFilterFreq:    fs.int("alias_filter_freq"),
		AliasFilterSlope:   fs.int("alias_filter_slope"),
		LowCutFreq:         fs.int("low_cut_freq"),
		LowCutSlope:        fs.int("low_cut_slope"),
		Notches:            [3]int{fs.int("notch_1"), fs.int("notch_2"), fs.int("notch_3")},
		ExtendedNumber:     fs.int("extended_channel_set"),
		ExtendedHeaderFlag: fs.int("extended_header_flag"),
		TraceExtensions:    fs.int("trace_extensions"),
		VerticalStack:      fs.int("vertical_stack"),
		CableNumber:        fs.int("cable_number"),
		ArrayForming:       fs.int("array_forming"),
	}
	if cs.Number == NotSet {
		cs.Number = cs.ExtendedNumber
	}
	if cs.Number == 0 {
		return cs, malformedRev(layout, "channel_set", prof.Revision, "channel set number 0")
	}
	if cs.EndTime < cs.StartTime {
		return cs, malformedRev(layout, "end_time", prof.Revision, "end %d before start %d", cs.EndTime, cs.StartTime)
	}
	if prof.Revision >= 3 {
		cs.Samples = fs.int("samples_per_trace")
		cs.Interval = time.Duration(fs.int("sample_interval")) * time.Microsecond
		cs.Descale = fs.float("descale_float")
		cs.SampleFormat = fs.int("sample_format")
		if cs.Descale == 0 {
			cs.Descale = 1
		}
	} else {
		cs.Descale = descaleFactor(uint16(fs.int("descale")))
	}
	return cs, nil
}

// descaleFactor converts the two byte MP factor: byte 6 carries the binary
// fraction of the exponent, byte 7 the sign (0x80) and integer part (0x1F).
func descaleFactor(raw uint16) float64 {
	frac := float64(raw>>8) / 256
	hi := byte(raw)
	exp := float64(hi&0x1f) + frac
	if hi&0x80 != 0 {
		exp = -exp
	}
	return math.Exp2(exp)
}

// derive fills Samples and Interval from the base scan interval when the
// descriptor does not carry them directly.
func (cs *ChannelSet) derive(baseScanInterval int) {
	if cs.Empty {
		return
	}
	if cs.Interval == 0 && baseScanInterval > 0 {
		cs.Interval = time.Duration(baseScanInterval) * time.Millisecond / 16 / time.Duration(1<<cs.SubscanExponent)
	}
	if cs.Samples == 0 && baseScanInterval > 0 {
		// span in 1/16 ms, scaled by the subscan count
		span := (cs.EndTime - cs.StartTime) * 2 * 16
		cs.Samples = span * (1 << cs.SubscanExponent) / baseScanInterval
	}
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// TraceHeader is the fixed 20 byte demultiplexed trace header.
type TraceHeader struct {
	FileNumber         int
	ScanType           int
	ChannelSet         int
	TraceNumber        int
	FirstTimingWord    float64 // ms
	Extensions         int
	SampleSkew         int
	TraceEdit          int
	TimeBreakWindow    int
	ExtendedChannelSet int
	ExtendedFileNumber int
}

func DecodeTraceHeader(buf []byte) (TraceHeader, error) {
	fs, err := decodeLayout(buf, TraceHeaderLayout, NotSet)
	if err != nil {
		return TraceHeader{}, err
	}
	h := TraceHeader{
		FileNumber:         fs.int("file_number"),
		ScanType:           fs.int("scan_type"),
		ChannelSet:         fs.int("channel_set"),
		TraceNumber:        fs.int("trace_number"),
		FirstTimingWord:    fs.float("first_timing_word") / 256,
		Extensions:         fs.int("extensions"),
		SampleSkew:         fs.int("sample_skew"),
		TraceEdit:          fs.int("trace_edit"),
		TimeBreakWindow:    fs.int("time_break_window"),
		ExtendedChannelSet: fs.int("extended_channel_set"),
		ExtendedFileNumber: fs.int("extended_file_number"),
	}
	if h.ChannelSet == NotSet {
		h.ChannelSet = h.ExtendedChannelSet
	}
	if h.FileNumber == NotSet {
		h.FileNumber = h.ExtendedFileNumber
	}
	return h, nil
}

// TraceExtension1 is the standard first trace header extension.
type TraceExtension1 struct {
	ReceiverLine       float64
	ReceiverPoint      float64
	ReceiverPointIndex int
	SamplesPerTrace    int
	SensorType         int
	SampleFormat       int // 0 means the record format applies
}

func DecodeTraceExtension1(buf []byte) (TraceExtension1, error) {
	fs, err := decodeLayout(buf, TraceExtension1Layout, NotSet)
	if err != nil {
		return TraceExtension1{}, err
	}
	e := TraceExtension1{
		ReceiverLine:       fs.float("receiver_line"),
		ReceiverPoint:      fs.float("receiver_point"),
		ReceiverPointIndex: fs.int("receiver_point_index"),
		SamplesPerTrace:    fs.int("samples_per_trace"),
		SensorType:         fs.int("sensor_type"),
		SampleFormat:       fs.int("sample_format"),
	}
	if fs.absent("receiver_line") {
		e.ReceiverLine = fs.float("ext_receiver_line") + fs.float("ext_receiver_line_fraction")
	}
	if fs.absent("receiver_point") {
		e.ReceiverPoint = fs.float("ext_receiver_point") + fs.float("ext_receiver_point_fraction")
	}
	return e, nil
}

func malformed(l Layout, field, format string, args ...any) error {
	return malformedRev(l, field, NotSet, format, args...)
}

func malformedRev(l Layout, field string, rev int, format string, args ...any) error {
	off := 0
	for _, f := range l.Fields {
		if f.Name == field {
			off = f.Nibble / 2
			break
		}
	}
	err := newError(ErrMalformedHeader, off, format, args...)
	err.Header = l.Name
	err.Field = field
	err.Revision = rev
	return err
}
