package segd

import "time"

// gpsEpoch is the origin of the Sercel GPS acquisition time.
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// SercelExtendedHeader holds the Sercel 408/428/508 extended header fields
// that downstream tools use.
type SercelExtendedHeader struct {
	AcquisitionLength int // ms
	SampleRate        int // us
	TotalTraces       int
	AuxTraces         int
	SeisTraces        int
	DeadSeisTraces    int
	LiveSeisTraces    int
	SourceType        int
	SamplesPerTrace   int
	ShotNumber        int
	TimeBreakWindow   float64
	TestRecordType    int
	SpreadFirstLine   int
	SpreadFirstNumber int
	SpreadNumber      int
	TimeBreak         int // us
	UpholeTime        int // us
	BlasterID         int
	BlasterStatus     int
	StackingFold      int
	RecordLength      int // ms
	SweepLength       int // ms
	AcquisitionNumber int
	MaxOfMaxAux       float64
	MaxOfMaxSeis      float64
	TapeLabel         string
	TapeNumber        int
	SoftwareVersion   string
	Date              string
	SourceEasting     float64
	SourceNorthing    float64
	SourceElevation   float64
	FileCount         int
	AcquisitionError  string
	SwathName         string
	OperatingMode     int
	ListeningTime     int // ms
	SwathID           int
	GPSTime           time.Time
}

func DecodeSercelExtendedHeader(buf []byte) (SercelExtendedHeader, error) {
	fs, err := decodeLayout(buf, SercelExtendedLayout, NotSet)
	if err != nil {
		return SercelExtendedHeader{}, err
	}
	h := SercelExtendedHeader{
		AcquisitionLength: fs.int("acquisition_length"),
		SampleRate:        fs.int("sample_rate"),
		TotalTraces:       fs.int("total_traces"),
		AuxTraces:         fs.int("aux_traces"),
		SeisTraces:        fs.int("seis_traces"),
		DeadSeisTraces:    fs.int("dead_seis_traces"),
		LiveSeisTraces:    fs.int("live_seis_traces"),
		SourceType:        fs.int("source_type"),
		SamplesPerTrace:   fs.int("samples_per_trace"),
		ShotNumber:        fs.int("shot_number"),
		TimeBreakWindow:   fs.float("tb_window"),
		TestRecordType:    fs.int("test_record_type"),
		SpreadFirstLine:   fs.int("spread_first_line"),
		SpreadFirstNumber: fs.int("spread_first_number"),
		SpreadNumber:      fs.int("spread_number"),
		TimeBreak:         fs.int("time_break"),
		UpholeTime:        fs.int("uphole_time"),
		BlasterID:         fs.int("blaster_id"),
		BlasterStatus:     fs.int("blaster_status"),
		StackingFold:      fs.int("stacking_fold"),
		RecordLength:      fs.int("record_length"),
		SweepLength:       fs.int("sweep_length"),
		AcquisitionNumber: fs.int("acquisition_number"),
		MaxOfMaxAux:       fs.float("max_of_max_aux"),
		MaxOfMaxSeis:      fs.float("max_of_max_seis"),
		TapeLabel:         fs.text("tape_label"),
		TapeNumber:        fs.int("tape_number"),
		SoftwareVersion:   fs.text("software_version"),
		Date:              fs.text("date"),
		SourceEasting:     fs.float("source_easting"),
		SourceNorthing:    fs.float("source_northing"),
		SourceElevation:   fs.float("source_elevation"),
		FileCount:         fs.int("file_count"),
		AcquisitionError:  fs.text("acquisition_error"),
		SwathName:         fs.text("swath_name"),
		OperatingMode:     fs.int("operating_mode"),
		ListeningTime:     fs.int("listening_time"),
		SwathID:           fs.int("swath_id"),
	}
	if us := fs.float("gps_time"); us > 0 {
		h.GPSTime = gpsEpoch.Add(time.Duration(us) * time.Microsecond)
	}
	return h, nil
}

// SercelTraceExtensions collects Sercel trace header extensions #2 to #7.
// Blocks the trace does not carry stay zero.
type SercelTraceExtensions struct {
	Blocks            int
	ReceiverEasting   float64
	ReceiverNorthing  float64
	ReceiverElevation float64
	SensorType        int
	DSDID             int
	TraceNumber       int
	Resistance        float64
	ResistanceError   bool
	Tilt              float64
	TiltError         bool
	Capacitance       float64
	CapacitanceError  bool
	Cutoff            float64
	CutoffError       bool
	Leakage           float64
	LeakageError      bool
	Longitude         float64
	Latitude          float64
	UnitType          int
	UnitSerial        int
	ChannelNumber     int
	SensorSensitivity float64
	TraceMax          float64
	TraceMaxTime      int // us
}

// DecodeSercelTraceExtensions decodes consecutive 32 byte blocks starting
// with extension #2. buf may hold one to six blocks.
func DecodeSercelTraceExtensions(buf []byte) (SercelTraceExtensions, error) {
	var out SercelTraceExtensions
	n := len(buf) / TraceExtensionSize
	if n > len(sercelTraceLayouts) {
		n = len(sercelTraceLayouts)
	}
	for i := 0; i < n; i++ {
		blk := buf[i*TraceExtensionSize:]
		fs, err := decodeLayout(blk, sercelTraceLayouts[i], NotSet)
		if err != nil {
			return out, rebase(err, i*TraceExtensionSize)
		}
		switch i + firstSercelExtension {
		case 2:
			out.ReceiverEasting = fs.float("receiver_easting")
			out.ReceiverNorthing = fs.float("receiver_northing")
			out.ReceiverElevation = fs.float("receiver_elevation")
			out.SensorType = fs.int("sensor_type")
			out.DSDID = fs.int("dsd_id")
			out.TraceNumber = fs.int("extended_trace_number")
		case 3:
			out.Resistance = fs.float("resistance")
			out.ResistanceError = fs.int("resistance_error") != 0
			out.Tilt = fs.float("tilt")
			out.TiltError = fs.int("tilt_error") != 0
		case 4:
			out.Capacitance = fs.float("capacitance")
			out.CapacitanceError = fs.int("capacitance_error") != 0
			out.Cutoff = fs.float("cutoff")
			out.CutoffError = fs.int("cutoff_error") != 0
		case 5:
			out.Leakage = fs.float("leakage")
			out.LeakageError = fs.int("leakage_error") != 0
			out.Longitude = fs.float("longitude")
			out.Latitude = fs.float("latitude")
		case 6:
			out.UnitType = fs.int("unit_type")
			out.UnitSerial = fs.int("unit_serial")
			out.ChannelNumber = fs.int("channel_number")
			out.SensorSensitivity = fs.float("sensor_sensitivity")
		case 7:
			out.TraceMax = fs.float("trace_max")
			out.TraceMaxTime = fs.int("trace_max_time")
		}
		out.Blocks++
	}
	return out, nil
}
