package segd

// Block sizes in bytes.
const (
	BlockSize            = 32
	TraceHeaderSize      = 20
	TraceExtensionSize   = 32
	ChannelSetSizeV3     = 96
	SercelExtendedSize   = 1024
	SercelManufacturer   = 13
	maxSercelExtensions  = 7
	firstSercelExtension = 2
)

// General header block #1.
var GeneralHeader1Layout = Layout{
	Name: "general_header_1",
	Size: BlockSize,
	Fields: []FieldSpec{
		{Name: "file_number", Nibble: 0, Nibbles: 4, Enc: EncBCD, Optional: true},
		{Name: "format_code", Nibble: 4, Nibbles: 4, Enc: EncBCD},
		{Name: "general_constants", Nibble: 8, Nibbles: 12, Enc: EncBCD},
		{Name: "year", Nibble: 20, Nibbles: 2, Enc: EncBCD},
		{Name: "additional_blocks", Nibble: 22, Nibbles: 1, Enc: EncUint, Optional: true},
		{Name: "julian_day", Nibble: 23, Nibbles: 3, Enc: EncBCD},
		{Name: "hour", Nibble: 26, Nibbles: 2, Enc: EncBCD},
		{Name: "minute", Nibble: 28, Nibbles: 2, Enc: EncBCD},
		{Name: "second", Nibble: 30, Nibbles: 2, Enc: EncBCD},
		{Name: "manufacturer_code", Nibble: 32, Nibbles: 2, Enc: EncBCD},
		{Name: "manufacturer_serial", Nibble: 34, Nibbles: 4, Enc: EncBCD},
		{Name: "bytes_per_scan", Nibble: 38, Nibbles: 6, Enc: EncBCD},
		{Name: "base_scan_interval", Nibble: 44, Nibbles: 2, Enc: EncUint, Unit: "1/16 ms"},
		{Name: "polarity", Nibble: 46, Nibbles: 1, Enc: EncUint},
		{Name: "record_type", Nibble: 50, Nibbles: 1, Enc: EncUint},
		{Name: "record_length", Nibble: 51, Nibbles: 3, Enc: EncBCD, Unit: "0.5 x 1.024 s", Optional: true},
		{Name: "scan_types", Nibble: 54, Nibbles: 2, Enc: EncBCD},
		{Name: "channel_sets_per_scan", Nibble: 56, Nibbles: 2, Enc: EncBCD, Optional: true},
		{Name: "skew_blocks", Nibble: 58, Nibbles: 2, Enc: EncBCD},
		{Name: "extended_header_blocks", Nibble: 60, Nibbles: 2, Enc: EncBCD, Optional: true},
		{Name: "external_header_blocks", Nibble: 62, Nibbles: 2, Enc: EncBCD, Optional: true},
	},
}

// General header block #2, revision 1 and later.
var GeneralHeader2Layout = Layout{
	Name: "general_header_2",
	Size: BlockSize,
	Fields: []FieldSpec{
		{Name: "expanded_file_number", Nibble: 0, Nibbles: 6, Enc: EncUint},
		{Name: "extended_channel_sets", Nibble: 6, Nibbles: 4, Enc: EncUint},
		{Name: "extended_header_blocks", Nibble: 10, Nibbles: 4, Enc: EncUint},
		{Name: "external_header_blocks", Nibble: 14, Nibbles: 4, Enc: EncUint},
		{Name: "revision_major", Nibble: 20, Nibbles: 2, Enc: EncUint},
		{Name: "revision_minor", Nibble: 22, Nibbles: 2, Enc: EncUint},
		{Name: "trailer_blocks", Nibble: 24, Nibbles: 4, Enc: EncUint},
		{Name: "extended_record_length", Nibble: 28, Nibbles: 6, Enc: EncUint, Unit: "ms"},
		{Name: "block_number", Nibble: 36, Nibbles: 2, Enc: EncUint},
		{Name: "extended_general_blocks", Nibble: 44, Nibbles: 4, Enc: EncUint},
	},
}

// General header block #3 carries the source position.
var GeneralHeader3Layout = Layout{
	Name: "general_header_3",
	Size: BlockSize,
	Fields: []FieldSpec{
		{Name: "expanded_file_number", Nibble: 0, Nibbles: 6, Enc: EncUint},
		{Name: "source_line", Nibble: 6, Nibbles: 6, Enc: EncInt},
		{Name: "source_line_fraction", Nibble: 12, Nibbles: 4, Enc: EncFraction},
		{Name: "source_point", Nibble: 16, Nibbles: 6, Enc: EncInt},
		{Name: "source_point_fraction", Nibble: 22, Nibbles: 4, Enc: EncFraction},
		{Name: "source_point_index", Nibble: 26, Nibbles: 2, Enc: EncUint},
		{Name: "phase_control", Nibble: 28, Nibbles: 2, Enc: EncUint},
		{Name: "vibrator_type", Nibble: 30, Nibbles: 2, Enc: EncUint},
		{Name: "phase_angle", Nibble: 32, Nibbles: 4, Enc: EncInt, Unit: "deg"},
		{Name: "block_number", Nibble: 36, Nibbles: 2, Enc: EncUint},
		{Name: "source_set", Nibble: 38, Nibbles: 2, Enc: EncUint},
	},
}

var channelSetFields = []FieldSpec{
	{Name: "scan_type", Nibble: 0, Nibbles: 2, Enc: EncBCD},
	{Name: "channel_set", Nibble: 2, Nibbles: 2, Enc: EncBCD, Optional: true},
	{Name: "start_time", Nibble: 4, Nibbles: 4, Enc: EncUint, Unit: "2 ms"},
	{Name: "end_time", Nibble: 8, Nibbles: 4, Enc: EncUint, Unit: "2 ms"},
	{Name: "descale", Nibble: 12, Nibbles: 4, Enc: EncUint},
	{Name: "channels", Nibble: 16, Nibbles: 4, Enc: EncBCD},
	{Name: "channel_type", Nibble: 20, Nibbles: 1, Enc: EncUint},
	{Name: "subscan_exponent", Nibble: 22, Nibbles: 1, Enc: EncUint},
	{Name: "gain_control", Nibble: 23, Nibbles: 1, Enc: EncUint},
	{Name: "alias_filter_freq", Nibble: 24, Nibbles: 4, Enc: EncBCD, Unit: "Hz"},
	{Name: "alias_filter_slope", Nibble: 28, Nibbles: 4, Enc: EncBCD, Unit: "dB/oct"},
	{Name: "low_cut_freq", Nibble: 32, Nibbles: 4, Enc: EncBCD, Unit: "Hz"},
	{Name: "low_cut_slope", Nibble: 36, Nibbles: 4, Enc: EncBCD, Unit: "dB/oct"},
	{Name: "notch_1", Nibble: 40, Nibbles: 4, Enc: EncBCD, Unit: "Hz"},
	{Name: "notch_2", Nibble: 44, Nibbles: 4, Enc: EncBCD, Unit: "Hz"},
	{Name: "notch_3", Nibble: 48, Nibbles: 4, Enc: EncBCD, Unit: "Hz"},
	{Name: "extended_channel_set", Nibble: 52, Nibbles: 4, Enc: EncUint},
	{Name: "extended_header_flag", Nibble: 56, Nibbles: 1, Enc: EncUint},
	{Name: "trace_extensions", Nibble: 57, Nibbles: 1, Enc: EncUint},
	{Name: "vertical_stack", Nibble: 58, Nibbles: 2, Enc: EncUint},
	{Name: "cable_number", Nibble: 60, Nibbles: 2, Enc: EncUint},
	{Name: "array_forming", Nibble: 62, Nibbles: 2, Enc: EncUint},
}

// ChannelSetLayout is the 32 byte scan type header of revisions 0 to 2.
var ChannelSetLayout = Layout{
	Name:   "channel_set",
	Size:   BlockSize,
	Fields: channelSetFields,
}

// ChannelSetLayoutV3 extends the descriptor to three blocks with explicit
// timing and a float descale multiplier.
var ChannelSetLayoutV3 = Layout{
	Name: "channel_set",
	Size: ChannelSetSizeV3,
	Fields: append(append([]FieldSpec(nil), channelSetFields...),
		FieldSpec{Name: "samples_per_trace", Nibble: 64, Nibbles: 8, Enc: EncUint},
		FieldSpec{Name: "sample_interval", Nibble: 72, Nibbles: 8, Enc: EncUint, Unit: "us"},
		FieldSpec{Name: "descale_float", Nibble: 80, Nibbles: 8, Enc: EncFloat32},
		FieldSpec{Name: "sample_format", Nibble: 88, Nibbles: 8, Enc: EncUint},
	),
}

var TraceHeaderLayout = Layout{
	Name: "trace_header",
	Size: TraceHeaderSize,
	Fields: []FieldSpec{
		{Name: "file_number", Nibble: 0, Nibbles: 4, Enc: EncBCD, Optional: true},
		{Name: "scan_type", Nibble: 4, Nibbles: 2, Enc: EncBCD},
		{Name: "channel_set", Nibble: 6, Nibbles: 2, Enc: EncBCD, Optional: true},
		{Name: "trace_number", Nibble: 8, Nibbles: 4, Enc: EncBCD},
		{Name: "first_timing_word", Nibble: 12, Nibbles: 6, Enc: EncUint, Unit: "1/256 ms"},
		{Name: "extensions", Nibble: 18, Nibbles: 2, Enc: EncUint},
		{Name: "sample_skew", Nibble: 20, Nibbles: 2, Enc: EncUint},
		{Name: "trace_edit", Nibble: 22, Nibbles: 2, Enc: EncUint},
		{Name: "time_break_window", Nibble: 24, Nibbles: 6, Enc: EncUint},
		{Name: "extended_channel_set", Nibble: 30, Nibbles: 4, Enc: EncUint},
		{Name: "extended_file_number", Nibble: 34, Nibbles: 6, Enc: EncUint},
	},
}

var TraceExtension1Layout = Layout{
	Name: "trace_extension_1",
	Size: TraceExtensionSize,
	Fields: []FieldSpec{
		{Name: "receiver_line", Nibble: 0, Nibbles: 6, Enc: EncInt, Optional: true},
		{Name: "receiver_point", Nibble: 6, Nibbles: 6, Enc: EncInt, Optional: true},
		{Name: "receiver_point_index", Nibble: 12, Nibbles: 2, Enc: EncUint},
		{Name: "samples_per_trace", Nibble: 14, Nibbles: 6, Enc: EncUint},
		{Name: "ext_receiver_line", Nibble: 20, Nibbles: 6, Enc: EncInt},
		{Name: "ext_receiver_line_fraction", Nibble: 26, Nibbles: 4, Enc: EncFraction},
		{Name: "ext_receiver_point", Nibble: 30, Nibbles: 6, Enc: EncInt},
		{Name: "ext_receiver_point_fraction", Nibble: 36, Nibbles: 4, Enc: EncFraction},
		{Name: "sensor_type", Nibble: 40, Nibbles: 2, Enc: EncUint},
		{Name: "sample_format", Nibble: 42, Nibbles: 4, Enc: EncBCD},
	},
}

// Sercel trace header extensions #2 to #7, one layout per block.
var sercelTraceLayouts = [...]Layout{
	{Name: "sercel_trace_extension_2", Size: TraceExtensionSize, Fields: []FieldSpec{
		{Name: "receiver_easting", Nibble: 0, Nibbles: 16, Enc: EncFloat64, Unit: "m"},
		{Name: "receiver_northing", Nibble: 16, Nibbles: 16, Enc: EncFloat64, Unit: "m"},
		{Name: "receiver_elevation", Nibble: 32, Nibbles: 8, Enc: EncFloat32, Unit: "m"},
		{Name: "sensor_type", Nibble: 40, Nibbles: 2, Enc: EncUint},
		{Name: "dsd_id", Nibble: 48, Nibbles: 8, Enc: EncUint},
		{Name: "extended_trace_number", Nibble: 56, Nibbles: 8, Enc: EncUint},
	}},
	{Name: "sercel_trace_extension_3", Size: TraceExtensionSize, Fields: []FieldSpec{
		{Name: "resistance_low", Nibble: 0, Nibbles: 8, Enc: EncFloat32, Unit: "ohm"},
		{Name: "resistance_high", Nibble: 8, Nibbles: 8, Enc: EncFloat32, Unit: "ohm"},
		{Name: "resistance", Nibble: 16, Nibbles: 8, Enc: EncFloat32, Unit: "ohm"},
		{Name: "tilt_limit", Nibble: 24, Nibbles: 8, Enc: EncFloat32, Unit: "%"},
		{Name: "tilt", Nibble: 32, Nibbles: 8, Enc: EncFloat32, Unit: "%"},
		{Name: "resistance_error", Nibble: 40, Nibbles: 2, Enc: EncUint},
		{Name: "tilt_error", Nibble: 42, Nibbles: 2, Enc: EncUint},
	}},
	{Name: "sercel_trace_extension_4", Size: TraceExtensionSize, Fields: []FieldSpec{
		{Name: "capacitance_low", Nibble: 0, Nibbles: 8, Enc: EncFloat32, Unit: "nF"},
		{Name: "capacitance_high", Nibble: 8, Nibbles: 8, Enc: EncFloat32, Unit: "nF"},
		{Name: "capacitance", Nibble: 16, Nibbles: 8, Enc: EncFloat32, Unit: "nF"},
		{Name: "cutoff_low", Nibble: 24, Nibbles: 8, Enc: EncFloat32, Unit: "Hz"},
		{Name: "cutoff_high", Nibble: 32, Nibbles: 8, Enc: EncFloat32, Unit: "Hz"},
		{Name: "cutoff", Nibble: 40, Nibbles: 8, Enc: EncFloat32, Unit: "Hz"},
		{Name: "capacitance_error", Nibble: 48, Nibbles: 2, Enc: EncUint},
		{Name: "cutoff_error", Nibble: 50, Nibbles: 2, Enc: EncUint},
	}},
	{Name: "sercel_trace_extension_5", Size: TraceExtensionSize, Fields: []FieldSpec{
		{Name: "leakage_limit", Nibble: 0, Nibbles: 8, Enc: EncFloat32, Unit: "Mohm"},
		{Name: "leakage", Nibble: 8, Nibbles: 8, Enc: EncFloat32, Unit: "Mohm"},
		{Name: "longitude", Nibble: 16, Nibbles: 16, Enc: EncFloat64, Unit: "deg"},
		{Name: "latitude", Nibble: 32, Nibbles: 16, Enc: EncFloat64, Unit: "deg"},
		{Name: "leakage_error", Nibble: 48, Nibbles: 2, Enc: EncUint},
		{Name: "horizontal_accuracy", Nibble: 50, Nibbles: 6, Enc: EncUint, Unit: "mm"},
		{Name: "instrument_elevation", Nibble: 56, Nibbles: 8, Enc: EncFloat32, Unit: "mm"},
	}},
	{Name: "sercel_trace_extension_6", Size: TraceExtensionSize, Fields: []FieldSpec{
		{Name: "unit_type", Nibble: 0, Nibbles: 2, Enc: EncUint},
		{Name: "unit_serial", Nibble: 2, Nibbles: 6, Enc: EncUint},
		{Name: "channel_number", Nibble: 8, Nibbles: 2, Enc: EncUint},
		{Name: "assembly_type", Nibble: 16, Nibbles: 2, Enc: EncUint},
		{Name: "assembly_serial", Nibble: 18, Nibbles: 6, Enc: EncUint},
		{Name: "location_in_assembly", Nibble: 24, Nibbles: 2, Enc: EncUint},
		{Name: "subunit_type", Nibble: 32, Nibbles: 2, Enc: EncUint},
		{Name: "channel_type", Nibble: 34, Nibbles: 2, Enc: EncUint},
		{Name: "sensor_sensitivity", Nibble: 40, Nibbles: 8, Enc: EncFloat32, Unit: "mV/m/s/s"},
	}},
	{Name: "sercel_trace_extension_7", Size: TraceExtensionSize, Fields: []FieldSpec{
		{Name: "control_unit_type", Nibble: 0, Nibbles: 2, Enc: EncUint},
		{Name: "control_unit_serial", Nibble: 2, Nibbles: 6, Enc: EncUint},
		{Name: "channel_gain_scale", Nibble: 8, Nibbles: 2, Enc: EncUint},
		{Name: "channel_filter", Nibble: 10, Nibbles: 2, Enc: EncUint},
		{Name: "overscaling", Nibble: 12, Nibbles: 2, Enc: EncUint},
		{Name: "edited_status", Nibble: 14, Nibbles: 2, Enc: EncUint},
		{Name: "mv_conversion", Nibble: 16, Nibbles: 8, Enc: EncFloat32},
		{Name: "trace_max", Nibble: 32, Nibbles: 8, Enc: EncFloat32},
		{Name: "trace_max_time", Nibble: 40, Nibbles: 8, Enc: EncUint, Unit: "us"},
		{Name: "interpolations", Nibble: 48, Nibbles: 8, Enc: EncUint},
		{Name: "offset_value", Nibble: 56, Nibbles: 8, Enc: EncUint},
	}},
}

// SercelExtendedLayout covers the 1024 byte Sercel extended header.
var SercelExtendedLayout = Layout{
	Name: "sercel_extended_header",
	Size: SercelExtendedSize,
	Fields: []FieldSpec{
		word("acquisition_length", 0, "ms"),
		word("sample_rate", 4, "us"),
		word("total_traces", 8, ""),
		word("aux_traces", 12, ""),
		word("seis_traces", 16, ""),
		word("dead_seis_traces", 20, ""),
		word("live_seis_traces", 24, ""),
		word("source_type", 28, ""),
		word("samples_per_trace", 32, ""),
		word("shot_number", 36, ""),
		{Name: "tb_window", Nibble: 80, Nibbles: 8, Enc: EncFloat32, Unit: "s"},
		word("test_record_type", 44, ""),
		word("spread_first_line", 48, ""),
		word("spread_first_number", 52, ""),
		word("spread_number", 56, ""),
		word("spread_type", 60, ""),
		word("time_break", 64, "us"),
		word("uphole_time", 68, "us"),
		word("blaster_id", 72, ""),
		word("blaster_status", 76, ""),
		word("refraction_delay", 80, "ms"),
		word("tb_to_t0", 84, "us"),
		word("internal_time_break", 88, ""),
		word("prestack", 92, ""),
		word("noise_elimination_type", 96, ""),
		word("low_trace_percentage", 100, "%"),
		word("low_trace_value", 104, "dB"),
		word("noisy_trace_percentage", 116, "%"),
		word("stacking_fold", 400, ""),
		word("record_length", 484, "ms"),
		word("autocorrelation_peak_time", 488, "ms"),
		word("correlation_pilot", 496, ""),
		word("pilot_length", 500, "ms"),
		word("sweep_length", 504, "ms"),
		word("acquisition_number", 508, ""),
		{Name: "max_of_max_aux", Nibble: 1024, Nibbles: 8, Enc: EncFloat32},
		{Name: "max_of_max_seis", Nibble: 1032, Nibbles: 8, Enc: EncFloat32},
		word("dump_stacking_fold", 520, ""),
		text("tape_label", 524, 16),
		word("tape_number", 540, ""),
		text("software_version", 544, 16),
		text("date", 560, 12),
		{Name: "source_easting", Nibble: 1144, Nibbles: 16, Enc: EncFloat64, Unit: "m"},
		{Name: "source_northing", Nibble: 1160, Nibbles: 16, Enc: EncFloat64, Unit: "m"},
		{Name: "source_elevation", Nibble: 1176, Nibbles: 8, Enc: EncFloat32, Unit: "m"},
		word("slip_sweep", 592, ""),
		word("files_per_tape", 596, ""),
		word("file_count", 600, ""),
		text("acquisition_error", 604, 160),
		word("filter_type", 764, ""),
		word("stack_dumped", 768, ""),
		word("stack_sign", 772, ""),
		word("tilt_correction", 776, ""),
		text("swath_name", 780, 64),
		word("operating_mode", 844, ""),
		word("no_log", 852, ""),
		word("listening_time", 856, "ms"),
		word("dump_type", 860, ""),
		word("swath_id", 868, ""),
		word("offset_removal_disabled", 872, ""),
		{Name: "gps_time", Nibble: 1752, Nibbles: 16, Enc: EncUint, Unit: "us"},
	},
}

// word is a 32-bit unsigned field at a byte offset.
func word(name string, off int, unit string) FieldSpec {
	return FieldSpec{Name: name, Nibble: off * 2, Nibbles: 8, Enc: EncUint, Unit: unit}
}

func text(name string, off, n int) FieldSpec {
	return FieldSpec{Name: name, Nibble: off * 2, Nibbles: n * 2, Enc: EncASCII}
}
