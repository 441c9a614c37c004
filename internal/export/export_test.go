package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GeoNet/kit/seis/ms"

	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/segd/segdtest"
)

func decodeSynthetic(t *testing.T, samples int, traces int) ([]byte, *segd.File) {
	t.Helper()
	rec := segdtest.Record{
		Revision:    1,
		Format:      segd.FormatFloat32,
		ChannelSets: []segdtest.ChannelSet{{Number: 1, End: samples / 2, Channels: traces}},
	}
	for i := 0; i < traces; i++ {
		vals := make([]float32, samples)
		for j := range vals {
			vals[j] = float32(i*1000 + j)
		}
		rec.Traces = append(rec.Traces, segdtest.Trace{
			Number:        i + 1,
			Extensions:    1,
			ReceiverPoint: 2001 + i,
			Data:          segdtest.Float32s(vals...),
		})
	}
	buf := rec.Bytes()
	f, err := segd.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return buf, f
}

func TestWriteRawDump(t *testing.T) {
	buf, f := decodeSynthetic(t, 4, 3)
	dir := t.TempDir()
	dump, err := WriteRawDump(dir, BaseName("/data/shot_0001.segd.zst"), buf, f)
	if err != nil {
		t.Fatalf("WriteRawDump: %v", err)
	}
	if dump.Dir != filepath.Join(dir, "shot_0001") || dump.Rows != 3 || dump.Columns != 4 {
		t.Fatalf("dump %+v", dump)
	}
	hdr, err := os.ReadFile(dump.HeaderBlock)
	if err != nil {
		t.Fatalf("read header block: %v", err)
	}
	if !bytes.Equal(hdr, buf[:f.HeaderBytes]) {
		t.Fatalf("header block differs from the record prefix")
	}
	if len(dump.TraceHeaders) != 3 || !strings.HasSuffix(dump.TraceHeaders[2], "shot_0001.trace_3.headers") {
		t.Fatalf("trace headers %v", dump.TraceHeaders)
	}
	th, err := os.ReadFile(dump.TraceHeaders[0])
	if err != nil {
		t.Fatalf("read trace headers: %v", err)
	}
	if len(th) != segd.TraceHeaderSize+segd.TraceExtensionSize {
		t.Fatalf("trace header file has %d bytes", len(th))
	}
	data, err := os.ReadFile(dump.TraceData)
	if err != nil {
		t.Fatalf("read trace data: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d rows", len(lines))
	}
	if got := strings.Fields(lines[1]); len(got) != 4 || got[0] != "1000.0000000000000000" || got[3] != "1003.0000000000000000" {
		t.Fatalf("row 1 = %v", got)
	}
}

func TestWriteRawDumpSkipsFailedTraces(t *testing.T) {
	rec := segdtest.Record{
		Revision:    1,
		Format:      segd.FormatInt16,
		ChannelSets: []segdtest.ChannelSet{{Number: 1, End: 2, Channels: 3}},
	}
	for i := 0; i < 3; i++ {
		v := int16(i + 1)
		rec.Traces = append(rec.Traces, segdtest.Trace{
			Number:     i + 1,
			Extensions: 1,
			Samples:    4,
			Data:       segdtest.Int16s(binary.BigEndian, v, v, v, v),
		})
	}
	rec.Traces[1].Format = segd.FormatQuat16
	buf := rec.Bytes()
	f, err := segd.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	dump, err := WriteRawDump(t.TempDir(), "shot", buf, f)
	if err != nil {
		t.Fatalf("WriteRawDump: %v", err)
	}
	if len(dump.Skipped) != 1 || dump.Skipped[0] != 2 || dump.Rows != 2 {
		t.Fatalf("dump %+v", dump)
	}
	if len(dump.TraceHeaders) != 2 || !strings.HasSuffix(dump.TraceHeaders[1], "shot.trace_3.headers") {
		t.Fatalf("trace headers %v", dump.TraceHeaders)
	}
	data, err := os.ReadFile(dump.TraceData)
	if err != nil {
		t.Fatalf("read trace data: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || strings.Fields(lines[1])[0] != "3.0000000000000000" {
		t.Fatalf("rows %q", lines)
	}
}

func TestWriteMiniSEED(t *testing.T) {
	_, f := decodeSynthetic(t, 200, 2)
	var out bytes.Buffer
	n, err := WriteMiniSEED(&out, f, MiniSEEDOptions{Network: "NZ", Location: "10", RecordLength: 512})
	if err != nil {
		t.Fatalf("WriteMiniSEED: %v", err)
	}
	// 112 float samples fit a 512 byte record, so each trace needs two
	if n != 4 || out.Len() != 4*512 {
		t.Fatalf("records %d bytes %d", n, out.Len())
	}
	raw := out.Bytes()
	first, err := ms.NewRecord(raw[:512])
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if first.Station() != "2001" || first.Network() != "NZ" || first.Location() != "10" || first.Channel() != "GHZ" {
		t.Fatalf("record ids %s", first.SrcName(false))
	}
	if first.SampleCount() != 112 || first.SampleRate() != 1000 || first.SeqNumber() != 1 {
		t.Fatalf("record header %+v", first.RecordHeader)
	}
	second, err := ms.NewRecord(raw[512:1024])
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	samples, err := second.Float64s()
	if err != nil {
		t.Fatalf("Float64s: %v", err)
	}
	if len(samples) != 88 || samples[0] != 112 || samples[87] != 199 {
		t.Fatalf("second record samples %d first %v", len(samples), samples[0])
	}
	if want := first.StartTime().Add(112 * f.Records[0].Record.SampleInterval); !second.StartTime().Equal(want) {
		t.Fatalf("second start %v, want %v", second.StartTime(), want)
	}
}

func TestWriteMiniSEEDRecordLength(t *testing.T) {
	_, f := decodeSynthetic(t, 4, 1)
	if _, err := WriteMiniSEED(&bytes.Buffer{}, f, MiniSEEDOptions{RecordLength: 1000}); !errors.Is(err, ErrRecordLength) {
		t.Fatalf("err = %v", err)
	}
}

func TestRateFactors(t *testing.T) {
	tests := []struct {
		rate       float64
		factor     int16
		multiplier int16
	}{
		{1000, 1000, 1},
		{0.1, -10, 1},
		{2.5, 25, -10},
		{0, 0, 0},
	}
	for _, tt := range tests {
		f, m := rateFactors(tt.rate)
		if f != tt.factor || m != tt.multiplier {
			t.Fatalf("rateFactors(%v) = %d, %d", tt.rate, f, m)
		}
	}
}
