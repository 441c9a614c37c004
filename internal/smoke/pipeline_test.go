package smoke

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/GeoNet/kit/seis/ms"
	"github.com/klauspost/compress/zstd"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/export"
	"example.com/segdgate/internal/manifest"
	"example.com/segdgate/internal/report"
	"example.com/segdgate/internal/rules"
	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/segd/segdtest"
)

func writeCompressedRecord(t *testing.T, path string) []byte {
	t.Helper()
	rec := segdtest.Record{
		Revision:    2,
		FileNumber:  55,
		Year:        2024,
		Format:      segd.FormatInt16,
		ChannelSets: []segdtest.ChannelSet{{Number: 1, End: 4, Channels: 3}},
	}
	for i := 0; i < 3; i++ {
		rec.Traces = append(rec.Traces, segdtest.Trace{
			Number:        i + 1,
			Extensions:    1,
			ReceiverLine:  9,
			ReceiverPoint: 501 + i,
			Data:          segdtest.Int16s(binary.BigEndian, 1, 2, 3, 4, -4, -3, -2, -1),
		})
	}
	raw := rec.Bytes()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	defer enc.Close()
	if err := os.WriteFile(path, enc.EncodeAll(raw, nil), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return raw
}

// TestRecordPipeline runs a compressed record through decode, acceptance,
// reporting, export and manifest in the order a delivery would.
func TestRecordPipeline(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "shot55.segd.zst")
	raw := writeCompressedRecord(t, in)

	data, err := common.ReadInput(in)
	if err != nil {
		t.Fatalf("ReadInput: %v", err)
	}
	if !bytes.Equal(data, raw) {
		t.Fatalf("inflated input differs from the encoded record")
	}
	f, err := segd.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	engine := rules.NewEngine(rules.DefaultRulePack())
	engine.RegisterBuiltins()
	if _, err := engine.Eval(&rules.Context{InputFile: in}); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	diagPath := filepath.Join(dir, "diagnostics.ndjson")
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		t.Fatalf("WriteDiagnosticsNDJSON: %v", err)
	}
	rep := engine.MakeAcceptance()
	if !rep.Summary.Pass {
		t.Fatalf("acceptance failed: %+v", rep.Findings)
	}
	accPath := filepath.Join(dir, "acceptance.json")
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		t.Fatalf("SaveAcceptanceJSON: %v", err)
	}
	sha, _, err := common.Sha256OfFile(in)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	pdfPath := filepath.Join(dir, "acceptance.pdf")
	if err := report.SaveAcceptancePDF(rep, report.Source{File: in, SHA256: sha}, pdfPath); err != nil {
		t.Fatalf("SaveAcceptancePDF: %v", err)
	}

	var mseed bytes.Buffer
	n, err := export.WriteMiniSEED(&mseed, f, export.MiniSEEDOptions{Network: "NZ", RecordLength: 512})
	if err != nil {
		t.Fatalf("WriteMiniSEED: %v", err)
	}
	if n != 3 || mseed.Len() != 3*512 {
		t.Fatalf("miniseed records %d, bytes %d", n, mseed.Len())
	}
	msr, err := ms.NewRecord(mseed.Bytes()[:512])
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if msr.Station() != "501" || msr.Network() != "NZ" {
		t.Fatalf("record ids %s", msr.SrcName(false))
	}
	mseedPath := filepath.Join(dir, "shot55.mseed")
	if err := os.WriteFile(mseedPath, mseed.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dump, err := export.WriteRawDump(dir, export.BaseName(in), data, f)
	if err != nil {
		t.Fatalf("WriteRawDump: %v", err)
	}
	if len(dump.TraceHeaders) != 3 || dump.Rows != 3 || dump.Columns != 8 {
		t.Fatalf("dump %+v", dump)
	}

	m, err := manifest.Build([]string{in, diagPath, accPath, pdfPath, mseedPath})
	if err != nil {
		t.Fatalf("manifest.Build: %v", err)
	}
	wantTypes := []string{manifest.TypeSEGDZstd, manifest.TypeReport, manifest.TypeReport, manifest.TypeReport, manifest.TypeReport}
	for i, item := range m.Items {
		if item.Type != wantTypes[i] {
			t.Fatalf("item %d type %q, want %q", i, item.Type, wantTypes[i])
		}
	}
	if m.Items[0].Sha256 != sha || m.Items[0].Traces != 3 || m.Items[0].FileNumber != 55 {
		t.Fatalf("record item %+v", m.Items[0])
	}
}
