package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/stats"
)

// MaxTraceRows bounds the per-trace table of the decode summary.
const MaxTraceRows = 500

// SaveDecodePDF renders a summary of a decoded record: general header
// fields, the channel set table and one row per trace.
func SaveDecodePDF(f *segd.File, src Source, out string) error {
	return writeFile(out, func(w io.Writer) error { return WriteDecodePDF(w, f, src) })
}

func WriteDecodePDF(w io.Writer, f *segd.File, src Source) error {
	if f == nil {
		return fmt.Errorf("no decoded record")
	}
	pdf := newDocument("Decode Summary")
	addPDFTitle(pdf, "Decode Summary")
	addSourceSection(pdf, src)
	addRecordSection(pdf, f)
	addChannelSetSection(pdf, f.ChannelSets)
	addTraceSection(pdf, f.Records)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func addRecordSection(pdf *gofpdf.Fpdf, f *segd.File) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Record")
	pdf.Ln(8)

	failed := len(f.Failed())
	items := []struct {
		label string
		value string
	}{
		{"Revision", fmt.Sprintf("%d.%d", f.Profile.Revision, f.Profile.Minor)},
		{"File Number", strconv.Itoa(f.GH1.FileNumber)},
		{"Format Code", strconv.Itoa(f.GH1.FormatCode)},
		{"Recorded", f.GH1.Time.UTC().Format(time.RFC3339)},
		{"Manufacturer", fmt.Sprintf("%d (serial %d)", f.GH1.ManufacturerCode, f.GH1.ManufacturerSerial)},
		{"Base Interval", f.GH1.BaseInterval().String()},
		{"Channel Sets", strconv.Itoa(len(f.ChannelSets))},
		{"Traces", fmt.Sprintf("%d decoded, %d failed, %d expected", len(f.Records)-failed, failed, f.ExpectedTraces())},
		{"Bytes", fmt.Sprintf("%d consumed of %d declared", f.Consumed, f.Declared)},
		{"Truncated", yesNo(f.Truncated())},
	}
	if f.Sercel != nil {
		items = append(items,
			struct{ label, value string }{"Shot Number", strconv.Itoa(f.Sercel.ShotNumber)},
			struct{ label, value string }{"Sample Rate", fmt.Sprintf("%d us", f.Sercel.SampleRate)},
		)
	}
	if f.External != "" {
		items = append(items, struct{ label, value string }{"External", f.External})
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.CellFormat(40, 6, item.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, emptyFallback(item.value, "-"), "", "L", false)
	}
	pdf.Ln(4)
}

func addChannelSetSection(pdf *gofpdf.Fpdf, sets []segd.ChannelSet) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Channel Sets")
	pdf.Ln(9)

	headers := []string{"Scan", "Set", "Channels", "Type", "Samples", "Interval", "Descale", "Format"}
	widths := []float64{16, 16, 22, 18, 24, 28, 32, 24}
	tableHeader(pdf, headers, widths)

	pdf.SetFont("Helvetica", "", 9)
	for _, cs := range sets {
		format := "-"
		if cs.SampleFormat != 0 {
			format = strconv.Itoa(cs.SampleFormat)
		}
		interval := "-"
		if cs.Interval > 0 {
			interval = cs.Interval.String()
		}
		renderTableRow(pdf, widths, []string{
			strconv.Itoa(cs.ScanType),
			strconv.Itoa(cs.Number),
			strconv.Itoa(cs.Channels),
			strconv.Itoa(cs.ChannelType),
			strconv.Itoa(cs.Samples),
			interval,
			strconv.FormatFloat(cs.Descale, 'g', 6, 64),
			format,
		}, 5)
	}
	pdf.Ln(4)
}

func addTraceSection(pdf *gofpdf.Fpdf, results []segd.TraceResult) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Traces")
	pdf.Ln(9)

	headers := []string{"#", "Set", "Trace", "Samples", "RMS", "Peak", "Dom. Hz", "Status"}
	widths := []float64{14, 14, 18, 20, 28, 28, 20, 38}
	tableHeader(pdf, headers, widths)

	pdf.SetFont("Helvetica", "", 8)
	for i, res := range results {
		if i == MaxTraceRows {
			pdf.Ln(2)
			pdf.MultiCell(0, 5, fmt.Sprintf("%d further traces omitted.", len(results)-MaxTraceRows), "", "L", false)
			break
		}
		renderTableRow(pdf, widths, traceRow(res), 4)
	}
}

func traceRow(res segd.TraceResult) []string {
	row := []string{strconv.Itoa(res.Index), "-", "-", "-", "-", "-", "-", "OK"}
	if rec := res.Record; rec != nil {
		row[1] = strconv.Itoa(rec.ChannelSet.Number)
		row[2] = strconv.Itoa(rec.Header.TraceNumber)
		row[3] = strconv.Itoa(rec.SampleCount)
		if rec.Samples != nil && res.Err == nil {
			st := stats.SummarizeAt(rec.Samples, rec.SampleInterval)
			row[4] = strconv.FormatFloat(st.RMS, 'g', 5, 64)
			row[5] = strconv.FormatFloat(st.PeakAbs, 'g', 5, 64)
			row[6] = strconv.FormatFloat(st.Dominant, 'f', 1, 64)
			if st.Dead {
				row[7] = "DEAD"
			}
		}
	}
	if res.Err != nil {
		row[7] = res.Err.Error()
	}
	return row
}

func tableHeader(pdf *gofpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
