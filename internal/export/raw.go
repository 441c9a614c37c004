// Package export writes decoded SEG-D records in downstream formats.
package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"example.com/segdgate/internal/segd"
)

// RawDump lists the files written by WriteRawDump.
type RawDump struct {
	Dir          string   `json:"dir"`
	HeaderBlock  string   `json:"headerBlock"`
	TraceHeaders []string `json:"traceHeaders"`
	TraceData    string   `json:"traceData"`
	Rows         int      `json:"rows"`
	Columns      int      `json:"columns"`

	// Skipped holds the 1-based positions of traces that failed to
	// decode; they have no header file and no data row.
	Skipped []int `json:"skipped,omitempty"`
}

// BaseName strips every extension from a record file name.
func BaseName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// WriteRawDump writes the header block, one file per trace header and a
// text matrix of samples (one row per trace) under outDir/<base>. Header
// files are numbered by trace position in the record.
// buf must be the buffer f was decoded from.
func WriteRawDump(outDir, base string, buf []byte, f *segd.File) (RawDump, error) {
	dir := filepath.Join(outDir, base)
	dump := RawDump{Dir: dir}
	hdrDir := filepath.Join(dir, "trace_headers")
	if err := os.MkdirAll(hdrDir, 0o755); err != nil {
		return dump, fmt.Errorf("create dump dir: %w", err)
	}
	if f.HeaderBytes > len(buf) {
		return dump, fmt.Errorf("header block of %d bytes exceeds buffer of %d", f.HeaderBytes, len(buf))
	}

	dump.HeaderBlock = filepath.Join(dir, base+".hdr_block")
	if err := os.WriteFile(dump.HeaderBlock, buf[:f.HeaderBytes], 0o644); err != nil {
		return dump, fmt.Errorf("write header block: %w", err)
	}

	var records []*segd.TraceRecord
	for _, res := range f.Records {
		n := res.Index + 1
		if res.Err != nil || res.Record == nil {
			dump.Skipped = append(dump.Skipped, n)
			continue
		}
		p := filepath.Join(hdrDir, fmt.Sprintf("%s.trace_%d.headers", base, n))
		if err := os.WriteFile(p, res.Record.HeaderRaw, 0o644); err != nil {
			return dump, fmt.Errorf("write trace %d headers: %w", n, err)
		}
		dump.TraceHeaders = append(dump.TraceHeaders, p)
		records = append(records, res.Record)
	}

	dump.TraceData = filepath.Join(dir, base+".trace_data")
	rows, cols, err := writeMatrix(dump.TraceData, records)
	if err != nil {
		return dump, err
	}
	dump.Rows, dump.Columns = rows, cols
	return dump, nil
}

// writeMatrix pads short traces with zeros so every row has the width of
// the longest trace.
func writeMatrix(path string, records []*segd.TraceRecord) (int, int, error) {
	cols := 0
	for _, rec := range records {
		cols = max(cols, len(rec.Samples))
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("create trace data: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	var num []byte
	for _, rec := range records {
		for j := 0; j < cols; j++ {
			if j > 0 {
				w.WriteByte(' ')
			}
			v := 0.0
			if j < len(rec.Samples) {
				v = rec.Samples[j]
			}
			num = strconv.AppendFloat(num[:0], v, 'f', 16, 64)
			w.Write(num)
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return 0, 0, fmt.Errorf("write trace data: %w", err)
	}
	return len(records), cols, out.Close()
}
