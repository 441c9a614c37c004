package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/export"
	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/stats"
)

func infoCmd() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Print the general and channel set headers of a record",
		Flags: []cli.Flag{inputFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := common.ReadInput(inputPath)
			if err != nil {
				return err
			}
			f, err := segd.DecodeHeaders(data, decodeOptions()...)
			if err != nil {
				return fmt.Errorf("decode headers: %w", err)
			}
			return writeInfo(os.Stdout, inputPath, f)
		},
	}
}

func writeInfo(out io.Writer, name string, f *segd.File) error {
	fmt.Fprintf(out, "File:          %s\n", name)
	fmt.Fprintf(out, "Revision:      %d.%d\n", f.Profile.Revision, f.Profile.Minor)
	fmt.Fprintf(out, "File number:   %d\n", f.GH1.FileNumber)
	fmt.Fprintf(out, "Format code:   %d\n", f.GH1.FormatCode)
	fmt.Fprintf(out, "Recorded:      %s\n", f.GH1.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Manufacturer:  %d (serial %d)\n", f.GH1.ManufacturerCode, f.GH1.ManufacturerSerial)
	fmt.Fprintf(out, "Base interval: %s\n", f.GH1.BaseInterval())
	fmt.Fprintf(out, "Header bytes:  %d\n", f.HeaderBytes)
	fmt.Fprintf(out, "Traces:        %d\n", f.ExpectedTraces())
	if f.Sercel != nil {
		fmt.Fprintf(out, "Shot number:   %d\n", f.Sercel.ShotNumber)
	}
	if f.External != "" {
		fmt.Fprintf(out, "External:      %q\n", f.External)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCAN\tSET\tCHANNELS\tSAMPLES\tINTERVAL\tDESCALE\tFORMAT")
	for _, cs := range f.ChannelSets {
		if cs.Empty {
			fmt.Fprintf(w, "%d\t%d\t-\t-\t-\t-\t(empty)\n", cs.ScanType, cs.Number)
			continue
		}
		format := cs.SampleFormat
		if format == 0 {
			format = f.GH1.FormatCode
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%g\t%d\n",
			cs.ScanType, cs.Number, cs.Channels, cs.Samples, cs.Interval, cs.Descale, format)
	}
	return w.Flush()
}

// traceLine is one decoded trace as printed by decode --ndjson.
type traceLine struct {
	Index         int               `json:"index"`
	Offset        int               `json:"offset"`
	ChannelSet    int               `json:"channelSet,omitempty"`
	TraceNumber   int               `json:"traceNumber,omitempty"`
	ReceiverLine  float64           `json:"receiverLine,omitempty"`
	ReceiverPoint float64           `json:"receiverPoint,omitempty"`
	Samples       int               `json:"samples,omitempty"`
	IntervalUS    int64             `json:"intervalUs,omitempty"`
	Stats         *stats.TraceStats `json:"stats,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func newTraceLine(res segd.TraceResult) traceLine {
	line := traceLine{Index: res.Index, Offset: res.Offset}
	if res.Err != nil {
		line.Error = res.Err.Error()
	}
	if rec := res.Record; rec != nil {
		line.ChannelSet = rec.ChannelSet.Number
		line.TraceNumber = rec.Header.TraceNumber
		if rec.Ext1 != nil {
			line.ReceiverLine = rec.Ext1.ReceiverLine
			line.ReceiverPoint = rec.Ext1.ReceiverPoint
		}
		line.Samples = rec.SampleCount
		line.IntervalUS = rec.SampleInterval.Microseconds()
		if rec.Samples != nil {
			st := stats.SummarizeAt(rec.Samples, rec.SampleInterval)
			line.Stats = &st
		}
	}
	return line
}

func decodeCmd() *cli.Command {
	var (
		ndjson   bool
		progress bool
		metrics  bool
	)
	return &cli.Command{
		Name:  "decode",
		Usage: "Decode every trace and print per-trace statistics",
		Flags: append([]cli.Flag{
			inputFlag(),
			&cli.BoolFlag{Name: "ndjson", Usage: "write one JSON object per trace", Destination: &ndjson},
			&cli.BoolFlag{Name: "progress", Usage: "display decode progress on stderr", Destination: &progress},
			&cli.BoolFlag{Name: "metrics", Usage: "print throughput when done", Destination: &metrics},
		}, decodeFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := common.ReadInput(inputPath)
			if err != nil {
				return err
			}
			m := common.NewMetrics()
			m.SetTotalBytes(int64(len(data)))
			m.Start()
			var stop func()
			if progress {
				stop = common.StartProgressPrinter(os.Stderr, m, 500*time.Millisecond)
			}
			f, err := segd.DecodeContext(ctx, data, decodeOptions(segd.WithMetrics(m))...)
			if stop != nil {
				stop()
			}
			m.Stop()
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			if err := writeTraces(os.Stdout, f, ndjson); err != nil {
				return err
			}
			if metrics {
				snap := m.Snapshot()
				fmt.Fprintf(os.Stderr, "Metrics: duration=%s traces=%d failed=%d processed=%s throughput=%.2f MB/s\n",
					snap.Duration.Round(10*time.Millisecond), snap.Traces, snap.Failed,
					common.FormatBytes(snap.Bytes), snap.ThroughputBytesPerSecond()/1_000_000)
			}
			if n := len(f.Failed()); n > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d traces failed to decode", n, len(f.Records)), 2)
			}
			return nil
		},
	}
}

func writeTraces(out io.Writer, f *segd.File, ndjson bool) error {
	if ndjson {
		bw := bufio.NewWriter(out)
		enc := json.NewEncoder(bw)
		for _, res := range f.Records {
			if err := enc.Encode(newTraceLine(res)); err != nil {
				return err
			}
		}
		return bw.Flush()
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDX\tSET\tTRACE\tLINE\tPOINT\tSAMPLES\tRMS\tPEAK\tSTATUS")
	for _, res := range f.Records {
		l := newTraceLine(res)
		status := "OK"
		switch {
		case l.Error != "":
			status = l.Error
		case l.Stats != nil && l.Stats.Dead:
			status = "DEAD"
		}
		var rms, peak float64
		if l.Stats != nil {
			rms, peak = l.Stats.RMS, l.Stats.PeakAbs
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%g\t%g\t%d\t%.4g\t%.4g\t%s\n",
			l.Index, l.ChannelSet, l.TraceNumber, l.ReceiverLine, l.ReceiverPoint, l.Samples, rms, peak, status)
	}
	return w.Flush()
}

func dumpCmd() *cli.Command {
	var outDir string
	return &cli.Command{
		Name:  "dump",
		Usage: "Write the header block, trace headers and a sample matrix as files",
		Flags: append([]cli.Flag{
			inputFlag(),
			&cli.StringFlag{Name: "out-dir", Aliases: []string{"o"}, Usage: "output directory", Value: ".", Destination: &outDir},
		}, decodeFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := common.ReadInput(inputPath)
			if err != nil {
				return err
			}
			f, err := segd.Decode(data, decodeOptions()...)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			dump, err := export.WriteRawDump(outDir, export.BaseName(inputPath), data, f)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%d trace header files, %d x %d samples)\n",
				dump.Dir, len(dump.TraceHeaders), dump.Rows, dump.Columns)
			if len(dump.Skipped) > 0 {
				fmt.Printf("Skipped traces %v (decode failed)\n", dump.Skipped)
			}
			return nil
		},
	}
}

func miniseedCmd() *cli.Command {
	var (
		out  string
		opts export.MiniSEEDOptions
	)
	return &cli.Command{
		Name:  "miniseed",
		Usage: "Convert decoded traces to miniSEED",
		Flags: append([]cli.Flag{
			inputFlag(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default <input>.mseed)", Destination: &out},
			&cli.StringFlag{Name: "network", Usage: "SEED network code", Value: "XX", Destination: &opts.Network},
			&cli.StringFlag{Name: "location", Usage: "SEED location code", Destination: &opts.Location},
			&cli.StringFlag{Name: "component", Usage: "orientation letter", Value: "Z", Destination: &opts.Component},
			&cli.IntFlag{Name: "record-length", Usage: "record length, 512 or 4096", Value: 4096, Destination: &opts.RecordLength},
		}, decodeFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := common.ReadInput(inputPath)
			if err != nil {
				return err
			}
			f, err := segd.Decode(data, decodeOptions()...)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(inputPath), export.BaseName(inputPath)+".mseed")
			}
			n, err := writeMiniSEEDFile(out, f, opts)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d records to %s\n", n, out)
			return nil
		},
	}
}

func writeMiniSEEDFile(path string, f *segd.File, opts export.MiniSEEDOptions) (int, error) {
	fh, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(fh)
	n, err := export.WriteMiniSEED(bw, f, opts)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, export.ErrRecordLength) {
			return 0, cli.Exit(err.Error(), 1)
		}
		return 0, fmt.Errorf("write miniseed: %w", err)
	}
	return n, nil
}
