package segd

import (
	"context"
	"errors"
	"io"
	"time"

	"example.com/segdgate/internal/common"
)

// TraceRecord is one decoded trace.
type TraceRecord struct {
	Header         TraceHeader
	Ext1           *TraceExtension1
	Sercel         *SercelTraceExtensions
	ChannelSet     ChannelSet
	Format         int
	SampleCount    int
	SampleInterval time.Duration
	StartTime      time.Time
	Samples        []float64
	// HeaderRaw aliases the trace header and extension bytes.
	HeaderRaw []byte
	Size      int
}

// TraceResult is either a decoded record or the error that invalidated
// that trace. Record may still carry the headers when only the samples
// failed.
type TraceResult struct {
	Index  int
	Offset int
	Record *TraceRecord
	Err    error
}

// TraceReader walks the trace blocks of a record.
type TraceReader struct {
	f         *File
	ctx       context.Context
	c         *Cursor
	index     int
	done      bool
	truncated bool
	declared  int
}

// Next returns the next trace. Recoverable failures come back in
// TraceResult.Err with a nil error; a non-nil error ends the walk. At the
// end of the record Next returns io.EOF.
func (r *TraceReader) Next() (TraceResult, error) {
	if r.done {
		return TraceResult{}, io.EOF
	}
	if r.ctx != nil {
		if err := r.ctx.Err(); err != nil {
			r.done = true
			return TraceResult{}, err
		}
	}
	if r.atEnd() {
		r.done = true
		if err := r.finish(); err != nil {
			return TraceResult{}, err
		}
		return TraceResult{}, io.EOF
	}
	start := r.c.Offset()
	res := TraceResult{Index: r.index, Offset: start}
	rec, err := r.decodeTrace(start)
	r.index++
	res.Record = rec
	if err == nil {
		return res, nil
	}
	var de *DecodeError
	truncated := errors.As(err, &de) && de.Truncated
	switch {
	case truncated && !r.f.opts.strictTail:
		r.done = true
		r.truncated = true
		_ = r.c.Seek(r.c.Len())
	case KindOf(err) == ErrUnsupportedSampleFormat:
	default:
		r.done = true
		return res, err
	}
	res.Err = err
	if m := r.f.opts.metrics; m != nil {
		m.IncTraceError()
	}
	common.Logf("trace %d at offset %d skipped: %v", res.Index, start, err)
	return res, nil
}

// Consumed is the number of bytes walked so far, headers included.
func (r *TraceReader) Consumed() int { return r.c.Offset() }

// Declared is the byte length implied by the headers walked so far.
func (r *TraceReader) Declared() int { return r.f.HeaderBytes + r.declared }

func (r *TraceReader) atEnd() bool {
	if r.f.traces > 0 {
		return r.index >= r.f.traces
	}
	return r.c.Remaining() <= r.f.trailer
}

// finish accounts for the general trailer and checks that nothing
// unexpected follows it.
func (r *TraceReader) finish() error {
	rev := r.f.Profile.Revision
	if err := r.c.Skip(r.f.trailer); err != nil {
		e := newError(ErrStructuralMismatch, r.c.Offset(), "general trailer needs %d bytes, %d remain", r.f.trailer, r.c.Remaining())
		e.Header = "general_trailer"
		e.Revision = rev
		return e
	}
	r.declared += r.f.trailer
	if excess := r.c.Remaining(); excess > r.f.opts.slack {
		e := newError(ErrStructuralMismatch, r.c.Offset(), "%d bytes beyond the declared record (slack %d)", excess, r.f.opts.slack)
		e.Revision = rev
		return e
	}
	return nil
}

func (r *TraceReader) truncatedAt(off int, format string, args ...any) error {
	e := newError(ErrStructuralMismatch, off, format, args...)
	e.Truncated = true
	e.Header = r.f.Profile.TraceHeader.Name
	e.Revision = r.f.Profile.Revision
	e.Trace = r.index
	return e
}

func (r *TraceReader) fatal(err error, base int) error {
	return atTrace(annotate(rebase(err, base), "", "", r.f.Profile.Revision), r.index)
}

func (r *TraceReader) decodeTrace(start int) (*TraceRecord, error) {
	f := r.f
	prof := f.Profile
	hb, err := r.c.Peek(TraceHeaderSize)
	if err != nil {
		return nil, r.truncatedAt(start, "trace %d of %d: header needs %d bytes, %d remain", r.index+1, f.traces, TraceHeaderSize, r.c.Remaining())
	}
	th, err := DecodeTraceHeader(hb)
	if err != nil {
		return nil, r.fatal(err, start)
	}
	cs, ok := f.ChannelSet(th.ScanType, th.ChannelSet)
	if !ok {
		return nil, r.fatal(malformed(prof.TraceHeader, "channel_set", "unknown channel set %d in scan type %d", th.ChannelSet, th.ScanType), start)
	}
	if prof.RequireExtension1 && th.Extensions == 0 {
		return nil, r.fatal(malformed(prof.TraceHeader, "extensions", "revision %d requires trace header extension #1", prof.Revision), start)
	}
	hdrLen := TraceHeaderSize + th.Extensions*TraceExtensionSize
	hdr, err := r.c.Peek(hdrLen)
	if err != nil {
		return nil, r.truncatedAt(start, "trace %d: %d extension blocks exceed the buffer", r.index, th.Extensions)
	}
	rec := &TraceRecord{Header: th, ChannelSet: cs, HeaderRaw: hdr, SampleInterval: cs.Interval}
	if th.Extensions >= 1 {
		e1, err := DecodeTraceExtension1(hdr[TraceHeaderSize:])
		if err != nil {
			return nil, r.fatal(err, start+TraceHeaderSize)
		}
		rec.Ext1 = &e1
	}
	if th.Extensions >= firstSercelExtension && f.GH1.ManufacturerCode == SercelManufacturer {
		last := min(th.Extensions, maxSercelExtensions)
		from := TraceHeaderSize + TraceExtensionSize
		sx, err := DecodeSercelTraceExtensions(hdr[from : TraceHeaderSize+last*TraceExtensionSize])
		if err != nil {
			return nil, r.fatal(err, start+from)
		}
		rec.Sercel = &sx
	}

	format := f.GH1.FormatCode
	if cs.SampleFormat != 0 {
		format = cs.SampleFormat
	}
	n := cs.Samples
	if rec.Ext1 != nil {
		if rec.Ext1.SampleFormat != 0 {
			format = rec.Ext1.SampleFormat
		}
		if ns := rec.Ext1.SamplesPerTrace; ns > 0 {
			if n > 0 && n != ns {
				e := newError(ErrStructuralMismatch, start+TraceHeaderSize+7, "extension declares %d samples, channel set %d implies %d", ns, cs.Number, n)
				e.Header = TraceExtension1Layout.Name
				e.Field = "samples_per_trace"
				return nil, r.fatal(e, 0)
			}
			n = ns
		}
	}
	dataLen, ok := SampleBlockSize(format, n)
	if !ok {
		// without a width the next trace cannot be located
		e := newError(ErrStructuralMismatch, start, "format %04d has no known sample width", format)
		e.Err = ErrUnsupportedSampleFormat
		return nil, r.fatal(e, 0)
	}
	size := hdrLen + dataLen
	r.declared += size
	block, err := r.c.Peek(size)
	if err != nil {
		return rec, r.truncatedAt(start, "trace %d: block needs %d bytes, %d remain", r.index, size, r.c.Remaining())
	}
	_ = r.c.Skip(size)

	rec.Format = format
	rec.SampleCount = n
	rec.Size = size
	rec.StartTime = f.GH1.Time.Add(time.Duration(th.FirstTimingWord * float64(time.Millisecond)))
	if m := f.opts.metrics; m != nil {
		m.AddTrace(int64(size))
	}
	if f.opts.noSamples {
		return rec, nil
	}
	samples, err := DecodeSamples(format, block[hdrLen:], n, prof.SampleOrder, cs.Descale)
	if err != nil {
		return rec, r.fatal(err, start+hdrLen)
	}
	rec.Samples = samples
	return rec, nil
}
