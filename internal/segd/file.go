package segd

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// File is one decoded SEG-D record. It is built in a single pass and never
// mutated afterwards.
type File struct {
	Profile      Profile
	GH1          GeneralHeader1
	GH2          *GeneralHeader2
	GH3          *GeneralHeader3
	ExtraGeneral [][]byte
	ChannelSets  []ChannelSet
	Skew         []byte
	Extended     []byte
	Sercel       *SercelExtendedHeader
	External     string
	Records      []TraceResult
	Trailer      []byte

	// HeaderBytes is the length of everything before the first trace.
	HeaderBytes int
	// Declared is the byte length implied by the headers; Consumed is what
	// the walk actually covered.
	Declared int
	Consumed int

	buf     []byte
	opts    options
	sets    map[ChannelSetKey]int
	traces  int
	trailer int
}

// Decode decodes a complete record held in buf.
func Decode(buf []byte, opts ...Option) (*File, error) {
	return DecodeContext(context.Background(), buf, opts...)
}

// DecodeContext is Decode with cooperative cancellation between traces.
func DecodeContext(ctx context.Context, buf []byte, opts ...Option) (*File, error) {
	f, err := DecodeHeaders(buf, opts...)
	if err != nil {
		return nil, err
	}
	r := f.tracesContext(ctx)
	for {
		res, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		f.Records = append(f.Records, res)
	}
	f.Consumed = r.Consumed()
	f.Declared = r.Declared()
	if f.trailer > 0 && !r.truncated {
		f.Trailer = buf[f.Consumed-f.trailer : f.Consumed]
	}
	return f, nil
}

// DecodeHeaders decodes everything up to the first trace. Records stays
// empty; use Traces to stream them.
func DecodeHeaders(buf []byte, opts ...Option) (*File, error) {
	o := buildOptions(opts)
	prof, err := ResolveRevision(buf)
	if err != nil {
		return nil, err
	}
	if o.order != nil {
		prof.SampleOrder = o.order
	}
	f := &File{Profile: prof, buf: buf, opts: o}
	c := NewCursor(buf)

	blk, err := c.Take(BlockSize)
	if err != nil {
		return nil, err
	}
	if f.GH1, err = DecodeGeneralHeader1(blk); err != nil {
		return nil, annotate(err, "", "", prof.Revision)
	}
	for i := 1; i < prof.GeneralBlocks; i++ {
		off := c.Offset()
		blk, err := c.Take(BlockSize)
		if err != nil {
			return nil, annotate(err, fmt.Sprintf("general_header_%d", i+1), "", prof.Revision)
		}
		switch i {
		case 1:
			gh2, err := DecodeGeneralHeader2(blk)
			if err != nil {
				return nil, annotate(rebase(err, off), "", "", prof.Revision)
			}
			f.GH2 = &gh2
		case 2:
			gh3, err := DecodeGeneralHeader3(blk)
			if err != nil {
				return nil, annotate(rebase(err, off), "", "", prof.Revision)
			}
			f.GH3 = &gh3
		default:
			f.ExtraGeneral = append(f.ExtraGeneral, blk)
		}
	}
	if prof.RequireGH3 && f.GH3 == nil {
		return nil, malformedRev(GeneralHeader1Layout, "additional_blocks", prof.Revision, "general header #3 missing")
	}

	if err := f.decodeChannelSets(c); err != nil {
		return nil, err
	}
	if f.Skew, err = c.Take(f.GH1.SkewBlocks * BlockSize); err != nil {
		return nil, annotate(err, "skew", "", prof.Revision)
	}
	ext := f.blocks(f.GH1.ExtendedHeaderBlocks, func(h *GeneralHeader2) int { return h.ExtendedHeaderBlocks })
	extOff := c.Offset()
	if f.Extended, err = c.Take(ext * BlockSize); err != nil {
		return nil, annotate(err, "extended_header", "", prof.Revision)
	}
	if f.GH1.ManufacturerCode == SercelManufacturer && len(f.Extended) >= SercelExtendedSize {
		sh, err := DecodeSercelExtendedHeader(f.Extended)
		if err != nil {
			return nil, annotate(rebase(err, extOff), "", "", prof.Revision)
		}
		f.Sercel = &sh
	}
	external := f.blocks(f.GH1.ExternalHeaderBlocks, func(h *GeneralHeader2) int { return h.ExternalHeaderBlocks })
	raw, err := c.Take(external * BlockSize)
	if err != nil {
		return nil, annotate(err, "external_header", "", prof.Revision)
	}
	f.External = decodeText(raw)
	f.HeaderBytes = c.Offset()
	if m := o.metrics; m != nil {
		m.AddBytes(int64(f.HeaderBytes))
	}
	if f.GH2 != nil {
		f.trailer = f.GH2.TrailerBlocks * BlockSize
	}
	return f, nil
}

// blocks picks a GH1 block count, falling back to GH2 when GH1 holds the
// sentinel.
func (f *File) blocks(v int, fromGH2 func(*GeneralHeader2) int) int {
	if v != NotSet {
		return v
	}
	if f.GH2 == nil {
		return 0
	}
	return fromGH2(f.GH2)
}

func (f *File) decodeChannelSets(c *Cursor) error {
	rev := f.Profile.Revision
	perScan := f.blocks(f.GH1.ChannelSetsPerScan, func(h *GeneralHeader2) int { return h.ExtendedChannelSets })
	n := f.GH1.ScanTypes * perScan
	f.sets = make(map[ChannelSetKey]int, n)
	for i := 0; i < n; i++ {
		off := c.Offset()
		blk, err := c.Take(f.Profile.ChannelSetSize)
		if err != nil {
			return annotate(err, f.Profile.ChannelSet.Name, "", rev)
		}
		cs, err := DecodeChannelSet(blk, f.Profile)
		if err != nil {
			return rebase(err, off)
		}
		cs.derive(f.GH1.BaseScanInterval)
		if !cs.Empty {
			if _, dup := f.sets[cs.Key()]; dup {
				e := newError(ErrMalformedHeader, off, "duplicate channel set %d in scan type %d", cs.Number, cs.ScanType)
				e.Header = f.Profile.ChannelSet.Name
				e.Revision = rev
				return e
			}
			f.sets[cs.Key()] = len(f.ChannelSets)
			f.traces += cs.Channels
		}
		f.ChannelSets = append(f.ChannelSets, cs)
	}
	return nil
}

// ChannelSet looks up a descriptor by scan type and number.
func (f *File) ChannelSet(scanType, number int) (ChannelSet, bool) {
	i, ok := f.sets[ChannelSetKey{ScanType: scanType, Number: number}]
	if !ok {
		return ChannelSet{}, false
	}
	return f.ChannelSets[i], true
}

// ExpectedTraces is the trace count implied by the channel sets.
func (f *File) ExpectedTraces() int { return f.traces }

// Traces returns a fresh reader over the trace blocks. Each call starts
// from the first trace; readers share nothing but the immutable buffer.
func (f *File) Traces() *TraceReader {
	return f.tracesContext(context.Background())
}

func (f *File) tracesContext(ctx context.Context) *TraceReader {
	return &TraceReader{
		f:   f,
		ctx: ctx,
		c:   NewCursorAt(f.buf, f.HeaderBytes),
	}
}

// TraceRecords returns the decoded trace records, skipping failed ones.
func (f *File) TraceRecords() []*TraceRecord {
	out := make([]*TraceRecord, 0, len(f.Records))
	for _, r := range f.Records {
		if r.Err == nil && r.Record != nil {
			out = append(out, r.Record)
		}
	}
	return out
}

// Failed returns the per-trace errors in trace order.
func (f *File) Failed() []TraceResult {
	var out []TraceResult
	for _, r := range f.Records {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Truncated reports whether the record ended inside a trace block.
func (f *File) Truncated() bool {
	for _, r := range f.Records {
		var de *DecodeError
		if errors.As(r.Err, &de) && de.Truncated {
			return true
		}
	}
	return false
}
