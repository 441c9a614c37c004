package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/GeoNet/kit/seis/ms"

	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/stats"
)

const (
	blocketteTypeDataOnly = 1000
	dataOffset            = 64
)

// MiniSEEDOptions names the output channels. Zero values pick defaults.
type MiniSEEDOptions struct {
	Network      string `schema:"network"`
	Location     string `schema:"location"`
	Component    string `schema:"component"`    // orientation letter, Z by default
	RecordLength int    `schema:"recordLength"` // 512 or 4096
}

func (o MiniSEEDOptions) withDefaults() MiniSEEDOptions {
	if o.Network == "" {
		o.Network = "XX"
	}
	if o.Component == "" {
		o.Component = "Z"
	}
	if o.RecordLength == 0 {
		o.RecordLength = 4096
	}
	return o
}

var ErrRecordLength = errors.New("miniseed record length must be 512 or 4096")

// WriteMiniSEED writes every decoded trace of f as float32 miniSEED
// records and returns the number of records written.
func WriteMiniSEED(w io.Writer, f *segd.File, opts MiniSEEDOptions) (int, error) {
	opts = opts.withDefaults()
	var exp uint8
	switch opts.RecordLength {
	case 512:
		exp = 9
	case 4096:
		exp = 12
	default:
		return 0, ErrRecordLength
	}
	perRecord := (opts.RecordLength - dataOffset) / 4
	seq := 1
	for _, rec := range f.TraceRecords() {
		if len(rec.Samples) == 0 {
			continue
		}
		rate := stats.SampleRate(rec.SampleInterval)
		factor, mult := rateFactors(rate)
		hdr := ms.RecordHeader{
			DataQualityIndicator:         'D',
			ReservedByte:                 ' ',
			SampleRateFactor:             factor,
			SampleRateMultiplier:         mult,
			NumberOfBlockettesThatFollow: 1,
			BeginningOfData:              dataOffset,
			FirstBlockette:               ms.RecordHeaderSize,
		}
		hdr.SetStation(StationName(rec))
		hdr.SetLocation(opts.Location)
		hdr.SetNetwork(opts.Network)
		hdr.SetChannel(stats.BandCode(rate) + "H" + opts.Component)

		for from := 0; from < len(rec.Samples); from += perRecord {
			to := min(from+perRecord, len(rec.Samples))
			hdr.SetSeqNumber(seq % 1000000)
			hdr.SetStartTime(rec.StartTime.Add(time.Duration(from) * rec.SampleInterval))
			hdr.NumberOfSamples = uint16(to - from)
			buf := make([]byte, opts.RecordLength)
			copy(buf, ms.EncodeRecordHeader(hdr))
			copy(buf[ms.RecordHeaderSize:], ms.EncodeBlocketteHeader(ms.BlocketteHeader{BlocketteType: blocketteTypeDataOnly}))
			copy(buf[ms.RecordHeaderSize+ms.BlocketteHeaderSize:], ms.EncodeBlockette1000(ms.Blockette1000{
				Encoding:     uint8(ms.EncodingIEEEFloat),
				WordOrder:    uint8(ms.BigEndian),
				RecordLength: exp,
			}))
			for i, v := range rec.Samples[from:to] {
				binary.BigEndian.PutUint32(buf[dataOffset+4*i:], math.Float32bits(float32(v)))
			}
			if _, err := w.Write(buf); err != nil {
				return seq - 1, fmt.Errorf("write miniseed record %d: %w", seq, err)
			}
			seq++
		}
	}
	return seq - 1, nil
}

// StationName uses the receiver point when present, else the trace number.
func StationName(rec *segd.TraceRecord) string {
	n := rec.Header.TraceNumber
	if rec.Ext1 != nil && rec.Ext1.ReceiverPoint > 0 {
		n = int(rec.Ext1.ReceiverPoint)
	}
	s := strconv.Itoa(n)
	if len(s) > 5 {
		s = s[len(s)-5:]
	}
	return s
}

// rateFactors encodes a sample rate as the SEED factor and multiplier pair.
func rateFactors(rate float64) (int16, int16) {
	switch {
	case rate <= 0:
		return 0, 0
	case rate >= 1 && rate == math.Trunc(rate) && rate <= math.MaxInt16:
		return int16(rate), 1
	case rate < 1:
		return -int16(math.Round(1 / rate)), 1
	case rate > math.MaxInt16:
		return int16(math.Round(rate / 10)), 10
	}
	return int16(math.Round(rate * 10)), -10
}
