package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/groupcache"
	"github.com/labstack/echo/v5"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/export"
	"example.com/segdgate/internal/report"
	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/stats"
)

// FileSummary is the decoded overview of an uploaded recording.
type FileSummary struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	SHA256       string              `json:"sha256"`
	Revision     string              `json:"revision"`
	FileNumber   int                 `json:"fileNumber"`
	Manufacturer int                 `json:"manufacturer"`
	Recorded     time.Time           `json:"recorded"`
	BaseInterval int64               `json:"baseIntervalUs"`
	ChannelSets  []ChannelSetSummary `json:"channelSets"`
	Expected     int                 `json:"expectedTraces"`
	Traces       int                 `json:"traces"`
	Failed       []TraceFailure      `json:"failed,omitempty"`
	HeaderBytes  int                 `json:"headerBytes"`
	Declared     int                 `json:"declared"`
	Consumed     int                 `json:"consumed"`
	Truncated    bool                `json:"truncated"`
	External     string              `json:"external,omitempty"`
	ShotNumber   int                 `json:"shotNumber,omitempty"`
}

type ChannelSetSummary struct {
	ScanType   int     `json:"scanType"`
	Number     int     `json:"number"`
	Channels   int     `json:"channels"`
	Samples    int     `json:"samples"`
	IntervalUS int64   `json:"intervalUs"`
	Descale    float64 `json:"descale"`
	Format     int     `json:"format,omitempty"`
	Empty      bool    `json:"empty,omitempty"`
}

type TraceFailure struct {
	Index  int    `json:"index"`
	Offset int    `json:"offset"`
	Error  string `json:"error"`
}

var summaryEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func summarize(art Artifact, f *segd.File) FileSummary {
	sum := FileSummary{
		ID:           art.ID,
		Name:         art.Name,
		SHA256:       art.SHA256,
		Revision:     fmt.Sprintf("%d.%d", f.Profile.Revision, f.Profile.Minor),
		FileNumber:   f.GH1.FileNumber,
		Manufacturer: f.GH1.ManufacturerCode,
		Recorded:     f.GH1.Time.UTC(),
		BaseInterval: f.GH1.BaseInterval().Microseconds(),
		Expected:     f.ExpectedTraces(),
		Traces:       len(f.Records),
		HeaderBytes:  f.HeaderBytes,
		Declared:     f.Declared,
		Consumed:     f.Consumed,
		Truncated:    f.Truncated(),
		External:     f.External,
	}
	if f.Sercel != nil {
		sum.ShotNumber = f.Sercel.ShotNumber
	}
	for _, cs := range f.ChannelSets {
		sum.ChannelSets = append(sum.ChannelSets, ChannelSetSummary{
			ScanType:   cs.ScanType,
			Number:     cs.Number,
			Channels:   cs.Channels,
			Samples:    cs.Samples,
			IntervalUS: cs.Interval.Microseconds(),
			Descale:    cs.Descale,
			Format:     cs.SampleFormat,
			Empty:      cs.Empty,
		})
	}
	for _, res := range f.Failed() {
		sum.Failed = append(sum.Failed, TraceFailure{Index: res.Index, Offset: res.Offset, Error: res.Err.Error()})
	}
	return sum
}

// summaryGetter fills the summary cache; keys are recording artifact ids.
// Failed decodes are not cached.
func (s *Server) summaryGetter(ctx groupcache.Context, key string, dest groupcache.Sink) error {
	art, _, f, err := s.load(key)
	if err != nil {
		return err
	}
	b, err := summaryEnc.Marshal(summarize(art, f))
	if err != nil {
		return err
	}
	return dest.SetBytes(b)
}

func (s *Server) handleSummary(c *echo.Context) error {
	var b []byte
	if err := s.summaries.Get(c.Request().Context(), c.Param("id"), groupcache.AllocatingByteSliceSink(&b)); err != nil {
		return writeError(c, errorStatus(err), err.Error())
	}
	var sum FileSummary
	if err := cbor.Unmarshal(b, &sum); err != nil {
		return writeError(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}

type traceQuery struct {
	From    int  `schema:"from"`
	To      int  `schema:"to"` // exclusive, 0 for all
	Samples bool `schema:"samples"`
}

// TraceLine is one NDJSON record of the trace stream.
type TraceLine struct {
	Index         int               `json:"index"`
	Offset        int               `json:"offset"`
	ScanType      int               `json:"scanType,omitempty"`
	ChannelSet    int               `json:"channelSet,omitempty"`
	TraceNumber   int               `json:"traceNumber,omitempty"`
	ReceiverLine  float64           `json:"receiverLine,omitempty"`
	ReceiverPoint float64           `json:"receiverPoint,omitempty"`
	Format        int               `json:"format,omitempty"`
	SampleCount   int               `json:"sampleCount,omitempty"`
	IntervalUS    int64             `json:"intervalUs,omitempty"`
	StartTime     *time.Time        `json:"startTime,omitempty"`
	Stats         *stats.TraceStats `json:"stats,omitempty"`
	Samples       []float64         `json:"samples,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func traceLine(res segd.TraceResult, withSamples bool) TraceLine {
	line := TraceLine{Index: res.Index, Offset: res.Offset}
	if res.Err != nil {
		line.Error = res.Err.Error()
	}
	rec := res.Record
	if rec == nil {
		return line
	}
	line.ScanType = rec.Header.ScanType
	line.ChannelSet = rec.ChannelSet.Number
	line.TraceNumber = rec.Header.TraceNumber
	if rec.Ext1 != nil {
		line.ReceiverLine = rec.Ext1.ReceiverLine
		line.ReceiverPoint = rec.Ext1.ReceiverPoint
	}
	line.Format = rec.Format
	line.SampleCount = rec.SampleCount
	line.IntervalUS = rec.SampleInterval.Microseconds()
	if !rec.StartTime.IsZero() {
		t := rec.StartTime.UTC()
		line.StartTime = &t
	}
	if rec.Samples != nil {
		st := stats.SummarizeAt(rec.Samples, rec.SampleInterval)
		line.Stats = &st
		if withSamples {
			line.Samples = rec.Samples
		}
	}
	return line
}

// handleTraces streams the selected traces without materialising the
// whole record.
func (s *Server) handleTraces(c *echo.Context) error {
	var q traceQuery
	if err := s.query.Decode(&q, c.Request().URL.Query()); err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("query: %v", err))
	}
	if q.From < 0 || (q.To != 0 && q.To <= q.From) {
		return writeError(c, http.StatusBadRequest, "invalid trace range")
	}
	art, err := s.recording(c.Param("id"))
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	data, err := common.ReadInput(art.Path)
	if err != nil {
		return writeError(c, errorStatus(err), err.Error())
	}
	f, err := segd.DecodeHeaders(data, s.decodeOptions()...)
	if err != nil {
		return writeError(c, errorStatus(err), err.Error())
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	res.WriteHeader(http.StatusOK)
	w := NewNDJSONWriter(res)
	tr := f.Traces()
	for {
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// headers are already sent; the failure becomes the last line
			return w.WriteObject(map[string]string{"type": "error", "error": err.Error()})
		}
		if rec.Index < q.From {
			continue
		}
		if q.To != 0 && rec.Index >= q.To {
			return nil
		}
		if err := w.WriteObject(traceLine(rec, q.Samples)); err != nil {
			return nil
		}
	}
}

func (s *Server) handleMiniSEED(c *echo.Context) error {
	var opts export.MiniSEEDOptions
	if err := s.query.Decode(&opts, c.Request().URL.Query()); err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("query: %v", err))
	}
	art, _, f, err := s.load(c.Param("id"))
	if err != nil {
		return writeError(c, errorStatus(err), err.Error())
	}
	var buf bytes.Buffer
	if _, err := export.WriteMiniSEED(&buf, f, opts); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, export.ErrRecordLength) {
			status = http.StatusBadRequest
		}
		return writeError(c, status, err.Error())
	}
	return sendBytes(c, "application/vnd.fdsn.mseed", export.BaseName(art.Name)+".mseed", buf.Bytes())
}

func (s *Server) handleSummaryPDF(c *echo.Context) error {
	art, _, f, err := s.load(c.Param("id"))
	if err != nil {
		return writeError(c, errorStatus(err), err.Error())
	}
	var buf bytes.Buffer
	if err := report.WriteDecodePDF(&buf, f, report.Source{File: art.Name, SHA256: art.SHA256}); err != nil {
		return writeError(c, http.StatusInternalServerError, err.Error())
	}
	return sendBytes(c, "application/pdf", export.BaseName(art.Name)+"_summary.pdf", buf.Bytes())
}

func sendBytes(c *echo.Context, contentType, name string, b []byte) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, contentType)
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(b)
	return err
}
