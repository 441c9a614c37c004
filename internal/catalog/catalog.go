// Package catalog keeps a Postgres index of decoded SEG-D records and
// their traces.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GeoNet/kit/cfg"
	"github.com/cenkalti/backoff"
	"github.com/lib/pq"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/export"
	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/stats"
)

// http://www.postgresql.org/docs/9.4/static/errcodes-appendix.html
const errorUniqueViolation pq.ErrorCode = "23505"

// ErrExists is returned by AddFile when a record with the same digest is
// already catalogued.
var ErrExists = errors.New("catalog: file already exists")

const schema = `
CREATE SCHEMA IF NOT EXISTS segd;

CREATE TABLE IF NOT EXISTS segd.file (
	id           BIGSERIAL PRIMARY KEY,
	sha256       TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	size         BIGINT NOT NULL,
	revision     TEXT NOT NULL,
	file_number  INTEGER NOT NULL,
	manufacturer INTEGER NOT NULL,
	recorded     TIMESTAMPTZ NOT NULL,
	channel_sets INTEGER NOT NULL,
	traces       INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	added        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS segd.trace (
	file_id        BIGINT NOT NULL REFERENCES segd.file(id) ON DELETE CASCADE,
	idx            INTEGER NOT NULL,
	channel_set    INTEGER NOT NULL,
	trace_number   INTEGER NOT NULL,
	station        TEXT NOT NULL,
	receiver_line  DOUBLE PRECISION NOT NULL,
	receiver_point DOUBLE PRECISION NOT NULL,
	samples        INTEGER NOT NULL,
	interval_us    BIGINT NOT NULL,
	rms            DOUBLE PRECISION NOT NULL,
	peak_abs       DOUBLE PRECISION NOT NULL,
	dead           BOOLEAN NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (file_id, idx)
);

CREATE INDEX IF NOT EXISTS trace_station_idx ON segd.trace (station);
`

type Catalog struct {
	db *sql.DB
}

// File is one catalogued record.
type File struct {
	ID           int64     `json:"id"`
	SHA256       string    `json:"sha256"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	Revision     string    `json:"revision"`
	FileNumber   int       `json:"fileNumber"`
	Manufacturer int       `json:"manufacturer"`
	Recorded     time.Time `json:"recorded"`
	ChannelSets  int       `json:"channelSets"`
	Traces       int       `json:"traces"`
	Failed       int       `json:"failed"`
	Added        time.Time `json:"added,omitempty"`
}

// Trace is one catalogued trace of a record.
type Trace struct {
	Index         int     `json:"index"`
	ChannelSet    int     `json:"channelSet"`
	TraceNumber   int     `json:"traceNumber"`
	Station       string  `json:"station"`
	ReceiverLine  float64 `json:"receiverLine"`
	ReceiverPoint float64 `json:"receiverPoint"`
	Samples       int     `json:"samples"`
	IntervalUS    int64   `json:"intervalUs"`
	RMS           float64 `json:"rms"`
	PeakAbs       float64 `json:"peakAbs"`
	Dead          bool    `json:"dead"`
	Error         string  `json:"error,omitempty"`
}

// Entry is a record ready to be added.
type Entry struct {
	File
	Trace []Trace
}

// Query filters Files. Empty fields match everything.
type Query struct {
	Station  string    `schema:"station"`
	Revision string    `schema:"revision"`
	From     time.Time `schema:"from"`
	To       time.Time `schema:"to"`
	Limit    int       `schema:"limit"`
}

// OpenEnv opens the catalog configured by the DB_* environment variables.
func OpenEnv(ctx context.Context) (*Catalog, error) {
	p, err := cfg.PostgresEnv()
	if err != nil {
		return nil, fmt.Errorf("catalog config: %w", err)
	}
	return Open(ctx, p)
}

// Open connects to Postgres, retrying the initial ping with exponential
// backoff until it answers or ctx ends.
func Open(ctx context.Context, p cfg.Postgres) (*Catalog, error) {
	db, err := sql.Open("postgres", p.Connection()+" statement_timeout=600000")
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	db.SetMaxIdleConns(p.MaxIdle)
	db.SetMaxOpenConns(p.MaxOpen)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	attempt := 0
	ping := func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			common.Logf("catalog: ping attempt %d: %v", attempt, err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: database unreachable: %w", err)
	}
	return &Catalog{db: db}, nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Init creates the schema when it is missing.
func (c *Catalog) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// EntryFromFile summarises a decoded record for the catalog.
func EntryFromFile(name, sha string, size int64, f *segd.File) Entry {
	failed := f.Failed()
	e := Entry{File: File{
		SHA256:       sha,
		Name:         name,
		Size:         size,
		Revision:     fmt.Sprintf("%d.%d", f.Profile.Revision, f.Profile.Minor),
		FileNumber:   f.GH1.FileNumber,
		Manufacturer: f.GH1.ManufacturerCode,
		Recorded:     f.GH1.Time.UTC(),
		ChannelSets:  len(f.ChannelSets),
		Traces:       len(f.Records),
		Failed:       len(failed),
	}}
	for _, res := range f.Records {
		t := Trace{Index: res.Index}
		if res.Err != nil {
			t.Error = res.Err.Error()
		}
		if rec := res.Record; rec != nil {
			t.ChannelSet = rec.ChannelSet.Number
			t.TraceNumber = rec.Header.TraceNumber
			t.Station = export.StationName(rec)
			if rec.Ext1 != nil {
				t.ReceiverLine = rec.Ext1.ReceiverLine
				t.ReceiverPoint = rec.Ext1.ReceiverPoint
			}
			t.Samples = rec.SampleCount
			t.IntervalUS = rec.SampleInterval.Microseconds()
			if res.Err == nil {
				st := stats.Summarize(rec.Samples)
				t.RMS, t.PeakAbs, t.Dead = st.RMS, st.PeakAbs, st.Dead
			}
		}
		e.Trace = append(e.Trace, t)
	}
	return e
}

// AddFile inserts a record and its traces in one transaction and returns
// the new file id.
func (c *Catalog) AddFile(ctx context.Context, e Entry) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `INSERT INTO segd.file
		(sha256, name, size, revision, file_number, manufacturer, recorded, channel_sets, traces, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		e.SHA256, e.Name, e.Size, e.Revision, e.FileNumber, e.Manufacturer, e.Recorded,
		e.ChannelSets, e.Traces, e.Failed).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrExists
		}
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segd.trace
		(file_id, idx, channel_set, trace_number, station, receiver_line, receiver_point,
		 samples, interval_us, rms, peak_abs, dead, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, t := range e.Trace {
		if _, err := stmt.ExecContext(ctx, id, t.Index, t.ChannelSet, t.TraceNumber, t.Station,
			t.ReceiverLine, t.ReceiverPoint, t.Samples, t.IntervalUS, t.RMS, t.PeakAbs, t.Dead, t.Error); err != nil {
			return 0, fmt.Errorf("trace %d: %w", t.Index, err)
		}
	}
	return id, tx.Commit()
}

func isUniqueViolation(err error) bool {
	var u *pq.Error
	return errors.As(err, &u) && u.Code == errorUniqueViolation
}

// Files lists catalogued records, newest recording first.
func (c *Catalog) Files(ctx context.Context, q Query) ([]File, error) {
	query, args := filesQuery(q)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.SHA256, &f.Name, &f.Size, &f.Revision, &f.FileNumber,
			&f.Manufacturer, &f.Recorded, &f.ChannelSets, &f.Traces, &f.Failed, &f.Added); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const defaultLimit = 100

func filesQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Revision != "" {
		where = append(where, "f.revision = "+arg(q.Revision))
	}
	if q.Station != "" {
		where = append(where, "EXISTS (SELECT 1 FROM segd.trace t WHERE t.file_id = f.id AND t.station = "+arg(q.Station)+")")
	}
	if !q.From.IsZero() {
		where = append(where, "f.recorded >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "f.recorded < "+arg(q.To))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT f.id, f.sha256, f.name, f.size, f.revision, f.file_number, f.manufacturer,
		f.recorded, f.channel_sets, f.traces, f.failed, f.added FROM segd.file f`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY f.recorded DESC, f.id DESC LIMIT ")
	b.WriteString(arg(limit))
	return b.String(), args
}

// Traces returns the traces of one catalogued record in index order.
func (c *Catalog) Traces(ctx context.Context, fileID int64) ([]Trace, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT idx, channel_set, trace_number, station, receiver_line,
		receiver_point, samples, interval_us, rms, peak_abs, dead, error
		FROM segd.trace WHERE file_id = $1 ORDER BY idx`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Trace
	for rows.Next() {
		var t Trace
		if err := rows.Scan(&t.Index, &t.ChannelSet, &t.TraceNumber, &t.Station, &t.ReceiverLine,
			&t.ReceiverPoint, &t.Samples, &t.IntervalUS, &t.RMS, &t.PeakAbs, &t.Dead, &t.Error); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
