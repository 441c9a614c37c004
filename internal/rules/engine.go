package rules

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/segd"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

type Rule struct {
	RuleId   string         `json:"ruleId" yaml:"ruleId"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Scope    string         `json:"scope" yaml:"scope"` // file|header|trace
	Severity Severity       `json:"severity" yaml:"severity"`
	Check    string         `json:"check" yaml:"check"`
	Enabled  *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Refs     []string       `json:"refs" yaml:"refs"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Message  string         `json:"message" yaml:"message"`
}

// IsEnabled treats a missing flag as enabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// IntParam reads a numeric parameter, falling back to def.
func (r Rule) IntParam(name string, def int) int {
	switch v := r.Params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

type RulePack struct {
	RulePackId string `json:"rulePackId" yaml:"rulePackId"`
	Version    string `json:"version" yaml:"version"`
	Profile    string `json:"profile" yaml:"profile"`
	Rules      []Rule `json:"rules" yaml:"rules"`
}

type Diagnostic struct {
	Ts              time.Time `json:"ts"`
	File            string    `json:"file"`
	ChannelSet      int       `json:"channelSet,omitempty"`
	TraceIndex      *int      `json:"traceIndex,omitempty"`
	Offset          string    `json:"offset,omitempty"`
	RuleId          string    `json:"ruleId"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	Refs            []string  `json:"refs"`
	TimestampUs     *int64    `json:"timestamp_us"`
	TimestampSource *string   `json:"timestamp_source"`
}

type AcceptanceReport struct {
	Summary struct {
		Total    int  `json:"total"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	GateMatrix []GateResult `json:"gateMatrix"`
	Findings   []Diagnostic `json:"findings,omitempty"`
}

// GateResult is one row of the acceptance gate matrix.
type GateResult struct {
	RuleId   string   `json:"ruleId"`
	Name     string   `json:"name,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	Severity Severity `json:"severity"`
	Pass     bool     `json:"pass"`
	Findings int      `json:"findings"`
}

// Context carries one input through a rule run. The record is decoded
// once, lazily, and shared by every check.
type Context struct {
	InputFile string
	Data      []byte

	Revision  *segd.Profile
	File      *segd.File
	DecodeErr error
	loaded    bool
}

// EnsureDecoded loads and decodes the input. A fatal decode error is kept
// in DecodeErr rather than returned so that checks can report on it; the
// headers are still decoded when they are intact.
func (ctx *Context) EnsureDecoded() error {
	if ctx == nil {
		return errors.New("nil context")
	}
	if ctx.loaded {
		return nil
	}
	if ctx.Data == nil {
		if ctx.InputFile == "" {
			return errors.New("no input file")
		}
		data, err := common.ReadInput(ctx.InputFile)
		if err != nil {
			return err
		}
		ctx.Data = data
	}
	ctx.loaded = true
	if prof, err := segd.ResolveRevision(ctx.Data); err == nil {
		ctx.Revision = &prof
	}
	// trailing bytes are judged by SEGD-008, not by the decoder
	f, err := segd.Decode(ctx.Data, segd.WithSlack(len(ctx.Data)))
	if err != nil {
		ctx.DecodeErr = err
		if hdr, herr := segd.DecodeHeaders(ctx.Data); herr == nil {
			ctx.File = hdr
		}
		return nil
	}
	ctx.File = f
	return nil
}

type Engine struct {
	rulePack               RulePack
	registry               map[string]CheckFunc
	diagnostics            []Diagnostic
	includeTimestampFields bool
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack:               rp,
		registry:               make(map[string]CheckFunc),
		includeTimestampFields: true,
	}
}

type CheckFunc func(ctx *Context, rule Rule) (Diagnostic, error)

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if err := ctx.EnsureDecoded(); err != nil {
		return nil, err
	}
	var diags []Diagnostic
	for _, r := range e.rulePack.Rules {
		if r.Check == "" || !r.IsEnabled() {
			continue
		}
		fn, ok := e.registry[r.Check]
		if !ok {
			diags = append(diags, Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, RuleId: r.RuleId, Severity: WARN,
				Message: "no function for rule", Refs: r.Refs,
			})
			continue
		}
		d, err := fn(ctx, r)
		if err != nil {
			d.Severity = ERROR
			d.Message = d.Message + " (" + err.Error() + ")"
		}
		if ctx.File != nil && d.TimestampUs == nil {
			us := ctx.File.GH1.Time.UnixMicro()
			src := "general_header_1"
			d.TimestampUs, d.TimestampSource = &us, &src
		}
		diags = append(diags, d)
	}
	e.diagnostics = diags
	return diags, nil
}

func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.WriteDiagnostics(f); err != nil {
		return err
	}
	return f.Close()
}

// WriteDiagnostics writes one JSON object per line.
func (e *Engine) WriteDiagnostics(out io.Writer) error {
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, d := range e.diagnostics {
		var v any = d
		if !e.includeTimestampFields {
			v = d.toNoTimestamp()
		}
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return w.Flush()
}

type diagnosticNoTimestamp struct {
	Ts         time.Time `json:"ts"`
	File       string    `json:"file"`
	ChannelSet int       `json:"channelSet,omitempty"`
	TraceIndex *int      `json:"traceIndex,omitempty"`
	Offset     string    `json:"offset,omitempty"`
	RuleId     string    `json:"ruleId"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Refs       []string  `json:"refs"`
}

func (d Diagnostic) toNoTimestamp() diagnosticNoTimestamp {
	return diagnosticNoTimestamp{
		Ts:         d.Ts,
		File:       d.File,
		ChannelSet: d.ChannelSet,
		TraceIndex: d.TraceIndex,
		Offset:     d.Offset,
		RuleId:     d.RuleId,
		Severity:   d.Severity,
		Message:    d.Message,
		Refs:       d.Refs,
	}
}

func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	switch key {
	case "diag.include_timestamps":
		switch v := value.(type) {
		case bool:
			e.includeTimestampFields = v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				e.includeTimestampFields = b
			}
		default:
			if s, ok := value.(fmt.Stringer); ok {
				if b, err := strconv.ParseBool(s.String()); err == nil {
					e.includeTimestampFields = b
				}
			}
		}
	}
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns int
	rows := make(map[string]int)
	for _, r := range e.rulePack.Rules {
		if r.Check == "" || !r.IsEnabled() {
			continue
		}
		rows[r.RuleId] = len(rep.GateMatrix)
		rep.GateMatrix = append(rep.GateMatrix, GateResult{
			RuleId: r.RuleId, Name: r.Name, Scope: r.Scope, Severity: r.Severity, Pass: true,
		})
	}
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			errs++
		case WARN:
			warns++
		default:
			continue
		}
		i, ok := rows[d.RuleId]
		if !ok {
			rows[d.RuleId] = len(rep.GateMatrix)
			rep.GateMatrix = append(rep.GateMatrix, GateResult{RuleId: d.RuleId, Severity: d.Severity})
			i = rows[d.RuleId]
		}
		rep.GateMatrix[i].Findings++
		if d.Severity == ERROR {
			rep.GateMatrix[i].Pass = false
		}
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.Findings = e.diagnostics
	return rep
}

// LoadRulePack reads a rule pack from YAML (.yaml, .yml) or JSON.
func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	return ParseRulePack(b, filepath.Ext(path))
}

func ParseRulePack(b []byte, ext string) (RulePack, error) {
	var rp RulePack
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &rp); err != nil {
			return rp, fmt.Errorf("parse rule pack: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &rp); err != nil {
			return rp, fmt.Errorf("parse rule pack: %w", err)
		}
	}
	return rp, nil
}
