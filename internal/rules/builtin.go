package rules

import (
	"errors"
	"fmt"
	"time"

	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/stats"
)

func intPtr(v int) *int { return &v }

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckRevision", CheckRevision)
	e.Register("CheckStructure", CheckStructure)
	e.Register("CheckTraceDecode", CheckTraceDecode)
	e.Register("CheckTraceCount", CheckTraceCount)
	e.Register("CheckSampleCounts", CheckSampleCounts)
	e.Register("CheckDeadTraces", CheckDeadTraces)
	e.Register("CheckTimestamp", CheckTimestamp)
	e.Register("CheckTrailingBytes", CheckTrailingBytes)
}

// DefaultRulePack is the built-in acceptance gate.
func DefaultRulePack() RulePack {
	ref := []string{"SEG-D rev 3.1"}
	return RulePack{
		RulePackId: "segd-default",
		Version:    "1.0.0",
		Profile:    "segd",
		Rules: []Rule{
			{RuleId: "SEGD-001", Name: "revision supported", Scope: "header", Severity: ERROR, Check: "CheckRevision", Refs: ref},
			{RuleId: "SEGD-002", Name: "structure consistent", Scope: "file", Severity: ERROR, Check: "CheckStructure", Refs: ref},
			{RuleId: "SEGD-003", Name: "all traces decode", Scope: "trace", Severity: ERROR, Check: "CheckTraceDecode", Refs: ref},
			{RuleId: "SEGD-004", Name: "trace count matches channel sets", Scope: "file", Severity: ERROR, Check: "CheckTraceCount", Refs: ref},
			{RuleId: "SEGD-005", Name: "uniform sample counts", Scope: "trace", Severity: WARN, Check: "CheckSampleCounts", Refs: ref},
			{RuleId: "SEGD-006", Name: "no dead traces", Scope: "trace", Severity: WARN, Check: "CheckDeadTraces", Refs: ref},
			{RuleId: "SEGD-007", Name: "record time valid", Scope: "header", Severity: ERROR, Check: "CheckTimestamp", Refs: ref},
			{RuleId: "SEGD-008", Name: "trailing bytes within slack", Scope: "file", Severity: WARN, Check: "CheckTrailingBytes", Refs: ref, Params: map[string]any{"slack": 0}},
		},
	}
}

func newDiag(ctx *Context, rule Rule, msg string) Diagnostic {
	return Diagnostic{
		Ts:       time.Now(),
		File:     ctx.InputFile,
		RuleId:   rule.RuleId,
		Severity: INFO,
		Message:  msg,
		Refs:     rule.Refs,
	}
}

// fail marks d with the rule's severity, ERROR when the rule names none.
func fail(d Diagnostic, rule Rule, format string, args ...any) Diagnostic {
	d.Severity = rule.Severity
	if d.Severity == "" {
		d.Severity = ERROR
	}
	d.Message = fmt.Sprintf(format, args...)
	return d
}

// needFile reports a missing decode as a failure of the calling rule.
func needFile(ctx *Context, rule Rule) (Diagnostic, bool) {
	d := newDiag(ctx, rule, "")
	if ctx.File == nil {
		return fail(d, rule, "record headers could not be decoded"), false
	}
	return d, true
}

func CheckRevision(ctx *Context, rule Rule) (Diagnostic, error) {
	d := newDiag(ctx, rule, "")
	if ctx.Revision == nil {
		_, err := segd.ResolveRevision(ctx.Data)
		return fail(d, rule, "revision not supported: %v", err), nil
	}
	d.Message = fmt.Sprintf("revision %d.%d", ctx.Revision.Revision, ctx.Revision.Minor)
	return d, nil
}

func CheckStructure(ctx *Context, rule Rule) (Diagnostic, error) {
	d := newDiag(ctx, rule, "structure consistent")
	if ctx.DecodeErr != nil {
		var de *segd.DecodeError
		if errors.As(ctx.DecodeErr, &de) {
			d.Offset = fmt.Sprintf("0x%X", de.Offset)
			if de.Trace >= 0 {
				d.TraceIndex = intPtr(de.Trace)
			}
		}
		return fail(d, rule, "decode failed: %v", ctx.DecodeErr), nil
	}
	f := ctx.File
	if f.Truncated() {
		return fail(d, rule, "record truncated after %d of %d bytes", len(ctx.Data), f.Declared), nil
	}
	if f.Consumed != f.Declared {
		return fail(d, rule, "walked %d bytes but headers declare %d", f.Consumed, f.Declared), nil
	}
	return d, nil
}

func CheckTraceDecode(ctx *Context, rule Rule) (Diagnostic, error) {
	d, ok := needFile(ctx, rule)
	if !ok {
		return d, nil
	}
	failed := ctx.File.Failed()
	if len(failed) == 0 {
		d.Message = fmt.Sprintf("%d traces decoded", len(ctx.File.Records))
		return d, nil
	}
	first := failed[0]
	d.TraceIndex = intPtr(first.Index)
	d.Offset = fmt.Sprintf("0x%X", first.Offset)
	return fail(d, rule, "%d of %d traces failed; first: %v", len(failed), len(ctx.File.Records), first.Err), nil
}

func CheckTraceCount(ctx *Context, rule Rule) (Diagnostic, error) {
	d, ok := needFile(ctx, rule)
	if !ok {
		return d, nil
	}
	f := ctx.File
	want := f.ExpectedTraces()
	if ctx.DecodeErr == nil && len(f.Records) != want {
		return fail(d, rule, "channel sets declare %d traces, record holds %d", want, len(f.Records)), nil
	}
	if f.Sercel != nil && f.Sercel.TotalTraces > 0 && f.Sercel.TotalTraces != want {
		return fail(d, rule, "extended header declares %d traces, channel sets %d", f.Sercel.TotalTraces, want), nil
	}
	d.Message = fmt.Sprintf("%d traces in %d channel sets", want, len(f.ChannelSets))
	return d, nil
}

func CheckSampleCounts(ctx *Context, rule Rule) (Diagnostic, error) {
	d, ok := needFile(ctx, rule)
	if !ok {
		return d, nil
	}
	counts := make(map[segd.ChannelSetKey]int)
	for _, res := range ctx.File.Records {
		rec := res.Record
		if rec == nil {
			continue
		}
		key := rec.ChannelSet.Key()
		n, seen := counts[key]
		if !seen {
			counts[key] = rec.SampleCount
			continue
		}
		if n != rec.SampleCount {
			d.ChannelSet = key.Number
			d.TraceIndex = intPtr(res.Index)
			return fail(d, rule, "channel set %d mixes %d and %d samples per trace", key.Number, n, rec.SampleCount), nil
		}
	}
	d.Message = "sample counts uniform"
	return d, nil
}

func CheckDeadTraces(ctx *Context, rule Rule) (Diagnostic, error) {
	d, ok := needFile(ctx, rule)
	if !ok {
		return d, nil
	}
	var dead []int
	for _, res := range ctx.File.Records {
		if res.Err != nil || res.Record == nil {
			continue
		}
		if stats.Summarize(res.Record.Samples).Dead {
			dead = append(dead, res.Index)
		}
	}
	if len(dead) == 0 {
		d.Message = "no dead traces"
		return d, nil
	}
	d.TraceIndex = intPtr(dead[0])
	return fail(d, rule, "%d dead traces, first at index %d", len(dead), dead[0]), nil
}

func CheckTimestamp(ctx *Context, rule Rule) (Diagnostic, error) {
	d, ok := needFile(ctx, rule)
	if !ok {
		return d, nil
	}
	ts := ctx.File.GH1.Time
	horizon := time.Now().Add(time.Duration(rule.IntParam("future_hours", 24)) * time.Hour)
	switch {
	case ts.IsZero():
		return fail(d, rule, "record time missing"), nil
	case ts.After(horizon):
		return fail(d, rule, "record time %s is in the future", ts.Format(time.RFC3339)), nil
	case ts.Year() < 1980:
		return fail(d, rule, "record time %s is before 1980", ts.Format(time.RFC3339)), nil
	}
	d.Message = "record time " + ts.Format(time.RFC3339)
	return d, nil
}

func CheckTrailingBytes(ctx *Context, rule Rule) (Diagnostic, error) {
	d, ok := needFile(ctx, rule)
	if !ok {
		return d, nil
	}
	if ctx.DecodeErr != nil {
		d.Message = "skipped: record did not decode"
		return d, nil
	}
	excess := len(ctx.Data) - ctx.File.Consumed
	slack := rule.IntParam("slack", 0)
	if excess > slack {
		d.Offset = fmt.Sprintf("0x%X", ctx.File.Consumed)
		return fail(d, rule, "%d bytes follow the record (slack %d)", excess, slack), nil
	}
	d.Message = fmt.Sprintf("%d trailing bytes", excess)
	return d, nil
}
