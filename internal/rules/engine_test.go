package rules

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestWriteDiagnosticsNDJSONIncludesTimestamp(t *testing.T) {
	eng := &Engine{includeTimestampFields: true}
	withTs := int64(123456)
	eng.diagnostics = []Diagnostic{
		{
			Ts:          time.Unix(0, 0),
			File:        "input.segd",
			RuleId:      "SEGD-TEST-1",
			Severity:    INFO,
			Message:     "with timestamp",
			Refs:        []string{"ref"},
			TimestampUs: &withTs,
		},
		{
			Ts:       time.Unix(1, 0),
			File:     "input.segd",
			RuleId:   "SEGD-TEST-2",
			Severity: INFO,
			Message:  "without timestamp",
			Refs:     []string{"ref"},
		},
	}

	outPath := filepath.Join(t.TempDir(), "diagnostics.jsonl")
	if err := eng.WriteDiagnosticsNDJSON(outPath); err != nil {
		t.Fatalf("WriteDiagnosticsNDJSON failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	lines := bytesTrimSplit(data)
	if len(lines) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal first line failed: %v", err)
	}
	if v, ok := first["timestamp_us"]; !ok {
		t.Fatalf("timestamp_us missing from first diagnostic")
	} else if num, ok := v.(float64); !ok || int64(num) != withTs {
		t.Fatalf("timestamp_us = %v, want %d", v, withTs)
	}

	var second map[string]any
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("unmarshal second line failed: %v", err)
	}
	if v, ok := second["timestamp_us"]; !ok {
		t.Fatalf("timestamp_us missing from second diagnostic")
	} else if v != nil {
		t.Fatalf("timestamp_us expected nil, got %v", v)
	}
}

func TestWriteDiagnosticsWithoutTimestamps(t *testing.T) {
	eng := NewEngine(RulePack{})
	eng.SetConfigValue("diag.include_timestamps", "false")
	ts := int64(1)
	eng.diagnostics = []Diagnostic{{RuleId: "SEGD-001", Severity: INFO, TimestampUs: &ts}}
	var buf bytes.Buffer
	if err := eng.WriteDiagnostics(&buf); err != nil {
		t.Fatalf("WriteDiagnostics: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("timestamp_us")) {
		t.Fatalf("timestamp fields written: %s", buf.String())
	}
}

func TestParseRulePackFormats(t *testing.T) {
	yamlPack := []byte(`
rulePackId: field-qc
version: "2.1"
profile: segd
rules:
  - ruleId: SEGD-008
    check: CheckTrailingBytes
    severity: ERROR
    params:
      slack: 64
  - ruleId: SEGD-006
    check: CheckDeadTraces
    enabled: false
`)
	rp, err := ParseRulePack(yamlPack, ".yaml")
	if err != nil {
		t.Fatalf("ParseRulePack yaml: %v", err)
	}
	if rp.RulePackId != "field-qc" || len(rp.Rules) != 2 {
		t.Fatalf("rule pack %+v", rp)
	}
	if got := rp.Rules[0].IntParam("slack", 0); got != 64 {
		t.Fatalf("slack = %d", got)
	}
	if rp.Rules[1].IsEnabled() || !rp.Rules[0].IsEnabled() {
		t.Fatalf("enabled flags %+v", rp.Rules)
	}

	jsonPack, _ := json.Marshal(rp)
	back, err := ParseRulePack(jsonPack, ".json")
	if err != nil {
		t.Fatalf("ParseRulePack json: %v", err)
	}
	if back.Rules[0].IntParam("slack", 0) != 64 || back.Rules[1].IsEnabled() {
		t.Fatalf("json rule pack %+v", back)
	}

	if _, err := ParseRulePack([]byte("{"), ".json"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMakeAcceptance(t *testing.T) {
	eng := NewEngine(RulePack{Rules: []Rule{
		{RuleId: "A", Check: "CheckRevision"},
		{RuleId: "B", Check: "CheckDeadTraces"},
		{RuleId: "C", Check: "CheckStructure"},
	}})
	eng.diagnostics = []Diagnostic{
		{RuleId: "A", Severity: INFO},
		{RuleId: "B", Severity: WARN},
		{RuleId: "C", Severity: ERROR},
	}
	rep := eng.MakeAcceptance()
	if rep.Summary.Total != 3 || rep.Summary.Errors != 1 || rep.Summary.Warnings != 1 || rep.Summary.Pass {
		t.Fatalf("summary %+v", rep.Summary)
	}
	gm := rep.GateMatrix
	if len(gm) != 3 || !gm[0].Pass || !gm[1].Pass || gm[1].Findings != 1 || gm[2].Pass {
		t.Fatalf("gate matrix %+v", gm)
	}
}

func bytesTrimSplit(in []byte) [][]byte {
	in = bytes.TrimSpace(in)
	if len(in) == 0 {
		return nil
	}
	parts := bytes.Split(in, []byte{'\n'})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		p = bytes.TrimSpace(p)
		if len(p) == 0 {
			continue
		}
		cp := make([]byte, len(p))
		copy(cp, p)
		out = append(out, cp)
	}
	return out
}
