package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/rules"
	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/segd/segdtest"
)

func writeRecord(t *testing.T, path string, traces int) {
	t.Helper()
	rec := segdtest.Record{
		Revision:    2,
		FileNumber:  7,
		Year:        2023,
		Format:      segd.FormatInt16,
		ChannelSets: []segdtest.ChannelSet{{Number: 1, End: 2, Channels: traces}},
	}
	for i := 0; i < traces; i++ {
		rec.Traces = append(rec.Traces, segdtest.Trace{
			Number:        i + 1,
			Extensions:    1,
			ReceiverLine:  4,
			ReceiverPoint: 100 + i,
			Data:          segdtest.Int16s(binary.BigEndian, 5, -5, 5, -5),
		})
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, rec.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestCollectRecords(t *testing.T) {
	root := t.TempDir()
	writeRecord(t, filepath.Join(root, "a.segd"), 1)
	writeRecord(t, filepath.Join(root, "nested", "b.sgd"), 1)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	paths, err := collectRecords([]string{root})
	if err != nil {
		t.Fatalf("collectRecords: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.segd" || filepath.Base(paths[1]) != "b.sgd" {
		t.Fatalf("paths %v", paths)
	}
	if _, err := collectRecords([]string{filepath.Join(root, "missing")}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestRunBatchValidates(t *testing.T) {
	root := t.TempDir()
	alpha := filepath.Join(root, "in", "alpha.segd")
	beta := filepath.Join(root, "in", "nested", "beta.segd")
	broken := filepath.Join(root, "in", "broken.segd")
	writeRecord(t, alpha, 3)
	writeRecord(t, beta, 2)
	if err := os.WriteFile(broken, []byte("short"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rp := rules.DefaultRulePack()
	outDir := filepath.Join(root, "out")
	m := common.NewMetrics()
	results := runBatch(context.Background(), []string{alpha, beta, broken}, 2, &rp, outDir, m)

	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []int{3, 2} {
		r := results[i]
		if r.Err != nil || r.Traces != want || r.Revision != "2.0" || r.Pass == nil || !*r.Pass {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
	if results[2].Err == nil {
		t.Fatalf("expected decode error for broken file")
	}
	if snap := m.Snapshot(); snap.Files != 3 || snap.Traces != 5 {
		t.Fatalf("metrics %+v", snap)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "in_alpha.segd", "acceptance.json"))
	if err != nil {
		t.Fatalf("ReadFile acceptance: %v", err)
	}
	var rep rules.AcceptanceReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("Unmarshal acceptance: %v", err)
	}
	if !rep.Summary.Pass || rep.Summary.Errors != 0 {
		t.Fatalf("acceptance %+v", rep.Summary)
	}
	for _, name := range []string{"diagnostics.ndjson", "acceptance.pdf"} {
		if _, err := os.Stat(filepath.Join(outDir, "nested_beta.segd", name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	var buf bytes.Buffer
	if err := writeBatchTable(&buf, results); err != nil {
		t.Fatalf("writeBatchTable: %v", err)
	}
	if got := strings.Count(buf.String(), "PASS"); got != 2 {
		t.Fatalf("table has %d PASS rows:\n%s", got, buf.String())
	}
}

func TestWriteInfoAndTraces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.segd")
	writeRecord(t, path, 2)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	f, err := segd.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	var info bytes.Buffer
	if err := writeInfo(&info, path, f); err != nil {
		t.Fatalf("writeInfo: %v", err)
	}
	for _, want := range []string{"Revision:      2.0", "File number:   7", "Traces:        2"} {
		if !strings.Contains(info.String(), want) {
			t.Fatalf("info missing %q:\n%s", want, info.String())
		}
	}

	var out bytes.Buffer
	if err := writeTraces(&out, f, true); err != nil {
		t.Fatalf("writeTraces: %v", err)
	}
	sc := bufio.NewScanner(&out)
	var lines []traceLine
	for sc.Scan() {
		var l traceLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, l)
	}
	if len(lines) != 2 || lines[1].ReceiverPoint != 101 || lines[1].Stats == nil || lines[1].Stats.PeakAbs != 5 {
		t.Fatalf("lines %+v", lines)
	}
}

func TestResolveRulePackFlags(t *testing.T) {
	if _, err := resolveRulePack("a.yaml", "pack", ""); err == nil {
		t.Fatalf("expected error for --rules with --rulepack-id")
	}
	if _, err := resolveRulePack("", "", "1.0"); err == nil {
		t.Fatalf("expected error for version without id")
	}
	path := filepath.Join(t.TempDir(), "pack.yaml")
	pack := "rulePackId: local\nversion: \"2\"\nrules:\n  - ruleId: SEGD-003\n    check: CheckTraceDecode\n    severity: ERROR\n"
	if err := os.WriteFile(path, []byte(pack), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	rp, err := resolveRulePack(path, "", "")
	if err != nil {
		t.Fatalf("resolveRulePack: %v", err)
	}
	if rp.RulePackId != "local" || len(rp.Rules) != 1 {
		t.Fatalf("pack %+v", rp)
	}
}
