package manifest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"example.com/segdgate/internal/segd"
	"example.com/segdgate/internal/segd/segdtest"
)

func TestClassify(t *testing.T) {
	tests := map[string]string{
		"shot.segd":      TypeSEGD,
		"SHOT.SGD":       TypeSEGD,
		"node.rg16":      TypeSEGD,
		"shot.segd.zst":  TypeSEGDZstd,
		"acceptance.pdf": TypeReport,
		"diag.jsonl":     TypeReport,
		"notes.txt":      TypeOther,
	}
	for name, want := range tests {
		if got := Classify(name); got != want {
			t.Fatalf("Classify(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestBuildDescribesRecords(t *testing.T) {
	dir := t.TempDir()
	rec := segdtest.Record{
		Revision:    1,
		FileNumber:  42,
		Year:        2022,
		Format:      segd.FormatInt16,
		ChannelSets: []segdtest.ChannelSet{{Number: 1, End: 1, Channels: 2}},
		Traces: []segdtest.Trace{
			{Number: 1, Data: segdtest.Int16s(binary.BigEndian, 1, 2)},
			{Number: 2, Data: segdtest.Int16s(binary.BigEndian, 3, 4)},
		},
	}
	raw := rec.Bytes()
	plain := filepath.Join(dir, "shot.segd")
	if err := os.WriteFile(plain, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	packed := filepath.Join(dir, "shot.segd.zst")
	if err := os.WriteFile(packed, enc.EncodeAll(raw, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	enc.Close()
	junk := filepath.Join(dir, "broken.segd")
	if err := os.WriteFile(junk, []byte("not a record"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Build([]string{plain, packed, junk})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(m.Items) != 3 {
		t.Fatalf("items %+v", m.Items)
	}
	for _, it := range m.Items[:2] {
		if it.Revision != "1.0" || it.FileNumber != 42 || it.Traces != 2 || len(it.Sha256) != 64 {
			t.Fatalf("item %+v", it)
		}
	}
	if m.Items[1].Type != TypeSEGDZstd || m.Items[0].Sha256 == m.Items[1].Sha256 {
		t.Fatalf("zstd item %+v", m.Items[1])
	}
	if m.Items[2].Revision != "" || m.Items[2].Type != TypeSEGD {
		t.Fatalf("broken item %+v", m.Items[2])
	}

	for _, name := range []string{"manifest.json", "manifest.yaml"} {
		out := filepath.Join(dir, name)
		if err := Save(m, out); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
		back, err := Load(out)
		if err != nil {
			t.Fatalf("Load %s: %v", name, err)
		}
		if len(back.Items) != 3 || back.Items[0].Sha256 != m.Items[0].Sha256 || back.Items[1].Traces != 2 {
			t.Fatalf("%s round trip %+v", name, back)
		}
	}

	if _, err := Build([]string{filepath.Join(dir, "missing.segd")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
