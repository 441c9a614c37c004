package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writePack(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestRepositoryInstallLoadRemove(t *testing.T) {
	src := t.TempDir()
	repo, err := OpenRepository(filepath.Join(t.TempDir(), "rules"))
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	for _, v := range []string{"1.2.0", "1.10.0"} {
		body := "rulePackId: field\nversion: \"" + v + "\"\nprofile: segd\nrules:\n  - ruleId: SEGD-001\n    check: CheckRevision\n"
		if _, err := repo.Install(writePack(t, src, "pack-"+v+".yaml", body)); err != nil {
			t.Fatalf("Install %s: %v", v, err)
		}
	}
	list, err := repo.ListInstalled()
	if err != nil {
		t.Fatalf("ListInstalled: %v", err)
	}
	if len(list) != 2 || list[0].RulePack.Version != "1.2.0" || list[1].RulePack.Version != "1.10.0" {
		t.Fatalf("installed %+v", list)
	}
	latest, err := repo.Load("field", "")
	if err != nil || latest.Version != "1.10.0" {
		t.Fatalf("Load latest = %+v, %v", latest, err)
	}

	if err := repo.SetDefaultForProfile("segd", RulePackRef{RulePackId: "field", Version: "1.2.0"}); err != nil {
		t.Fatalf("SetDefaultForProfile: %v", err)
	}
	rp, err := repo.ForProfile("segd")
	if err != nil || rp.Version != "1.2.0" {
		t.Fatalf("ForProfile = %+v, %v", rp, err)
	}
	if err := repo.Remove("field", "1.2.0"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := repo.DefaultForProfile("segd"); ok {
		t.Fatalf("default survived removal")
	}
	rp, err = repo.ForProfile("segd")
	if err != nil || rp.RulePackId != DefaultRulePack().RulePackId {
		t.Fatalf("fallback pack = %+v, %v", rp, err)
	}
}

func TestRepositoryInstallRejects(t *testing.T) {
	src := t.TempDir()
	repo, err := OpenRepository(t.TempDir())
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	tests := map[string]string{
		"missing version": `{"rulePackId":"x","rules":[]}`,
		"path in id":      `{"rulePackId":"../x","version":"1","rules":[]}`,
		"unknown check":   `{"rulePackId":"x","version":"1","rules":[{"ruleId":"R","check":"Nope"}]}`,
	}
	for name, body := range tests {
		if _, err := repo.Install(writePack(t, src, "p.json", body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.10", "1.9", 1},
		{"2", "10", -1},
		{"1.0", "1.0.1", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Fatalf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
