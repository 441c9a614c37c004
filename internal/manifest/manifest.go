package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/segd"
)

const (
	TypeSEGD     = "segd"
	TypeSEGDZstd = "segd-zstd"
	TypeReport   = "report"
	TypeOther    = "other"
)

type Item struct {
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	Sha256 string `json:"sha256" yaml:"sha256"`
	Type   string `json:"type" yaml:"type"`

	// Recording details, filled in for SEG-D inputs whose headers decode.
	Revision   string `json:"revision,omitempty" yaml:"revision,omitempty"`
	FileNumber int    `json:"fileNumber,omitempty" yaml:"fileNumber,omitempty"`
	Traces     int    `json:"traces,omitempty" yaml:"traces,omitempty"`
	Recorded   string `json:"recorded,omitempty" yaml:"recorded,omitempty"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo" yaml:"shaAlgo"`
	Items     []Item    `json:"items" yaml:"items"`
}

func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		item := Item{Path: p, Size: sz, Sha256: hex, Type: Classify(p)}
		if item.Type == TypeSEGD || item.Type == TypeSEGDZstd {
			describe(&item)
		}
		m.Items = append(m.Items, item)
	}
	return m, nil
}

// Classify maps a file name to a manifest item type.
func Classify(path string) string {
	switch {
	case hasExt(path, ".segd.zst", ".sgd.zst", ".rg16.zst", ".zst"):
		return TypeSEGDZstd
	case hasExt(path, ".segd", ".sgd", ".rg16"):
		return TypeSEGD
	case hasExt(path, ".json", ".jsonl", ".ndjson", ".pdf", ".mseed"):
		return TypeReport
	}
	return TypeOther
}

// describe reads the record headers; an undecodable record is still listed.
func describe(item *Item) {
	data, err := common.ReadInput(item.Path)
	if err != nil {
		return
	}
	f, err := segd.DecodeHeaders(data)
	if err != nil {
		return
	}
	item.Revision = fmt.Sprintf("%d.%d", f.Profile.Revision, f.Profile.Minor)
	item.FileNumber = f.GH1.FileNumber
	item.Traces = f.ExpectedTraces()
	item.Recorded = f.GH1.Time.UTC().Format(time.RFC3339)
}

func hasExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

// Save writes JSON, or YAML when out ends in .yaml or .yml.
func Save(m Manifest, out string) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(out)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(m)
	default:
		b, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	default:
		err = json.Unmarshal(b, &m)
	}
	return m, err
}
