package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"example.com/segdgate/internal/rules"
)

// PackEntry names a rule pack file the daemon offers to /validate callers.
type PackEntry struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Rules string `json:"rules" yaml:"rules"`
}

// DecodeOptions mirror the decoder switches exposed in the daemon config.
type DecodeOptions struct {
	Slack      int
	StrictTail bool
}

// Options configures server creation.
type Options struct {
	StorageDir string
	Decode     DecodeOptions

	// RulePackIndex is a JSON or YAML document listing rule packs; it is
	// read only when RulePacks is empty.
	RulePackIndex string
	RulePacks     []PackEntry
	Repository    *rules.Repository

	CacheBytes     int64
	UploadRate     float64 // uploads per second
	UploadBurst    int
	MaxUploadBytes int64

	Catalog Catalog
}

const (
	defaultCacheBytes     = 64 << 20
	defaultUploadRate     = 2
	defaultUploadBurst    = 4
	defaultMaxUploadBytes = 2 << 30
)

func (o Options) withDefaults() Options {
	if o.StorageDir == "" {
		o.StorageDir = os.TempDir()
	}
	if o.CacheBytes <= 0 {
		o.CacheBytes = defaultCacheBytes
	}
	if o.UploadRate <= 0 {
		o.UploadRate = defaultUploadRate
	}
	if o.UploadBurst <= 0 {
		o.UploadBurst = defaultUploadBurst
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = defaultMaxUploadBytes
	}
	return o
}

// LoadRulePackIndex parses an index document that enumerates the available
// rule packs. Relative paths are resolved against the index's directory.
func LoadRulePackIndex(path string) ([]PackEntry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("index path is empty")
	}
	indexPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("index path: %w", err)
	}
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	var doc struct {
		RulePacks []PackEntry `json:"rulePacks" yaml:"rulePacks"`
	}
	switch strings.ToLower(filepath.Ext(indexPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if len(doc.RulePacks) == 0 {
		return nil, errors.New("index contains no rule packs")
	}
	base := filepath.Dir(indexPath)
	out := make([]PackEntry, len(doc.RulePacks))
	for i, pack := range doc.RulePacks {
		resolved, err := resolvePackPath(base, pack)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func resolvePackPath(base string, pack PackEntry) (PackEntry, error) {
	pack.ID = strings.TrimSpace(pack.ID)
	pack.Name = strings.TrimSpace(pack.Name)
	pack.Rules = strings.TrimSpace(pack.Rules)
	if pack.ID == "" {
		return PackEntry{}, errors.New("index entry missing id")
	}
	if pack.Rules == "" {
		return PackEntry{}, fmt.Errorf("rule pack %s missing rules path", pack.ID)
	}
	if !filepath.IsAbs(pack.Rules) {
		pack.Rules = filepath.Join(base, pack.Rules)
	}
	return pack, nil
}

// loadRulePacks reads every configured pack up front so that a broken
// file stops the daemon at start rather than at the first request.
func loadRulePacks(opts Options) (map[string]rules.RulePack, []string, error) {
	packs := opts.RulePacks
	if len(packs) == 0 && strings.TrimSpace(opts.RulePackIndex) != "" {
		var err error
		packs, err = LoadRulePackIndex(opts.RulePackIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("load rule pack index: %w", err)
		}
	}
	entries := make(map[string]rules.RulePack)
	for _, pack := range packs {
		id := strings.TrimSpace(pack.ID)
		if id == "" {
			return nil, nil, errors.New("rule pack missing id")
		}
		if _, exists := entries[id]; exists {
			return nil, nil, fmt.Errorf("duplicate rule pack %s configured", id)
		}
		rp, err := rules.LoadRulePack(pack.Rules)
		if err != nil {
			return nil, nil, fmt.Errorf("rule pack %s: %w", id, err)
		}
		entries[id] = rp
	}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return entries, ids, nil
}
