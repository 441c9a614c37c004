package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/golang/groupcache"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"example.com/segdgate/internal/catalog"
	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/manifest"
	"example.com/segdgate/internal/report"
	"example.com/segdgate/internal/rules"
	"example.com/segdgate/internal/segd"
)

// Catalog is the part of the Postgres catalog the daemon uses.
type Catalog interface {
	AddFile(ctx context.Context, e catalog.Entry) (int64, error)
	Files(ctx context.Context, q catalog.Query) ([]catalog.File, error)
}

// Server coordinates HTTP handlers and manages the uploads and artifacts
// produced by decode and validation requests.
type Server struct {
	artifacts  *ArtifactStore
	workDir    string
	uploadsDir string

	decode     DecodeOptions
	rulePacks  map[string]rules.RulePack
	packIDs    []string
	repository *rules.Repository

	summaries *groupcache.Group
	limiter   *rate.Limiter
	maxUpload int64
	catalog   Catalog
	query     *schema.Decoder
}

// Artifact represents a file uploaded to or generated by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
	SHA256      string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
}

// ArtifactStore keeps track of artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

const (
	kindRecording   = "recording"
	kindDiagnostics = "diagnostics"
	kindAcceptance  = "acceptance"
	kindManifest    = "manifest"
)

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	opts = opts.withDefaults()
	packs, ids, err := loadRulePacks(opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.StorageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(opts.StorageDir, "segdd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	s := &Server{
		artifacts:  &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:    workDir,
		uploadsDir: uploadsDir,
		decode:     opts.Decode,
		rulePacks:  packs,
		packIDs:    ids,
		repository: opts.Repository,
		limiter:    rate.NewLimiter(rate.Limit(opts.UploadRate), opts.UploadBurst),
		maxUpload:  opts.MaxUploadBytes,
		catalog:    opts.Catalog,
		query:      newQueryDecoder(),
	}
	// groupcache group names are process wide.
	s.summaries = groupcache.NewGroup("segd-summary-"+uuid.NewString(), opts.CacheBytes,
		groupcache.GetterFunc(s.summaryGetter))
	return s, nil
}

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) decodeOptions() []segd.Option {
	opts := []segd.Option{segd.WithSlack(s.decode.Slack)}
	if s.decode.StrictTail {
		opts = append(opts, segd.WithStrictTail())
	}
	return opts
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	if kind == kindRecording {
		if art.SHA256, _, err = common.Sha256OfFile(path); err != nil {
			return Artifact{}, err
		}
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) recording(id string) (Artifact, error) {
	art, ok := s.getArtifact(id)
	if !ok || art.Kind != kindRecording {
		return Artifact{}, fmt.Errorf("file %s: %w", id, os.ErrNotExist)
	}
	return art, nil
}

// load reads and decodes an uploaded recording.
func (s *Server) load(id string, extra ...segd.Option) (Artifact, []byte, *segd.File, error) {
	art, err := s.recording(id)
	if err != nil {
		return art, nil, nil, err
	}
	data, err := common.ReadInput(art.Path)
	if err != nil {
		return art, nil, nil, err
	}
	f, err := segd.Decode(data, append(s.decodeOptions(), extra...)...)
	return art, data, f, err
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "catalog": s.catalog != nil})
}

func (s *Server) handleRulePacks(c *echo.Context) error {
	type packInfo struct {
		ID      string `json:"id"`
		Version string `json:"version"`
		Rules   int    `json:"rules"`
	}
	def := rules.DefaultRulePack()
	out := []packInfo{{ID: def.RulePackId, Version: def.Version, Rules: len(def.Rules)}}
	for _, id := range s.packIDs {
		rp := s.rulePacks[id]
		out = append(out, packInfo{ID: id, Version: rp.Version, Rules: len(rp.Rules)})
	}
	return c.JSON(http.StatusOK, out)
}

type validateRequest struct {
	Input             string          `json:"input"`
	RulePackID        string          `json:"rulePackId"`
	RulePack          *rules.RulePack `json:"rulePack"`
	IncludeTimestamps *bool           `json:"includeTimestamps"`
}

func (s *Server) handleValidate(c *echo.Context) error {
	var req validateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
	}
	if req.Input == "" {
		return writeError(c, http.StatusBadRequest, "input required")
	}
	art, err := s.recording(req.Input)
	if err != nil {
		return writeError(c, http.StatusNotFound, err.Error())
	}
	rp, err := s.loadRulePack(req.RulePackID, req.RulePack)
	if err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("load rulepack: %v", err))
	}
	engine := rules.NewEngine(rp)
	engine.RegisterBuiltins()
	if req.IncludeTimestamps != nil {
		engine.SetConfigValue("diag.include_timestamps", *req.IncludeTimestamps)
	}
	ctx := &rules.Context{InputFile: art.Path}
	diags, err := engine.Eval(ctx)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("eval: %v", err))
	}
	rep := engine.MakeAcceptance()
	refs, err := s.saveValidationArtifacts(engine, rep, art)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, err.Error())
	}

	if c.QueryParam("stream") == "true" {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
		res.WriteHeader(http.StatusOK)
		writer := NewNDJSONWriter(res)
		for _, d := range diags {
			if err := writer.WriteDiagnostic(d); err != nil {
				return nil
			}
		}
		_ = writer.WriteObject(struct {
			Type       string                 `json:"type"`
			Acceptance rules.AcceptanceReport `json:"acceptance"`
			Artifacts  []ArtifactRef          `json:"artifacts"`
			Total      int                    `json:"diagnostics"`
		}{Type: "acceptance", Acceptance: rep, Artifacts: refs, Total: len(diags)})
		return nil
	}

	return c.JSON(http.StatusOK, struct {
		Acceptance  rules.AcceptanceReport `json:"acceptance"`
		Diagnostics int                    `json:"diagnostics"`
		Artifacts   []ArtifactRef          `json:"artifacts"`
	}{Acceptance: rep, Diagnostics: len(diags), Artifacts: refs})
}

// saveValidationArtifacts writes the diagnostics stream, the acceptance
// JSON and its PDF rendering and registers them for download.
func (s *Server) saveValidationArtifacts(engine *rules.Engine, rep rules.AcceptanceReport, src Artifact) ([]ArtifactRef, error) {
	diagPath, err := s.tempPath("diagnostics-*.ndjson")
	if err != nil {
		return nil, fmt.Errorf("diagnostics temp: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		return nil, fmt.Errorf("write diagnostics: %w", err)
	}
	accPath, err := s.tempPath("acceptance-*.json")
	if err != nil {
		return nil, fmt.Errorf("acceptance temp: %w", err)
	}
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		return nil, fmt.Errorf("write acceptance: %w", err)
	}
	pdfPath, err := s.tempPath("acceptance-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("acceptance pdf temp: %w", err)
	}
	if err := report.SaveAcceptancePDF(rep, report.Source{File: src.Name, SHA256: src.SHA256}, pdfPath); err != nil {
		return nil, fmt.Errorf("write acceptance pdf: %w", err)
	}
	var refs []ArtifactRef
	for _, a := range []struct{ path, name, ctype, kind string }{
		{diagPath, "diagnostics.ndjson", "application/x-ndjson", kindDiagnostics},
		{accPath, "acceptance_report.json", "application/json", kindAcceptance},
		{pdfPath, "acceptance_report.pdf", "application/pdf", kindAcceptance},
	} {
		art, err := s.addArtifact(a.path, a.name, a.ctype, a.kind)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", a.name, err)
		}
		refs = append(refs, toRef(art))
	}
	return refs, nil
}

func (s *Server) handleManifest(c *echo.Context) error {
	var req struct {
		Inputs []string `json:"inputs"`
		Format string   `json:"format"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
	}
	if len(req.Inputs) == 0 {
		return writeError(c, http.StatusBadRequest, "inputs required")
	}
	var paths []string
	for _, in := range req.Inputs {
		art, ok := s.getArtifact(in)
		if !ok {
			return writeError(c, http.StatusBadRequest, fmt.Sprintf("unknown artifact %s", in))
		}
		paths = append(paths, art.Path)
	}
	m, err := manifest.Build(paths)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("build manifest: %v", err))
	}
	// report artifact ids rather than daemon paths
	for i := range m.Items {
		m.Items[i].Path = req.Inputs[i]
	}
	ext, ctype := ".json", "application/json"
	if strings.EqualFold(req.Format, "yaml") {
		ext, ctype = ".yaml", "application/yaml"
	}
	outPath, err := s.tempPath("manifest-*" + ext)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("manifest temp: %v", err))
	}
	if err := manifest.Save(m, outPath); err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("write manifest: %v", err))
	}
	art, err := s.addArtifact(outPath, "manifest"+ext, ctype, kindManifest)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("register manifest: %v", err))
	}
	return c.JSON(http.StatusOK, struct {
		Manifest manifest.Manifest `json:"manifest"`
		Artifact ArtifactRef       `json:"artifact"`
	}{Manifest: m, Artifact: toRef(art)})
}

func (s *Server) handleArtifactDownload(c *echo.Context) error {
	art, ok := s.getArtifact(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "artifact not found")
	}
	f, err := os.Open(art.Path)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("open artifact: %v", err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, fmt.Sprintf("stat artifact: %v", err))
	}
	res := c.Response()
	if art.ContentType != "" {
		res.Header().Set(echo.HeaderContentType, art.ContentType)
	}
	res.Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", art.Name))
	res.WriteHeader(http.StatusOK)
	_, err = io.Copy(res, f)
	return err
}

func (s *Server) handleCatalog(c *echo.Context) error {
	if s.catalog == nil {
		return writeError(c, http.StatusServiceUnavailable, "catalog not enabled")
	}
	var q catalog.Query
	if err := s.query.Decode(&q, c.Request().URL.Query()); err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("query: %v", err))
	}
	files, err := s.catalog.Files(c.Request().Context(), q)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, err.Error())
	}
	if files == nil {
		files = []catalog.File{}
	}
	return c.JSON(http.StatusOK, files)
}

func (s *Server) loadRulePack(id string, override *rules.RulePack) (rules.RulePack, error) {
	if override != nil && len(override.Rules) > 0 {
		return *override, nil
	}
	if id == "" || id == rules.DefaultRulePack().RulePackId {
		if s.repository != nil {
			return s.repository.ForProfile("segd")
		}
		return rules.DefaultRulePack(), nil
	}
	if rp, ok := s.rulePacks[id]; ok {
		return rp, nil
	}
	if s.repository != nil {
		return s.repository.Load(id, "")
	}
	return rules.RulePack{}, fmt.Errorf("unknown rule pack %s", id)
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
		SHA256:      art.SHA256,
	}
}

func writeError(c *echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// errorStatus maps decode failures to 422 and missing files to 404.
func errorStatus(err error) int {
	switch {
	case segd.KindOf(err) != nil:
		return http.StatusUnprocessableEntity
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".mseed":
		return "application/vnd.fdsn.mseed"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func (s *Server) handleArtifacts(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.listArtifacts())
}
