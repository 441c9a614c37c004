package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v5"

	"example.com/segdgate/internal/catalog"
	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/segd"
)

// UploadResult describes one stored recording.
type UploadResult struct {
	ArtifactRef
	Revision  string `json:"revision,omitempty"`
	Traces    int    `json:"traces,omitempty"`
	CatalogID int64  `json:"catalogId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleUpload(c *echo.Context) error {
	if !s.limiter.Allow() {
		return writeError(c, http.StatusTooManyRequests, "upload rate exceeded")
	}
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return writeError(c, http.StatusBadRequest, fmt.Sprintf("parse multipart: %v", err))
	}
	if r.MultipartForm == nil {
		return writeError(c, http.StatusBadRequest, "no files provided")
	}
	defer r.MultipartForm.RemoveAll()
	var out []UploadResult
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			art, err := s.saveUploadedFile(fh)
			if err != nil {
				return writeError(c, http.StatusBadRequest, fmt.Sprintf("save upload %s: %v", fh.Filename, err))
			}
			out = append(out, s.inspectUpload(c, art))
		}
	}
	if len(out) == 0 {
		return writeError(c, http.StatusBadRequest, "no files uploaded")
	}
	return c.JSON(http.StatusOK, struct {
		Files []UploadResult `json:"files"`
	}{Files: out})
}

func (s *Server) saveUploadedFile(fh *multipart.FileHeader) (Artifact, error) {
	if fh == nil {
		return Artifact{}, fmt.Errorf("nil file header")
	}
	src, err := fh.Open()
	if err != nil {
		return Artifact{}, err
	}
	defer src.Close()
	pattern := "upload-*"
	if ext := filepath.Ext(fh.Filename); ext != "" {
		pattern = "upload-*" + ext
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return Artifact{}, err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return Artifact{}, err
	}
	dest.Close()
	return s.addArtifact(dest.Name(), filepath.Base(fh.Filename), "application/octet-stream", kindRecording)
}

// inspectUpload decodes a fresh upload and records it in the catalog when
// one is configured. Decode failures are reported, not rejected: the file
// stays available for /validate.
func (s *Server) inspectUpload(c *echo.Context, art Artifact) UploadResult {
	res := UploadResult{ArtifactRef: toRef(art)}
	data, err := common.ReadInput(art.Path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	f, err := segd.Decode(data, s.decodeOptions()...)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Revision = fmt.Sprintf("%d.%d", f.Profile.Revision, f.Profile.Minor)
	res.Traces = len(f.Records)
	if s.catalog == nil {
		return res
	}
	id, err := s.catalog.AddFile(c.Request().Context(), catalog.EntryFromFile(art.Name, art.SHA256, art.Size, f))
	switch {
	case errors.Is(err, catalog.ErrExists):
	case err != nil:
		common.Logf("catalog add %s: %v", art.Name, err)
	default:
		res.CatalogID = id
	}
	return res
}
