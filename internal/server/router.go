package server

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

// Register wires HTTP routes to the server's handlers.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/upload", s.handleUpload)
	e.GET("/files/:id", s.handleSummary)
	e.GET("/files/:id/traces", s.handleTraces)
	e.GET("/files/:id/miniseed", s.handleMiniSEED)
	e.GET("/files/:id/summary.pdf", s.handleSummaryPDF)
	e.POST("/validate", s.handleValidate)
	e.POST("/manifest", s.handleManifest)
	e.GET("/rulepacks", s.handleRulePacks)
	e.GET("/artifacts", s.handleArtifacts)
	e.GET("/artifacts/:id", s.handleArtifactDownload)
	e.GET("/catalog", s.handleCatalog)
}

// NewRouter returns an echo instance serving s.
func NewRouter(s *Server) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Recover())
	s.Register(e)
	return e
}
