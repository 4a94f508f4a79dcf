// Package server exposes the invoice compiler over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/pdfa"
	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/profile"
	"github.com/rezonia/facturx/internal/render"
)

const (
	mimeXML = "application/xml"
	mimePDF = "application/pdf"
)

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
	// MaxBodyBytes bounds request bodies; zero disables the limit
	MaxBodyBytes int64
	// Template is the render template used by the PDF endpoint when no
	// base PDF is uploaded
	Template string
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	pipeline *processor.Pipeline
	logger   *zap.Logger
}

// Option configures Server
type Option func(*Server)

// WithPipeline sets the pipeline requests are served by
func WithPipeline(p *processor.Pipeline) Option {
	return func(s *Server) {
		s.pipeline = p
	}
}

// WithLogger sets the request logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server
func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = processor.NewPipeline(processor.WithLogger(s.logger))
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestID(), requestLogger(s.logger), bodyLimit(config.MaxBodyBytes))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/profiles", s.handleProfiles)
		v1.POST("/profiles/:id/validate", s.handleValidate)
		v1.POST("/profiles/:id/xml", s.handleXML)
		v1.POST("/profiles/:id/pdf", s.handlePDF)

		v1.POST("/attachments", s.handleAttachments)
		v1.POST("/inspect", s.handleInspect)
	}
}

// Run starts the HTTP server and shuts it down gracefully once ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProfiles(c *gin.Context) {
	profiles := s.pipeline.Profiles().List()
	resp := ProfilesResponse{Profiles: make([]ProfileInfo, 0, len(profiles))}
	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, newProfileInfo(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleValidate(c *gin.Context) {
	doc, ok := s.compileBody(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ValidationResponse{Valid: true, Profile: doc.ProfileID()})
}

func (s *Server) handleXML(c *gin.Context) {
	doc, ok := s.compileBody(c)
	if !ok {
		return
	}

	out, err := s.pipeline.ToXMLBytes(doc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Profile.AttachmentFileName+`"`)
	c.Data(http.StatusOK, mimeXML, out)
}

// handlePDF embeds the compiled XML into the uploaded "pdf" part. Without a
// PDF part the configured template is rendered instead.
func (s *Server) handlePDF(c *gin.Context) {
	raw := c.PostForm("data")
	if raw == "" {
		s.abort(c, http.StatusBadRequest, "missing form field \"data\"", nil)
		return
	}
	doc, ok := s.compile(c, []byte(raw))
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	var out []byte
	header, err := c.FormFile("pdf")
	switch {
	case err == nil:
		var base []byte
		if base, err = readFormFile(header); err != nil {
			s.abort(c, http.StatusBadRequest, "failed to read uploaded PDF", err)
			return
		}
		out, err = s.pipeline.EmbedInPDF(doc, base)
	case errors.Is(err, http.ErrMissingFile):
		out, err = s.pipeline.BuildPDF(ctx, doc, s.config.Template)
	default:
		s.abort(c, http.StatusBadRequest, "invalid multipart request", err)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="invoice.pdf"`)
	c.Data(http.StatusOK, mimePDF, out)
}

func (s *Server) handleAttachments(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	if processor.DetectFormat(body) != processor.FormatPDF {
		s.abort(c, http.StatusBadRequest, "request body is not a PDF", nil)
		return
	}

	files, err := s.pipeline.ListEmbeddedFiles(body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	meta, err := s.pipeline.Metadata(body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	version, err := pdfa.Version(body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	withData := c.Query("data") == "true"
	resp := AttachmentsResponse{
		Files:    make([]AttachmentOutput, 0, len(files)),
		Metadata: meta,
		Version:  version,
	}
	for _, f := range files {
		resp.Files = append(resp.Files, newAttachmentOutput(f, withData))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleInspect(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	summary, err := s.pipeline.Inspect(ctx, body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// compileBody validates the request body against the :id profile. It
// writes the error response itself and reports whether to continue.
func (s *Server) compileBody(c *gin.Context) (*processor.Document, bool) {
	body, ok := s.readBody(c)
	if !ok {
		return nil, false
	}
	return s.compile(c, body)
}

func (s *Server) compile(c *gin.Context, body []byte) (*processor.Document, bool) {
	data, err := processor.DecodeInput(body)
	if err != nil {
		s.abort(c, http.StatusBadRequest, "invalid invoice data", err)
		return nil, false
	}

	id := c.Param("id")
	doc, err := s.pipeline.Compile(id, data)
	if err != nil {
		if list, ok := model.AsValidationErrors(err); ok {
			c.JSON(http.StatusUnprocessableEntity, ValidationResponse{
				Valid:   false,
				Profile: id,
				Errors:  list,
			})
			return nil, false
		}
		s.writeError(c, err)
		return nil, false
	}
	return doc, true
}

func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.abort(c, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return nil, false
		}
		s.abort(c, http.StatusBadRequest, "failed to read request body", err)
		return nil, false
	}

	if len(body) == 0 {
		s.abort(c, http.StatusBadRequest, "empty request body", nil)
		return nil, false
	}
	return body, true
}

// writeError maps pipeline errors onto HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		pdfErr   *model.PdfStructureError
		parseErr *model.ParseError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		s.abort(c, http.StatusNotFound, "unknown profile", err)
	case errors.As(err, &pdfErr), errors.As(err, &parseErr), errors.Is(err, processor.ErrNoInvoiceXML):
		s.abort(c, http.StatusUnprocessableEntity, "unprocessable document", err)
	case errors.As(err, &tooLarge):
		s.abort(c, http.StatusRequestEntityTooLarge, "request body too large", nil)
	case errors.Is(err, render.ErrNotConfigured):
		s.abort(c, http.StatusNotImplemented, "PDF rendering unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		s.abort(c, http.StatusGatewayTimeout, "request timed out", err)
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		s.abort(c, http.StatusInternalServerError, "internal error", nil)
	}
}

func (s *Server) abort(c *gin.Context, status int, message string, err error) {
	resp := ErrorResponse{Error: message, RequestID: c.GetString(requestIDKey)}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

func readFormFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
