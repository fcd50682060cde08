package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	goqrcode "github.com/skip2/go-qrcode"

	"github.com/rezonia/nfce-processor/internal/accesskey"
	"github.com/rezonia/nfce-processor/internal/model"
	"github.com/rezonia/nfce-processor/internal/processor"
	"github.com/rezonia/nfce-processor/internal/sefaz"
)

var logger = logrus.WithField("component", "server")

const (
	requestIDHeader = "X-Request-ID"
	defaultQRSize   = 256
	maxQRSize       = 1024
)

// Config holds server configuration
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Debug          bool
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	router   *gin.Engine
	pipeline *processor.Pipeline
}

// NewServer creates a new API server. A nil pipeline gets the defaults.
func NewServer(config *Config, pipeline *processor.Pipeline) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = sefaz.DefaultMaxBodyBytes
	}
	if pipeline == nil {
		pipeline = processor.NewPipeline()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger())

	s := &Server{
		config:   config,
		router:   router,
		pipeline: pipeline,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/scan/image", s.handleScanImage)
		v1.POST("/scan/text", s.handleScanText)
		v1.POST("/parse", s.handleParse)
		v1.POST("/validate", s.handleValidate)

		v1.GET("/states", s.handleStates)
		v1.GET("/keys/:key", s.handleKeyInfo)
		v1.GET("/keys/:key/qr", s.handleKeyQR)
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	logger.WithField("address", s.config.Address).Info("listening")
	return srv.ListenAndServe()
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

func (s *Server) handleScanImage(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	mimeType := c.GetHeader("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = processor.DetectMimeType(body)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	s.respond(c, s.pipeline.ProcessImage(ctx, body, mimeType))
}

func (s *Server) handleScanText(c *gin.Context) {
	var text string
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req ScanTextRequest
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
			return
		}
		text = req.Text
	} else {
		body, ok := s.readBody(c)
		if !ok {
			return
		}
		text = string(body)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()

	s.respond(c, s.pipeline.ProcessText(ctx, text))
}

func (s *Server) handleParse(c *gin.Context) {
	raw, ok := s.savedDocument(c)
	if !ok {
		return
	}
	s.respond(c, s.pipeline.ProcessDocument(c.Request.Context(), raw))
}

func (s *Server) handleValidate(c *gin.Context) {
	raw, ok := s.savedDocument(c)
	if !ok {
		return
	}

	result := s.pipeline.ProcessDocument(c.Request.Context(), raw)
	if result.Error != nil {
		c.JSON(statusFor(result.Error), ValidationResponse{
			Valid:  false,
			Errors: []string{result.Error.Error()},
		})
		return
	}

	resp := ValidationResponse{Valid: true, Warnings: result.Warnings}
	if err := result.Record.Validate(); err != nil {
		resp.Valid = false
		resp.Errors = []string{err.Error()}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStates(c *gin.Context) {
	ufs := accesskey.States()
	states := make([]StateResponse, 0, len(ufs))
	for _, uf := range ufs {
		code, _ := accesskey.StateCode(uf)
		st := StateResponse{UF: uf, Code: code}
		if ep, err := sefaz.DefaultEndpoints.Lookup(uf); err == nil {
			st.DirectURL = ep.Direct
			st.ConsultURL = ep.Consult
		}
		states = append(states, st)
	}
	c.JSON(http.StatusOK, StatesResponse{States: states})
}

func (s *Server) handleKeyInfo(c *gin.Context) {
	key, uf, ok := pathKey(c)
	if !ok {
		return
	}

	resp := KeyInfoResponse{
		Key:          key.String(),
		UF:           uf,
		StateCode:    key.StateCode(),
		IssuerTaxID:  key.IssuerTaxID(),
		Model:        key.Model(),
		Series:       key.Series(),
		Number:       key.Number(),
		EmissionType: key.EmissionType(),
		CheckDigit:   key.CheckDigit(),
	}
	if t, err := key.IssueMonth(); err == nil {
		resp.IssueMonth = t.Format("2006-01")
	}
	if direct, consult, err := sefaz.URLs(uf, key); err == nil {
		resp.DirectURL = direct
		resp.ConsultURL = consult
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleKeyQR(c *gin.Context) {
	key, uf, ok := pathKey(c)
	if !ok {
		return
	}

	size := defaultQRSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > maxQRSize {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "size must be between 64 and 1024"})
			return
		}
		size = n
	}

	content, _, err := sefaz.URLs(uf, key)
	if err != nil {
		content = key.String()
	}

	png, err := goqrcode.Encode(content, goqrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to render QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Helper functions

func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

// savedDocument reads a stored portal body and the optional key query
func (s *Server) savedDocument(c *gin.Context) (*model.RawDocument, bool) {
	body, ok := s.readBody(c)
	if !ok {
		return nil, false
	}

	raw := &model.RawDocument{Body: string(body)}
	if v := c.Query("key"); v != "" {
		key, err := accesskey.Resolve(v)
		if err != nil {
			s.fail(c, &processor.Result{Error: model.NewStageError(model.StageResolve, "", err)})
			return nil, false
		}
		raw.Key = key
	}
	return raw, true
}

func pathKey(c *gin.Context) (model.AccessKey, model.UF, bool) {
	key, err := accesskey.Resolve(c.Param("key"))
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error(), Kind: model.Kind(err)})
		return model.AccessKey{}, "", false
	}
	uf, err := accesskey.ResolveUF(key)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error(), Kind: model.Kind(err)})
		return model.AccessKey{}, "", false
	}
	return key, uf, true
}

func (s *Server) respond(c *gin.Context, result *processor.Result) {
	if result.Error != nil {
		s.fail(c, result)
		return
	}
	c.JSON(http.StatusOK, ProcessResponse{
		Record:   result.Record,
		Payload:  result.Payload,
		Method:   string(result.Method),
		Warnings: result.Warnings,
	})
}

func (s *Server) fail(c *gin.Context, result *processor.Result) {
	resp := ErrorResponse{
		Error:    result.Error.Error(),
		Kind:     model.Kind(result.Error),
		Warnings: result.Warnings,
	}
	var serr *model.StageError
	if errors.As(result.Error, &serr) {
		resp.Stage = string(serr.Stage)
	}
	c.JSON(statusFor(result.Error), resp)
}

// statusFor maps a failure kind to an HTTP status. A deadline wins over
// the network kind that wraps it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrQRNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidAccessKey), errors.Is(err, model.ErrUnknownIssuingState):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNetwork), errors.Is(err, model.ErrUnparseableResponse):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrParse):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Middleware

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request handled")
	}
}
