// Package rest exposes image registration over HTTP.
package rest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"imgreg/internal/filter"
	"imgreg/internal/imageio"
	"imgreg/internal/registration"
	"imgreg/internal/transform"
	"imgreg/internal/version"

	"github.com/gin-gonic/gin"
	"gocv.io/x/gocv"
)

// Server handles registration requests. Each request works on its own
// decoded images, so handlers run concurrently.
type Server struct {
	Defaults       registration.Request // form fields override these
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewServer returns a Server using defaults for omitted form fields.
func NewServer(defaults registration.Request, maxUploadBytes int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Defaults: defaults, MaxUploadBytes: maxUploadBytes, Logger: logger}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	if s.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = s.MaxUploadBytes
	}

	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/version", getVersion)
			v1.POST("/register", s.postRegister)
			v1.POST("/warp", s.postWarp)
		}
	}
	return r
}

// Serve listens on addr until the server fails.
func (s *Server) Serve(addr string) error {
	s.Logger.Info("serving", "addr", addr)
	return s.Router().Run(addr)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

// registerResponse is the JSON body of /register.
type registerResponse struct {
	Strategy  string              `json:"strategy"`
	Model     string              `json:"model"`
	Transform transform.Transform `json:"transform"`
	Angle     float64             `json:"angle,omitempty"`
	Scale     float64             `json:"scale,omitempty"`
	Score     float64             `json:"score"`
	Matches   int                 `json:"matches"`
	ElapsedMS float64             `json:"elapsed_ms"`
}

func (s *Server) postRegister(c *gin.Context) {
	res, ok := s.register(c)
	if !ok {
		return
	}
	defer res.Close()

	c.JSON(http.StatusOK, registerResponse{
		Strategy:  res.Strategy.String(),
		Model:     res.Model.String(),
		Transform: res.Transform,
		Angle:     res.Angle,
		Scale:     res.Scale,
		Score:     res.Score,
		Matches:   res.Matches.Len(),
		ElapsedMS: float64(res.Elapsed.Microseconds()) / 1000,
	})
}

func (s *Server) postWarp(c *gin.Context) {
	res, ok := s.register(c)
	if !ok {
		return
	}
	defer res.Close()

	png, err := imageio.Encode(res.Registered)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Transform", res.Transform.String())
	c.Data(http.StatusOK, "image/png", png)
}

// register decodes the uploads, runs the registration and writes an error
// response itself when it fails.
func (s *Server) register(c *gin.Context) (*registration.Result, bool) {
	req, err := s.parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	ref, err := s.formImage(c, "reference")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	defer ref.Close()
	sensed, err := s.formImage(c, "sensed")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	defer sensed.Close()

	res, err := registration.RegisterImages(ref, sensed, req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return res, true
}

// parseRequest applies the optional form fields on top of the defaults.
func (s *Server) parseRequest(c *gin.Context) (registration.Request, error) {
	req := s.Defaults
	req.Logger = s.Logger

	var err error
	if v, ok := c.GetPostForm("strategy"); ok {
		if req.Strategy, err = registration.ParseStrategyKind(v); err != nil {
			return req, err
		}
	}
	if v, ok := c.GetPostForm("model"); ok {
		if req.Model, err = registration.ParseMotionModel(v); err != nil {
			return req, err
		}
	}
	if v, ok := c.GetPostForm("detector"); ok {
		if req.Features.Detector, err = registration.ParseDetectorKind(v); err != nil {
			return req, err
		}
	}
	if v, ok := c.GetPostForm("robust"); ok {
		if req.Features.Robust, err = registration.ParseRobustMethod(v); err != nil {
			return req, err
		}
	}
	if v, ok := c.GetPostForm("preprocess"); ok {
		if req.Preprocess, err = registration.ParsePreprocess(v); err != nil {
			return req, err
		}
	}
	if v, ok := c.GetPostForm("gamma"); ok {
		if req.Gamma, err = strconv.ParseFloat(v, 64); err != nil {
			return req, fmt.Errorf("%w: gamma %q", registration.ErrInvalidConfig, v)
		}
	}
	return req, req.Validate()
}

func (s *Server) formImage(c *gin.Context, field string) (gocv.Mat, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("missing %s image: %w", field, err)
	}
	if s.MaxUploadBytes > 0 && fh.Size > s.MaxUploadBytes {
		return gocv.Mat{}, fmt.Errorf("%s image exceeds %d bytes", field, s.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return gocv.Mat{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return gocv.Mat{}, err
	}
	mat, err := imageio.Decode(data, imageio.Unchanged)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%s: %w", field, err)
	}
	return mat, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registration.ErrRegistrationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, registration.ErrInvalidConfig),
		errors.Is(err, registration.ErrUnsupportedModel),
		errors.Is(err, registration.ErrSizeMismatch),
		errors.Is(err, registration.ErrNotNormalized),
		errors.Is(err, registration.ErrEmptyImage),
		errors.Is(err, filter.ErrUnsupportedDepth),
		errors.Is(err, filter.ErrGamma):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
