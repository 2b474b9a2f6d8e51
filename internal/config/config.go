// Package config provides the JSON defaults file read by the imreg command.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"imgreg/internal/registration"
)

const (
	configFile = "config.json"
	envPath    = "IMGREG_CONFIG"
)

// Config holds user-editable defaults. Command line flags override it.
type Config struct {
	Registration Registration `json:"registration"`
	Features     Features     `json:"features"`
	ECC          ECC          `json:"ecc"`
	Logging      Logging      `json:"logging"`
	Server       Server       `json:"server"`
}

// Registration selects the strategy and preprocessing.
type Registration struct {
	Strategy   string  `json:"strategy"`   // ecc, features, orb, akaze, fourier-mellin
	Model      string  `json:"model"`      // translation, euclidean, rigid, affine, homography
	Preprocess string  `json:"preprocess"` // none, smooth, edges
	Gamma      float64 `json:"gamma"`      // recursive filter strength in [0,1)
}

// Features configures keypoint matching.
type Features struct {
	Detector          string  `json:"detector"` // orb, akaze
	Robust            string  `json:"robust"`   // ransac, lmeds
	MaxFeatures       int     `json:"max_features"`
	GoodMatchFraction float64 `json:"good_match_fraction"`
	ReprojThreshold   float64 `json:"reproj_threshold"`
	MaxIterations     int     `json:"max_iterations"`
	Confidence        float64 `json:"confidence"`
	MinMatchDistance  float64 `json:"min_match_distance"`
}

// ECC holds the ECC termination criteria.
type ECC struct {
	Iterations      int     `json:"iterations"`
	Epsilon         float64 `json:"epsilon"`
	GaussFilterSize int     `json:"gauss_filter_size"`
}

// Logging controls log verbosity and format.
type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Server configures the REST API.
type Server struct {
	Addr           string `json:"addr"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	Release        bool   `json:"release"` // gin release mode
}

// Default returns the built-in defaults.
func Default() *Config {
	fc := registration.DefaultFeatureConfig()
	ec := registration.DefaultECCConfig()
	return &Config{
		Registration: Registration{
			Strategy:   registration.StrategyECC.String(),
			Model:      registration.Affine.String(),
			Preprocess: registration.PreprocessNone.String(),
			Gamma:      0.5,
		},
		Features: Features{
			Detector:          fc.Detector.String(),
			Robust:            fc.Robust.String(),
			MaxFeatures:       fc.MaxFeatures,
			GoodMatchFraction: fc.GoodMatchFraction,
			ReprojThreshold:   fc.ReprojThreshold,
			MaxIterations:     fc.MaxIterations,
			Confidence:        fc.Confidence,
			MinMatchDistance:  fc.MinMatchDistance,
		},
		ECC: ECC{
			Iterations:      ec.Iterations,
			Epsilon:         ec.Epsilon,
			GaussFilterSize: ec.GaussFilterSize,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Addr:           ":8080",
			MaxUploadBytes: 64 << 20,
		},
	}
}

// DefaultPath returns $IMGREG_CONFIG if set, else
// ~/.config/imgreg/config.json.
func DefaultPath() string {
	if p := os.Getenv(envPath); p != "" {
		return p
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "imgreg", configFile)
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating the directory.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Validate checks that the config converts into a valid request.
func (c *Config) Validate() error {
	req, err := c.Request()
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json", "":
	default:
		return fmt.Errorf("%w: log format %q", registration.ErrInvalidConfig, c.Logging.Format)
	}
	if c.Server.MaxUploadBytes < 0 {
		return fmt.Errorf("%w: max upload bytes must be >= 0", registration.ErrInvalidConfig)
	}
	return nil
}

// Request converts the config into a registration request. The logger is
// left for the caller to set.
func (c *Config) Request() (registration.Request, error) {
	req := registration.DefaultRequest()

	var err error
	if req.Strategy, err = registration.ParseStrategyKind(c.Registration.Strategy); err != nil {
		return req, err
	}
	if req.Model, err = registration.ParseMotionModel(c.Registration.Model); err != nil {
		return req, err
	}
	if req.Preprocess, err = registration.ParsePreprocess(c.Registration.Preprocess); err != nil {
		return req, err
	}
	req.Gamma = c.Registration.Gamma

	if req.Features.Detector, err = registration.ParseDetectorKind(c.Features.Detector); err != nil {
		return req, err
	}
	if req.Features.Robust, err = registration.ParseRobustMethod(c.Features.Robust); err != nil {
		return req, err
	}
	req.Features.MaxFeatures = c.Features.MaxFeatures
	req.Features.GoodMatchFraction = c.Features.GoodMatchFraction
	req.Features.ReprojThreshold = c.Features.ReprojThreshold
	req.Features.MaxIterations = c.Features.MaxIterations
	req.Features.Confidence = c.Features.Confidence
	req.Features.MinMatchDistance = c.Features.MinMatchDistance

	req.ECC = registration.ECCConfig{
		Iterations:      c.ECC.Iterations,
		Epsilon:         c.ECC.Epsilon,
		GaussFilterSize: c.ECC.GaussFilterSize,
	}
	return req, nil
}
