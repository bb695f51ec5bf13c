// Package config loads tiling run settings from a JSON file and CANTONS_*
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

const (
	DefaultCellSize  = 1500.0
	DefaultThreshold = 0.1

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// Config holds the settings of one tiling run. Zero values mean "not set"
// only where noted; use Default for a populated value.
type Config struct {
	DataPath   string   `json:"data_path"`
	Layer      string   `json:"layer,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	CRS        string   `json:"crs,omitempty"` // e.g. EPSG:2056, overrides the source CRS

	CellSize        float64 `json:"cell_size"`
	Threshold       float64 `json:"threshold"`
	SpanPolicy      string  `json:"span_policy"` // exact, tolerance or coverage
	SpanTolerance   float64 `json:"span_tolerance,omitempty"`
	MinSpanFraction float64 `json:"min_span_fraction,omitempty"`

	Parallel    bool   `json:"parallel"`
	Workers     int    `json:"workers,omitempty"`
	CellTimeout string `json:"cell_timeout,omitempty"` // time.ParseDuration syntax
	Rescan      bool   `json:"rescan"`

	OutputDir string `json:"output_dir,omitempty"` // defaults to the directory of DataPath
	Format    string `json:"format"`               // gpkg or geojson

	Masks         bool    `json:"masks"`
	MaskPixelSize float64 `json:"mask_pixel_size,omitempty"`

	ReportPath  string `json:"report_path,omitempty"`
	MetricsPath string `json:"metrics_path,omitempty"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		CellSize:        DefaultCellSize,
		Threshold:       DefaultThreshold,
		SpanPolicy:      "exact",
		MinSpanFraction: 1,
		Format:          "gpkg",
		MaskPixelSize:   1,
	}
}

// Load reads a JSON config file. Fields omitted from the file keep their
// defaults. The file must have a .json extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CANTONS_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"CANTONS_DATA_PATH":    &c.DataPath,
		"CANTONS_LAYER":        &c.Layer,
		"CANTONS_CRS":          &c.CRS,
		"CANTONS_SPAN_POLICY":  &c.SpanPolicy,
		"CANTONS_CELL_TIMEOUT": &c.CellTimeout,
		"CANTONS_OUTPUT_DIR":   &c.OutputDir,
		"CANTONS_FORMAT":       &c.Format,
		"CANTONS_REPORT_PATH":  &c.ReportPath,
		"CANTONS_METRICS_PATH": &c.MetricsPath,
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_FORMAT":           &c.LogFormat,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"CANTONS_CELL_SIZE":         &c.CellSize,
		"CANTONS_THRESHOLD":         &c.Threshold,
		"CANTONS_SPAN_TOLERANCE":    &c.SpanTolerance,
		"CANTONS_MIN_SPAN_FRACTION": &c.MinSpanFraction,
		"CANTONS_MASK_PIXEL_SIZE":   &c.MaskPixelSize,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return invalid(key, "%v", err)
			}
			*dst = f
		}
	}

	bools := map[string]*bool{
		"CANTONS_PARALLEL": &c.Parallel,
		"CANTONS_RESCAN":   &c.Rescan,
		"CANTONS_MASKS":    &c.Masks,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return invalid(key, "%v", err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv("CANTONS_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return invalid("CANTONS_WORKERS", "%v", err)
		}
		c.Workers = n
	}

	if v, ok := os.LookupEnv("CANTONS_ATTRIBUTES"); ok {
		c.Attributes = nil
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				c.Attributes = append(c.Attributes, a)
			}
		}
	}
	return nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.CellSize <= 0 || math.IsNaN(c.CellSize) || math.IsInf(c.CellSize, 0) {
		return invalid("cell_size", "must be a positive finite number, got %v", c.CellSize)
	}
	if c.Threshold < 0 || c.Threshold > 1 || math.IsNaN(c.Threshold) {
		return invalid("threshold", "must be between 0 and 1, got %v", c.Threshold)
	}
	switch c.SpanPolicy {
	case "", "exact", "tolerance", "coverage":
	default:
		return invalid("span_policy", "must be exact, tolerance or coverage, got %q", c.SpanPolicy)
	}
	if c.SpanTolerance < 0 {
		return invalid("span_tolerance", "must be non-negative, got %v", c.SpanTolerance)
	}
	if c.MinSpanFraction < 0 || c.MinSpanFraction > 1 {
		return invalid("min_span_fraction", "must be between 0 and 1, got %v", c.MinSpanFraction)
	}
	if c.Workers < 0 {
		return invalid("workers", "must be non-negative, got %d", c.Workers)
	}
	if c.CellTimeout != "" {
		if _, err := time.ParseDuration(c.CellTimeout); err != nil {
			return invalid("cell_timeout", "%q: %v", c.CellTimeout, err)
		}
	}
	switch c.Format {
	case "", "gpkg", "geojson":
	default:
		return invalid("format", "must be gpkg or geojson, got %q", c.Format)
	}
	if c.Masks && c.MaskPixelSize <= 0 {
		return invalid("mask_pixel_size", "must be positive, got %v", c.MaskPixelSize)
	}
	return nil
}

// invalid reports an unusable value as a *cantons.ConfigError so callers can
// match it with cantons.ErrInvalidConfiguration.
func invalid(field, format string, args ...interface{}) error {
	return &cantons.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// GetCellTimeout returns CellTimeout as a duration, zero when unset.
func (c *Config) GetCellTimeout() time.Duration {
	if c.CellTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CellTimeout)
	if err != nil {
		return 0
	}
	return d
}

// ResolveOutputDir returns OutputDir, or the directory holding DataPath.
func (c *Config) ResolveOutputDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Dir(c.DataPath)
}
