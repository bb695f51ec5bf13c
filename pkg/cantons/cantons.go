package cantons

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/beetlebugorg/cantons/internal/metrics"
	"github.com/beetlebugorg/cantons/internal/monitoring"
)

// Options configures a Canton.
type Options struct {
	// CellSize is the grid cell side length in CRS units. Default: 1500
	CellSize float64

	// Threshold is the minimum fraction of a cell a tile must cover.
	// Default: 0.1
	Threshold float64

	// Span, SpanTolerance and MinSpanFraction configure the span check of
	// the significance filter. Default: SpanExact
	Span            SpanPolicy
	SpanTolerance   float64
	MinSpanFraction float64

	// Load configures reading the source dataset.
	Load LoadOptions

	// OutputDir holds parcels/, grid/ and masks/.
	// Default: the directory of the input file
	OutputDir string

	// Format selects the tile encoding. Default: FormatGeoPackage
	Format Format

	// Parallel, Workers and CellTimeout configure extraction.
	Parallel    bool
	Workers     int
	CellTimeout time.Duration

	// Rescan makes the filter re-read tiles from disk.
	Rescan bool

	// Masks renders a PNG mask for every kept tile.
	Masks         bool
	MaskPixelSize float64

	// ReportPath, when set, receives the run report as JSON.
	ReportPath string

	// MetricsPath, when set, receives run metrics in Prometheus text format.
	MetricsPath string

	// Progress is called after each extracted cell.
	Progress func(done, total int)

	// Logger defaults to the process logger.
	Logger *slog.Logger
}

// DefaultOptions returns options matching the documented defaults.
func DefaultOptions() Options {
	return Options{
		CellSize:        1500,
		Threshold:       0.1,
		Span:            SpanExact,
		MinSpanFraction: 1,
		Load:            DefaultLoadOptions(),
		Format:          FormatGeoPackage,
		Workers:         runtime.NumCPU(),
		MaskPixelSize:   1,
	}
}

// Validate checks option values that do not depend on the dataset.
func (o Options) Validate() error {
	if err := validateCellSize(o.CellSize); err != nil {
		return err
	}
	if err := o.filterOptions(nil).validate(); err != nil {
		return err
	}
	if o.Workers < 0 {
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be non-negative, got %d", o.Workers)}
	}
	if o.CellTimeout < 0 {
		return &ConfigError{Field: "cell_timeout", Reason: fmt.Sprintf("must be non-negative, got %v", o.CellTimeout)}
	}
	switch o.Format {
	case "", FormatGeoPackage, FormatGeoJSON:
	default:
		return &ConfigError{Field: "format", Reason: fmt.Sprintf("unknown tile format %q", o.Format)}
	}
	if o.Masks && (math.IsNaN(o.MaskPixelSize) || o.MaskPixelSize <= 0) {
		return &ConfigError{Field: "mask_pixel_size", Reason: fmt.Sprintf("must be positive, got %v", o.MaskPixelSize)}
	}
	return nil
}

func (o Options) filterOptions(tiles []TileSummary) FilterOptions {
	return FilterOptions{
		CellSize:        o.CellSize,
		Threshold:       o.Threshold,
		Span:            o.Span,
		Tolerance:       o.SpanTolerance,
		MinSpanFraction: o.MinSpanFraction,
		Tiles:           tiles,
		Rescan:          o.Rescan,
		Workers:         o.Workers,
		Logger:          o.Logger,
	}
}

func (o Options) extractOptions() ExtractOptions {
	return ExtractOptions{
		Parallel:    o.Parallel,
		Workers:     o.Workers,
		CellTimeout: o.CellTimeout,
		Progress:    o.Progress,
		Logger:      o.Logger,
	}
}

// Canton ties a loaded dataset to its output store.
type Canton struct {
	opts   Options
	ds     *Dataset
	store  TileStore
	outDir string
	log    *slog.Logger
}

// Open validates opts, loads the dataset at path and creates the output
// directories.
func Open(path string, opts Options) (*Canton, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ds, err := LoadDataset(path, opts.Load)
	if err != nil {
		return nil, err
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	return New(ds, outDir, opts)
}

// New wraps an already loaded dataset. Tiles are written under outDir.
func New(ds *Dataset, outDir string, opts Options) (*Canton, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	store, err := NewStore(outDir, opts.Format, ds.CRS())
	if err != nil {
		return nil, err
	}
	return NewWithStore(ds, store, outDir, opts), nil
}

// NewWithStore uses store for tiles and the grid; masks and the report
// still go under outDir.
func NewWithStore(ds *Dataset, store TileStore, outDir string, opts Options) *Canton {
	log := monitoring.Or(opts.Logger)
	log.Info("canton opened",
		"path", ds.Path(),
		"features", ds.Len(),
		"crs", ds.CRS().String(),
		"output", outDir)
	return &Canton{opts: opts, ds: ds, store: store, outDir: outDir, log: log}
}

// Dataset returns the loaded parcels.
func (c *Canton) Dataset() *Dataset { return c.ds }

// Store returns the tile store.
func (c *Canton) Store() TileStore { return c.store }

// OutputDir returns the directory holding the outputs.
func (c *Canton) OutputDir() string { return c.outDir }

// CreateGrid builds the grid over the dataset extent.
func (c *Canton) CreateGrid() (*Grid, error) {
	g, err := BuildGrid(c.ds.Extent(), c.opts.CellSize, c.ds.CRS())
	if err != nil {
		return nil, err
	}
	c.log.Info("grid created", "cells", g.Len(), "cols", g.Cols, "rows", g.Rows, "cell_size", g.CellSize)
	return g, nil
}

// ExtractTiles clips the dataset into tiles and writes them with the grid.
func (c *Canton) ExtractTiles(ctx context.Context, g *Grid) (*ExtractResult, error) {
	return NewExtractor(c.store, c.opts.extractOptions()).Extract(ctx, c.ds, g)
}

// RemoveInsignificant runs the significance filter. tiles are the
// summaries from ExtractTiles; nil rescans the store.
func (c *Canton) RemoveInsignificant(ctx context.Context, tiles []TileSummary) (*FilterResult, error) {
	return Filter(ctx, c.store, c.opts.filterOptions(tiles))
}

// Report summarises a complete run.
type Report struct {
	RunID      string        `json:"run_id"`
	Input      string        `json:"input"`
	CRS        string        `json:"crs"`
	Features   int           `json:"features"`
	CellSize   float64       `json:"cell_size"`
	Threshold  float64       `json:"threshold"`
	Span       string        `json:"span_policy"`
	Cells      int           `json:"cells"`
	Cols       int           `json:"cols"`
	Rows       int           `json:"rows"`
	Tiles      int           `json:"tiles"`
	EmptyCells int           `json:"empty_cells"`
	Kept       int           `json:"kept"`
	Removed    int           `json:"removed"`
	GridPath   string        `json:"grid_path"`
	KeptTiles  []TileSummary `json:"kept_tiles"`
	Removals   []Removal     `json:"removals"`
	Masks      []string      `json:"masks,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Run builds the grid, extracts tiles, filters them and, if configured,
// renders masks and writes the report and metrics.
func (c *Canton) Run(ctx context.Context) (*Report, error) {
	r := &Report{
		RunID:     uuid.NewString(),
		Input:     c.ds.Path(),
		CRS:       c.ds.CRS().String(),
		Features:  c.ds.Len(),
		CellSize:  c.opts.CellSize,
		Threshold: c.opts.Threshold,
		Span:      c.opts.Span.String(),
		StartedAt: time.Now().UTC(),
	}
	log := c.log.With("run_id", r.RunID)

	g, err := c.CreateGrid()
	if err != nil {
		return r, err
	}
	r.Cells, r.Cols, r.Rows = g.Len(), g.Cols, g.Rows

	ext, err := c.ExtractTiles(ctx, g)
	if err != nil {
		return r, err
	}
	r.Tiles, r.EmptyCells, r.GridPath = ext.TileCount, ext.EmptyCells, ext.GridPath

	filtered, err := c.RemoveInsignificant(ctx, ext.Tiles)
	if err != nil {
		return r, err
	}
	r.Kept, r.Removed = filtered.Kept, filtered.Removed
	r.KeptTiles, r.Removals = filtered.KeptTiles, filtered.Removals

	if c.opts.Masks {
		masks, err := WriteMasks(ctx, c.store, filtered.KeptTiles, c.outDir, c.opts.MaskPixelSize)
		r.Masks = masks
		if err != nil {
			return r, err
		}
	}
	r.FinishedAt = time.Now().UTC()

	if c.opts.ReportPath != "" {
		if err := WriteReport(c.opts.ReportPath, r); err != nil {
			return r, err
		}
	}
	if c.opts.MetricsPath != "" {
		if err := metrics.WriteTextfile(c.opts.MetricsPath); err != nil {
			return r, &PersistenceError{Op: "write metrics", Path: c.opts.MetricsPath, Err: err}
		}
	}

	log.Info("run complete",
		"tiles", r.Tiles,
		"kept", r.Kept,
		"removed", r.Removed,
		"duration", r.FinishedAt.Sub(r.StartedAt).String())
	return r, nil
}

// WriteReport writes r as indented JSON.
func WriteReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &PersistenceError{Op: "write report", Path: path, Err: err}
	}
	return nil
}
