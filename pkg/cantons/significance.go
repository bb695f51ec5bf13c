package cantons

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/beetlebugorg/cantons/internal/metrics"
	"github.com/beetlebugorg/cantons/internal/monitoring"
)

// SpanPolicy decides whether a tile's bounding box spans its cell.
type SpanPolicy int

const (
	// SpanExact requires width and height to equal the width and height
	// of the tile's cell, or CellSize when the cell is unknown.
	SpanExact SpanPolicy = iota
	// SpanTolerance allows width and height to differ from the cell size
	// by at most FilterOptions.Tolerance.
	SpanTolerance
	// SpanCoverage requires width and height of at least
	// FilterOptions.MinSpanFraction times the cell size.
	SpanCoverage
)

func (p SpanPolicy) String() string {
	switch p {
	case SpanExact:
		return "exact"
	case SpanTolerance:
		return "tolerance"
	case SpanCoverage:
		return "coverage"
	}
	return fmt.Sprintf("SpanPolicy(%d)", int(p))
}

// ParseSpanPolicy parses "exact", "tolerance" or "coverage". The empty
// string is SpanExact.
func ParseSpanPolicy(s string) (SpanPolicy, error) {
	switch strings.ToLower(s) {
	case "", "exact":
		return SpanExact, nil
	case "tolerance":
		return SpanTolerance, nil
	case "coverage":
		return SpanCoverage, nil
	}
	return 0, &ConfigError{Field: "span_policy", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// Reason is the set of checks a removed tile failed.
type Reason uint8

const (
	ReasonArea Reason = 1 << iota
	ReasonWidth
	ReasonHeight
)

// Has reports whether r includes x.
func (r Reason) Has(x Reason) bool { return r&x != 0 }

func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	if r.Has(ReasonArea) {
		parts = append(parts, "area")
	}
	if r.Has(ReasonWidth) {
		parts = append(parts, "width")
	}
	if r.Has(ReasonHeight) {
		parts = append(parts, "height")
	}
	return strings.Join(parts, "|")
}

// MarshalText encodes r as its String form.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// FilterOptions controls the significance filter.
type FilterOptions struct {
	// CellSize is the grid cell side length.
	CellSize float64

	// Threshold is the minimum covered fraction of the cell area.
	// A tile with area exactly CellSize²×Threshold is kept.
	Threshold float64

	// Span selects how the bounding box is compared to the cell.
	// Default: SpanExact
	Span SpanPolicy

	// Tolerance is the allowed span deviation for SpanTolerance.
	Tolerance float64

	// MinSpanFraction is the minimum span fraction for SpanCoverage.
	MinSpanFraction float64

	// Tiles are the summaries carried from extraction. Tiles no longer in
	// the store are ignored. Nil reads every stored tile, as does Rescan.
	Tiles []TileSummary

	// Rescan re-reads every tile from the store instead of trusting Tiles.
	Rescan bool

	// Workers bounds concurrent tile reads during a rescan.
	// If 0, defaults to runtime.NumCPU().
	Workers int

	// Logger receives per-removal debug records and a summary.
	Logger *slog.Logger
}

// DefaultFilterOptions returns the defaults: 1500 unit cells, 10% coverage,
// exact span.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		CellSize:        1500,
		Threshold:       0.1,
		Span:            SpanExact,
		MinSpanFraction: 1,
		Workers:         runtime.NumCPU(),
	}
}

// MinArea returns CellSize² × Threshold.
func (o FilterOptions) MinArea() float64 {
	return o.CellSize * o.CellSize * o.Threshold
}

func (o FilterOptions) validate() error {
	if err := validateCellSize(o.CellSize); err != nil {
		return err
	}
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return &ConfigError{Field: "threshold", Reason: fmt.Sprintf("must be between 0 and 1, got %v", o.Threshold)}
	}
	switch o.Span {
	case SpanExact:
	case SpanTolerance:
		if math.IsNaN(o.Tolerance) || o.Tolerance < 0 {
			return &ConfigError{Field: "span_tolerance", Reason: fmt.Sprintf("must be non-negative, got %v", o.Tolerance)}
		}
	case SpanCoverage:
		if math.IsNaN(o.MinSpanFraction) || o.MinSpanFraction <= 0 || o.MinSpanFraction > 1 {
			return &ConfigError{Field: "min_span_fraction", Reason: fmt.Sprintf("must be in (0, 1], got %v", o.MinSpanFraction)}
		}
	default:
		return &ConfigError{Field: "span_policy", Reason: fmt.Sprintf("unknown policy %d", int(o.Span))}
	}
	return nil
}

// Removal records a deleted tile and why.
type Removal struct {
	Key       int     `json:"key"`
	GridIndex int     `json:"grid_index"`
	Reason    Reason  `json:"reason"`
	Area      float64 `json:"area"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// FilterResult lists the outcome of a filter pass in key order.
type FilterResult struct {
	Kept      int           `json:"kept"`
	Removed   int           `json:"removed"`
	KeptTiles []TileSummary `json:"kept_tiles"`
	Removals  []Removal     `json:"removals"`
}

// Judge returns the checks s fails under opts; zero means the tile is kept.
// The expected span is the tile's cell when known, else CellSize.
func Judge(s TileSummary, opts FilterOptions) Reason {
	var r Reason
	if s.Area < opts.MinArea() {
		r |= ReasonArea
	}

	wantW, wantH := opts.CellSize, opts.CellSize
	if w, h := s.Cell.Max[0]-s.Cell.Min[0], s.Cell.Max[1]-s.Cell.Min[1]; w > 0 && h > 0 {
		wantW, wantH = w, h
	}

	if !spans(s.Width(), wantW, opts) {
		r |= ReasonWidth
	}
	if !spans(s.Height(), wantH, opts) {
		r |= ReasonHeight
	}
	return r
}

func spans(got, want float64, opts FilterOptions) bool {
	switch opts.Span {
	case SpanTolerance:
		return math.Abs(got-want) <= opts.Tolerance
	case SpanCoverage:
		return got >= opts.MinSpanFraction*want
	}
	return got == want
}

// Filter deletes every stored tile that covers less than the minimum area
// or does not span its cell. Deletion happens as each tile is judged. A
// second pass over the same store keeps the same tiles and removes nothing.
func Filter(ctx context.Context, store TileStore, opts FilterOptions) (*FilterResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := monitoring.Or(opts.Logger)

	summaries, err := filterInput(ctx, store, opts, log)
	if err != nil {
		return nil, err
	}

	res := &FilterResult{}
	for _, s := range summaries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		reason := Judge(s, opts)
		if reason == 0 {
			res.Kept++
			res.KeptTiles = append(res.KeptTiles, s)
			metrics.TilesKept.Inc()
			continue
		}

		if err := store.RemoveTile(ctx, s.Key); err != nil {
			return res, persistErr("remove tile", TileName(s.Key), err)
		}
		res.Removed++
		res.Removals = append(res.Removals, Removal{
			Key:       s.Key,
			GridIndex: s.GridIndex,
			Reason:    reason,
			Area:      s.Area,
			Width:     s.Width(),
			Height:    s.Height(),
		})
		metrics.TilesRemoved.WithLabelValues(reason.String()).Inc()
		log.Debug("tile removed",
			"key", s.Key,
			"grid_index", s.GridIndex,
			"reason", reason.String(),
			"area", s.Area)
	}

	log.Info("significance filter complete",
		"kept", res.Kept,
		"removed", res.Removed,
		"min_area", opts.MinArea(),
		"span", opts.Span.String())
	return res, nil
}

// filterInput returns the summaries to judge, in key order.
func filterInput(ctx context.Context, store TileStore, opts FilterOptions, log *slog.Logger) ([]TileSummary, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, persistErr("list tiles", "", err)
	}

	if opts.Tiles != nil && !opts.Rescan {
		present := make(map[int]bool, len(keys))
		for _, k := range keys {
			present[k] = true
		}
		var out []TileSummary
		for _, s := range opts.Tiles {
			if present[s.Key] {
				out = append(out, s)
			}
		}
		return out, nil
	}

	return rescan(ctx, store, keys, opts, log)
}

// Summaries reads every stored tile and summarizes it in key order. Cell
// bounds come from the stored grid when it is available.
func Summaries(ctx context.Context, store TileStore, workers int, log *slog.Logger) ([]TileSummary, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, persistErr("list tiles", "", err)
	}
	return rescan(ctx, store, keys, FilterOptions{Workers: workers}, monitoring.Or(log))
}

// rescan reads every tile in keys and summarizes it.
func rescan(ctx context.Context, store TileStore, keys []int, opts FilterOptions, log *slog.Logger) ([]TileSummary, error) {
	cells := make(map[int]GridCell)
	if grid, err := store.LoadGrid(ctx); err == nil {
		for _, c := range grid {
			cells[c.Index] = c
		}
	} else {
		log.Warn("grid unavailable, judging span against cell size", "error", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	summaries := make([]TileSummary, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			t, err := store.LoadTile(gctx, key)
			if err != nil {
				return err
			}
			if c, ok := cells[t.GridIndex]; ok {
				t.Cell = c
			}
			summaries[i] = Summarize(t, "")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}
