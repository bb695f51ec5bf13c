package cantons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/beetlebugorg/cantons/internal/metrics"
	"github.com/beetlebugorg/cantons/internal/monitoring"
)

// ExtractOptions controls tile extraction.
type ExtractOptions struct {
	// Parallel clips cells on several goroutines. Tiles are still written
	// in grid order by a single writer, so keys match a sequential run.
	Parallel bool

	// Workers is the number of clipping goroutines.
	// If 0, defaults to runtime.NumCPU(). Only used when Parallel is true.
	Workers int

	// CellTimeout bounds the clip of a single cell. Zero means no limit.
	// A cell exceeding it fails the run with context.DeadlineExceeded.
	CellTimeout time.Duration

	// Progress is called after each cell with (done, total).
	Progress func(done, total int)

	// Logger receives per-tile debug records and a summary.
	// Nil uses the process default logger.
	Logger *slog.Logger
}

// DefaultExtractOptions returns sequential extraction without limits.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Parallel: false,
		Workers:  runtime.NumCPU(),
	}
}

// ExtractResult describes what an extraction wrote.
type ExtractResult struct {
	Tiles      []TileSummary `json:"tiles"`
	TileCount  int           `json:"tile_count"`
	EmptyCells int           `json:"empty_cells"`
	Cells      int           `json:"cells"`
	GridPath   string        `json:"grid_path"`
}

// Extractor clips a dataset cell by cell and persists the tiles.
type Extractor struct {
	store TileStore
	opts  ExtractOptions
	log   *slog.Logger
}

// NewExtractor returns an extractor writing to store.
func NewExtractor(store TileStore, opts ExtractOptions) *Extractor {
	return &Extractor{
		store: store,
		opts:  opts,
		log:   monitoring.Or(opts.Logger),
	}
}

// Extract clips ds against every cell of grid in grid order. Each non-empty
// result is stamped with the cell's grid index and written as the next tile
// key, starting at 0. Empty cells produce no tile. The grid is written last.
//
// A persistence failure aborts the run; tiles already written stay in place.
func (e *Extractor) Extract(ctx context.Context, ds *Dataset, grid *Grid) (*ExtractResult, error) {
	if ds == nil || grid == nil {
		return nil, &ConfigError{Field: "extract", Reason: "dataset and grid are required"}
	}

	res := &ExtractResult{Cells: len(grid.Cells)}

	var err error
	if e.opts.Parallel && len(grid.Cells) > 1 {
		err = e.extractParallel(ctx, ds, grid, res)
	} else {
		err = e.extractSerial(ctx, ds, grid, res)
	}
	if err != nil {
		return res, err
	}

	path, err := e.store.PutGrid(ctx, grid)
	if err != nil {
		return res, persistErr("write grid", GridName, err)
	}
	res.GridPath = path

	e.log.Info("extraction complete",
		"cells", res.Cells,
		"tiles", res.TileCount,
		"empty_cells", res.EmptyCells,
		"grid", res.GridPath)
	return res, nil
}

func (e *Extractor) extractSerial(ctx context.Context, ds *Dataset, grid *Grid, res *ExtractResult) error {
	for i, cell := range grid.Cells {
		features, err := e.clipCell(ctx, ds, cell)
		if err != nil {
			return err
		}
		if err := e.persist(ctx, cell, features, res); err != nil {
			return err
		}
		if e.opts.Progress != nil {
			e.opts.Progress(i+1, len(grid.Cells))
		}
	}
	return nil
}

// extractParallel runs a worker pool over cell positions. Results are
// buffered until every earlier cell has been written.
func (e *Extractor) extractParallel(ctx context.Context, ds *Dataset, grid *Grid, res *ExtractResult) error {
	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(grid.Cells) {
		workers = len(grid.Cells)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type clipResult struct {
		pos      int
		features []Feature
		err      error
	}

	jobs := make(chan int)
	results := make(chan clipResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				features, err := e.clipCell(ctx, ds, grid.Cells[pos])
				select {
				case results <- clipResult{pos: pos, features: features, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for pos := range grid.Cells {
			select {
			case jobs <- pos:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]clipResult)
	next := 0
	for r := range results {
		pending[r.pos] = r
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if cur.err != nil {
				return cur.err
			}
			cell := grid.Cells[next]
			if err := e.persist(ctx, cell, cur.features, res); err != nil {
				return err
			}
			next++
			if e.opts.Progress != nil {
				e.opts.Progress(next, len(grid.Cells))
			}
		}
	}

	if next < len(grid.Cells) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("extraction stopped after %d of %d cells", next, len(grid.Cells))
	}
	return nil
}

// clipCell clips the candidates of cell under the optional cell deadline.
func (e *Extractor) clipCell(ctx context.Context, ds *Dataset, cell GridCell) ([]Feature, error) {
	if e.opts.CellTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.CellTimeout)
		defer cancel()
	}

	start := time.Now()
	features, err := ClipContext(ctx, ds.Candidates(cell.Bound), cell)
	metrics.ClipDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	metrics.CellsProcessed.Inc()
	if err != nil {
		return nil, fmt.Errorf("clip cell %d: %w", cell.Index, err)
	}
	return features, nil
}

// persist writes a non-empty cell result as the next tile.
func (e *Extractor) persist(ctx context.Context, cell GridCell, features []Feature, res *ExtractResult) error {
	if len(features) == 0 {
		res.EmptyCells++
		metrics.EmptyCells.Inc()
		return nil
	}

	stampGridIndex(features, cell.Index)
	tile := &Tile{
		Key:       res.TileCount,
		GridIndex: cell.Index,
		Cell:      cell,
		Features:  features,
	}

	path, err := e.store.PutTile(ctx, tile)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return persistErr("write tile", TileName(tile.Key), err)
	}

	summary := Summarize(tile, path)
	res.Tiles = append(res.Tiles, summary)
	res.TileCount++
	metrics.TilesWritten.Inc()
	metrics.FeaturesClipped.Add(float64(len(features)))

	e.log.Debug("tile written",
		"key", tile.Key,
		"grid_index", cell.Index,
		"features", len(features),
		"area", summary.Area,
		"path", path)
	return nil
}
