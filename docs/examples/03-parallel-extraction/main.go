package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

// Clip cells on every CPU; tiles are still written in grid order
func extractParallel(ctx context.Context, c *cantons.Canton, grid *cantons.Grid) (*cantons.ExtractResult, error) {
	opts := cantons.DefaultExtractOptions()
	opts.Parallel = true
	opts.CellTimeout = 30 * time.Second
	opts.Progress = func(done, total int) {
		if done%100 == 0 || done == total {
			fmt.Printf("  %d/%d cells\n", done, total)
		}
	}
	return cantons.NewExtractor(c.Store(), opts).Extract(ctx, c.Dataset(), grid)
}

func main() {
	ctx := context.Background()

	opts := cantons.DefaultOptions()
	opts.OutputDir = "out/zurich"
	c, err := cantons.Open("zurich.gpkg", opts)
	if err != nil {
		log.Fatal(err)
	}

	grid, err := c.CreateGrid()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("=== Extracting in parallel ===")
	start := time.Now()
	res, err := extractParallel(ctx, c, grid)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Tiles: %d in %v\n", res.TileCount, time.Since(start).Round(time.Millisecond))

	// Reuse the summaries computed during extraction instead of re-reading tiles
	fmt.Println("\n=== Filtering ===")
	filtered, err := c.RemoveInsignificant(ctx, res.Tiles)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Kept: %d, removed: %d\n", filtered.Kept, filtered.Removed)
}
