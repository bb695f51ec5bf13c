package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

func main() {
	// Shapefiles carry only the attribute columns you ask for
	opts := cantons.DefaultOptions()
	opts.Load.Attributes = []string{"egrid", "nummer"}

	// Load the parcels and create parcels/ and grid/ next to the input
	c, err := cantons.Open("aargau.shp", opts)
	if err != nil {
		log.Fatal(err)
	}

	// Grid, extraction and significance filter in one call
	report, err := c.Run(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Parcels: %d (%s)\n", report.Features, report.CRS)
	fmt.Printf("Grid: %d x %d cells of %g\n", report.Cols, report.Rows, report.CellSize)
	fmt.Printf("Tiles: %d, kept %d, removed %d\n", report.Tiles, report.Kept, report.Removed)
}
