package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

func safeRun(path string, opts cantons.Options) (*cantons.Report, error) {
	c, err := cantons.Open(path, opts)
	if err != nil {
		var cfgErr *cantons.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("bad option %s: %s", cfgErr.Field, cfgErr.Reason)
		}

		// Missing file, unreadable file or no CRS
		if errors.Is(err, cantons.ErrDatasetLoad) {
			return nil, fmt.Errorf("cannot load %s: %w", path, err)
		}
		return nil, err
	}

	report, err := c.Run(context.Background())
	if err != nil {
		var pe *cantons.PersistenceError
		if errors.As(err, &pe) {
			// Tiles written before the failure stay on disk
			log.Printf("Failed to %s %s", pe.Op, pe.Path)
		}
		return report, err
	}

	if report.Kept == 0 {
		log.Printf("Warning: %s produced no significant tiles", path)
	}
	return report, nil
}

func main() {
	report, err := safeRun("aargau.shp", cantons.DefaultOptions())
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	fmt.Printf("Kept %d tiles\n", report.Kept)

	// A zero cell size is rejected before anything is read
	opts := cantons.DefaultOptions()
	opts.CellSize = 0
	if _, err := safeRun("aargau.shp", opts); err != nil {
		log.Printf("Expected error: %v", err)
	}

	// Input without a CRS and no override
	if _, err := safeRun("nocrs.geojson", cantons.DefaultOptions()); err != nil {
		log.Printf("Expected error: %v", err)
	}
}
