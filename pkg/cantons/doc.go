// Package cantons partitions a cantonal parcel dataset into square tiles.
//
// A run has three stages:
//
//  1. BuildGrid lays a regular grid of full-size cells over the dataset
//     extent. Partial cells at the top and right edges are dropped.
//  2. Extractor.Extract clips the parcels of every cell to the cell
//     rectangle and persists one tile per non-empty cell, plus the grid.
//  3. Filter deletes tiles that cover too little of their cell or do not
//     span it.
//
// Quick start:
//
//	c, err := cantons.Open("/data/aargau.gpkg", cantons.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := c.Run(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("kept %d of %d tiles\n", report.Kept, report.Tiles)
//
// Tiles are written as parcels/parcel_{key}.gpkg next to the input file and
// the grid as grid/grid.gpkg. Keys count non-empty cells in grid order
// starting at 0; every parcel carries the grid_index of its cell.
//
// Coordinates are used as given. The source CRS is carried to every output
// and never transformed, so cell sizes are in source units (metres for
// CH1903+/LV95).
package cantons
