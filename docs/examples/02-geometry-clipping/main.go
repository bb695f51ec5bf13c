package main

import (
	"fmt"
	"log"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

func square(minX, minY, size float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{minX + size, minY + size}}.ToPolygon()
}

func main() {
	parcels := []cantons.Feature{
		{ID: 1, Geometry: square(1000, 1000, 1000), Attributes: map[string]interface{}{"egrid": "CH100"}},
		{ID: 2, Geometry: square(200, 200, 300), Attributes: map[string]interface{}{"egrid": "CH200"}},
		// Touches the first cell only along its right edge
		{ID: 3, Geometry: square(1500, 2000, 200), Attributes: map[string]interface{}{"egrid": "CH300"}},
	}

	crs, err := cantons.ParseCRS("EPSG:2056")
	if err != nil {
		log.Fatal(err)
	}
	ds, err := cantons.NewDataset(parcels, crs)
	if err != nil {
		log.Fatal(err)
	}

	grid, err := cantons.BuildGrid(orb.Bound{Max: orb.Point{3000, 3000}}, 1500, crs)
	if err != nil {
		log.Fatal(err)
	}

	for _, cell := range grid.Cells {
		// The R-tree narrows the parcels to those whose box meets the cell
		clipped := cantons.Clip(ds.Candidates(cell.Bound), cell)

		fmt.Printf("Cell %d (col %d, row %d): %d parcels\n", cell.Index, cell.Col, cell.Row, len(clipped))
		for _, f := range clipped {
			b := f.Geometry.Bound()
			fmt.Printf("  %v: [%.0f,%.0f] to [%.0f,%.0f]\n",
				f.Attributes["egrid"], b.Min[0], b.Min[1], b.Max[0], b.Max[1])
		}
	}
}
