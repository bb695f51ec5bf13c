package cantons

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GridCell is one square cell of a Grid.
type GridCell struct {
	// Index is the cell's position in Grid.Cells, col*rows+row. It is the
	// grid_index stamped on parcels and written to the grid artifact.
	Index int
	Col   int
	Row   int
	Bound orb.Bound
}

// Polygon returns the cell rectangle as a closed counter-clockwise ring.
func (c GridCell) Polygon() orb.Polygon {
	return c.Bound.ToPolygon()
}

// Size returns the cell side length.
func (c GridCell) Size() float64 {
	return c.Bound.Max[0] - c.Bound.Min[0]
}

// Grid is a column-major set of equal, non-overlapping square cells
// anchored at the lower left corner of an extent.
type Grid struct {
	Cells    []GridCell
	Cols     int
	Rows     int
	CellSize float64
	Origin   orb.Point
	CRS      CRS
}

// BuildGrid covers extent with full cells of side cellSize. The number of
// columns is floor(width/cellSize), likewise for rows, so a remainder strip
// along the right and top edges is left uncovered. Cells are enumerated
// column by column, bottom to top.
func BuildGrid(extent orb.Bound, cellSize float64, crs CRS) (*Grid, error) {
	if err := validateCellSize(cellSize); err != nil {
		return nil, err
	}

	g := &Grid{
		CellSize: cellSize,
		Origin:   extent.Min,
		CRS:      crs,
	}

	width := extent.Max[0] - extent.Min[0]
	height := extent.Max[1] - extent.Min[1]
	if !(width > 0) || !(height > 0) {
		return g, nil
	}

	g.Cols = int(math.Floor(width / cellSize))
	g.Rows = int(math.Floor(height / cellSize))
	if g.Cols == 0 || g.Rows == 0 {
		g.Cols, g.Rows = 0, 0
		return g, nil
	}

	g.Cells = make([]GridCell, 0, g.Cols*g.Rows)
	for col := 0; col < g.Cols; col++ {
		for row := 0; row < g.Rows; row++ {
			minX := extent.Min[0] + float64(col)*cellSize
			minY := extent.Min[1] + float64(row)*cellSize
			g.Cells = append(g.Cells, GridCell{
				Index: col*g.Rows + row,
				Col:   col,
				Row:   row,
				Bound: orb.Bound{
					Min: orb.Point{minX, minY},
					Max: orb.Point{minX + cellSize, minY + cellSize},
				},
			})
		}
	}

	return g, nil
}

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.Cells) }

// Cell returns the cell with the given index.
func (g *Grid) Cell(index int) (GridCell, bool) {
	if index < 0 || index >= len(g.Cells) {
		return GridCell{}, false
	}
	return g.Cells[index], true
}

// Bound returns the area covered by the cells.
func (g *Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: g.Origin,
		Max: orb.Point{
			g.Origin[0] + float64(g.Cols)*g.CellSize,
			g.Origin[1] + float64(g.Rows)*g.CellSize,
		},
	}
}

func validateCellSize(cellSize float64) error {
	if math.IsNaN(cellSize) || math.IsInf(cellSize, 0) || cellSize <= 0 {
		return &ConfigError{Field: "cell_size", Reason: fmt.Sprintf("must be a positive finite number, got %v", cellSize)}
	}
	return nil
}
