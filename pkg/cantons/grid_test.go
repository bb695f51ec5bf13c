package cantons

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func bound(minX, minY, maxX, maxY float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

// TestBuildGridExample checks the 3000x3000 extent with 1500 cells
func TestBuildGridExample(t *testing.T) {
	g, err := BuildGrid(bound(0, 0, 3000, 3000), 1500, testCRS)
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}

	if g.Len() != 4 {
		t.Fatalf("Expected 4 cells, got %d", g.Len())
	}
	if g.Cols != 2 || g.Rows != 2 {
		t.Errorf("Expected 2x2 grid, got %dx%d", g.Cols, g.Rows)
	}

	want := []orb.Bound{
		bound(0, 0, 1500, 1500),
		bound(0, 1500, 1500, 3000),
		bound(1500, 0, 3000, 1500),
		bound(1500, 1500, 3000, 3000),
	}
	for i, c := range g.Cells {
		if c.Index != i {
			t.Errorf("Cell %d: expected index %d, got %d", i, i, c.Index)
		}
		if !c.Bound.Equal(want[i]) {
			t.Errorf("Cell %d: expected %v, got %v", i, want[i], c.Bound)
		}
		if c.Index != c.Col*g.Rows+c.Row {
			t.Errorf("Cell %d: index does not match col*rows+row", i)
		}
	}
	if g.CRS != testCRS {
		t.Errorf("Expected CRS to be propagated, got %+v", g.CRS)
	}
}

// TestBuildGridCoverage checks that cells are full size, disjoint and
// cover floor(w/cs) x floor(h/cs) of the extent
func TestBuildGridCoverage(t *testing.T) {
	extent := bound(2600000.5, 1200000.25, 2610100, 1206100)
	cs := 1500.0
	g, err := BuildGrid(extent, cs, testCRS)
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}

	wantCols := int(math.Floor((extent.Max[0] - extent.Min[0]) / cs))
	wantRows := int(math.Floor((extent.Max[1] - extent.Min[1]) / cs))
	if g.Cols != wantCols || g.Rows != wantRows {
		t.Fatalf("Expected %dx%d, got %dx%d", wantCols, wantRows, g.Cols, g.Rows)
	}
	if g.Len() != wantCols*wantRows {
		t.Fatalf("Expected %d cells, got %d", wantCols*wantRows, g.Len())
	}

	var total float64
	for i, c := range g.Cells {
		w := c.Bound.Max[0] - c.Bound.Min[0]
		h := c.Bound.Max[1] - c.Bound.Min[1]
		if math.Abs(w-cs) > 1e-6 || math.Abs(h-cs) > 1e-6 {
			t.Errorf("Cell %d is %vx%v, want %vx%v", i, w, h, cs, cs)
		}
		if !within(c.Bound, extent) {
			t.Errorf("Cell %d %v leaves the extent", i, c.Bound)
		}
		total += w * h
	}

	// disjoint full cells add up to the covered area
	covered := float64(wantCols) * cs * float64(wantRows) * cs
	if math.Abs(total-covered) > 1e-3 {
		t.Errorf("Expected covered area %v, got %v", covered, total)
	}
	if gb := g.Bound(); math.Abs(gb.Max[0]-extent.Min[0]-float64(wantCols)*cs) > 1e-6 {
		t.Errorf("Unexpected grid bound %v", gb)
	}
}

func TestBuildGridEdges(t *testing.T) {
	tests := []struct {
		name   string
		extent orb.Bound
		cs     float64
		cells  int
	}{
		{"remainder dropped", bound(0, 0, 3100, 1600), 1500, 2},
		{"cell larger than extent", bound(0, 0, 1000, 1000), 1500, 0},
		{"too narrow", bound(0, 0, 1000, 5000), 1500, 0},
		{"empty extent", orb.Bound{}, 1500, 0},
		{"exact fit", bound(-1500, -1500, 1500, 1500), 1500, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildGrid(tt.extent, tt.cs, testCRS)
			if err != nil {
				t.Fatalf("BuildGrid failed: %v", err)
			}
			if g.Len() != tt.cells {
				t.Errorf("Expected %d cells, got %d", tt.cells, g.Len())
			}
		})
	}
}

func TestBuildGridInvalidCellSize(t *testing.T) {
	for _, cs := range []float64{0, -1500, math.NaN(), math.Inf(1)} {
		_, err := BuildGrid(bound(0, 0, 3000, 3000), cs, testCRS)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("cell size %v: expected ErrInvalidConfiguration, got %v", cs, err)
		}
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "cell_size" {
			t.Errorf("cell size %v: expected ConfigError on cell_size, got %v", cs, err)
		}
	}
}

func TestGridCellPolygon(t *testing.T) {
	c := GridCell{Bound: bound(0, 0, 1500, 1500)}
	p := c.Polygon()
	if len(p) != 1 || len(p[0]) != 5 {
		t.Fatalf("Expected one closed 5-point ring, got %v", p)
	}
	if !p[0].Closed() {
		t.Error("Cell ring should be closed")
	}
	if c.Size() != 1500 {
		t.Errorf("Expected size 1500, got %v", c.Size())
	}
}

func TestGridCellLookup(t *testing.T) {
	g, _ := BuildGrid(bound(0, 0, 3000, 3000), 1500, testCRS)
	if c, ok := g.Cell(3); !ok || c.Col != 1 || c.Row != 1 {
		t.Errorf("Expected cell 3 at col 1 row 1, got %+v", c)
	}
	if _, ok := g.Cell(4); ok {
		t.Error("Cell 4 should not exist")
	}
}
