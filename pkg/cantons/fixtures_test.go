package cantons

import (
	"testing"

	"github.com/paulmach/orb"
)

var testCRS = CRS{Name: "CH1903+ / LV95", Organization: "EPSG", Code: 2056}

func rect(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}.ToPolygon()
}

func feature(id int64, g orb.Geometry) Feature {
	return Feature{ID: id, Geometry: g, Attributes: map[string]interface{}{"egrid": "CH" + string(rune('A'+id-1))}}
}

// testParcels covers a 4500x3000 extent, three columns and two rows of
// 1500 cells:
//
//	cell 0 (col 0,row 0): A clipped to the full cell        -> key 0, kept
//	cell 1 (col 0,row 1): only boundary touches, empty      -> no tile
//	cell 2 (col 1,row 0): A clipped to the full cell        -> key 1, kept
//	cell 3 (col 1,row 1): B and C, spans but area 10001     -> key 2, area
//	cell 4 (col 2,row 0): D, 100x100                        -> key 3, area|width|height
//	cell 5 (col 2,row 1): E, 500x500, area 250000           -> key 4, width|height
func testParcels() []Feature {
	return []Feature{
		feature(1, rect(0, 0, 3000, 1500)),       // A
		feature(2, rect(1500, 1500, 1600, 1600)), // B
		feature(3, rect(2999, 2999, 3000, 3000)), // C
		feature(4, rect(4400, 100, 4500, 200)),   // D
		feature(5, rect(3100, 1600, 3600, 2100)), // E
	}
}

func testDataset(t testing.TB) *Dataset {
	t.Helper()
	ds, err := NewDataset(testParcels(), testCRS)
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	return ds
}

func testGrid(t testing.TB, ds *Dataset) *Grid {
	t.Helper()
	g, err := BuildGrid(ds.Extent(), 1500, ds.CRS())
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}
	return g
}

func within(inner, outer orb.Bound) bool {
	return inner.Min[0] >= outer.Min[0] && inner.Max[0] <= outer.Max[0] &&
		inner.Min[1] >= outer.Min[1] && inner.Max[1] <= outer.Max[1]
}
