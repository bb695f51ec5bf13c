package cantons

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var unitCell = GridCell{Index: 7, Bound: bound(0, 0, 1500, 1500)}

func TestClipContainment(t *testing.T) {
	features := []Feature{
		feature(1, rect(-500, -500, 700, 700)),     // crosses the lower left corner
		feature(2, rect(1000, 200, 2000, 400)),     // crosses the right edge
		feature(3, rect(100, 100, 200, 200)),       // inside
		feature(4, rect(-1000, -1000, 3000, 3000)), // covers the cell
	}

	got := Clip(features, unitCell)
	if len(got) != 4 {
		t.Fatalf("Expected 4 clipped features, got %d", len(got))
	}

	wantAreas := []float64{700 * 700, 500 * 200, 100 * 100, 1500 * 1500}
	for i, f := range got {
		if !within(f.Geometry.Bound(), unitCell.Bound) {
			t.Errorf("Feature %d bound %v leaves the cell", i, f.Geometry.Bound())
		}
		if a := geometryArea(f.Geometry); math.Abs(a-wantAreas[i]) > 1e-6 {
			t.Errorf("Feature %d: expected area %v, got %v", i, wantAreas[i], a)
		}
	}
}

func TestClipDropsEmpty(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"outside", rect(2000, 2000, 2100, 2100)},
		{"touches right edge", rect(1500, 100, 1600, 200)},
		{"touches top edge", rect(100, 1500, 200, 1600)},
		{"touches corner", rect(1500, 1500, 1600, 1600)},
		{"bound overlaps but shape misses", orb.Polygon{orb.Ring{
			{1400, 1700}, {1700, 1400}, {1700, 1700}, {1400, 1700},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clip([]Feature{feature(1, tt.geom)}, unitCell)
			if len(got) != 0 {
				t.Errorf("Expected no features, got %v", got[0].Geometry)
			}
		})
	}
}

func TestClipCopiesFeatures(t *testing.T) {
	src := feature(1, rect(-100, -100, 100, 100))
	src.Attributes["grid_index"] = 99

	got := Clip([]Feature{src}, unitCell)
	if len(got) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(got))
	}

	got[0].Attributes["grid_index"] = 1
	if src.Attributes["grid_index"] != 99 {
		t.Error("Clip must not share attribute maps with the source")
	}
	if !src.Geometry.Bound().Equal(bound(-100, -100, 100, 100)) {
		t.Error("Clip must not modify the source geometry")
	}
	if got[0].ID != src.ID || got[0].Attributes["egrid"] != src.Attributes["egrid"] {
		t.Error("Clip should carry id and attributes")
	}
}

func TestClipMultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{rect(100, 100, 200, 200), rect(5000, 5000, 5100, 5100)}
	got := Clip([]Feature{feature(1, mp)}, unitCell)
	if len(got) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(got))
	}
	if a := geometryArea(got[0].Geometry); a != 100*100 {
		t.Errorf("Expected area 10000, got %v", a)
	}
}

func TestClipContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ClipContext(ctx, []Feature{feature(1, rect(0, 0, 10, 10))}, unitCell)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestGeometryArea(t *testing.T) {
	withHole := orb.Polygon{
		rect(0, 0, 10, 10)[0],
		orb.Ring{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}
	if a := geometryArea(withHole); a != 96 {
		t.Errorf("Expected 96, got %v", a)
	}

	reversed := orb.Polygon{orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}}
	if a := geometryArea(reversed); a != 100 {
		t.Errorf("Clockwise ring: expected 100, got %v", a)
	}
}

func TestClipConcaveParcel(t *testing.T) {
	cell := GridCell{Index: 0, Bound: bound(0, 0, 10, 10)}

	// A frame around the cell, open to the left between y=3 and y=7. Only
	// its two left arms fall inside the cell and they are joined outside it.
	frame := orb.Polygon{orb.Ring{
		{-1, -2}, {12, -2}, {12, 12}, {-1, 12}, {-1, 7}, {2, 7}, {2, 11},
		{11, 11}, {11, -1}, {2, -1}, {2, 3}, {-1, 3}, {-1, -2},
	}}

	before := orb.Clone(frame)
	got := Clip([]Feature{feature(1, frame)}, cell)
	if len(got) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(got))
	}
	if !orb.Equal(before, frame) {
		t.Error("Clip must not modify the source rings")
	}

	mp, ok := got[0].Geometry.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("Expected a MultiPolygon, got %T", got[0].Geometry)
	}
	if len(mp) != 2 {
		t.Errorf("Expected 2 parts, got %d", len(mp))
	}
	if a := geometryArea(mp); math.Abs(a-12) > 1e-9 {
		t.Errorf("Expected area 12, got %v", a)
	}
	if b := mp.Bound(); !b.Equal(bound(0, 0, 2, 10)) {
		t.Errorf("Expected bound [0 0 2 10], got %v", b)
	}
	for i, p := range mp {
		if p[0].Orientation() != orb.CCW {
			t.Errorf("Part %d: expected counter-clockwise outer ring", i)
		}
	}

	tile := &Tile{Cell: cell, Features: got}
	s := Summarize(tile, "")
	if r := Judge(s, FilterOptions{CellSize: 10, Threshold: 0.1}); r != ReasonWidth {
		t.Errorf("Expected %v, got %v", ReasonWidth, r)
	}
}

func TestClipPolygonWithHole(t *testing.T) {
	cell := GridCell{Bound: bound(0, 0, 10, 10)}
	p := orb.Polygon{
		rect(-5, -5, 5, 5)[0],
		orb.Ring{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}},
	}

	got := Clip([]Feature{feature(1, p)}, cell)
	if len(got) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(got))
	}
	poly, ok := got[0].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("Expected a Polygon, got %T", got[0].Geometry)
	}
	if len(poly) != 2 {
		t.Errorf("Expected outer ring and hole, got %d rings", len(poly))
	}
	if a := geometryArea(poly); math.Abs(a-24) > 1e-9 {
		t.Errorf("Expected area 24, got %v", a)
	}
}

func TestClipLines(t *testing.T) {
	t.Run("crossing line", func(t *testing.T) {
		got := Clip([]Feature{feature(1, orb.LineString{{-100, 750}, {1600, 750}})}, unitCell)
		if len(got) != 1 {
			t.Fatalf("Expected 1 feature, got %d", len(got))
		}
		if b := got[0].Geometry.Bound(); !b.Equal(bound(0, 750, 1500, 750)) {
			t.Errorf("Expected the line cut at both edges, got %v", b)
		}
	})

	t.Run("line leaving and re-entering", func(t *testing.T) {
		u := orb.LineString{{100, 100}, {100, -100}, {200, -100}, {200, 100}}
		got := Clip([]Feature{feature(1, u)}, unitCell)
		if len(got) != 1 {
			t.Fatalf("Expected 1 feature, got %d", len(got))
		}
		mls, ok := got[0].Geometry.(orb.MultiLineString)
		if !ok {
			t.Fatalf("Expected a MultiLineString, got %T", got[0].Geometry)
		}
		if len(mls) != 2 {
			t.Errorf("Expected 2 parts, got %d", len(mls))
		}
		if l := planar.Length(mls); math.Abs(l-200) > 1e-9 {
			t.Errorf("Expected length 200, got %v", l)
		}
	})

	t.Run("multi line string with one part outside", func(t *testing.T) {
		mls := orb.MultiLineString{
			{{100, 100}, {100, 200}},
			{{2000, 2000}, {2100, 2100}},
		}
		got := Clip([]Feature{feature(1, mls)}, unitCell)
		if len(got) != 1 {
			t.Fatalf("Expected 1 feature, got %d", len(got))
		}
		if _, ok := got[0].Geometry.(orb.LineString); !ok {
			t.Errorf("Expected the single remaining part as a LineString, got %T", got[0].Geometry)
		}
	})

	t.Run("line touching a corner", func(t *testing.T) {
		got := Clip([]Feature{feature(1, orb.LineString{{-100, 100}, {100, -100}})}, unitCell)
		if len(got) != 0 {
			t.Errorf("Expected no features, got %v", got[0].Geometry)
		}
	})
}

func TestAssembleRings(t *testing.T) {
	outer := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	hole := orb.Ring{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}}
	island := orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}

	got := assembleRings([]orb.Ring{island, hole, outer})
	mp, ok := got.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("Expected a MultiPolygon, got %T", got)
	}
	if len(mp) != 2 {
		t.Fatalf("Expected 2 polygons, got %d", len(mp))
	}
	if len(mp[0]) != 2 || len(mp[1]) != 1 {
		t.Errorf("Expected the hole on the outer polygon only, got %d and %d rings", len(mp[0]), len(mp[1]))
	}
	if mp[0][1].Orientation() != orb.CW {
		t.Error("Expected a clockwise hole")
	}
	if a := geometryArea(mp); a != 100-36+4 {
		t.Errorf("Expected area 68, got %v", a)
	}

	if assembleRings(nil) != nil {
		t.Error("Expected nil for no rings")
	}
}
