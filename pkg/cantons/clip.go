package cantons

import (
	"context"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/beetlebugorg/cantons/internal/vector"
)

// Clip returns the parts of features inside cell. Features whose bounding
// box misses the cell are skipped, the rest have their geometry replaced by
// the intersection with the cell rectangle. Empty intersections, including
// polygons that only touch the cell boundary, are dropped. The input is not
// modified; every returned feature has its own attribute map.
func Clip(features []Feature, cell GridCell) []Feature {
	out, _ := ClipContext(context.Background(), features, cell)
	return out
}

// ClipContext is Clip with cancellation checked between features.
func ClipContext(ctx context.Context, features []Feature, cell GridCell) ([]Feature, error) {
	var out []Feature
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Geometry == nil || !cell.Bound.Intersects(f.Geometry.Bound()) {
			continue
		}

		g := clipGeometry(cell.Bound, f.Geometry)
		if g == nil {
			continue
		}

		c := f.clone()
		c.Geometry = g
		out = append(out, c)
	}
	return out, nil
}

// clipGeometry intersects g with b and returns nil for an empty result.
func clipGeometry(b orb.Bound, g orb.Geometry) orb.Geometry {
	// Entirely inside: nothing to cut.
	if contains(b, g.Bound()) {
		return g
	}

	// orb/clip reuses the input rings as scratch space
	clipped := clip.Geometry(b, orb.Clone(g))
	if vector.IsEmpty(clipped) {
		return nil
	}

	switch c := clipped.(type) {
	case orb.Polygon, orb.MultiPolygon:
		a := geometryArea(c)
		if a == 0 {
			return nil
		}
		// Sutherland-Hodgman bridges the parts of a concave parcel along the
		// cell edge, which inflates the bound. Prefer the polyclip result
		// when its area agrees.
		if exact := intersectPolygonal(b, g); exact != nil &&
			math.Abs(geometryArea(exact)-a) <= 1e-9*a {
			return exact
		}
	case orb.Ring, orb.Bound:
		if geometryArea(c) == 0 {
			return nil
		}
	case orb.LineString:
		if planar.Length(c) == 0 {
			return nil
		}
	case orb.MultiLineString:
		// drop zero-length remnants of lines touching the boundary
		kept := c[:0]
		for _, ls := range c {
			if len(ls) > 1 && planar.Length(ls) > 0 {
				kept = append(kept, ls)
			}
		}
		switch len(kept) {
		case 0:
			return nil
		case 1:
			return kept[0]
		}
		return kept
	}
	return clipped
}

// intersectPolygonal runs a polygon intersection of g with b and rebuilds
// proper polygons from the flat contour list it produces. It returns nil
// when g is not polygonal or the intersection fails.
func intersectPolygonal(b orb.Bound, g orb.Geometry) (out orb.Geometry) {
	var subject geom.MultiPolygon
	switch v := g.(type) {
	case orb.Polygon:
		subject = append(subject, toGeomPolygon(v))
	case orb.MultiPolygon:
		for _, p := range v {
			subject = append(subject, toGeomPolygon(p))
		}
	default:
		return nil
	}

	// polyclip panics on some degenerate inputs
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	cell := geom.Polygon{{
		{X: b.Min[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Max[1]},
		{X: b.Min[0], Y: b.Max[1]},
	}}

	var rings []orb.Ring
	for _, p := range subject.Intersection(cell).Polygons() {
		for _, path := range p {
			r := make(orb.Ring, 0, len(path)+1)
			for _, pt := range path {
				r = append(r, orb.Point{pt.X, pt.Y})
			}
			if len(r) > 0 && !r.Closed() {
				r = append(r, r[0])
			}
			if len(r) < 4 || planar.Area(r) == 0 {
				continue
			}
			rings = append(rings, r)
		}
	}
	return assembleRings(rings)
}

func toGeomPolygon(p orb.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, len(p))
	for _, r := range p {
		if r.Closed() {
			r = r[:len(r)-1]
		}
		path := make(geom.Path, len(r))
		for i, pt := range r {
			path[i] = geom.Point{X: pt[0], Y: pt[1]}
		}
		out = append(out, path)
	}
	return out
}

// assembleRings groups non-crossing rings into polygons. A ring nested in an
// even number of others is an outer boundary, otherwise it is a hole of the
// smallest ring containing it. Outer rings come back counter-clockwise and
// holes clockwise.
func assembleRings(rings []orb.Ring) orb.Geometry {
	sort.SliceStable(rings, func(i, j int) bool {
		return math.Abs(planar.Area(rings[i])) > math.Abs(planar.Area(rings[j]))
	})

	parent := make([]int, len(rings))
	depth := make([]int, len(rings))
	for i := range rings {
		parent[i] = -1
		// larger rings come first, so the last container found is the smallest
		for j := 0; j < i; j++ {
			if ringWithin(rings[i], rings[j]) {
				depth[i]++
				parent[i] = j
			}
		}
	}

	var mp orb.MultiPolygon
	index := make(map[int]int)
	for i, r := range rings {
		if depth[i]%2 != 0 {
			continue
		}
		if r.Orientation() != orb.CCW {
			r.Reverse()
		}
		index[i] = len(mp)
		mp = append(mp, orb.Polygon{r})
	}
	for i, r := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		k, ok := index[parent[i]]
		if !ok {
			continue
		}
		if r.Orientation() != orb.CW {
			r.Reverse()
		}
		mp[k] = append(mp[k], r)
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

// ringWithin reports whether every vertex of inner lies in or on outer.
func ringWithin(inner, outer orb.Ring) bool {
	for _, pt := range inner {
		if !planar.RingContains(outer, pt) {
			return false
		}
	}
	return true
}

func contains(outer, inner orb.Bound) bool {
	return inner.Min[0] >= outer.Min[0] && inner.Max[0] <= outer.Max[0] &&
		inner.Min[1] >= outer.Min[1] && inner.Max[1] <= outer.Max[1]
}

// geometryArea returns the planar area of g. Ring orientation is ignored.
func geometryArea(g orb.Geometry) float64 {
	switch v := g.(type) {
	case orb.Polygon:
		return polygonArea(v)
	case orb.MultiPolygon:
		var a float64
		for _, p := range v {
			a += polygonArea(p)
		}
		return a
	case orb.Collection:
		var a float64
		for _, m := range v {
			a += geometryArea(m)
		}
		return a
	}
	return math.Abs(planar.Area(g))
}

func polygonArea(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	a := math.Abs(planar.Area(p[0]))
	for _, hole := range p[1:] {
		a -= math.Abs(planar.Area(hole))
	}
	if a < 0 {
		return 0
	}
	return a
}
