package vector

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// IsEmpty reports whether g carries no coordinates.
func IsEmpty(g orb.Geometry) bool {
	if g == nil {
		return true
	}
	switch v := g.(type) {
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		for _, p := range v {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !IsEmpty(c) {
				return false
			}
		}
		return true
	case orb.Bound:
		return false
	}
	return false
}

// ValidateGeometry checks that coordinates are finite and polygon rings are
// closed with at least four points. Degenerate lines are allowed.
func ValidateGeometry(g orb.Geometry) error {
	if g == nil {
		return fmt.Errorf("geometry is nil")
	}

	switch v := g.(type) {
	case orb.Point:
		return validatePoint(v)
	case orb.MultiPoint:
		return validatePoints(v)
	case orb.LineString:
		return validatePoints(v)
	case orb.MultiLineString:
		for i, ls := range v {
			if err := validatePoints(ls); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}
	case orb.Ring:
		return validateRing(v)
	case orb.Polygon:
		return validatePolygon(v)
	case orb.MultiPolygon:
		for i, p := range v {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
	case orb.Collection:
		for i, c := range v {
			if err := ValidateGeometry(c); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
		}
	case orb.Bound:
		return validatePoints([]orb.Point{v.Min, v.Max})
	default:
		return fmt.Errorf("unsupported geometry type %T", g)
	}
	return nil
}

func validatePolygon(p orb.Polygon) error {
	for i, r := range p {
		if err := validateRing(r); err != nil {
			return fmt.Errorf("ring %d: %w", i, err)
		}
	}
	return nil
}

func validateRing(r orb.Ring) error {
	if len(r) < 4 {
		return fmt.Errorf("ring has %d points, need at least 4", len(r))
	}
	if !r.Closed() {
		return fmt.Errorf("ring is not closed")
	}
	return validatePoints(r)
}

func validatePoints(pts []orb.Point) error {
	for i, p := range pts {
		if err := validatePoint(p); err != nil {
			return fmt.Errorf("coordinate %d: %w", i, err)
		}
	}
	return nil
}

func validatePoint(p orb.Point) error {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("non-finite coordinate [%v %v]", p[0], p[1])
		}
	}
	return nil
}
