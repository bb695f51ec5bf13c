package cantons

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
)

// GridIndexAttribute is the attribute stamped on every tile parcel and
// written for every grid cell.
const GridIndexAttribute = "grid_index"

// Tile holds the clipped parcels of one non-empty grid cell.
type Tile struct {
	// Key is the position of the tile among non-empty cells, in grid order.
	Key       int
	GridIndex int
	Cell      GridCell
	Features  []Feature
}

// TileSummary is what the significance filter needs to judge a tile. It is
// computed once when the tile is written.
type TileSummary struct {
	Key          int       `json:"key"`
	GridIndex    int       `json:"grid_index"`
	FeatureCount int       `json:"feature_count"`
	Area         float64   `json:"area"`
	Bound        orb.Bound `json:"bound"`
	Cell         orb.Bound `json:"cell"`
	Path         string    `json:"path,omitempty"`
}

// Width returns the width of the union of parcel bounding boxes.
func (s TileSummary) Width() float64 { return s.Bound.Max[0] - s.Bound.Min[0] }

// Height returns the height of the union of parcel bounding boxes.
func (s TileSummary) Height() float64 { return s.Bound.Max[1] - s.Bound.Min[1] }

// Summarize computes the summary of t. path is where the tile was stored.
func Summarize(t *Tile, path string) TileSummary {
	s := TileSummary{
		Key:          t.Key,
		GridIndex:    t.GridIndex,
		FeatureCount: len(t.Features),
		Cell:         t.Cell.Bound,
		Path:         path,
	}

	areas := make([]float64, 0, len(t.Features))
	first := true
	for _, f := range t.Features {
		if f.Geometry == nil {
			continue
		}
		areas = append(areas, geometryArea(f.Geometry))
		if first {
			s.Bound = f.Geometry.Bound()
			first = false
		} else {
			s.Bound = s.Bound.Union(f.Geometry.Bound())
		}
	}
	s.Area = floats.Sum(areas)
	return s
}

// stampGridIndex sets the grid index attribute on every feature of t.
func stampGridIndex(features []Feature, index int) {
	for i := range features {
		if features[i].Attributes == nil {
			features[i].Attributes = make(map[string]interface{}, 1)
		}
		features[i].Attributes[GridIndexAttribute] = index
	}
}

// attributeInt reads an integer attribute stored as any numeric type or a
// decimal string.
func attributeInt(attrs map[string]interface{}, name string) (int, error) {
	switch v := attrs[name].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s: %v is not an integer", name, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%s: missing", name)
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", name, v)
	}
}
