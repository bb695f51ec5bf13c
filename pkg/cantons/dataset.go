package cantons

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/cantons/internal/vector"
)

// Feature is a parcel: a geometry plus its attribute row.
type Feature struct {
	ID         int64
	Geometry   orb.Geometry
	Attributes map[string]interface{}
}

// clone returns a copy of f with its own attribute map. The geometry is
// shared; callers replace it rather than mutate it.
func (f Feature) clone() Feature {
	attrs := make(map[string]interface{}, len(f.Attributes)+1)
	for k, v := range f.Attributes {
		attrs[k] = v
	}
	return Feature{ID: f.ID, Geometry: f.Geometry, Attributes: attrs}
}

// LoadOptions configures reading the source dataset.
type LoadOptions struct {
	// Attributes lists attribute columns to carry into tiles. Empty carries
	// every column.
	Attributes []string

	// Layer selects a GeoPackage feature table. Empty means the first.
	Layer string

	// CRS overrides the CRS of the file. Required when the file has none.
	CRS CRS

	// ValidateGeometry checks ring closure and finite coordinates.
	// Default: true
	ValidateGeometry bool

	// SkipInvalid drops invalid features instead of failing the load.
	SkipInvalid bool

	// ErrorLog receives one line per skipped feature.
	ErrorLog io.Writer
}

// DefaultLoadOptions returns load options with defaults.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		ValidateGeometry: true,
	}
}

// Dataset is a read-only set of parcels with its CRS and extent. The
// spatial index is built once at load time, so a Dataset is safe for
// concurrent readers.
type Dataset struct {
	path     string
	layer    string
	features []Feature
	crs      CRS
	extent   orb.Bound
	index    *spatialIndex
}

// LoadDataset reads a .shp, .gpkg, .geojson or .json file.
func LoadDataset(path string, opts LoadOptions) (*Dataset, error) {
	src, err := vector.Read(path, vector.ReadOptions{
		Attributes:       opts.Attributes,
		Layer:            opts.Layer,
		CRS:              opts.CRS.vector(),
		ValidateGeometry: opts.ValidateGeometry,
		SkipInvalid:      opts.SkipInvalid,
		ErrorLog:         opts.ErrorLog,
	})
	if err != nil {
		return nil, &DatasetLoadError{Path: path, Err: err}
	}

	features := make([]Feature, len(src.Features))
	for i, f := range src.Features {
		features[i] = Feature{ID: f.ID, Geometry: f.Geometry, Attributes: f.Attributes}
	}

	ds, err := NewDataset(features, fromVectorCRS(src.CRS))
	if err != nil {
		var le *DatasetLoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	ds.path = path
	ds.layer = src.Layer
	return ds, nil
}

// NewDataset builds a dataset from features already in memory. Features
// without geometry are dropped.
func NewDataset(features []Feature, crs CRS) (*Dataset, error) {
	if crs.IsZero() {
		return nil, &DatasetLoadError{Err: fmt.Errorf("no coordinate reference system")}
	}

	kept := make([]Feature, 0, len(features))
	for _, f := range features {
		if vector.IsEmpty(f.Geometry) {
			continue
		}
		kept = append(kept, f)
	}

	ds := &Dataset{features: kept, crs: crs}
	ds.buildSpatialIndex()
	return ds, nil
}

// Path returns the file the dataset was loaded from, empty for in-memory datasets.
func (d *Dataset) Path() string { return d.path }

// Layer returns the GeoPackage layer read, if any.
func (d *Dataset) Layer() string { return d.layer }

// Features returns all parcels. The slice must not be modified.
func (d *Dataset) Features() []Feature { return d.features }

// Len returns the number of parcels.
func (d *Dataset) Len() int { return len(d.features) }

// CRS returns the dataset's coordinate reference system.
func (d *Dataset) CRS() CRS { return d.crs }

// Extent returns the bounding box of all parcels.
func (d *Dataset) Extent() orb.Bound { return d.extent }

// spatialIndex provides O(log n) bound queries using an R-tree.
type spatialIndex struct {
	rtree *rtreego.Rtree
}

// indexedFeature wraps a feature for R-tree storage. pos is the position in
// Dataset.features and keeps query results in source order.
type indexedFeature struct {
	pos   int
	bound orb.Bound
}

// minLength keeps R-tree rectangles non-degenerate for points and
// axis-parallel lines.
const minLength = 1e-9

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect {
	return boundRect(f.bound, 0)
}

// boundRect converts b to an R-tree rectangle grown by pad on every side.
func boundRect(b orb.Bound, pad float64) rtreego.Rect {
	point := rtreego.Point{b.Min[0] - pad, b.Min[1] - pad}
	width := b.Max[0] - b.Min[0] + 2*pad
	height := b.Max[1] - b.Min[1] + 2*pad
	if width < minLength {
		width = minLength
	}
	if height < minLength {
		height = minLength
	}
	rect, _ := rtreego.NewRect(point, []float64{width, height})
	return rect
}

func (d *Dataset) buildSpatialIndex() {
	if len(d.features) == 0 {
		return
	}

	// 2D, min=25 children, max=50 children
	rtree := rtreego.NewTree(2, 25, 50)

	for i, f := range d.features {
		fb := f.Geometry.Bound()
		rtree.Insert(&indexedFeature{pos: i, bound: fb})

		if i == 0 {
			d.extent = fb
		} else {
			d.extent = d.extent.Union(fb)
		}
	}

	d.index = &spatialIndex{rtree: rtree}
}

// Candidates returns the parcels whose bounding box intersects b, in source
// order. Touching boxes count as intersecting.
func (d *Dataset) Candidates(b orb.Bound) []Feature {
	if d.index == nil || d.index.rtree == nil {
		return d.candidatesLinear(b)
	}

	// The R-tree treats touching rectangles as disjoint; query a slightly
	// larger box and filter exactly below.
	pad := (b.Max[0] - b.Min[0] + b.Max[1] - b.Min[1]) * 1e-9
	if pad < minLength {
		pad = minLength
	}
	spatials := d.index.rtree.SearchIntersect(boundRect(b, pad))

	positions := make([]int, 0, len(spatials))
	for _, s := range spatials {
		indexed := s.(*indexedFeature)
		if b.Intersects(indexed.bound) {
			positions = append(positions, indexed.pos)
		}
	}
	sort.Ints(positions)

	result := make([]Feature, len(positions))
	for i, pos := range positions {
		result[i] = d.features[pos]
	}
	return result
}

// candidatesLinear scans every parcel when no spatial index exists.
func (d *Dataset) candidatesLinear(b orb.Bound) []Feature {
	result := make([]Feature, 0, len(d.features)/10)
	for _, f := range d.features {
		if b.Intersects(f.Geometry.Bound()) {
			result = append(result, f)
		}
	}
	return result
}
