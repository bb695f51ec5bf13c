package cantons

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	raster "golang.org/x/image/vector"
)

// MasksDir holds the rendered tile masks, relative to the output root.
const MasksDir = "masks"

// RenderMask rasterises the polygonal parts of features into a binary mask
// covering cell, one pixel per pixelSize units. Row 0 is the top of the
// cell. Covered pixels are 255, the rest 0.
func RenderMask(features []Feature, cell orb.Bound, pixelSize float64) (*image.Gray, error) {
	if math.IsNaN(pixelSize) || pixelSize <= 0 {
		return nil, &ConfigError{Field: "mask_pixel_size", Reason: fmt.Sprintf("must be positive, got %v", pixelSize)}
	}
	w := int(math.Ceil((cell.Max[0] - cell.Min[0]) / pixelSize))
	h := int(math.Ceil((cell.Max[1] - cell.Min[1]) / pixelSize))
	if w <= 0 || h <= 0 {
		return nil, &ConfigError{Field: "mask", Reason: fmt.Sprintf("empty cell %v", cell)}
	}

	r := raster.NewRasterizer(w, h)
	for _, f := range features {
		for _, p := range polygonsOf(f.Geometry) {
			for i, ring := range p {
				// Outer rings counter-clockwise, holes clockwise, so
				// holes cancel their outer ring's coverage.
				want := orb.CCW
				if i > 0 {
					want = orb.CW
				}
				addRing(r, ring, want, cell, pixelSize)
			}
		}
	}

	alpha := image.NewAlpha(image.Rect(0, 0, w, h))
	r.Draw(alpha, alpha.Bounds(), image.NewUniform(color.Alpha{255}), image.Point{})

	mask := image.NewGray(alpha.Bounds())
	for i, a := range alpha.Pix {
		if a >= 128 {
			mask.Pix[i] = 255
		}
	}
	return mask, nil
}

func addRing(r *raster.Rasterizer, ring orb.Ring, want orb.Orientation, cell orb.Bound, pixelSize float64) {
	if len(ring) < 3 {
		return
	}
	reverse := ring.Orientation() != want

	px := func(p orb.Point) (float32, float32) {
		return float32((p[0] - cell.Min[0]) / pixelSize), float32((cell.Max[1] - p[1]) / pixelSize)
	}

	n := len(ring)
	at := func(i int) orb.Point {
		if reverse {
			return ring[n-1-i]
		}
		return ring[i]
	}

	x, y := px(at(0))
	r.MoveTo(x, y)
	for i := 1; i < n; i++ {
		x, y = px(at(i))
		r.LineTo(x, y)
	}
	r.ClosePath()
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	case orb.Ring:
		return []orb.Polygon{{v}}
	case orb.Bound:
		return []orb.Polygon{v.ToPolygon()}
	case orb.Collection:
		var out []orb.Polygon
		for _, m := range v {
			out = append(out, polygonsOf(m)...)
		}
		return out
	}
	return nil
}

// MaskCoverage returns the fraction of set pixels in mask.
func MaskCoverage(mask *image.Gray) float64 {
	if len(mask.Pix) == 0 {
		return 0
	}
	set := 0
	for _, p := range mask.Pix {
		if p != 0 {
			set++
		}
	}
	return float64(set) / float64(len(mask.Pix))
}

// WriteMask encodes mask as PNG at path, creating parent directories.
func WriteMask(path string, mask image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &PersistenceError{Op: "create directory", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &PersistenceError{Op: "write mask", Path: path, Err: err}
	}
	if err := png.Encode(f, mask); err != nil {
		f.Close()
		return &PersistenceError{Op: "write mask", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Op: "write mask", Path: path, Err: err}
	}
	return nil
}

// WriteMasks renders every tile in tiles from store and writes
// masks/parcel_{key}.png under root. It returns the written paths in
// tile order.
func WriteMasks(ctx context.Context, store TileStore, tiles []TileSummary, root string, pixelSize float64) ([]string, error) {
	paths := make([]string, 0, len(tiles))
	for _, s := range tiles {
		t, err := store.LoadTile(ctx, s.Key)
		if err != nil {
			return paths, err
		}
		cell := s.Cell
		if cell.Max[0]-cell.Min[0] <= 0 {
			cell = t.Cell.Bound
		}
		mask, err := RenderMask(t.Features, cell, pixelSize)
		if err != nil {
			return paths, fmt.Errorf("tile %d: %w", s.Key, err)
		}
		path := filepath.Join(root, MasksDir, TileName(s.Key)+".png")
		if err := WriteMask(path, mask); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
