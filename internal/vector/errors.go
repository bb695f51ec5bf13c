package vector

import (
	"fmt"
)

// ErrUnsupportedFormat indicates a file extension with no reader
type ErrUnsupportedFormat struct {
	Path string
	Ext  string
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("%s: unsupported vector format %q (want .shp, .gpkg, .geojson or .json)", e.Path, e.Ext)
}

// ErrMissingCRS indicates a source without a usable coordinate reference system
type ErrMissingCRS struct {
	Path   string
	Reason string
}

func (e *ErrMissingCRS) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: no coordinate reference system: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: no coordinate reference system", e.Path)
}

// ErrInvalidGeometry indicates a feature geometry that cannot be tiled
type ErrInvalidGeometry struct {
	Index  int
	Reason string
}

func (e *ErrInvalidGeometry) Error() string {
	return fmt.Sprintf("invalid geometry at feature %d: %s", e.Index, e.Reason)
}

// ErrMissingAttribute indicates a requested attribute column is absent
type ErrMissingAttribute struct {
	Path   string
	Column string
}

func (e *ErrMissingAttribute) Error() string {
	return fmt.Sprintf("%s: missing attribute column %s", e.Path, e.Column)
}
