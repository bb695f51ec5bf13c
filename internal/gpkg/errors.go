package gpkg

import (
	"fmt"
)

// ErrInvalidBlob indicates a geometry blob that is not valid GeoPackageBinary
type ErrInvalidBlob struct {
	Reason string
}

func (e *ErrInvalidBlob) Error() string {
	return fmt.Sprintf("invalid geopackage geometry: %s", e.Reason)
}

// ErrNoFeatureTable indicates the file has no features table to read
type ErrNoFeatureTable struct {
	Path  string
	Table string
}

func (e *ErrNoFeatureTable) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: no features table %q", e.Path, e.Table)
	}
	return fmt.Sprintf("%s: no features table", e.Path)
}

// ErrUndefinedSRS indicates the layer references an undefined spatial reference system
type ErrUndefinedSRS struct {
	Table string
	SRSID int
}

func (e *ErrUndefinedSRS) Error() string {
	return fmt.Sprintf("table %q uses undefined spatial reference system %d", e.Table, e.SRSID)
}
