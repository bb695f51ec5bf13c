// Package vector loads polygon datasets from shapefiles, GeoPackages and
// GeoJSON files into orb geometries.
package vector

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// CRS identifies a coordinate reference system. Coordinates are never
// transformed; the CRS is carried to the outputs unchanged.
type CRS struct {
	Name         string
	Organization string
	Code         int
	WKT          string
}

// IsZero reports whether no CRS is known.
func (c CRS) IsZero() bool {
	return c.Name == "" && c.Organization == "" && c.Code == 0 && c.WKT == ""
}

// Feature is a source record.
type Feature struct {
	ID         int64
	Geometry   orb.Geometry
	Attributes map[string]interface{}
}

// Source is the content of one vector file.
type Source struct {
	Path     string
	Layer    string
	CRS      CRS
	Features []Feature
}

// ReadOptions configures reading.
type ReadOptions struct {
	// Attributes lists the attribute columns to carry. Empty carries every
	// column.
	Attributes []string

	// Layer selects a GeoPackage feature table. Empty means the first one.
	Layer string

	// CRS overrides the CRS found in the file. Required when the file has none.
	CRS CRS

	// ValidateGeometry checks ring closure and finite coordinates.
	// Default: true
	ValidateGeometry bool

	// SkipInvalid drops features failing validation instead of failing the read.
	SkipInvalid bool

	// ErrorLog receives one line per skipped feature. Nil discards.
	ErrorLog io.Writer
}

// DefaultReadOptions returns read options with defaults.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{
		ValidateGeometry: true,
		SkipInvalid:      false,
	}
}

// Read loads path, choosing the reader from the file extension.
// Empty geometries are dropped. A source without CRS and without
// ReadOptions.CRS is an error.
func Read(path string, opts ReadOptions) (*Source, error) {
	var (
		src *Source
		err error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".shp":
		src, err = readShapefile(path, opts)
	case ".gpkg":
		src, err = readGeoPackage(path, opts)
	case ".geojson", ".json":
		src, err = readGeoJSON(path, opts)
	default:
		return nil, &ErrUnsupportedFormat{Path: path, Ext: ext}
	}
	if err != nil {
		return nil, err
	}

	if !opts.CRS.IsZero() {
		src.CRS = opts.CRS
	}
	if src.CRS.IsZero() {
		return nil, &ErrMissingCRS{Path: path}
	}

	kept := src.Features[:0]
	for i, f := range src.Features {
		if IsEmpty(f.Geometry) {
			continue
		}
		if opts.ValidateGeometry {
			if err := ValidateGeometry(f.Geometry); err != nil {
				if opts.SkipInvalid {
					if opts.ErrorLog != nil {
						fmt.Fprintf(opts.ErrorLog, "%s: skipping feature %d: %v\n", path, i, err)
					}
					continue
				}
				return nil, &ErrInvalidGeometry{Index: i, Reason: err.Error()}
			}
		}
		kept = append(kept, f)
	}
	src.Features = kept

	return src, nil
}

// ParseCRS parses a user supplied CRS: "EPSG:2056", an OGC URN such as
// "urn:ogc:def:crs:EPSG::2056", or a PROJ string starting with "+".
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}, nil
	}

	if strings.HasPrefix(s, "+") {
		if _, err := proj.Parse(s); err != nil {
			return CRS{}, fmt.Errorf("parse proj definition %q: %w", s, err)
		}
		return CRS{Name: s, Organization: "PROJ", WKT: s}, nil
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "urn:ogc:def:crs:") {
		// urn:ogc:def:crs:{authority}:{version}:{code}
		parts := strings.Split(s, ":")
		if len(parts) >= 7 {
			code, err := strconv.Atoi(parts[len(parts)-1])
			if err == nil {
				return CRS{Name: strings.ToUpper(parts[4]) + ":" + parts[len(parts)-1],
					Organization: strings.ToUpper(parts[4]), Code: code}, nil
			}
		}
		return CRS{}, fmt.Errorf("unrecognised CRS urn %q", s)
	}

	org, code, ok := strings.Cut(s, ":")
	if !ok {
		return CRS{}, fmt.Errorf("unrecognised CRS %q (want AUTHORITY:CODE)", s)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return CRS{}, fmt.Errorf("unrecognised CRS code in %q", s)
	}
	org = strings.ToUpper(org)
	return CRS{Name: org + ":" + code, Organization: org, Code: n}, nil
}
