package vector

import (
	"fmt"

	"github.com/beetlebugorg/cantons/internal/gpkg"
)

func readGeoPackage(path string, opts ReadOptions) (*Source, error) {
	layer, err := gpkg.ReadFile(path, opts.Layer)
	if err != nil {
		return nil, fmt.Errorf("read geopackage: %w", err)
	}

	src := &Source{
		Path:  path,
		Layer: layer.Name,
		CRS:   crsFromSRS(layer.SRS),
	}

	for _, f := range layer.Features {
		attrs := f.Attributes
		if len(opts.Attributes) > 0 {
			attrs = make(map[string]interface{}, len(opts.Attributes))
			for _, col := range opts.Attributes {
				v, ok := f.Attributes[col]
				if !ok {
					return nil, &ErrMissingAttribute{Path: path, Column: col}
				}
				attrs[col] = v
			}
		}
		src.Features = append(src.Features, Feature{
			ID:         f.ID,
			Geometry:   f.Geometry,
			Attributes: attrs,
		})
	}
	return src, nil
}

// crsFromSRS maps a GeoPackage SRS row to a CRS. The two undefined
// entries map to the zero CRS.
func crsFromSRS(s gpkg.SRS) CRS {
	if !s.Defined() {
		return CRS{}
	}
	crs := CRS{
		Name:         s.Name,
		Organization: s.Organization,
		Code:         s.OrgCode,
	}
	if s.Definition != "undefined" {
		crs.WKT = s.Definition
	}
	return crs
}

// SRS maps a CRS to a GeoPackage SRS row. Non-EPSG systems get an id in
// the user range.
func (c CRS) SRS() gpkg.SRS {
	if c.IsZero() {
		return gpkg.SRS{ID: -1, Name: "Undefined cartesian SRS", Organization: "NONE", OrgCode: -1, Definition: "undefined"}
	}
	s := gpkg.SRS{
		ID:           c.Code,
		Name:         c.Name,
		Organization: c.Organization,
		OrgCode:      c.Code,
		Definition:   c.WKT,
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("%s:%d", c.Organization, c.Code)
	}
	if s.Organization == "" {
		s.Organization = "NONE"
	}
	if c.Organization != "EPSG" || c.Code <= 0 {
		s.ID = userSRSID
		if s.OrgCode == 0 {
			s.OrgCode = userSRSID
		}
	}
	if s.Definition == "" {
		s.Definition = "undefined"
	}
	return s
}

// userSRSID is used for systems without an EPSG code.
const userSRSID = 100000
