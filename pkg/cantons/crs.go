package cantons

import (
	"github.com/beetlebugorg/cantons/internal/vector"
)

// CRS identifies the coordinate reference system of a dataset. It is opaque
// to tiling and copied unchanged to every output.
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

func (c CRS) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.vector().SRS().Name
}

// ParseCRS parses "EPSG:2056", "urn:ogc:def:crs:EPSG::2056" or a PROJ
// string. The empty string yields the zero CRS.
func ParseCRS(s string) (CRS, error) {
	v, err := vector.ParseCRS(s)
	if err != nil {
		return CRS{}, &ConfigError{Field: "crs", Reason: err.Error()}
	}
	return fromVectorCRS(v), nil
}

func (c CRS) vector() vector.CRS {
	return vector.CRS{Name: c.Name, Organization: c.Organization, Code: c.Code, WKT: c.WKT}
}

func fromVectorCRS(v vector.CRS) CRS {
	return CRS{Name: v.Name, Organization: v.Organization, Code: v.Code, WKT: v.WKT}
}
