package vector

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// legacyCRS is the "crs" member of GeoJSON 2008, still written by GDAL.
type legacyCRS struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func readGeoJSON(path string, opts ReadOptions) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	src := &Source{Path: path}

	var legacy legacyCRS
	if err := json.Unmarshal(data, &legacy); err == nil && legacy.CRS != nil && legacy.CRS.Properties.Name != "" {
		crs, err := ParseCRS(legacy.CRS.Properties.Name)
		if err != nil {
			return nil, &ErrMissingCRS{Path: path, Reason: err.Error()}
		}
		src.CRS = crs
	}

	for i, f := range fc.Features {
		attrs := make(map[string]interface{}, len(f.Properties))
		if len(opts.Attributes) > 0 {
			for _, col := range opts.Attributes {
				v, ok := f.Properties[col]
				if !ok {
					return nil, &ErrMissingAttribute{Path: path, Column: col}
				}
				attrs[col] = v
			}
		} else {
			for k, v := range f.Properties {
				attrs[k] = v
			}
		}

		id := int64(i + 1)
		if n, ok := f.ID.(float64); ok && n == float64(int64(n)) {
			id = int64(n)
		}
		src.Features = append(src.Features, Feature{
			ID:         id,
			Geometry:   f.Geometry,
			Attributes: attrs,
		})
	}
	return src, nil
}
