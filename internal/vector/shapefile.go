package vector

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/paulmach/orb"
)

var wktName = regexp.MustCompile(`^\s*[A-Z]+\[\s*"([^"]*)"`)

func readShapefile(path string, opts ReadOptions) (*Source, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer dec.Close()

	src := &Source{Path: path}
	src.CRS, err = shapefileCRS(path, dec, opts)
	if err != nil {
		return nil, err
	}

	columns := opts.Attributes
	if len(columns) == 0 {
		columns = fieldNames(dec)
	}

	for i := 0; ; i++ {
		g, fields, more := dec.DecodeRowFields(columns...)
		if !more {
			break
		}

		attrs := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			v, ok := fields[col]
			if !ok {
				return nil, &ErrMissingAttribute{Path: path, Column: col}
			}
			attrs[col] = strings.TrimSpace(v)
		}

		og, err := fromGeom(g)
		if err != nil {
			if opts.SkipInvalid {
				if opts.ErrorLog != nil {
					fmt.Fprintf(opts.ErrorLog, "%s: skipping record %d: %v\n", path, i, err)
				}
				continue
			}
			return nil, &ErrInvalidGeometry{Index: i, Reason: err.Error()}
		}

		src.Features = append(src.Features, Feature{
			ID:         int64(i + 1),
			Geometry:   og,
			Attributes: attrs,
		})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile: %w", err)
	}

	return src, nil
}

// fieldNames lists the attribute table columns in file order.
func fieldNames(dec *shp.Decoder) []string {
	fields := dec.Fields()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if name := strings.TrimSpace(f.String()); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// shapefileCRS reads the .prj sidecar. A definition the proj package
// cannot parse is still carried, with a note to ErrorLog.
func shapefileCRS(path string, dec *shp.Decoder, opts ReadOptions) (CRS, error) {
	prj := strings.TrimSuffix(path, ".shp")
	prj = strings.TrimSuffix(prj, ".SHP") + ".prj"

	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return CRS{}, nil
	}
	if err != nil {
		return CRS{}, fmt.Errorf("read projection file: %w", err)
	}

	wkt := strings.TrimSpace(string(data))
	if wkt == "" {
		return CRS{}, nil
	}
	if _, err := dec.SR(); err != nil && opts.ErrorLog != nil {
		fmt.Fprintf(opts.ErrorLog, "%s: projection not recognised, carrying it unchanged: %v\n", prj, err)
	}

	crs := CRS{WKT: wkt}
	if m := wktName.FindStringSubmatch(wkt); m != nil {
		crs.Name = m[1]
	}
	return crs, nil
}

// fromGeom converts a decoded shapefile geometry to orb.
func fromGeom(g geom.Geom) (orb.Geometry, error) {
	switch v := g.(type) {
	case nil:
		return nil, nil
	case geom.Point:
		return orb.Point{v.X, v.Y}, nil
	case geom.MultiPoint:
		mp := make(orb.MultiPoint, len(v))
		for i, p := range v {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp, nil
	case geom.LineString:
		return toLineString(v), nil
	case geom.MultiLineString:
		mls := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			mls[i] = toLineString(ls)
		}
		return mls, nil
	case geom.Polygonal:
		// Shapefile rings carry no grouping: clockwise rings are outer
		// boundaries, counter-clockwise rings are holes of the preceding one.
		var mp orb.MultiPolygon
		for _, p := range v.Polygons() {
			for _, ring := range p {
				r := make(orb.Ring, 0, len(ring)+1)
				for _, pt := range ring {
					r = append(r, orb.Point{pt.X, pt.Y})
				}
				if len(r) == 0 {
					continue
				}
				if !r.Closed() {
					r = append(r, r[0])
				}
				if len(mp) == 0 || r.Orientation() == orb.CW {
					mp = append(mp, orb.Polygon{r})
					continue
				}
				last := len(mp) - 1
				mp[last] = append(mp[last], r)
			}
		}
		switch len(mp) {
		case 0:
			return nil, nil
		case 1:
			return mp[0], nil
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported shapefile geometry %T", g)
}

func toLineString(ls geom.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}
