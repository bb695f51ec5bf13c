// Package gpkg reads and writes single-layer OGC GeoPackage files.
//
// A GeoPackage is an SQLite database with a fixed set of metadata tables
// (gpkg_spatial_ref_sys, gpkg_contents, gpkg_geometry_columns) and one table
// per feature layer. Only the subset needed to exchange polygon layers is
// implemented: no tiles, no extensions, no spatial index tables.
//
// References:
//   - OGC 12-128r15 GeoPackage Encoding Standard 1.2, §1.1 (core tables)
//   - §2.1 (features), §2.1.3 (geometry encoding)
package gpkg

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	_ "modernc.org/sqlite"
)

const (
	// applicationID is "GPKG" as a big-endian int32 (§1.1.1.1.1).
	applicationID = 0x47504B47
	// userVersion identifies GeoPackage 1.2.0.
	userVersion = 10200

	// DefaultGeometryColumn is the geometry column name used for written layers.
	DefaultGeometryColumn = "geom"
	// DefaultIDColumn is the primary key column used for written layers.
	DefaultIDColumn = "fid"
)

// SRS describes a row of gpkg_spatial_ref_sys.
type SRS struct {
	ID           int
	Name         string
	Organization string
	OrgCode      int
	Definition   string
}

// Defined reports whether the SRS is one of the two "undefined" entries
// that every GeoPackage must carry (§1.1.2.1.2).
func (s SRS) Defined() bool {
	return s.ID != 0 && s.ID != -1
}

// Column describes an attribute column of a feature table.
type Column struct {
	Name string
	Type string // SQLite declared type: INTEGER, DOUBLE, TEXT, BOOLEAN, BLOB
}

// Feature is one row of a feature table.
type Feature struct {
	ID         int64
	Geometry   orb.Geometry
	Attributes map[string]interface{}
}

// Layer is a feature table with its spatial reference system.
type Layer struct {
	Name           string
	GeometryColumn string
	SRS            SRS
	Columns        []Column
	Features       []Feature
}

// required spatial reference systems (§1.1.2.1.2)
var requiredSRS = []SRS{
	{ID: -1, Name: "Undefined cartesian SRS", Organization: "NONE", OrgCode: -1, Definition: "undefined"},
	{ID: 0, Name: "Undefined geographic SRS", Organization: "NONE", OrgCode: 0, Definition: "undefined"},
	{ID: 4326, Name: "WGS 84 geodetic", Organization: "EPSG", OrgCode: 4326, Definition: wgs84WKT},
}

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

const schema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL PRIMARY KEY,
	organization TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL,
	description TEXT
);
CREATE TABLE gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY,
	data_type TEXT NOT NULL,
	identifier TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x DOUBLE,
	min_y DOUBLE,
	max_x DOUBLE,
	max_y DOUBLE,
	srs_id INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
CREATE TABLE gpkg_geometry_columns (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL,
	z TINYINT NOT NULL,
	m TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT uk_gc_table_name UNIQUE (table_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

// WriteFile creates path as a new GeoPackage holding layer. An existing
// file at path is replaced.
func WriteFile(path string, layer *Layer) error {
	if layer == nil || layer.Name == "" {
		return fmt.Errorf("write %s: layer name is required", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if err := writeLayer(db, layer); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeLayer(db *sql.DB, layer *Layer) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA application_id = %d", applicationID),
		fmt.Sprintf("PRAGMA user_version = %d", userVersion),
		"PRAGMA journal_mode = DELETE",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("create metadata tables: %w", err)
	}

	srsRows := append([]SRS(nil), requiredSRS...)
	if layer.SRS.Defined() && layer.SRS.ID != 4326 {
		srsRows = append(srsRows, layer.SRS)
	}
	for _, s := range srsRows {
		def := s.Definition
		if def == "" {
			def = "undefined"
		}
		if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition)
			VALUES (?, ?, ?, ?, ?)`, s.Name, s.ID, s.Organization, s.OrgCode, def); err != nil {
			return fmt.Errorf("insert srs %d: %w", s.ID, err)
		}
	}

	geomCol := layer.GeometryColumn
	if geomCol == "" {
		geomCol = DefaultGeometryColumn
	}
	columns := layer.Columns
	if columns == nil {
		columns = InferColumns(layer.Features)
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s INTEGER PRIMARY KEY AUTOINCREMENT, %s GEOMETRY",
		quoteIdent(layer.Name), quoteIdent(DefaultIDColumn), quoteIdent(geomCol))
	for _, c := range columns {
		ddl += fmt.Sprintf(", %s %s", quoteIdent(c.Name), c.Type)
	}
	ddl += ")"
	if _, err := tx.Exec(ddl); err != nil {
		return fmt.Errorf("create table %s: %w", layer.Name, err)
	}

	bounds, hasBounds := layerBound(layer.Features)
	var minX, minY, maxX, maxY interface{}
	if hasBounds {
		minX, minY, maxX, maxY = bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1]
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_contents
		(table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		layer.Name, layer.Name, minX, minY, maxX, maxY, layer.SRS.ID); err != nil {
		return fmt.Errorf("insert contents: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns
		(table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, ?, 'GEOMETRY', ?, 0, 0)`, layer.Name, geomCol, layer.SRS.ID); err != nil {
		return fmt.Errorf("insert geometry column: %w", err)
	}

	names := []string{quoteIdent(DefaultIDColumn), quoteIdent(geomCol)}
	for _, c := range columns {
		names = append(names, quoteIdent(c.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(layer.Name), strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range layer.Features {
		blob, err := EncodeGeometry(f.Geometry, int32(layer.SRS.ID))
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		args := make([]interface{}, 0, len(names))
		var id interface{}
		if f.ID > 0 {
			id = f.ID
		}
		args = append(args, id, blob)
		for _, c := range columns {
			args = append(args, sqlValue(f.Attributes[c.Name], c.Type))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert feature %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ReadFile reads the named feature table from the GeoPackage at path. An
// empty table name selects the first features table listed in gpkg_contents.
func ReadFile(path, table string) (*Layer, error) {
	// sql.Open would silently create a missing database.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	if table == "" {
		tables, err := featureTables(db)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if len(tables) == 0 {
			return nil, &ErrNoFeatureTable{Path: path}
		}
		table = tables[0]
	}

	layer := &Layer{Name: table}
	err = db.QueryRow(`SELECT column_name, srs_id FROM gpkg_geometry_columns
		WHERE table_name = ?`, table).Scan(&layer.GeometryColumn, &layer.SRS.ID)
	if err == sql.ErrNoRows {
		return nil, &ErrNoFeatureTable{Path: path, Table: table}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read geometry columns: %w", path, err)
	}

	err = db.QueryRow(`SELECT srs_name, organization, organization_coordsys_id, definition
		FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, layer.SRS.ID).Scan(
		&layer.SRS.Name, &layer.SRS.Organization, &layer.SRS.OrgCode, &layer.SRS.Definition)
	if err == sql.ErrNoRows {
		return nil, &ErrUndefinedSRS{Table: table, SRSID: layer.SRS.ID}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read spatial reference system: %w", path, err)
	}

	pk, columns, err := tableColumns(db, table, layer.GeometryColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	layer.Columns = columns

	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("%s: query %s: %w", path, table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(names))
	ptrs := make([]interface{}, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%s: scan %s: %w", path, table, err)
		}
		f := Feature{Attributes: make(map[string]interface{}, len(names))}
		for i, name := range names {
			switch name {
			case pk:
				if id, ok := values[i].(int64); ok {
					f.ID = id
				}
			case layer.GeometryColumn:
				blob, _ := values[i].([]byte)
				if len(blob) == 0 {
					continue
				}
				g, _, err := DecodeGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("%s: feature %d: %w", path, len(layer.Features), err)
				}
				f.Geometry = g
			default:
				f.Attributes[name] = attributeValue(values[i])
			}
		}
		layer.Features = append(layer.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return layer, nil
}

// featureTables lists feature tables in gpkg_contents order.
func featureTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT table_name FROM gpkg_contents
		WHERE data_type = 'features' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("read gpkg_contents: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// tableColumns returns the primary key column and the attribute columns of
// table, excluding the geometry column.
func tableColumns(db *sql.DB, table, geomCol string) (string, []Column, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return "", nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var pk string
	var columns []Column
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pkIndex   int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pkIndex); err != nil {
			return "", nil, err
		}
		switch {
		case pkIndex > 0 && pk == "":
			pk = name
		case name == geomCol:
		default:
			columns = append(columns, Column{Name: name, Type: strings.ToUpper(typ)})
		}
	}
	return pk, columns, rows.Err()
}

// InferColumns derives attribute columns from the union of feature
// attributes. Columns are sorted by name so output is deterministic.
func InferColumns(features []Feature) []Column {
	types := make(map[string]string)
	for _, f := range features {
		for name, v := range f.Attributes {
			t := sqlType(v)
			if t == "" {
				continue
			}
			prev := types[name]
			switch {
			case prev == "", prev == t:
				types[name] = t
			case (prev == "INTEGER" && t == "DOUBLE") || (prev == "DOUBLE" && t == "INTEGER"):
				types[name] = "DOUBLE"
			default:
				types[name] = "TEXT"
			}
		}
		// All-null columns still get a column.
		for name, v := range f.Attributes {
			if _, ok := types[name]; !ok && v == nil {
				types[name] = ""
			}
		}
	}

	columns := make([]Column, 0, len(types))
	for name, t := range types {
		if t == "" {
			t = "TEXT"
		}
		columns = append(columns, Column{Name: name, Type: t})
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })
	return columns
}

func sqlType(v interface{}) string {
	switch v.(type) {
	case nil:
		return ""
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return "INTEGER"
	case float32, float64:
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	case []byte:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// sqlValue converts an attribute to a value the driver accepts for a
// column of type typ.
func sqlValue(v interface{}, typ string) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case int64, float64, []byte, string:
		if typ == "TEXT" {
			if _, ok := x.(string); !ok {
				return fmt.Sprint(x)
			}
		}
		return x
	case bool:
		if typ == "TEXT" {
			return fmt.Sprint(x)
		}
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return fmt.Sprint(x)
	}
}

// attributeValue normalises driver values: TEXT may arrive as []byte.
func attributeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func layerBound(features []Feature) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		fb := f.Geometry.Bound()
		if !found {
			b = fb
			found = true
			continue
		}
		b = b.Union(fb)
	}
	return b, found
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
