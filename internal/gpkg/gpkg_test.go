package gpkg

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

// TestGeometryRoundTrip verifies GeoPackageBinary encoding
// GeoPackage §2.1.3: header, envelope, WKB body
func TestGeometryRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"polygon", square(0, 0, 10)},
		{"multipolygon", orb.MultiPolygon{square(0, 0, 1), square(5, 5, 2)}},
		{"linestring", orb.LineString{{0, 0}, {3, 4}}},
		{"point", orb.Point{2600000, 1200000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := EncodeGeometry(tt.geom, 2056)
			if err != nil {
				t.Fatalf("EncodeGeometry failed: %v", err)
			}
			if blob[0] != 'G' || blob[1] != 'P' {
				t.Fatalf("Expected GP magic, got %q", blob[:2])
			}

			got, srsID, err := DecodeGeometry(blob)
			if err != nil {
				t.Fatalf("DecodeGeometry failed: %v", err)
			}
			if srsID != 2056 {
				t.Errorf("Expected srs_id 2056, got %d", srsID)
			}
			if got.GeoJSONType() != tt.geom.GeoJSONType() {
				t.Errorf("Expected %s, got %s", tt.geom.GeoJSONType(), got.GeoJSONType())
			}
			if !got.Bound().Equal(tt.geom.Bound()) {
				t.Errorf("Expected bound %v, got %v", tt.geom.Bound(), got.Bound())
			}
		})
	}
}

func TestEncodeEmptyGeometry(t *testing.T) {
	blob, err := EncodeGeometry(nil, 4326)
	if err != nil {
		t.Fatalf("EncodeGeometry failed: %v", err)
	}
	if blob[3]&flagEmpty == 0 {
		t.Error("Empty flag should be set")
	}

	g, srsID, err := DecodeGeometry(blob)
	if err != nil {
		t.Fatalf("DecodeGeometry failed: %v", err)
	}
	if g != nil {
		t.Errorf("Expected nil geometry, got %v", g)
	}
	if srsID != 4326 {
		t.Errorf("Expected srs_id 4326, got %d", srsID)
	}
}

func TestDecodeInvalidBlob(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{'G', 'P'}},
		{"bad magic", []byte{'X', 'P', 0, 1, 0, 0, 0, 0}},
		{"bad version", []byte{'G', 'P', 2, 1, 0, 0, 0, 0}},
		{"extended", []byte{'G', 'P', 0, 0x21, 0, 0, 0, 0}},
		{"bad envelope", []byte{'G', 'P', 0, 0x0F, 0, 0, 0, 0}},
		{"truncated envelope", []byte{'G', 'P', 0, 0x03, 0, 0, 0, 0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeGeometry(tt.data)
			var blobErr *ErrInvalidBlob
			if !errors.As(err, &blobErr) {
				t.Errorf("Expected ErrInvalidBlob, got %v", err)
			}
		})
	}
}

func TestWriteReadLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcel_1.gpkg")

	layer := &Layer{
		Name: "parcel_1",
		SRS: SRS{
			ID:           2056,
			Name:         "CH1903+ / LV95",
			Organization: "EPSG",
			OrgCode:      2056,
		},
		Features: []Feature{
			{Geometry: square(0, 0, 10), Attributes: map[string]interface{}{"egrid": "CH1", "area": 100.0, "nr": 7}},
			{Geometry: square(10, 0, 5), Attributes: map[string]interface{}{"egrid": "CH2", "area": 25.0, "nr": 8}},
		},
	}

	if err := WriteFile(path, layer); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := ReadFile(path, "")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if got.Name != "parcel_1" {
		t.Errorf("Expected layer parcel_1, got %s", got.Name)
	}
	if got.GeometryColumn != DefaultGeometryColumn {
		t.Errorf("Expected geometry column %s, got %s", DefaultGeometryColumn, got.GeometryColumn)
	}
	if got.SRS.ID != 2056 || got.SRS.Organization != "EPSG" {
		t.Errorf("Expected EPSG:2056, got %+v", got.SRS)
	}
	if len(got.Features) != 2 {
		t.Fatalf("Expected 2 features, got %d", len(got.Features))
	}
	if len(got.Columns) != 3 {
		t.Errorf("Expected 3 attribute columns, got %d", len(got.Columns))
	}

	first := got.Features[0]
	if first.ID != 1 {
		t.Errorf("Expected fid 1, got %d", first.ID)
	}
	if first.Attributes["egrid"] != "CH1" {
		t.Errorf("Expected egrid CH1, got %v", first.Attributes["egrid"])
	}
	if first.Attributes["area"] != 100.0 {
		t.Errorf("Expected area 100, got %v", first.Attributes["area"])
	}
	if first.Attributes["nr"] != int64(7) {
		t.Errorf("Expected nr 7, got %v (%T)", first.Attributes["nr"], first.Attributes["nr"])
	}
	if !first.Geometry.Bound().Equal(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}) {
		t.Errorf("Unexpected geometry bound %v", first.Geometry.Bound())
	}
}

func TestWriteFileMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.gpkg")
	layer := &Layer{
		Name:     "grid",
		SRS:      SRS{ID: 2056, Name: "LV95", Organization: "EPSG", OrgCode: 2056},
		Features: []Feature{{Geometry: square(0, 0, 1)}, {Geometry: square(1, 0, 1)}},
	}
	if err := WriteFile(path, layer); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var appID, version int64
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if appID != applicationID {
		t.Errorf("Expected application_id %d, got %d", applicationID, appID)
	}
	if version != userVersion {
		t.Errorf("Expected user_version %d, got %d", userVersion, version)
	}

	var srsCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM gpkg_spatial_ref_sys").Scan(&srsCount); err != nil {
		t.Fatal(err)
	}
	if srsCount != 4 {
		t.Errorf("Expected 4 srs rows (-1, 0, 4326, 2056), got %d", srsCount)
	}

	var minX, minY, maxX, maxY float64
	err = db.QueryRow("SELECT min_x, min_y, max_x, max_y FROM gpkg_contents WHERE table_name = 'grid'").
		Scan(&minX, &minY, &maxX, &maxY)
	if err != nil {
		t.Fatal(err)
	}
	if minX != 0 || minY != 0 || maxX != 2 || maxY != 1 {
		t.Errorf("Unexpected contents extent [%v %v %v %v]", minX, minY, maxX, maxY)
	}
}

func TestWriteFileReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.gpkg")
	for i := 1; i <= 2; i++ {
		features := make([]Feature, i)
		for j := range features {
			features[j] = Feature{Geometry: square(float64(j), 0, 1)}
		}
		if err := WriteFile(path, &Layer{Name: "tile", Features: features}); err != nil {
			t.Fatalf("WriteFile #%d failed: %v", i, err)
		}
	}

	got, err := ReadFile(path, "tile")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(got.Features) != 2 {
		t.Errorf("Expected 2 features after overwrite, got %d", len(got.Features))
	}
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFile(filepath.Join(dir, "missing.gpkg"), "")
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "missing.gpkg")); !os.IsNotExist(statErr) {
		t.Error("ReadFile must not create a missing file")
	}

	path := filepath.Join(dir, "tile.gpkg")
	if err := WriteFile(path, &Layer{Name: "tile", Features: []Feature{{Geometry: square(0, 0, 1)}}}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	_, err = ReadFile(path, "other")
	var tableErr *ErrNoFeatureTable
	if !errors.As(err, &tableErr) {
		t.Errorf("Expected ErrNoFeatureTable, got %v", err)
	}
}

func TestInferColumns(t *testing.T) {
	features := []Feature{
		{Attributes: map[string]interface{}{"a": 1, "b": "x", "c": nil, "d": true}},
		{Attributes: map[string]interface{}{"a": 2.5, "b": 3, "c": "later"}},
	}
	got := InferColumns(features)

	want := []Column{
		{Name: "a", Type: "DOUBLE"},
		{Name: "b", Type: "TEXT"},
		{Name: "c", Type: "TEXT"},
		{Name: "d", Type: "BOOLEAN"},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d columns, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Column %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
