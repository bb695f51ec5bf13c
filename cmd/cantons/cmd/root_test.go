package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

func writeParcels(t *testing.T, path string) {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for i, b := range []orb.Bound{
		{Min: orb.Point{0, 0}, Max: orb.Point{3000, 1500}},
		{Min: orb.Point{3100, 1600}, Max: orb.Point{3600, 2100}},
	} {
		f := geojson.NewFeature(b.ToPolygon())
		f.Properties["egrid"] = "CH" + string(rune('A'+i))
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cantons.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cell_size": 1000, "threshold": 0.3, "format": "geojson"}`), 0o644))

	t.Setenv("CANTONS_THRESHOLD", "0.2")
	t.Setenv("CANTONS_WORKERS", "3")

	configPath = path
	defer func() { configPath = "" }()
	require.NoError(t, gridCmd.ParseFlags([]string{"--cell-size", "750"}))
	defer func() {
		f := gridCmd.Flags().Lookup("cell-size")
		_ = f.Value.Set("1500")
		f.Changed = false
	}()

	c, err := loadConfig(gridCmd)
	require.NoError(t, err)
	assert.Equal(t, 750.0, c.CellSize, "flag overrides file")
	assert.Equal(t, 0.2, c.Threshold, "environment overrides file")
	assert.Equal(t, 3, c.Workers)
	assert.Equal(t, "geojson", c.Format)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("CANTONS_THRESHOLD", "2")

	_, err := loadConfig(gridCmd)
	assert.ErrorIs(t, err, cantons.ErrInvalidConfiguration)
	assert.ErrorContains(t, err, "threshold")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "parcels.geojson")
	writeParcels(t, input)
	out := filepath.Join(dir, "out")

	rootCmd.SetArgs([]string{"run", "--data", input, "--crs", "EPSG:2056", "--output", out, "--masks", "--mask-pixel-size", "15"})
	require.NoError(t, rootCmd.Execute())

	assert.FileExists(t, filepath.Join(out, "grid", "grid.gpkg"))
	assert.FileExists(t, filepath.Join(out, "parcels", "parcel_0.gpkg"))
	assert.FileExists(t, filepath.Join(out, "masks", "parcel_0.png"))
	assert.NoFileExists(t, filepath.Join(out, "parcels", "parcel_2.gpkg"))
}
