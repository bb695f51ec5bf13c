package cantons

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMask(t *testing.T) {
	cell := bound(0, 0, 100, 100)

	tests := []struct {
		name     string
		features []Feature
		coverage float64
	}{
		{"full cell", []Feature{feature(1, rect(0, 0, 100, 100))}, 1},
		{"left half", []Feature{feature(1, rect(0, 0, 50, 100))}, 0.5},
		{"bottom quarter", []Feature{feature(1, rect(0, 0, 100, 25))}, 0.25},
		{"nothing", nil, 0},
		{"line ignored", []Feature{feature(1, orb.LineString{{0, 0}, {100, 100}})}, 0},
		{
			name: "hole",
			features: []Feature{feature(1, orb.Polygon{
				rect(0, 0, 100, 100)[0],
				rect(25, 25, 75, 75)[0],
			})},
			coverage: 0.75,
		},
		{
			name: "clockwise outer ring",
			features: []Feature{feature(1, orb.Polygon{
				orb.Ring{{0, 0}, {0, 100}, {50, 100}, {50, 0}, {0, 0}},
			})},
			coverage: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask, err := RenderMask(tt.features, cell, 1)
			require.NoError(t, err)
			assert.Equal(t, 100, mask.Bounds().Dx())
			assert.Equal(t, 100, mask.Bounds().Dy())
			assert.InDelta(t, tt.coverage, MaskCoverage(mask), 0.001)
		})
	}
}

func TestRenderMaskOrientation(t *testing.T) {
	// parcel in the bottom half of the cell, so the top rows stay empty
	mask, err := RenderMask([]Feature{feature(1, rect(0, 0, 10, 5))}, bound(0, 0, 10, 10), 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), mask.GrayAt(5, 2).Y)
	assert.Equal(t, uint8(255), mask.GrayAt(5, 7).Y)
}

func TestRenderMaskPixelSize(t *testing.T) {
	mask, err := RenderMask([]Feature{feature(1, rect(0, 0, 1500, 1500))}, bound(0, 0, 1500, 1500), 10)
	require.NoError(t, err)
	assert.Equal(t, 150, mask.Bounds().Dx())
	assert.InDelta(t, 1, MaskCoverage(mask), 1e-9)

	_, err = RenderMask(nil, bound(0, 0, 10, 10), 0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestWriteMasks(t *testing.T) {
	root := t.TempDir()
	store := NewMemoryStore()
	extracted := extractFixture(t, store)

	paths, err := WriteMasks(context.Background(), store, extracted.Tiles[:2], root, 10)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(root, "masks", "parcel_0.png"), paths[0])

	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 150, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())
}

func TestWriteMasksFromStoredSummaries(t *testing.T) {
	root := t.TempDir()
	store, err := NewGeoPackageStore(root, testCRS)
	require.NoError(t, err)
	extractFixture(t, store)

	summaries, err := Summaries(context.Background(), store, 2, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 5)
	assert.True(t, summaries[3].Cell.Equal(bound(3000, 0, 4500, 1500)))

	paths, err := WriteMasks(context.Background(), store, summaries, root, 15)
	require.NoError(t, err)
	assert.Len(t, paths, 5)
}
