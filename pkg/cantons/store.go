package cantons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/cantons/internal/gpkg"
)

// Output directories and names, relative to a store root.
const (
	ParcelsDir = "parcels"
	GridDir    = "grid"
	GridName   = "grid"
)

// TileName returns the file and layer name of tile key, e.g. "parcel_3".
func TileName(key int) string {
	return "parcel_" + strconv.Itoa(key)
}

// TileStore persists tiles and the grid. Implementations must allow
// concurrent LoadTile calls.
type TileStore interface {
	// PutTile writes t under t.Key, replacing any previous tile with that
	// key, and returns its location.
	PutTile(ctx context.Context, t *Tile) (string, error)

	// PutGrid writes every cell of g with its grid index.
	PutGrid(ctx context.Context, g *Grid) (string, error)

	// LoadTile reads tile key. A missing tile returns an error matching
	// ErrTileNotFound.
	LoadTile(ctx context.Context, key int) (*Tile, error)

	// LoadGrid reads the cells written by PutGrid, ordered by index.
	LoadGrid(ctx context.Context) ([]GridCell, error)

	// RemoveTile deletes tile key. Removing a missing tile is not an error.
	RemoveTile(ctx context.Context, key int) error

	// Keys lists stored tile keys in ascending order.
	Keys(ctx context.Context) ([]int, error)
}

// Format selects the on-disk tile encoding.
type Format string

const (
	FormatGeoPackage Format = "gpkg"
	FormatGeoJSON    Format = "geojson"
)

// NewStore returns the file store for format rooted at root. The parcels
// and grid directories are created if needed.
func NewStore(root string, format Format, crs CRS) (TileStore, error) {
	switch format {
	case FormatGeoPackage, "":
		return NewGeoPackageStore(root, crs)
	case FormatGeoJSON:
		return NewGeoJSONStore(root, crs)
	}
	return nil, &ConfigError{Field: "format", Reason: fmt.Sprintf("unknown tile format %q", format)}
}

// fileStore holds what the file-backed stores share: directory layout,
// key discovery and removal.
type fileStore struct {
	root string
	ext  string
	crs  CRS
}

func newFileStore(root, ext string, crs CRS) (fileStore, error) {
	for _, dir := range []string{filepath.Join(root, ParcelsDir), filepath.Join(root, GridDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fileStore{}, &PersistenceError{Op: "create directory", Path: dir, Err: err}
		}
	}
	return fileStore{root: root, ext: ext, crs: crs}, nil
}

// Root returns the directory holding parcels/ and grid/.
func (s fileStore) Root() string { return s.root }

// TilePath returns the file of tile key.
func (s fileStore) TilePath(key int) string {
	return filepath.Join(s.root, ParcelsDir, TileName(key)+s.ext)
}

// GridPath returns the grid file.
func (s fileStore) GridPath() string {
	return filepath.Join(s.root, GridDir, GridName+s.ext)
}

func (s fileStore) RemoveTile(_ context.Context, key int) error {
	path := s.TilePath(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "remove tile", Path: path, Err: err}
	}
	return nil
}

func (s fileStore) Keys(_ context.Context) ([]int, error) {
	dir := filepath.Join(s.root, ParcelsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &PersistenceError{Op: "list tiles", Path: dir, Err: err}
	}

	var keys []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "parcel_") || !strings.HasSuffix(name, s.ext) {
			continue
		}
		key, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "parcel_"), s.ext))
		if err != nil || key < 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Ints(keys)
	return keys, nil
}

func (s fileStore) tileMissing(key int) error {
	path := s.TilePath(key)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%s: %w", path, ErrTileNotFound)
	}
	return nil
}

// gridFeatures returns one feature per cell carrying its index, column and row.
func gridFeatures(g *Grid) []Feature {
	features := make([]Feature, len(g.Cells))
	for i, c := range g.Cells {
		features[i] = Feature{
			ID:       int64(c.Index + 1),
			Geometry: c.Polygon(),
			Attributes: map[string]interface{}{
				GridIndexAttribute: c.Index,
				"col":              c.Col,
				"row":              c.Row,
			},
		}
	}
	return features
}

// cellFromFeature is the inverse of gridFeatures.
func cellFromFeature(f Feature) (GridCell, error) {
	index, err := attributeInt(f.Attributes, GridIndexAttribute)
	if err != nil {
		return GridCell{}, err
	}
	col, _ := attributeInt(f.Attributes, "col")
	row, _ := attributeInt(f.Attributes, "row")
	if f.Geometry == nil {
		return GridCell{}, fmt.Errorf("grid cell %d has no geometry", index)
	}
	return GridCell{Index: index, Col: col, Row: row, Bound: f.Geometry.Bound()}, nil
}

// tileFromFeatures rebuilds a tile read back from storage. The grid index
// comes from the stamped attribute.
func tileFromFeatures(key int, features []Feature) (*Tile, error) {
	t := &Tile{Key: key, GridIndex: -1, Features: features}
	if len(features) > 0 {
		index, err := attributeInt(features[0].Attributes, GridIndexAttribute)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", key, err)
		}
		t.GridIndex = index
		t.Cell.Index = index
	}
	return t, nil
}

// GeoPackageStore writes parcels/parcel_{key}.gpkg with layer parcel_{key}
// and grid/grid.gpkg with layer grid.
type GeoPackageStore struct {
	fileStore
}

// NewGeoPackageStore creates the store and its directories under root.
func NewGeoPackageStore(root string, crs CRS) (*GeoPackageStore, error) {
	fs, err := newFileStore(root, ".gpkg", crs)
	if err != nil {
		return nil, err
	}
	return &GeoPackageStore{fileStore: fs}, nil
}

func (s *GeoPackageStore) PutTile(ctx context.Context, t *Tile) (string, error) {
	path := s.TilePath(t.Key)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := gpkg.WriteFile(path, s.layer(TileName(t.Key), t.Features)); err != nil {
		return "", &PersistenceError{Op: "write tile", Path: path, Err: err}
	}
	return path, nil
}

func (s *GeoPackageStore) PutGrid(ctx context.Context, g *Grid) (string, error) {
	path := s.GridPath()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := gpkg.WriteFile(path, s.layer(GridName, gridFeatures(g))); err != nil {
		return "", &PersistenceError{Op: "write grid", Path: path, Err: err}
	}
	return path, nil
}

func (s *GeoPackageStore) LoadTile(ctx context.Context, key int) (*Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.tileMissing(key); err != nil {
		return nil, err
	}
	path := s.TilePath(key)
	layer, err := gpkg.ReadFile(path, TileName(key))
	if err != nil {
		return nil, &PersistenceError{Op: "read tile", Path: path, Err: err}
	}
	return tileFromFeatures(key, featuresFromLayer(layer))
}

func (s *GeoPackageStore) LoadGrid(ctx context.Context) ([]GridCell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.GridPath()
	layer, err := gpkg.ReadFile(path, GridName)
	if err != nil {
		return nil, &PersistenceError{Op: "read grid", Path: path, Err: err}
	}
	return cellsFromFeatures(featuresFromLayer(layer))
}

func (s *GeoPackageStore) layer(name string, features []Feature) *gpkg.Layer {
	l := &gpkg.Layer{
		Name: name,
		SRS:  s.crs.vector().SRS(),
	}
	l.Features = make([]gpkg.Feature, len(features))
	for i, f := range features {
		l.Features[i] = gpkg.Feature{Geometry: f.Geometry, Attributes: f.Attributes}
	}
	return l
}

func featuresFromLayer(l *gpkg.Layer) []Feature {
	features := make([]Feature, len(l.Features))
	for i, f := range l.Features {
		features[i] = Feature{ID: f.ID, Geometry: f.Geometry, Attributes: f.Attributes}
	}
	return features
}

func cellsFromFeatures(features []Feature) ([]GridCell, error) {
	cells := make([]GridCell, 0, len(features))
	for _, f := range features {
		c, err := cellFromFeature(f)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Index < cells[j].Index })
	return cells, nil
}

// GeoJSONStore writes parcels/parcel_{key}.geojson and grid/grid.geojson.
// The CRS is written as the legacy "crs" member.
type GeoJSONStore struct {
	fileStore
}

// NewGeoJSONStore creates the store and its directories under root.
func NewGeoJSONStore(root string, crs CRS) (*GeoJSONStore, error) {
	fs, err := newFileStore(root, ".geojson", crs)
	if err != nil {
		return nil, err
	}
	return &GeoJSONStore{fileStore: fs}, nil
}

func (s *GeoJSONStore) PutTile(ctx context.Context, t *Tile) (string, error) {
	path := s.TilePath(t.Key)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.write(path, t.Features); err != nil {
		return "", &PersistenceError{Op: "write tile", Path: path, Err: err}
	}
	return path, nil
}

func (s *GeoJSONStore) PutGrid(ctx context.Context, g *Grid) (string, error) {
	path := s.GridPath()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.write(path, gridFeatures(g)); err != nil {
		return "", &PersistenceError{Op: "write grid", Path: path, Err: err}
	}
	return path, nil
}

func (s *GeoJSONStore) LoadTile(ctx context.Context, key int) (*Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.tileMissing(key); err != nil {
		return nil, err
	}
	path := s.TilePath(key)
	features, err := s.read(path)
	if err != nil {
		return nil, &PersistenceError{Op: "read tile", Path: path, Err: err}
	}
	return tileFromFeatures(key, features)
}

func (s *GeoJSONStore) LoadGrid(ctx context.Context) ([]GridCell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.GridPath()
	features, err := s.read(path)
	if err != nil {
		return nil, &PersistenceError{Op: "read grid", Path: path, Err: err}
	}
	return cellsFromFeatures(features)
}

func (s *GeoJSONStore) write(path string, features []Feature) error {
	fc := geojson.NewFeatureCollection()
	if !s.crs.IsZero() {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": crsURN(s.crs)},
			},
		}
	}
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = f.ID
		for k, v := range f.Attributes {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *GeoJSONStore) read(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	features := make([]Feature, len(fc.Features))
	for i, gf := range fc.Features {
		var id int64
		if n, ok := gf.ID.(float64); ok {
			id = int64(n)
		}
		features[i] = Feature{ID: id, Geometry: gf.Geometry, Attributes: map[string]interface{}(gf.Properties)}
	}
	return features, nil
}

// crsURN names c the way GDAL writes the legacy GeoJSON crs member.
func crsURN(c CRS) string {
	if c.Organization != "" && c.Code > 0 {
		return fmt.Sprintf("urn:ogc:def:crs:%s::%d", c.Organization, c.Code)
	}
	return c.String()
}

// MemoryStore keeps tiles in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	tiles map[int]*Tile
	grid  []GridCell
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tiles: make(map[int]*Tile)}
}

func (s *MemoryStore) PutTile(ctx context.Context, t *Tile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cp := *t
	cp.Features = cloneFeatures(t.Features)
	s.mu.Lock()
	s.tiles[t.Key] = &cp
	s.mu.Unlock()
	return "mem:" + TileName(t.Key), nil
}

func (s *MemoryStore) PutGrid(ctx context.Context, g *Grid) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cells := make([]GridCell, len(g.Cells))
	copy(cells, g.Cells)
	s.mu.Lock()
	s.grid = cells
	s.mu.Unlock()
	return "mem:" + GridName, nil
}

func (s *MemoryStore) LoadTile(ctx context.Context, key int) (*Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := s.tiles[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", TileName(key), ErrTileNotFound)
	}
	cp := *t
	cp.Features = cloneFeatures(t.Features)
	return &cp, nil
}

func (s *MemoryStore) LoadGrid(ctx context.Context) ([]GridCell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grid == nil {
		return nil, &PersistenceError{Op: "read grid", Path: "mem:" + GridName, Err: errors.New("grid not written")}
	}
	return append([]GridCell(nil), s.grid...), nil
}

func (s *MemoryStore) RemoveTile(ctx context.Context, key int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tiles, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	keys := make([]int, 0, len(s.tiles))
	for k := range s.tiles {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Ints(keys)
	return keys, nil
}

func cloneFeatures(features []Feature) []Feature {
	out := make([]Feature, len(features))
	for i, f := range features {
		out[i] = f.clone()
	}
	return out
}

var (
	_ TileStore = (*GeoPackageStore)(nil)
	_ TileStore = (*GeoJSONStore)(nil)
	_ TileStore = (*MemoryStore)(nil)
)
