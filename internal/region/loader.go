package region

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Filter selects source records by attribute, e.g. {Field: "PLN_AREA_N",
// Value: "TAMPINES"}. The zero Filter selects everything. Field names match
// case-insensitively; values match exactly after trimming.
type Filter struct {
	Field string
	Value string
}

func (f Filter) empty() bool {
	return f.Field == ""
}

// Load reads every source in paths concurrently and returns one Region over
// all selected polygons. Sources are picked by extension: .shp for
// shapefiles, .geojson or .json for GeoJSON. Coordinates must already be
// geographic degrees (EPSG:4326).
func Load(ctx context.Context, paths []string, filter Filter) (*Region, error) {
	if len(paths) == 0 {
		return nil, eris.New("region: at least one source path is required")
	}

	results := make([][]orb.Polygon, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			var (
				polys []orb.Polygon
				err   error
			)
			switch strings.ToLower(filepath.Ext(p)) {
			case ".shp":
				polys, err = LoadShapefile(p, filter)
			case ".geojson", ".json":
				polys, err = LoadGeoJSON(p, filter)
			default:
				err = eris.Errorf("region: unsupported source %s", p)
			}
			results[i] = polys
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []orb.Polygon
	for _, polys := range results {
		all = append(all, polys...)
	}
	if len(all) == 0 {
		return nil, eris.Errorf("region: no polygons selected from %d source(s)", len(paths))
	}

	r := New(all...)
	zap.L().Info("region loaded",
		zap.Strings("sources", paths),
		zap.Int("polygons", r.Len()),
	)
	return r, nil
}

// LoadShapefile reads the polygon records of a shapefile that match filter.
func LoadShapefile(path string, filter Filter) ([]orb.Polygon, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	filterIdx := -1
	if !filter.empty() {
		idx, ok := fieldIdx[strings.ToLower(filter.Field)]
		if !ok {
			return nil, eris.Errorf("region: shapefile %s has no field %q", path, filter.Field)
		}
		filterIdx = idx
	}

	var (
		polys   []orb.Polygon
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()

		if filterIdx >= 0 {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(filterIdx), "\x00"))
			if val != filter.Value {
				continue
			}
		}

		p, ok := shape.(*shp.Polygon)
		if !ok || p == nil {
			skipped++
			continue
		}
		mp := shapeToMultiPolygon(p)
		if mp == nil {
			skipped++
			continue
		}
		polys = append(polys, fromGeom(mp)...)
	}

	if skipped > 0 {
		zap.L().Debug("region: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return polys, nil
}

// LoadGeoJSON reads the Polygon and MultiPolygon features of a GeoJSON
// FeatureCollection that match filter.
func LoadGeoJSON(path string, filter Filter) ([]orb.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "region: decode geojson %s", path)
	}

	var polys []orb.Polygon
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if !filter.empty() && !propertyMatches(f.Properties, filter) {
			continue
		}
		polys = append(polys, fromGeom(f.Geometry)...)
	}
	return polys, nil
}

func propertyMatches(props map[string]interface{}, filter Filter) bool {
	for k, v := range props {
		if strings.EqualFold(k, filter.Field) {
			return strings.TrimSpace(fmt.Sprint(v)) == filter.Value
		}
	}
	return false
}

// shapeToMultiPolygon assembles shapefile parts into polygons. Clockwise
// parts are outer rings and start a new polygon; counter-clockwise parts are
// holes of the preceding outer ring.
func shapeToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		lr := geom.NewLinearRingFlat(geom.XY, flat)

		if ring.Orientation() == orb.CCW && current != nil {
			if err := current.Push(lr); err != nil {
				zap.L().Debug("region: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}

		if current != nil {
			if err := mp.Push(current); err != nil {
				zap.L().Debug("region: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
			}
		}
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(lr); err != nil {
			zap.L().Debug("region: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			current = nil
		}
	}
	if current != nil {
		if err := mp.Push(current); err != nil {
			zap.L().Debug("region: skipping malformed polygon", zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// fromGeom converts polygonal go-geom geometries to orb polygons. Other
// geometry types yield nothing.
func fromGeom(g geom.T) []orb.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []orb.Polygon{polygonFromGeom(t)}
	case *geom.MultiPolygon:
		polys := make([]orb.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, polygonFromGeom(t.Polygon(i)))
		}
		return polys
	default:
		return nil
	}
}

func polygonFromGeom(p *geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		lr := p.LinearRing(i)
		flat, stride := lr.FlatCoords(), lr.Stride()
		ring := make(orb.Ring, 0, len(flat)/stride)
		for j := 0; j+1 < len(flat); j += stride {
			ring = append(ring, orb.Point{flat[j], flat[j+1]})
		}
		poly = append(poly, ring)
	}
	return poly
}
