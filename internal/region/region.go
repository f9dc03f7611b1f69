// Package region holds the area of interest as a set of polygons and prunes
// query tiles that fall outside it.
package region

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"github.com/sells-group/poi-extractor/internal/geo"
)

// pointTolerance is the half-width of the degenerate rectangle used to query
// the R-tree with a single point.
const pointTolerance = 1e-9

// Region is a set of polygons in geographic degrees (x = lng, y = lat).
type Region struct {
	polygons []orb.Polygon
	tree     *rtreego.Rtree
	bound    orb.Bound
}

type indexedPolygon struct {
	idx  int
	rect rtreego.Rect
}

func (p *indexedPolygon) Bounds() rtreego.Rect {
	return p.rect
}

// New builds a Region over the given polygons. Empty polygons are ignored.
func New(polygons ...orb.Polygon) *Region {
	r := &Region{tree: rtreego.NewTree(2, 25, 50)}
	for _, p := range polygons {
		if len(p) == 0 || len(p[0]) < 3 {
			continue
		}
		b := p.Bound()
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min.X() - pointTolerance, b.Min.Y() - pointTolerance},
			rtreego.Point{b.Max.X() + pointTolerance, b.Max.Y() + pointTolerance},
		)
		if err != nil {
			zap.L().Debug("region: skipping polygon with invalid bound", zap.Error(err))
			continue
		}
		if len(r.polygons) == 0 {
			r.bound = b
		} else {
			r.bound = r.bound.Union(b)
		}
		r.tree.Insert(&indexedPolygon{idx: len(r.polygons), rect: rect})
		r.polygons = append(r.polygons, p)
	}
	return r
}

// Len returns the number of indexed polygons.
func (r *Region) Len() int {
	return len(r.polygons)
}

// Bound returns the envelope of all polygons. ok is false for an empty region.
func (r *Region) Bound() (box geo.BoundingBox, ok bool) {
	if len(r.polygons) == 0 {
		return geo.BoundingBox{}, false
	}
	return geo.BoundingBox{
		MaxLat: r.bound.Max.Y(),
		MaxLng: r.bound.Max.X(),
		MinLat: r.bound.Min.Y(),
		MinLng: r.bound.Min.X(),
	}, true
}

// ContainsPoint reports whether p lies within any polygon of the region.
func (r *Region) ContainsPoint(p geo.Point) bool {
	pt := orb.Point{p.Lng, p.Lat}
	for _, s := range r.tree.SearchIntersect(rtreego.Point{p.Lng, p.Lat}.ToRect(pointTolerance)) {
		if planar.PolygonContains(r.polygons[s.(*indexedPolygon).idx], pt) {
			return true
		}
	}
	return false
}
