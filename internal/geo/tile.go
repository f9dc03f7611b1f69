package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/rotisserie/eris"
)

// tessellationSlack is the fraction of a step by which a box may exceed a
// whole number of tiles without spawning an extra row or column. The last
// row/column is stretched to close any such gap.
const tessellationSlack = 1e-3

// Tile is a square sub-box of a larger search box.
type Tile struct {
	BoundingBox
	// EdgeMeters is the edge length the tile was cut at.
	EdgeMeters float64 `json:"edge_m"`
	// Depth is the number of subdivisions between the initial box and this tile.
	Depth int `json:"depth"`
}

// Key returns the geohash of the tile centroid.
func (t Tile) Key() string {
	c := t.Centroid()
	return geohash.Encode(c.Lat, c.Lng)
}

// Tessellate partitions b into a row-major grid of square tiles with the given
// edge length, starting at the south-west corner. The grid always covers b;
// the last row and column may extend past the north and east edges.
func Tessellate(b BoundingBox, edgeMeters float64) ([]Tile, error) {
	if !(edgeMeters > 0) {
		return nil, eris.Errorf("geo: tile edge must be positive, got %v", edgeMeters)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	latM, lngM := MetersPerDegree(b.Centroid().Lat)
	latStep := edgeMeters / latM
	lngStep := edgeMeters / lngM

	rows := stepsToCover(b.MaxLat-b.MinLat, latStep)
	cols := stepsToCover(b.MaxLng-b.MinLng, lngStep)

	tiles := make([]Tile, 0, rows*cols)
	for r := 0; r < rows; r++ {
		minLat := b.MinLat + float64(r)*latStep
		maxLat := minLat + latStep
		if r == rows-1 && maxLat < b.MaxLat {
			maxLat = b.MaxLat
		}
		for c := 0; c < cols; c++ {
			minLng := b.MinLng + float64(c)*lngStep
			maxLng := minLng + lngStep
			if c == cols-1 && maxLng < b.MaxLng {
				maxLng = b.MaxLng
			}
			tiles = append(tiles, Tile{
				BoundingBox: BoundingBox{MaxLat: maxLat, MaxLng: maxLng, MinLat: minLat, MinLng: minLng},
				EdgeMeters:  edgeMeters,
			})
		}
	}
	return tiles, nil
}

func stepsToCover(span, step float64) int {
	n := int(math.Ceil(span/step - tessellationSlack))
	if n < 1 {
		n = 1
	}
	return n
}
