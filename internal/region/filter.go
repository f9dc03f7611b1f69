package region

import (
	"github.com/sells-group/poi-extractor/internal/geo"
)

// FilterToRegion keeps the tiles that have at least one corner inside r.
//
// Only the four corners are sampled, so a tile whose interior crosses a thin
// part of the region while every corner is outside is dropped. Keep tile
// edges small relative to the curvature of the region boundary.
//
// A nil region keeps every tile.
func FilterToRegion(tiles []geo.Tile, r *Region) []geo.Tile {
	if r == nil {
		return tiles
	}
	kept := make([]geo.Tile, 0, len(tiles))
	for _, t := range tiles {
		for _, c := range t.Corners() {
			if r.ContainsPoint(c) {
				kept = append(kept, t)
				break
			}
		}
	}
	return kept
}
