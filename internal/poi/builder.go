package poi

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/poi-extractor/pkg/places"
)

// ErrMalformedHit is returned for hits missing a required field. The caller
// drops the hit and carries on with the rest of the tile.
var ErrMalformedHit = eris.New("poi: malformed hit")

// Build converts one search hit into a Record stamped with now's date.
func Build(hit places.Place, now time.Time) (Record, error) {
	if hit.PlaceID == "" {
		return Record{}, eris.Wrap(ErrMalformedHit, "missing place_id")
	}
	loc, ok := hit.Location()
	if !ok {
		return Record{}, eris.Wrapf(ErrMalformedHit, "place %s: missing location", hit.PlaceID)
	}

	rec := Record{
		Type: featureType,
		Geometry: Geometry{
			Location: PointGeometry{Type: pointType, Coordinates: [2]float64{loc.Lat, loc.Lng}},
		},
		Properties: Properties{
			Name:                 hit.Name,
			PlaceType:            placeTypes(hit.Types),
			Source:               SourceGoogleMap,
			RequiresVerification: Verification{Summary: "No"},
		},
		ID:             hit.PlaceID,
		ExtractionDate: now.Format(DateLayout),
	}

	if hit.Geometry.Bounds != nil {
		rec.Geometry.Bound = boundPolygon(*hit.Geometry.Bounds)
	}
	if hit.Vicinity != nil {
		rec.Properties.Address = SegmentAddress(*hit.Vicinity)
	}

	return rec, nil
}

func boundPolygon(b places.Bounds) *PolygonGeometry {
	ne, sw := b.Northeast, b.Southwest
	return &PolygonGeometry{
		Type: polygonType,
		Coordinates: [][2]float64{
			{sw.Lat, ne.Lng},
			{ne.Lat, ne.Lng},
			{ne.Lat, sw.Lng},
			{sw.Lat, sw.Lng},
		},
	}
}

func placeTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]struct{}, len(types))
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
