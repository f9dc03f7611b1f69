// Package poi turns raw search hits into feature records and manages the
// feature collection document they are written to.
package poi

const (
	// SourceGoogleMap tags records harvested from the Places API.
	SourceGoogleMap = "GoogleMap"

	// DateLayout is the extraction_date format.
	DateLayout = "2006-01-02"

	featureType = "Feature"
	pointType   = "Point"
	polygonType = "Polygon"
)

// Record is one feature of the output collection. Coordinates are written as
// [lat, lng] pairs.
type Record struct {
	Type           string     `json:"type"`
	Geometry       Geometry   `json:"geometry"`
	Properties     Properties `json:"properties"`
	ID             string     `json:"id"`
	ExtractionDate string     `json:"extraction_date"`
}

// Geometry holds the point location and, when the API reports one, the
// place's bounding polygon.
type Geometry struct {
	Location PointGeometry    `json:"location"`
	Bound    *PolygonGeometry `json:"bound,omitempty"`
}

// PointGeometry is a [lat, lng] point.
type PointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// PolygonGeometry is a ring of [lat, lng] vertices.
type PolygonGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Properties are the descriptive fields of a record. Address and Name are
// null when the hit did not carry them.
type Properties struct {
	Address              *Address     `json:"address"`
	Name                 *string      `json:"name"`
	PlaceType            []string     `json:"place_type"`
	Source               string       `json:"source"`
	RequiresVerification Verification `json:"requires_verification"`
}

// Verification is the manual review status of a record.
type Verification struct {
	Summary string `json:"summary"`
}
