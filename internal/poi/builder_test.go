package poi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/poi-extractor/pkg/places"
)

func strPtr(s string) *string { return &s }

var buildTime = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

func TestBuild_FullHit(t *testing.T) {
	hit := places.Place{
		PlaceID:  "ChIJ123",
		Name:     strPtr("Tampines Mall"),
		Vicinity: strPtr("4 Tampines Central 5, Singapore 529510"),
		Types:    []string{"shopping_mall", "point_of_interest", "shopping_mall"},
		Geometry: &places.Geometry{
			Location: &places.LatLng{Lat: 1.3525, Lng: 103.9447},
			Bounds: &places.Bounds{
				Northeast: places.LatLng{Lat: 1.353, Lng: 103.945},
				Southwest: places.LatLng{Lat: 1.352, Lng: 103.944},
			},
		},
	}

	rec, err := Build(hit, buildTime)
	require.NoError(t, err)

	assert.Equal(t, "Feature", rec.Type)
	assert.Equal(t, "ChIJ123", rec.ID)
	assert.Equal(t, "2024-03-09", rec.ExtractionDate)
	assert.Equal(t, [2]float64{1.3525, 103.9447}, rec.Geometry.Location.Coordinates)
	assert.Equal(t, "Point", rec.Geometry.Location.Type)

	require.NotNil(t, rec.Geometry.Bound)
	assert.Equal(t, "Polygon", rec.Geometry.Bound.Type)
	assert.Equal(t, [][2]float64{
		{1.352, 103.945},
		{1.353, 103.945},
		{1.353, 103.944},
		{1.352, 103.944},
	}, rec.Geometry.Bound.Coordinates)

	require.NotNil(t, rec.Properties.Name)
	assert.Equal(t, "Tampines Mall", *rec.Properties.Name)
	assert.Equal(t, []string{"shopping_mall", "point_of_interest"}, rec.Properties.PlaceType)
	assert.Equal(t, "GoogleMap", rec.Properties.Source)
	assert.Equal(t, "No", rec.Properties.RequiresVerification.Summary)

	require.NotNil(t, rec.Properties.Address)
	assert.Equal(t, "4", rec.Properties.Address.StreetNumber)
	assert.Equal(t, "Tampines Central 5", rec.Properties.Address.StreetName)
	assert.Equal(t, "529510", rec.Properties.Address.PostalCode)
}

func TestBuild_OptionalFieldsAbsent(t *testing.T) {
	hit := places.Place{
		PlaceID:  "ChIJ456",
		Geometry: &places.Geometry{Location: &places.LatLng{Lat: 1.35, Lng: 103.94}},
	}

	rec, err := Build(hit, buildTime)
	require.NoError(t, err)

	assert.Nil(t, rec.Geometry.Bound)
	assert.Nil(t, rec.Properties.Name)
	assert.Nil(t, rec.Properties.Address)
	assert.NotNil(t, rec.Properties.PlaceType)
	assert.Empty(t, rec.Properties.PlaceType)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	geometry := doc["geometry"].(map[string]any)
	assert.NotContains(t, geometry, "bound")
	props := doc["properties"].(map[string]any)
	assert.Nil(t, props["name"])
	assert.Nil(t, props["address"])
	assert.Equal(t, []any{}, props["place_type"])
}

func TestBuild_MalformedHits(t *testing.T) {
	tests := []struct {
		name string
		hit  places.Place
	}{
		{"no geometry", places.Place{PlaceID: "a"}},
		{"no location", places.Place{PlaceID: "a", Geometry: &places.Geometry{}}},
		{"no id", places.Place{Geometry: &places.Geometry{Location: &places.LatLng{Lat: 1, Lng: 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.hit, buildTime)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrMalformedHit))
		})
	}
}
