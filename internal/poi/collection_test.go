package poi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/poi-extractor/pkg/places"
)

func TestWriteReadCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "poi.json")

	r, err := Build(places.Place{
		PlaceID:  "ChIJ1",
		Name:     strPtr("Hawker"),
		Types:    []string{"food"},
		Geometry: &places.Geometry{Location: &places.LatLng{Lat: 1.35, Lng: 103.94}},
	}, buildTime)
	require.NoError(t, err)

	require.NoError(t, WriteCollection(path, NewCollection([]Record{r})))

	got, err := ReadCollection(path)
	require.NoError(t, err)
	assert.Equal(t, "FeatureCollection", got.Type)
	require.Len(t, got.Features, 1)
	assert.Equal(t, r, got.Features[0])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be renamed away")
}

func TestWriteCollection_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poi.json")
	require.NoError(t, WriteCollection(path, NewCollection(nil)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "FeatureCollection", "features": []}`, string(data))
}

func TestReadCollection_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadCollection(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type":`), 0o644))
	_, err = ReadCollection(bad)
	assert.Error(t, err)

	wrong := filepath.Join(dir, "wrong.json")
	require.NoError(t, os.WriteFile(wrong, []byte(`{"type": "Feature"}`), 0o644))
	_, err = ReadCollection(wrong)
	assert.Error(t, err)
}

func TestWriteBoxSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box_dim.json")
	require.NoError(t, WriteBoxSizes(path, []float64{100, 50, 50, 2.5}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc BoxSizes
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []float64{100, 50, 50, 2.5}, doc.Results)

	require.NoError(t, WriteBoxSizes(path, nil))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results": []}`, string(data))
}
