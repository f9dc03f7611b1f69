package poi

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

const collectionType = "FeatureCollection"

// Collection is the output document.
type Collection struct {
	Type     string   `json:"type"`
	Features []Record `json:"features"`
}

// NewCollection wraps records in a FeatureCollection.
func NewCollection(records []Record) *Collection {
	if records == nil {
		records = []Record{}
	}
	return &Collection{Type: collectionType, Features: records}
}

// BoxSizes is the diagnostics document listing the final tile edge of every
// resolved tile, in meters.
type BoxSizes struct {
	Results []float64 `json:"results"`
}

// ReadCollection loads a collection document from path.
func ReadCollection(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "poi: read %s", path)
	}
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "poi: decode %s", path)
	}
	if c.Type != collectionType {
		return nil, eris.Errorf("poi: %s is not a FeatureCollection (type %q)", path, c.Type)
	}
	if c.Features == nil {
		c.Features = []Record{}
	}
	return &c, nil
}

// WriteCollection writes c to path, replacing any existing file atomically.
func WriteCollection(path string, c *Collection) error {
	return writeJSON(path, c)
}

// WriteBoxSizes writes the final tile edges to path.
func WriteBoxSizes(path string, edges []float64) error {
	if edges == nil {
		edges = []float64{}
	}
	return writeJSON(path, BoxSizes{Results: edges})
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "poi: encode document")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "poi: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "poi: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "poi: write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "poi: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "poi: rename to %s", path)
	}
	return nil
}
