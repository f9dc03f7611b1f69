package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func ptr(v float64) *float64 { return &v }

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://maps.googleapis.com/maps/api/place", cfg.Places.BaseURL)
	assert.Equal(t, 1, cfg.Places.MaxPages)
	assert.Equal(t, 2000, cfg.Places.PageTokenDelayMs)
	assert.InDelta(t, 50.0, cfg.Extract.WidthMeters, 0.001)
	assert.InDelta(t, 50.0, cfg.Extract.HeightMeters, 0.001)
	assert.InDelta(t, 100.0, cfg.Extract.EdgeMeters, 0.001)
	assert.InDelta(t, 2.5, cfg.Extract.MinEdgeMeters, 0.001)
	assert.Equal(t, 32, cfg.Extract.MaxDepth)
	assert.Equal(t, time.Second, cfg.Extract.Pace())
	assert.Equal(t, 15*time.Minute, cfg.Retry.Cooldown())
	assert.Equal(t, time.Second, cfg.Retry.Backoff())
	assert.Zero(t, cfg.Retry.MaxAttempts)
	assert.Zero(t, cfg.Retry.Jitter)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "poi.json", cfg.Output.Path)
	assert.Equal(t, "box_dim.json", cfg.Output.BoxSizesPath)
	assert.False(t, cfg.Output.Merge)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// No area given
	assert.Nil(t, cfg.Extract.MaxLat)
	assert.Nil(t, cfg.Extract.Lat)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
extract:
  max_lat: 1.3010
  max_lng: 103.8410
  min_lat: 1.3000
  min_lng: 103.8400
  edge_m: 40
store:
  driver: sqlite
  database_url: features.db
region:
  paths: [planning_area.shp]
  field: PLN_AREA_N
  value: ORCHARD
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Extract.MaxLat)
	assert.InDelta(t, 1.3010, *cfg.Extract.MaxLat, 1e-9)
	assert.InDelta(t, 103.8400, *cfg.Extract.MinLng, 1e-9)
	assert.InDelta(t, 40.0, cfg.Extract.EdgeMeters, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "features.db", cfg.Store.DatabaseURL)
	assert.Equal(t, []string{"planning_area.shp"}, cfg.Region.Paths)
	assert.Equal(t, "PLN_AREA_N", cfg.Region.Field)
	assert.Equal(t, "ORCHARD", cfg.Region.Value)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.InDelta(t, 2.5, cfg.Extract.MinEdgeMeters, 0.001)

	box, err := cfg.Extract.ResolveBox()
	require.NoError(t, err)
	assert.InDelta(t, 1.3010, box.MaxLat, 1e-9)
	assert.InDelta(t, 103.8400, box.MinLng, 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("POI_STORE_DRIVER", "postgres")
	t.Setenv("POI_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("POI_EXTRACT_MIN_EDGE_M", "5")
	t.Setenv("POI_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("POI_RETRY_JITTER", "0.2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, cfg.Extract.MinEdgeMeters, 0.001)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.InDelta(t, 0.2, cfg.Retry.Jitter, 1e-9)
}

func TestLoadEnvAreaAndAPIKey(t *testing.T) {
	chdirTemp(t)

	t.Setenv("POI_PLACES_API_KEY", "key-123")
	t.Setenv("POI_EXTRACT_LAT", "1.3")
	t.Setenv("POI_EXTRACT_LNG", "103.84")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "key-123", cfg.Places.APIKey)
	require.NotNil(t, cfg.Extract.Lat)
	require.NotNil(t, cfg.Extract.Lng)
	assert.InDelta(t, 1.3, *cfg.Extract.Lat, 1e-9)
	assert.InDelta(t, 103.84, *cfg.Extract.Lng, 1e-9)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("POI_OUTPUT_PATH=from-dotenv.json\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("POI_OUTPUT_PATH") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.json", cfg.Output.Path)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the loaded defaults and a complete box.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Places.APIKey = "key"
	cfg.Places.MaxPages = 1
	cfg.Extract.MaxLat = ptr(1.3010)
	cfg.Extract.MaxLng = ptr(103.8410)
	cfg.Extract.MinLat = ptr(1.3000)
	cfg.Extract.MinLng = ptr(103.8400)
	cfg.Extract.WidthMeters = 50
	cfg.Extract.HeightMeters = 50
	cfg.Extract.EdgeMeters = 100
	cfg.Extract.MinEdgeMeters = 2.5
	cfg.Extract.MaxDepth = 32
	cfg.Extract.PaceMs = 1000
	cfg.Retry.CooldownMinutes = 15
	cfg.Retry.BackoffMs = 1000
	cfg.Store.Driver = "memory"
	cfg.Output.Path = "poi.json"
	return cfg
}

func TestValidateExtract_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("extract"))
}

func TestValidateExtract_CenterPoint(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.MaxLat, cfg.Extract.MaxLng, cfg.Extract.MinLat, cfg.Extract.MinLng = nil, nil, nil, nil
	cfg.Extract.Lat = ptr(1.3)
	cfg.Extract.Lng = ptr(103.84)

	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateExtract_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Places.APIKey = ""
	cfg.Extract.MaxLat = nil
	cfg.Output.Path = ""

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "places.api_key is required")
	assert.Contains(t, err.Error(), "incomplete area")
	assert.Contains(t, err.Error(), "output.path is required")
}

func TestValidateExtract_NoArea(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.MaxLat, cfg.Extract.MaxLng, cfg.Extract.MinLat, cfg.Extract.MinLng = nil, nil, nil, nil

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no area")
}

func TestValidateExtract_EdgeBelowFloor(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.EdgeMeters = 2

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.edge_m must be >= extract.min_edge_m")
}

func TestValidateExtract_JitterRange(t *testing.T) {
	cfg := validDefaults()
	cfg.Retry.Jitter = 1

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry.jitter must be in [0, 1)")

	cfg.Retry.Jitter = 0.25
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateExtract_InvertedBox(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.MaxLat, cfg.Extract.MinLat = cfg.Extract.MinLat, cfg.Extract.MaxLat

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract:")
}

func TestValidateExtract_StoreDrivers(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		dsn     string
		wantErr string
	}{
		{name: "memory", driver: "memory"},
		{name: "empty defaults to memory", driver: ""},
		{name: "sqlite with dsn", driver: "sqlite", dsn: "features.db"},
		{name: "sqlite without dsn", driver: "sqlite", wantErr: "store.database_url is required for the sqlite driver"},
		{name: "postgres without dsn", driver: "postgres", wantErr: "store.database_url is required for the postgres driver"},
		{name: "unknown", driver: "redis", wantErr: "store.driver must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			cfg.Store.Driver = tt.driver
			cfg.Store.DatabaseURL = tt.dsn

			err := cfg.Validate("extract")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateExtract_MaxPagesBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Places.MaxPages = 4

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "places.max_pages must be between 1 and 3")
}

func TestValidateExtract_RegionFilterWithoutPaths(t *testing.T) {
	cfg := validDefaults()
	cfg.Region.Field = "PLN_AREA_N"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region.field and region.value need region.paths")
}

func TestValidateDedupe(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("dedupe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.path is required")

	cfg.Output.Path = "poi.json"
	assert.NoError(t, cfg.Validate("dedupe"))
}

func TestValidateRegion(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("region")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region.paths is required")

	cfg.Region.Paths = []string{"planning_area.geojson"}
	assert.NoError(t, cfg.Validate("region"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestResolveBox_CenterTakesPrecedence(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.Lat = ptr(1.0)
	cfg.Extract.Lng = ptr(103.0)

	box, err := cfg.Extract.ResolveBox()
	require.NoError(t, err)
	c := box.Centroid()
	assert.InDelta(t, 1.0, c.Lat, 1e-9)
	assert.InDelta(t, 103.0, c.Lng, 1e-9)
}

func TestResolveBox_CenterNeedsExtent(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.Lat = ptr(1.0)
	cfg.Extract.Lng = ptr(103.0)
	cfg.Extract.WidthMeters = 0

	_, err := cfg.Extract.ResolveBox()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConfiguration))
}
