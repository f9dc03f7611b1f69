package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/poi-extractor/internal/geo"
)

// ErrConfiguration marks settings that make a command impossible to run.
var ErrConfiguration = eris.New("config: invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Places  PlacesConfig  `yaml:"places" mapstructure:"places"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Region  RegionConfig  `yaml:"region" mapstructure:"region"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PlacesConfig configures the Nearby Search client.
type PlacesConfig struct {
	APIKey           string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	MaxPages         int    `yaml:"max_pages" mapstructure:"max_pages"`
	PageTokenDelayMs int    `yaml:"page_token_delay_ms" mapstructure:"page_token_delay_ms"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ExtractConfig describes the search area and subdivision parameters. The
// area is either a bounding box or a center point with a metric extent.
type ExtractConfig struct {
	MaxLat *float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MaxLng *float64 `yaml:"max_lng" mapstructure:"max_lng"`
	MinLat *float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MinLng *float64 `yaml:"min_lng" mapstructure:"min_lng"`
	Lat    *float64 `yaml:"lat" mapstructure:"lat"`
	Lng    *float64 `yaml:"lng" mapstructure:"lng"`

	WidthMeters   float64 `yaml:"width_m" mapstructure:"width_m"`
	HeightMeters  float64 `yaml:"height_m" mapstructure:"height_m"`
	EdgeMeters    float64 `yaml:"edge_m" mapstructure:"edge_m"`
	MinEdgeMeters float64 `yaml:"min_edge_m" mapstructure:"min_edge_m"`
	MaxDepth      int     `yaml:"max_depth" mapstructure:"max_depth"`
	PaceMs        int     `yaml:"pace_ms" mapstructure:"pace_ms"`
}

// RetryConfig configures how failed searches are retried.
type RetryConfig struct {
	CooldownMinutes float64 `yaml:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	BackoffMs       int     `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	// MaxAttempts of zero retries a tile until it succeeds.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// Jitter spreads each backoff by up to this fraction either way.
	Jitter float64 `yaml:"jitter" mapstructure:"jitter"`
}

// RegionConfig selects the polygons the search is restricted to.
type RegionConfig struct {
	Paths []string `yaml:"paths" mapstructure:"paths"`
	Field string   `yaml:"field" mapstructure:"field"`
	Value string   `yaml:"value" mapstructure:"value"`
}

// StoreConfig configures the feature log.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig names the documents a run writes.
type OutputConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	BoxSizesPath    string `yaml:"box_sizes_path" mapstructure:"box_sizes_path"`
	DeadLettersPath string `yaml:"dead_letters_path" mapstructure:"dead_letters_path"`
	MetricsPath     string `yaml:"metrics_path" mapstructure:"metrics_path"`
	Merge           bool   `yaml:"merge" mapstructure:"merge"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("places.api_key", "POI_PLACES_API_KEY", "GOOGLE_MAPS_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind api key")
	}
	// Area keys have no defaults, so AutomaticEnv alone would not see them.
	for _, key := range []string{
		"extract.max_lat", "extract.max_lng", "extract.min_lat", "extract.min_lng",
		"extract.lat", "extract.lng", "store.database_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.max_pages", 1)
	v.SetDefault("places.page_token_delay_ms", 2000)
	v.SetDefault("places.timeout_secs", 10)
	v.SetDefault("extract.width_m", 50.0)
	v.SetDefault("extract.height_m", 50.0)
	v.SetDefault("extract.edge_m", 100.0)
	v.SetDefault("extract.min_edge_m", 2.5)
	v.SetDefault("extract.max_depth", 32)
	v.SetDefault("extract.pace_ms", 1000)
	v.SetDefault("retry.cooldown_minutes", 15.0)
	v.SetDefault("retry.backoff_ms", 1000)
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.jitter", 0.0)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("output.path", "poi.json")
	v.SetDefault("output.box_sizes_path", "box_dim.json")
	v.SetDefault("output.merge", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ResolveBox returns the search area. A center point takes precedence over
// box edges; it is expanded to WidthMeters x HeightMeters.
func (e ExtractConfig) ResolveBox() (geo.BoundingBox, error) {
	edges := []*float64{e.MaxLat, e.MaxLng, e.MinLat, e.MinLng}
	set := 0
	for _, p := range edges {
		if p != nil {
			set++
		}
	}

	var box geo.BoundingBox
	switch {
	case e.Lat != nil && e.Lng != nil:
		if !(e.WidthMeters > 0) || !(e.HeightMeters > 0) {
			return box, eris.Wrap(ErrConfiguration, "extract.width_m and extract.height_m must be > 0")
		}
		box = geo.TranslateToBox(*e.Lat, *e.Lng, e.WidthMeters, e.HeightMeters)
	case set == len(edges):
		box = geo.BoundingBox{MaxLat: *e.MaxLat, MaxLng: *e.MaxLng, MinLat: *e.MinLat, MinLng: *e.MinLng}
	case set > 0 || e.Lat != nil || e.Lng != nil:
		return box, eris.Wrap(ErrConfiguration,
			"incomplete area: give all of extract.max_lat, max_lng, min_lat, min_lng or both extract.lat and lng")
	default:
		return box, eris.Wrap(ErrConfiguration,
			"no area: give a bounding box (extract.max_lat, max_lng, min_lat, min_lng) or a center point (extract.lat, lng)")
	}

	if err := box.Validate(); err != nil {
		return box, eris.Wrapf(ErrConfiguration, "extract: %s", err.Error())
	}
	return box, nil
}

// Pace returns the minimum spacing between search calls.
func (e ExtractConfig) Pace() time.Duration {
	return time.Duration(e.PaceMs) * time.Millisecond
}

// Cooldown returns the wait after a rate-limited response.
func (r RetryConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes * float64(time.Minute))
}

// Backoff returns the wait after a transient failure.
func (r RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMs) * time.Millisecond
}

// Validate checks the settings a command needs. Mode is the command name:
// "extract", "dedupe" or "region".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract":
		if c.Places.APIKey == "" {
			errs = append(errs, "places.api_key is required")
		}
		if c.Places.MaxPages < 1 || c.Places.MaxPages > 3 {
			errs = append(errs, "places.max_pages must be between 1 and 3")
		}
		if _, err := c.Extract.ResolveBox(); err != nil {
			errs = append(errs, err.Error())
		}
		if !(c.Extract.MinEdgeMeters > 0) {
			errs = append(errs, "extract.min_edge_m must be > 0")
		}
		if c.Extract.EdgeMeters < c.Extract.MinEdgeMeters {
			errs = append(errs, "extract.edge_m must be >= extract.min_edge_m")
		}
		if c.Extract.PaceMs < 0 {
			errs = append(errs, "extract.pace_ms must be >= 0")
		}
		if c.Retry.CooldownMinutes < 0 {
			errs = append(errs, "retry.cooldown_minutes must be >= 0")
		}
		if c.Retry.MaxAttempts < 0 {
			errs = append(errs, "retry.max_attempts must be >= 0")
		}
		if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
			errs = append(errs, "retry.jitter must be in [0, 1)")
		}
		errs = append(errs, c.validateStore()...)
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
		if len(c.Region.Paths) == 0 && (c.Region.Field != "" || c.Region.Value != "") {
			errs = append(errs, "region.field and region.value need region.paths")
		}
	case "dedupe":
		if c.Output.Path == "" {
			errs = append(errs, "output.path is required")
		}
	case "region":
		if len(c.Region.Paths) == 0 {
			errs = append(errs, "region.paths is required")
		}
		if !(c.Extract.EdgeMeters > 0) {
			errs = append(errs, "extract.edge_m must be > 0")
		}
	default:
		return eris.Wrapf(ErrConfiguration, "unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrConfiguration, "%s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "memory":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the " + c.Store.Driver + " driver"}
		}
		return nil
	default:
		return []string{"store.driver must be one of memory, sqlite, postgres"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
