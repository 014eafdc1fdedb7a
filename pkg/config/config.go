// Package config loads the importer configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide importer configuration shared by the worker and the API.
type Config struct {
	// Handlers lists the handler keys to register, in registration order. Empty means every built-in handler.
	Handlers            []string      `yaml:"handlers"              validate:"dive,required"`
	RateLimits          RateLimits    `yaml:"rate_limits"`
	Retries             Retries       `yaml:"retries"`
	Workspace           string        `yaml:"workspace"             validate:"required"`
	DatastoreName       string        `yaml:"datastore_name"        validate:"required"`
	DatastoreURL        string        `yaml:"datastore_url"`
	SiteURL             string        `yaml:"site_url"              validate:"omitempty,url"`
	MapServer           MapServer     `yaml:"map_server"`
	Binaries            Binaries      `yaml:"binaries"`
	Limits              Limits        `yaml:"limits"`
	Storage             Storage       `yaml:"storage"`
	LegacyUploadStatus  bool          `yaml:"legacy_upload_status"`
	RollbackOnFailure   bool          `yaml:"rollback_on_failure"`
	TaskResultRetention time.Duration `yaml:"task_result_retention" validate:"gt=0"`
	JanitorSchedule     string        `yaml:"janitor_schedule"      validate:"required"`
	// ShapefileEncoding is the fallback encoding passed to ogr2ogr when a shapefile has no .cpg or .cst.
	ShapefileEncoding string `yaml:"shapefile_encoding"`
}

// RateLimits are per-second task admission limits. Zero disables the limit.
type RateLimits struct {
	Global           float64 `yaml:"global"            validate:"gte=0"`
	Publishing       float64 `yaml:"publishing"        validate:"gte=0"`
	ResourceCreation float64 `yaml:"resource_creation" validate:"gte=0"`
	Copy             float64 `yaml:"copy"              validate:"gte=0"`
}

type Retries struct {
	Default int `yaml:"default" validate:"gte=0,lte=10"`
	Publish int `yaml:"publish" validate:"gte=0,lte=10"`
}

// MapServer configures the GeoServer REST client. An empty URL selects the in-memory catalog.
type MapServer struct {
	URL      string `yaml:"url"      validate:"omitempty,url"`
	Username string `yaml:"username" validate:"required_with=URL"`
	Password string `yaml:"password"`
}

type Binaries struct {
	Ogr2ogr  string `yaml:"ogr2ogr"  validate:"required"`
	Ogrinfo  string `yaml:"ogrinfo"  validate:"required"`
	Gdalinfo string `yaml:"gdalinfo" validate:"required"`
}

type Limits struct {
	MaxParallelUploads int `yaml:"max_parallel_uploads" validate:"gte=1"`
}

type Storage struct {
	Root string `yaml:"root" validate:"required"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		RateLimits: RateLimits{
			Global:           5,
			Publishing:       5,
			ResourceCreation: 10,
			Copy:             10,
		},
		Retries:             Retries{Default: 1, Publish: 3},
		Workspace:           "geonode",
		DatastoreName:       "geonode_data",
		Binaries:            Binaries{Ogr2ogr: "ogr2ogr", Ogrinfo: "ogrinfo", Gdalinfo: "gdalinfo"},
		Limits:              Limits{MaxParallelUploads: 5},
		Storage:             Storage{Root: "/tmp/geoimporter"},
		TaskResultRetention: 72 * time.Hour,
		JanitorSchedule:     "@hourly",
	}
}

// Load reads path over the defaults and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	err := Validate(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to the defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Validate checks the struct constraints of cfg.
func Validate(cfg *Config) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
