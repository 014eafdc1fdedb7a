package tiles3d

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const tilesetSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["asset", "root"],
	"properties": {
		"asset": {"type": "object", "required": ["version"]},
		"root": {"type": "object", "required": ["boundingVolume"]}
	},
	"anyOf": [
		{"required": ["geometricError"]},
		{"properties": {"root": {"required": ["geometricError"]}}}
	]
}`

var ErrNoBoundingVolume = errors.New("the tileset has no supported bounding volume")

// ValidateTileset checks the mandatory members of a tileset.json document.
func ValidateTileset(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(tilesetSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}

	return nil
}

type tileset struct {
	Root struct {
		BoundingVolume struct {
			Region []float64 `json:"region"`
			Sphere []float64 `json:"sphere"`
			Box    []float64 `json:"box"`
		} `json:"boundingVolume"`
	} `json:"root"`
}

// BoundingBox returns the EPSG:4326 extent [minx, miny, maxx, maxy] of the tileset root.
func BoundingBox(data []byte) ([]float64, error) {
	var ts tileset

	err := json.Unmarshal(data, &ts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tileset: %w", err)
	}

	volume := ts.Root.BoundingVolume

	switch {
	case len(volume.Region) >= 4:
		// west, south, east, north in radians
		return []float64{degrees(volume.Region[0]), degrees(volume.Region[1]), degrees(volume.Region[2]), degrees(volume.Region[3])}, nil

	case len(volume.Sphere) == 4:
		r := volume.Sphere[3]

		return extent(volume.Sphere[:3], [3]float64{r, r, r}), nil

	case len(volume.Box) == 12:
		b := volume.Box

		half := [3]float64{
			math.Abs(b[3]) + math.Abs(b[6]) + math.Abs(b[9]),
			math.Abs(b[4]) + math.Abs(b[7]) + math.Abs(b[10]),
			math.Abs(b[5]) + math.Abs(b[8]) + math.Abs(b[11]),
		}

		return extent(b[:3], half), nil
	}

	return nil, ErrNoBoundingVolume
}

func extent(center []float64, half [3]float64) []float64 {
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)

	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				lon, lat := ecefToWGS84(center[0]+sx*half[0], center[1]+sy*half[1], center[2]+sz*half[2])

				minLon, maxLon = math.Min(minLon, lon), math.Max(maxLon, lon)
				minLat, maxLat = math.Min(minLat, lat), math.Max(maxLat, lat)
			}
		}
	}

	return []float64{minLon, minLat, maxLon, maxLat}
}

// WGS84 ellipsoid.
const (
	semiMajor  = 6378137.0
	flattening = 1 / 298.257223563
)

// ecefToWGS84 converts earth centred coordinates to longitude and latitude in degrees (Bowring).
func ecefToWGS84(x, y, z float64) (float64, float64) {
	e2 := flattening * (2 - flattening)
	semiMinor := semiMajor * (1 - flattening)
	ep2 := (semiMajor*semiMajor - semiMinor*semiMinor) / (semiMinor * semiMinor)

	p := math.Hypot(x, y)
	theta := math.Atan2(z*semiMajor, p*semiMinor)

	lon := math.Atan2(y, x)
	lat := math.Atan2(
		z+ep2*semiMinor*math.Pow(math.Sin(theta), 3),
		p-e2*semiMajor*math.Pow(math.Cos(theta), 3),
	)

	return degrees(lon), degrees(lat)
}

func degrees(radians float64) float64 {
	return radians * 180 / math.Pi
}
