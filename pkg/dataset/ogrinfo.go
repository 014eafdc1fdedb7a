package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/geoimporter/pkg/converter"
)

// OgrInfoInspector reads layers through `ogrinfo -json`, for formats without a native reader.
type OgrInfoInspector struct {
	Runner converter.Runner
	Binary string
}

type ogrInfoOutput struct {
	Layers []struct {
		Name           string `json:"name"`
		FeatureCount   int    `json:"featureCount"`
		GeometryFields []struct {
			Name             string `json:"name"`
			Type             string `json:"type"`
			CoordinateSystem struct {
				WKT      string `json:"wkt"`
				ProjJSON struct {
					ID struct {
						Authority string `json:"authority"`
						Code      any    `json:"code"`
					} `json:"id"`
				} `json:"projjson"`
			} `json:"coordinateSystem"`
		} `json:"geometryFields"`
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"layers"`
}

func (i OgrInfoInspector) Layers(ctx context.Context, path string) ([]Layer, error) {
	stdout, stderr, err := i.Runner.Run(ctx, i.Binary, "-json", "-so", "-al", path)
	if err != nil {
		return nil, fmt.Errorf("ogrinfo failed on %s: %s: %w", path, strings.TrimSpace(string(stderr)), err)
	}

	var out ogrInfoOutput

	err = json.Unmarshal(stdout, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ogrinfo output: %w", err)
	}

	layers := make([]Layer, 0, len(out.Layers))

	for _, l := range out.Layers {
		layer := Layer{Name: l.Name, FeatureCount: l.FeatureCount, GeometryType: GeometryNone}

		if len(l.GeometryFields) > 0 {
			geom := l.GeometryFields[0]
			layer.GeometryColumn = geom.Name
			layer.GeometryType = normalizeOgrGeometry(geom.Type)

			if id := geom.CoordinateSystem.ProjJSON.ID; strings.EqualFold(id.Authority, "EPSG") && id.Code != nil {
				layer.SRS = EPSGCode(fmt.Sprint(id.Code))
			} else {
				layer.SRS = EPSGFromWKT(geom.CoordinateSystem.WKT)
			}
		}

		for _, f := range l.Fields {
			layer.Fields = append(layer.Fields, Field{Name: f.Name, Type: f.Type})
		}

		layers = append(layers, layer)
	}

	return layers, nil
}

// normalizeOgrGeometry maps the compact names of the JSON output (MultiPolygon, PointZ, Point25D)
// to OGR display names.
func normalizeOgrGeometry(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, " ", ""))
	if upper == "" || upper == "NONE" {
		return GeometryNone
	}

	hasZ := false

	for _, suffix := range []string{"25D", "ZM", "Z"} {
		if strings.HasSuffix(upper, suffix) {
			upper = strings.TrimSuffix(upper, suffix)
			hasZ = true

			break
		}
	}

	if strings.HasPrefix(upper, "3D") {
		upper = strings.TrimPrefix(upper, "3D")
		hasZ = true
	}

	upper = strings.TrimSuffix(upper, "M")
	if upper == "UNKNOWN" || upper == "UNKNOWN(ANY)" {
		return GeometryUnknown
	}

	return GeometryName(upper, hasZ)
}

var wktEPSGPattern = regexp.MustCompile(`(?:ID|AUTHORITY)\["EPSG",\s*"?(\d+)"?\]`)

// EPSGFromWKT returns the outermost EPSG identifier of a WKT definition, which WKT places last.
func EPSGFromWKT(wkt string) string {
	matches := wktEPSGPattern.FindAllStringSubmatch(wkt, -1)
	if len(matches) == 0 {
		return ""
	}

	return EPSGCode(matches[len(matches)-1][1])
}

// GdalInfo inspects rasters through `gdalinfo -json`.
type GdalInfo struct {
	Runner converter.Runner
	Binary string
}

type gdalInfoOutput struct {
	Description string `json:"description"`
	STAC        struct {
		Epsg any `json:"proj:epsg"`
	} `json:"stac"`
	CoordinateSystem struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	Bands []json.RawMessage `json:"bands"`
}

func (g GdalInfo) Inspect(ctx context.Context, path string) (*Raster, error) {
	stdout, stderr, err := g.Runner.Run(ctx, g.Binary, "-json", path)
	if err != nil {
		return nil, fmt.Errorf("gdalinfo failed on %s: %s: %w", path, strings.TrimSpace(string(stderr)), err)
	}

	var out gdalInfoOutput

	err = json.Unmarshal(stdout, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gdalinfo output: %w", err)
	}

	raster := &Raster{Name: out.Description, Bands: len(out.Bands)}

	if out.STAC.Epsg != nil {
		raster.SRS = EPSGCode(fmt.Sprint(out.STAC.Epsg))
	} else {
		raster.SRS = EPSGFromWKT(out.CoordinateSystem.WKT)
	}

	return raster, nil
}
