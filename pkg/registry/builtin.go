package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/handlers/geojson"
	"github.com/dukex/geoimporter/pkg/handlers/geotiff"
	"github.com/dukex/geoimporter/pkg/handlers/gpkg"
	"github.com/dukex/geoimporter/pkg/handlers/kml"
	"github.com/dukex/geoimporter/pkg/handlers/remote"
	"github.com/dukex/geoimporter/pkg/handlers/shapefile"
	"github.com/dukex/geoimporter/pkg/handlers/sld"
	"github.com/dukex/geoimporter/pkg/handlers/tiles3d"
	"github.com/dukex/geoimporter/pkg/handlers/xml"
)

// Constructor builds a handler over the shared collaborators.
type Constructor func(deps *common.Deps) handlers.Handler

var builtins = []struct {
	key   string
	build Constructor
}{
	{gpkg.Key, func(d *common.Deps) handlers.Handler { return gpkg.New(d) }},
	{geojson.Key, func(d *common.Deps) handlers.Handler { return geojson.New(d) }},
	{shapefile.Key, func(d *common.Deps) handlers.Handler { return shapefile.New(d) }},
	{kml.Key, func(d *common.Deps) handlers.Handler { return kml.New(d) }},
	{geotiff.Key, func(d *common.Deps) handlers.Handler { return geotiff.New(d) }},
	{xml.Key, func(d *common.Deps) handlers.Handler { return xml.New(d) }},
	{sld.Key, func(d *common.Deps) handlers.Handler { return sld.New(d) }},
	{tiles3d.Key, func(d *common.Deps) handlers.Handler { return tiles3d.New(d) }},
	{remote.Tiles3DKey, func(d *common.Deps) handlers.Handler { return remote.NewTiles3D(d) }},
	{remote.Key, func(d *common.Deps) handlers.Handler { return remote.New(d) }},
}

// BuiltinKeys lists every handler shipped with the importer, in default registration order.
func BuiltinKeys() []string {
	keys := make([]string, 0, len(builtins))
	for _, b := range builtins {
		keys = append(keys, b.key)
	}

	return keys
}

// NewBuiltin registers the built-in handlers named by keys, in that order. An empty list selects all.
func NewBuiltin(keys []string, deps *common.Deps, logger *slog.Logger) (*Registry, error) {
	if len(keys) == 0 {
		keys = BuiltinKeys()
	}

	r := NewRegistry(logger)

	for _, key := range keys {
		build, ok := constructor(strings.TrimSpace(key))
		if !ok {
			return nil, fmt.Errorf("%w: unknown handler %s", ErrNotRegistered, key)
		}

		err := r.Register(build(deps))
		if err != nil {
			return nil, err
		}
	}

	deps.Loader = r

	return r, nil
}

func constructor(key string) (Constructor, bool) {
	for _, b := range builtins {
		if b.key == key {
			return b.build, true
		}
	}

	return nil, false
}
