// Package common holds the behaviour shared by the concrete handlers: vector conversion, raster
// publication, direct catalog registration and metadata attachment.
package common

import (
	"log/slog"
	"net/http"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/converter"
	"github.com/dukex/geoimporter/pkg/dynamicschema"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/limits"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/storage"
	"github.com/dukex/geoimporter/pkg/taskqueue"
)

// Deps are the collaborators every handler works with. One value is shared by all the handlers of a
// process; Executions and Loader are set once the orchestrator and the registry exist.
type Deps struct {
	Executions   handlers.Executions
	Loader       handlers.Loader
	Dispatcher   taskqueue.Dispatcher
	Resources    persistence.ResourceRepository
	HandlerInfos persistence.ResourceHandlerInfoRepository
	TaskResults  persistence.TaskResultRepository
	Schemas      *dynamicschema.Service
	Catalog      *catalog.Manager
	MapServer    mapserver.Client
	Limits       *limits.Validator
	Storage      *storage.Store
	HTTP         *http.Client

	Runner            converter.Runner
	OgrinfoBinary     string
	GdalinfoBinary    string
	Datastore         converter.PGConnection
	Workspace         string
	DatastoreName     string
	ShapefileEncoding string

	Logger *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}

	return d.Logger
}

func (d *Deps) httpClient() *http.Client {
	if d.HTTP == nil {
		return http.DefaultClient
	}

	return d.HTTP
}
