// Package mapserver is the boundary to the map server catalog the importer publishes layers on.
package mapserver

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("map server resource not found")
	ErrAlreadyExists = errors.New("map server resource already exists")
	// ErrUnavailable marks failures worth retrying: transport errors and 5xx answers.
	ErrUnavailable = errors.New("map server unavailable")
)

// AlreadyExistsError is returned when a layer is published twice in the same store.
type AlreadyExistsError struct {
	Name  string
	Store string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("Resource named %s already exists in store: %s", e.Name, e.Store)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// Store kinds.
const (
	StoreTypeDatastore = "datastore"
	StoreTypeCoverage  = "coverage"
)

type Store struct {
	Name      string `json:"name"`
	Workspace string `json:"workspace"`
	Type      string `json:"type"`
}

// Client publishes and removes layers on the map server.
type Client interface {
	// GetStore returns ErrNotFound when the store does not exist.
	GetStore(ctx context.Context, workspace, name string) (*Store, error)
	CreateDatastore(ctx context.Context, workspace, name string, params map[string]string) (*Store, error)
	// PublishFeatureType returns an *AlreadyExistsError when the layer is already published.
	PublishFeatureType(ctx context.Context, store *Store, name, srs string) error
	// PublishCoverage creates a coverage store named name over the raster at path.
	PublishCoverage(ctx context.Context, workspace, name, path, srs string, overwrite bool) error
	// DeleteLayer ignores layers that do not exist.
	DeleteLayer(ctx context.Context, workspace, name string) error
}
