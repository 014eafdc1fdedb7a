// Package publisher registers converted layers on the map server on behalf of a handler.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
)

// ErrNotPublishable is returned for handlers that do not publish on the map server.
var ErrNotPublishable = errors.New("handler does not publish resources")

// Options locate the datastore layers are published from.
type Options struct {
	Workspace   string
	StoreName   string
	StoreParams map[string]string
}

// Publisher is format agnostic: the handler decides what to publish and how.
type Publisher struct {
	handler handlers.Handler
	client  mapserver.Client
	opts    Options
	logger  *slog.Logger
}

func New(handler handlers.Handler, client mapserver.Client, opts Options, logger *slog.Logger) *Publisher {
	return &Publisher{
		handler: handler,
		client:  client,
		opts:    opts,
		logger:  logger.With("module", "publisher", "handler", handler.Key()),
	}
}

// GetOrCreateStore returns the datastore of the workspace, creating it the first time.
func (p *Publisher) GetOrCreateStore(ctx context.Context) (*mapserver.Store, error) {
	store, err := p.client.GetStore(ctx, p.opts.Workspace, p.opts.StoreName)
	if err == nil {
		return store, nil
	}

	if !errors.Is(err, mapserver.ErrNotFound) {
		return nil, fmt.Errorf("failed to get store %s: %w", p.opts.StoreName, err)
	}

	store, err = p.client.CreateDatastore(ctx, p.opts.Workspace, p.opts.StoreName, p.opts.StoreParams)
	if errors.Is(err, mapserver.ErrAlreadyExists) {
		return p.client.GetStore(ctx, p.opts.Workspace, p.opts.StoreName)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create store %s: %w", p.opts.StoreName, err)
	}

	return store, nil
}

func (p *Publisher) publishable() (handlers.Publishable, error) {
	publishable, ok := p.handler.(handlers.Publishable)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.handler.Key(), ErrNotPublishable)
	}

	return publishable, nil
}

// ExtractResourceToPublish asks the handler which layers to publish; an empty result means nothing to publish.
func (p *Publisher) ExtractResourceToPublish(ctx context.Context, files map[string]string, action models.Action, layerName, alternate string, kwargs models.Params) ([]handlers.PublishTarget, error) {
	publishable, err := p.publishable()
	if err != nil {
		return nil, err
	}

	return publishable.ExtractResourceToPublish(ctx, files, action, layerName, alternate, kwargs)
}

// PublishResources publishes targets and reports whether anything was sent to the map server.
// A layer that is already published counts as published.
func (p *Publisher) PublishResources(ctx context.Context, targets []handlers.PublishTarget) (bool, error) {
	if len(targets) == 0 {
		return false, nil
	}

	publishable, err := p.publishable()
	if err != nil {
		return false, err
	}

	store, err := p.GetOrCreateStore(ctx)
	if err != nil {
		return false, err
	}

	err = publishable.PublishResources(ctx, targets, p.client, store, p.opts.Workspace)
	if errors.Is(err, mapserver.ErrAlreadyExists) {
		p.logger.InfoContext(ctx, "Resource already published", "error", err)

		return true, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// DeleteResource removes the published layer of resource. Handlers owning secondary storage clean it
// up themselves; handlers that never publish have nothing to remove.
func (p *Publisher) DeleteResource(ctx context.Context, resource *models.Resource) error {
	if deleter, ok := p.handler.(handlers.ResourceDeleter); ok {
		return deleter.DeleteResource(ctx, resource)
	}

	if _, err := p.publishable(); err != nil {
		return nil
	}

	workspace := resource.WorkspaceName()
	if workspace == "" {
		workspace = p.opts.Workspace
	}

	err := p.client.DeleteLayer(ctx, workspace, resource.LayerName())
	if errors.Is(err, mapserver.ErrNotFound) {
		return nil
	}

	return err
}
