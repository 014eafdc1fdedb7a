// Package registry is the explicit table of handlers an importer process knows about.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/publisher"
)

var (
	ErrNotRegistered     = errors.New("handler not registered")
	ErrDuplicateHandler  = errors.New("handler already registered")
	ErrInvalidActionList = errors.New("invalid task list")
)

type Registry struct {
	logger   *slog.Logger
	handlers map[string]handlers.Handler
	// order keeps registration order, used to break priority ties.
	order []string
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "registry"),
		handlers: make(map[string]handlers.Handler),
	}
}

// Register adds h under its trimmed key. Every declared action must list at least one step and start
// with a start_ sentinel.
func (r *Registry) Register(h handlers.Handler) error {
	key := strings.TrimSpace(h.Key())
	if key == "" {
		return fmt.Errorf("%w: empty handler key", ErrInvalidActionList)
	}

	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}

	for action, steps := range h.Actions() {
		if len(steps) == 0 {
			return fmt.Errorf("%w: %s declares no step for %s", ErrInvalidActionList, key, action)
		}

		if !handlers.IsSentinel(steps[0]) {
			return fmt.Errorf("%w: the %s task list of %s starts with %s instead of a start_ step", ErrInvalidActionList, action, key, steps[0])
		}
	}

	r.handlers[key] = h
	r.order = append(r.order, key)

	r.logger.Debug("Handler registered", "handler", key, "priority", h.Priority())

	return nil
}

// Validate checks every step of every handler against the task names known to the queue.
func (r *Registry) Validate(taskNames []string) error {
	var errs []error

	for _, key := range r.order {
		h := r.handlers[key]

		for action, steps := range h.Actions() {
			for _, step := range steps[1:] {
				if !slices.Contains(taskNames, step) {
					errs = append(errs, fmt.Errorf("%s: step %s of the %s action is not a registered task", key, step, action))
				}

				if step == handlers.TaskPublishResource {
					if _, ok := h.(handlers.Publishable); !ok {
						errs = append(errs, fmt.Errorf("%s: declares %s but cannot publish", key, step))
					}
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidActionList, errors.Join(errs...))
	}

	return nil
}

// Handlers returns the registered handlers in resolution order: highest priority first, then
// registration order.
func (r *Registry) Handlers() []handlers.Handler {
	list := make([]handlers.Handler, 0, len(r.order))
	for _, key := range r.order {
		list = append(list, r.handlers[key])
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority() > list[j].Priority()
	})

	return list
}

// Resolve returns the first handler claiming payload, or nil.
func (r *Registry) Resolve(payload handlers.Payload) handlers.Handler {
	for _, h := range r.Handlers() {
		if h.CanHandle(payload) {
			return h
		}
	}

	return nil
}

// Load returns the handler registered under a persisted key.
func (r *Registry) Load(key string) (handlers.Handler, error) {
	h, ok := r.handlers[strings.TrimSpace(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}

	return h, nil
}

func (r *Registry) Keys() []string {
	return slices.Clone(r.order)
}

// Supported lists the extension configs of the handlers accepting files.
func (r *Registry) Supported() []handlers.ExtensionConfig {
	var configs []handlers.ExtensionConfig

	for _, h := range r.Handlers() {
		config := h.ExtensionConfig()
		if len(config.Ext) == 0 {
			continue
		}

		configs = append(configs, config)
	}

	return configs
}

// PreDeleteHook lets the handler which created a resource clean up its tables and layers.
func (r *Registry) PreDeleteHook(infos persistence.ResourceHandlerInfoRepository, client mapserver.Client, opts publisher.Options) catalog.PreDeleteHook {
	return func(ctx context.Context, resource *models.Resource) error {
		links, err := infos.ListByResource(ctx, resource.ID)
		if err != nil {
			return err
		}

		if len(links) == 0 {
			return nil
		}

		h, err := r.Load(links[0].HandlerModulePath)
		if err != nil {
			return err
		}

		return publisher.New(h, client, opts, r.logger).DeleteResource(ctx, resource)
	}
}
