// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/registry"
)

// NewRegistry registers the configured handlers, every built-in one when keys is empty.
func NewRegistry(keys []string, deps *common.Deps, logger *slog.Logger) (*registry.Registry, error) {
	reg, err := registry.NewBuiltin(keys, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register handlers: %w", err)
	}

	logger.Info("Handlers registered", "handlers", reg.Keys())

	return reg, nil
}
