// Package limits enforces the per-user upload quotas.
package limits

import (
	"context"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/persistence"
)

// Validator checks how many imports a user runs in parallel.
type Validator struct {
	executions persistence.ExecutionRequestRepository
	max        int
}

func New(executions persistence.ExecutionRequestRepository, maxParallelUploads int) *Validator {
	return &Validator{executions: executions, max: maxParallelUploads}
}

func (v *Validator) MaxParallelUploads() int {
	return v.max
}

// ActiveUploads counts the READY and RUNNING executions of user, ignoring excludeID.
func (v *Validator) ActiveUploads(ctx context.Context, user, excludeID string) (int, error) {
	return v.executions.CountActiveByUser(ctx, user, excludeID)
}

// ValidateParallelismLimitPerUser fails when user already reached the parallel upload limit.
func (v *Validator) ValidateParallelismLimitPerUser(ctx context.Context, user, excludeID string) error {
	active, err := v.ActiveUploads(ctx, user, excludeID)
	if err != nil {
		return err
	}

	if active >= v.max {
		return handlers.NewValidationError(handlers.ValidationUploadLimit,
			"The number of active parallel uploads exceeds %d. Wait for the pending ones to finish.", v.max)
	}

	return nil
}
