package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/orchestrator"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Formats lists the extension configs of the registered handlers.
type Formats interface {
	Supported() []handlers.ExtensionConfig
}

// ResourceDeleter removes a catalog resource after running its pre-delete hooks.
type ResourceDeleter interface {
	Delete(ctx context.Context, id string) error
}

type Importer struct {
	persistence  persistence.Persistence
	orchestrator *orchestrator.Orchestrator
	dispatcher   taskqueue.Dispatcher
	formats      Formats
	catalog      ResourceDeleter
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewImporter creates the submission service.
func NewImporter(
	p persistence.Persistence,
	orch *orchestrator.Orchestrator,
	dispatcher taskqueue.Dispatcher,
	formats Formats,
	catalog ResourceDeleter,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		persistence:  p,
		orchestrator: orch,
		dispatcher:   dispatcher,
		formats:      formats,
		catalog:      catalog,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger.With("module", "importer"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Importer) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// SubmitRequest is an upload or remote resource to import on behalf of User.
type SubmitRequest struct {
	User    string           `validate:"required"`
	Payload handlers.Payload `validate:"required"`
}

// Submit resolves the handler of the payload, records the execution, validates the files and starts
// the import. Validation failures leave the execution FAILED and are returned to the caller.
func (s *Importer) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.User == "" {
		return "", NewValidationError("submit", "validation_error", ErrEmptyUser.Error(), ErrEmptyUser)
	}

	if err := s.validate.Struct(req); err != nil {
		return "", NewValidationError("submit", "validation_error", err.Error(), ErrInvalidRequest)
	}

	h := s.orchestrator.GetHandler(req.Payload)
	if h == nil {
		return "", &ServiceError{Op: "submit", Code: "no_handler", Message: ErrNoHandler.Error(), Err: ErrNoHandler}
	}

	extracted, _ := h.ExtractParamsFromData(req.Payload, models.ActionImport)
	files := payloadFiles(req.Payload)

	params := models.Params(extracted).Merge(map[string]any{
		models.ParamFiles:             toAny(files),
		models.ParamHandlerModulePath: h.Key(),
	})

	executionID, err := s.orchestrator.CreateExecutionRequest(ctx, orchestrator.NewExecution{
		User:        req.User,
		FuncName:    handlers.StepStartImport,
		Step:        handlers.StepStartImport,
		InputParams: params,
		Action:      models.ActionImport,
		Name:        executionName(req.Payload, files),
	})
	if err != nil {
		return "", err
	}

	err = h.IsValid(ctx, files, req.User, executionID)
	if err != nil {
		if failErr := s.orchestrator.SetAsFailed(ctx, executionID, handlers.ErrorHandler(err, executionID)); failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark execution as failed", "execution_id", executionID, "error", failErr)
		}

		var validation *handlers.ValidationError
		if errors.As(err, &validation) {
			return "", &ServiceError{Op: "submit", Code: string(validation.Kind), Message: validation.Detail, Err: err}
		}

		return "", fmt.Errorf("failed to validate the files of %s: %w", executionID, err)
	}

	sig := taskqueue.NewSignature(handlers.TaskImportOrchestrator,
		executionID, h.Key(), handlers.StepStartImport, "", "", string(models.ActionImport))

	_, err = s.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		if failErr := s.orchestrator.SetAsFailed(ctx, executionID, handlers.ErrorHandler(err, executionID)); failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark execution as failed", "execution_id", executionID, "error", failErr)
		}

		return "", fmt.Errorf("failed to start execution %s: %w", executionID, err)
	}

	s.logger.InfoContext(ctx, "Import submitted", "execution_id", executionID, "handler", h.Key(), "user", req.User)

	return executionID, nil
}

// CopyRequest duplicates the resource ResourceID for User, optionally under a new Title.
type CopyRequest struct {
	ResourceID string `validate:"required"`
	User       string `validate:"required"`
	Title      string `validate:"omitempty,max=255"`
}

// Copy starts the copy pipeline of the handler which created the resource.
func (s *Importer) Copy(ctx context.Context, req CopyRequest) (string, error) {
	if req.User == "" {
		return "", NewValidationError("copy", "validation_error", ErrEmptyUser.Error(), ErrEmptyUser)
	}

	if err := s.validate.Struct(req); err != nil {
		return "", NewValidationError("copy", "validation_error", err.Error(), ErrInvalidRequest)
	}

	resource, err := s.persistence.ResourceRepository().GetByID(ctx, req.ResourceID)
	if err != nil {
		return "", err
	}

	links, err := s.persistence.ResourceHandlerInfoRepository().ListByResource(ctx, resource.ID)
	if err != nil {
		return "", err
	}

	if len(links) == 0 {
		return "", &ServiceError{Op: "copy", Code: "copy_not_supported", Message: "the resource was not created by the importer", Err: ErrCopyNotSupported}
	}

	h, err := s.orchestrator.LoadHandler(links[0].HandlerModulePath)
	if err != nil {
		return "", err
	}

	if _, err := h.TaskList(models.ActionCopy); err != nil {
		return "", &ServiceError{Op: "copy", Code: "copy_not_supported", Message: fmt.Sprintf("%s resources cannot be copied", h.Key()), Err: ErrCopyNotSupported}
	}

	title := req.Title
	if title == "" {
		title = resource.Title
	}

	if title == "" {
		title = resource.LayerName()
	}

	executionID := uuid.NewString()
	newAlternate := copyAlternate(resource, title, executionID)

	kwargs := models.Params{
		handlers.KwargOriginalAlternate: resource.Alternate,
		handlers.KwargNewAlternate:      newAlternate,
	}

	extracted, _ := h.ExtractParamsFromData(handlers.Payload{models.ParamTitle: title}, models.ActionCopy)

	params := models.Params(extracted).
		Merge(kwargs).
		Merge(map[string]any{
			models.ParamHandlerModulePath: h.Key(),
			models.ParamInstance:          resource.ID,
		})

	_, err = s.orchestrator.CreateExecutionRequest(ctx, orchestrator.NewExecution{
		ExecID:      executionID,
		User:        req.User,
		FuncName:    handlers.StepStartCopy,
		Step:        handlers.StepStartCopy,
		InputParams: params,
		Action:      models.ActionCopy,
		Name:        title,
	})
	if err != nil {
		return "", err
	}

	sig := taskqueue.NewSignature(handlers.TaskImportOrchestrator,
		executionID, h.Key(), handlers.StepStartCopy, resource.LayerName(), newAlternate, string(models.ActionCopy)).
		WithKwargs(kwargs)

	_, err = s.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		if failErr := s.orchestrator.SetAsFailed(ctx, executionID, handlers.ErrorHandler(err, executionID)); failErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark execution as failed", "execution_id", executionID, "error", failErr)
		}

		return "", fmt.Errorf("failed to start copy %s: %w", executionID, err)
	}

	s.logger.InfoContext(ctx, "Copy submitted", "execution_id", executionID, "resource_id", resource.ID, "new_alternate", newAlternate)

	return executionID, nil
}

// Delete removes a catalog resource; the handler which created it cleans up its layers and tables.
func (s *Importer) Delete(ctx context.Context, resourceID string) error {
	if strings.TrimSpace(resourceID) == "" {
		return NewValidationError("delete", "validation_error", "resource ID is required", ErrInvalidRequest)
	}

	return s.catalog.Delete(ctx, resourceID)
}

func (s *Importer) GetExecution(ctx context.Context, executionID string) (*models.ExecutionRequest, error) {
	return s.persistence.ExecutionRequestRepository().GetByID(ctx, executionID)
}

func (s *Importer) Formats() []handlers.ExtensionConfig {
	return s.formats.Supported()
}

// copyAlternate derives the alternate of a copy, keeping the workspace of the original.
func copyAlternate(original *models.Resource, title, executionID string) string {
	alternate := handlers.CreateAlternate(handlers.FixupName(title), executionID)

	if ws, _, ok := strings.Cut(original.Alternate, ":"); ok {
		return ws + ":" + alternate
	}

	return alternate
}

// payloadFiles returns the files of the payload. A top level base_file is accepted too.
func payloadFiles(payload handlers.Payload) map[string]string {
	files := models.Params(payload).Files()

	if _, ok := files["base_file"]; !ok {
		if base, ok := payload["base_file"].(string); ok && base != "" {
			files["base_file"] = base
		}
	}

	return files
}

func executionName(payload handlers.Payload, files map[string]string) string {
	if base := files["base_file"]; base != "" {
		return filepath.Base(base)
	}

	if title := payload.String(models.ParamTitle); title != "" {
		return title
	}

	return payload.String(models.ParamURL)
}

func toAny(files map[string]string) map[string]any {
	out := make(map[string]any, len(files))
	for role, path := range files {
		out[role] = path
	}

	return out
}
