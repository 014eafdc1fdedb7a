package handlers

import (
	"errors"
	"fmt"
)

// AggregationMessage is logged when a fanned-out execution ends with at least one failed task.
const AggregationMessage = "One or more dataset raises an error during the import, please check the logs"

var (
	// ErrNotSupported is returned when a handler cannot perform the requested action.
	ErrNotSupported = errors.New("action not supported by the handler")
	// ErrNoHandler is returned when no registered handler claims a payload.
	ErrNoHandler = errors.New("no handler available for the provided payload")
)

// ImportError is raised by the orchestrator: unknown handler, unknown execution or failed aggregation.
type ImportError struct {
	Detail string
}

func (e *ImportError) Error() string {
	return e.Detail
}

// ValidationKind names the family of a validation failure.
type ValidationKind string

const (
	ValidationGeoPackage  ValidationKind = "geopackage"
	ValidationShapefile   ValidationKind = "shapefile"
	ValidationGeoJSON     ValidationKind = "geojson"
	ValidationKML         ValidationKind = "kml"
	ValidationGeoTIFF     ValidationKind = "geotiff"
	Validation3DTiles     ValidationKind = "3dtiles"
	ValidationXML         ValidationKind = "xml"
	ValidationSLD         ValidationKind = "sld"
	ValidationRemote      ValidationKind = "remote"
	ValidationUploadLimit ValidationKind = "upload-limit"
)

// ValidationError reports malformed input detected before any side effect.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func NewValidationError(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// StepKind names the pipeline step a StepError was raised from.
type StepKind string

const (
	StepKindStartImport      StepKind = "start_import"
	StepKindInvalidInputFile StepKind = "invalid_input_file"
	StepKindPublishResource  StepKind = "publish_resource"
	StepKindResourceCreation StepKind = "resource_creation"
	StepKindCopyResource     StepKind = "copy_resource"
	StepKindDynamicModel     StepKind = "dynamic_model"
	StepKindInvalidFieldName StepKind = "invalid_field_name"
)

// StepError wraps a failure inside one pipeline step with the execution it belongs to.
type StepError struct {
	Kind        StepKind
	ExecutionID string
	Detail      string
	Err         error
}

func (e *StepError) Error() string {
	return e.Detail
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is matches another StepError of the same kind, so errors.Is(err, &StepError{Kind: k}) works.
func (e *StepError) Is(target error) bool {
	t, ok := target.(*StepError)

	return ok && t.ExecutionID == "" && t.Detail == "" && t.Kind == e.Kind
}

func newStepError(kind StepKind, executionID string, err error) *StepError {
	return &StepError{Kind: kind, ExecutionID: executionID, Detail: ErrorHandler(err, executionID), Err: err}
}

func StartImportError(executionID string, err error) *StepError {
	return newStepError(StepKindStartImport, executionID, err)
}

func InvalidInputFileError(executionID string, err error) *StepError {
	return newStepError(StepKindInvalidInputFile, executionID, err)
}

func PublishResourceError(executionID string, err error) *StepError {
	return newStepError(StepKindPublishResource, executionID, err)
}

func ResourceCreationError(executionID string, err error) *StepError {
	return newStepError(StepKindResourceCreation, executionID, err)
}

func CopyResourceError(executionID string, err error) *StepError {
	return newStepError(StepKindCopyResource, executionID, err)
}

func DynamicModelError(executionID string, err error) *StepError {
	return newStepError(StepKindDynamicModel, executionID, err)
}

func InvalidFieldNameError(executionID string, err error) *StepError {
	return newStepError(StepKindInvalidFieldName, executionID, err)
}

// Detail returns the human readable message of err: the detail of a StepError, otherwise its text.
func Detail(err error) string {
	if err == nil {
		return ""
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Err != nil {
		return Detail(stepErr.Err)
	}

	return err.Error()
}

// ErrorHandler renders the log stored on a failed execution.
func ErrorHandler(err error, executionID string) string {
	return fmt.Sprintf("%s. Request: %s", Detail(err), executionID)
}
