// Package models defines the persisted aggregates of the geospatial import pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ExecutionStatus represents the lifecycle state of an execution request.
type ExecutionStatus string

const (
	ExecutionStatusReady    ExecutionStatus = "ready"
	ExecutionStatusRunning  ExecutionStatus = "running"
	ExecutionStatusFinished ExecutionStatus = "finished"
	ExecutionStatusFailed   ExecutionStatus = "failed"
)

// IsTerminal reports whether no further step may be dispatched.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusFinished || s == ExecutionStatusFailed
}

// CanTransition reports whether moving from one status to another is legal.
// Staying in the same status is always allowed so terminal setters stay idempotent.
func CanTransition(from, to ExecutionStatus) bool {
	if from == to {
		return true
	}

	switch from {
	case ExecutionStatusReady:
		return to == ExecutionStatusRunning || to == ExecutionStatusFailed
	case ExecutionStatusRunning:
		return to == ExecutionStatusFinished || to == ExecutionStatusFailed
	default:
		return false
	}
}

// Action is the workflow kind an execution request drives.
type Action string

const (
	ActionImport   Action = "import"
	ActionCopy     Action = "copy"
	ActionDelete   Action = "delete"
	ActionUpdate   Action = "update"
	ActionRollback Action = "rollback"
)

func ParseAction(value string) (Action, error) {
	switch action := Action(strings.ToLower(strings.TrimSpace(value))); action {
	case ActionImport, ActionCopy, ActionDelete, ActionUpdate, ActionRollback:
		return action, nil
	case "":
		return ActionImport, nil
	default:
		return "", fmt.Errorf("unknown action %q", value)
	}
}

// Input parameter keys shared by the API, the orchestrator and the handlers.
const (
	ParamFiles                 = "files"
	ParamHandlerModulePath     = "handler_module_path"
	ParamSkipExistingLayers    = "skip_existing_layers"
	ParamOverrideExistingLayer = "override_existing_layer"
	ParamOverwriteExisting     = "overwrite_existing_layer"
	ParamStoreSpatialFile      = "store_spatial_file"
	ParamTotalLayers           = "total_layers"
	ParamTitle                 = "title"
	ParamURL                   = "url"
	ParamType                  = "type"
	ParamSource                = "source"
	ParamDatasetTitle          = "dataset_title"
	ParamInstance              = "instance"
	ParamOriginalZipName       = "original_zip_name"

	OutputErrors    = "errors"
	OutputDetailURL = "detail_url"
	OutputOutput    = "output"
)

// ExecutionRequest is the durable record of one workflow instance.
type ExecutionRequest struct {
	ExecID       string          `json:"exec_id"`
	User         string          `json:"user"`
	Name         string          `json:"name,omitempty"`
	FuncName     string          `json:"func_name"`
	Step         string          `json:"step"`
	Status       ExecutionStatus `json:"status"`
	Action       Action          `json:"action,omitempty"`
	InputParams  Params          `json:"input_params"`
	OutputParams Params          `json:"output_params"`
	Log          string          `json:"log,omitempty"`
	ResourceID   string          `json:"geonode_resource,omitempty"`
	Created      time.Time       `json:"created"`
	LastUpdated  time.Time       `json:"last_updated"`
	Finished     *time.Time      `json:"finished,omitempty"`
}

// HandlerKey returns the registry key of the handler driving this execution.
func (e *ExecutionRequest) HandlerKey() string {
	return e.InputParams.String(ParamHandlerModulePath)
}

func (e *ExecutionRequest) Files() map[string]string {
	return e.InputParams.Files()
}

// Errors returns the accumulated per-layer error messages.
func (e *ExecutionRequest) Errors() []string {
	return e.OutputParams.Strings(OutputErrors)
}

// OverrideExisting accepts both spellings used by the different handlers.
func (e *ExecutionRequest) OverrideExisting() bool {
	return e.InputParams.Bool(ParamOverrideExistingLayer) || e.InputParams.Bool(ParamOverwriteExisting)
}

func (e *ExecutionRequest) SkipExisting() bool {
	return e.InputParams.Bool(ParamSkipExistingLayers) || e.InputParams.Bool("skip_existing_layer")
}
