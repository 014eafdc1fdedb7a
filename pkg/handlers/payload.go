package handlers

import (
	"path/filepath"
	"strings"

	"github.com/dukex/geoimporter/pkg/models"
)

// Payload is the raw request data probed by CanHandle and split by ExtractParamsFromData.
type Payload map[string]any

// BaseFile returns the main file path, either top level or inside files.
func (p Payload) BaseFile() string {
	if v, ok := p["base_file"].(string); ok {
		return v
	}

	return models.Params(p).Files()["base_file"]
}

// Extension returns the lowercase extension of the base file, without the dot.
func (p Payload) Extension() string {
	return Extension(p.BaseFile())
}

func (p Payload) String(key string) string {
	return models.Params(p).String(key)
}

func (p Payload) Bool(key string) bool {
	return models.Params(p).Bool(key)
}

// Extension returns the lowercase extension of path, without the dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// HasExtraDots reports whether the file name carries more than the extension dot.
func HasExtraDots(path string) bool {
	return strings.Count(filepath.Base(path), ".") > 1
}

// Keyword arguments carried across the copy and rollback pipelines.
const (
	KwargOriginalAlternate = "original_dataset_alternate"
	KwargNewAlternate      = "new_dataset_alternate"
	KwargNewFileLocation   = "new_file_location"
	KwargRollbackFromStep  = "rollback_from_step"
	KwargActionToRollback  = "action_to_rollback"
	KwargInstanceName      = "instance_name"
	KwargFields            = "fields"
)
