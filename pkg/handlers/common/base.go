package common

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/google/uuid"
)

// Base implements the parts of handlers.Handler that only depend on the handler declaration.
type Base struct {
	*Deps

	key       string
	priority  int
	actions   map[models.Action][]string
	extension handlers.ExtensionConfig
	log       *slog.Logger
}

func NewBase(deps *Deps, key string, priority int, actions map[models.Action][]string, extension handlers.ExtensionConfig) Base {
	return Base{
		Deps:      deps,
		key:       key,
		priority:  priority,
		actions:   actions,
		extension: extension,
		log:       deps.logger().With("module", "handlers", "handler", key),
	}
}

func (b *Base) Key() string {
	return b.key
}

func (b *Base) Priority() int {
	return b.priority
}

func (b *Base) Logger() *slog.Logger {
	return b.log
}

// CanHandle matches the base file extension against the declared extensions.
func (b *Base) CanHandle(payload handlers.Payload) bool {
	ext := payload.Extension()

	return ext != "" && slices.Contains(b.extension.Ext, ext)
}

func (b *Base) Actions() map[models.Action][]string {
	actions := make(map[models.Action][]string, len(b.actions))
	for action, steps := range b.actions {
		actions[action] = slices.Clone(steps)
	}

	return actions
}

func (b *Base) TaskList(action models.Action) ([]string, error) {
	steps, ok := b.actions[action]
	if !ok {
		return nil, fmt.Errorf("%s does not support the %s action: %w", b.key, action, handlers.ErrNotSupported)
	}

	return slices.Clone(steps), nil
}

func (b *Base) ExtensionConfig() handlers.ExtensionConfig {
	return b.extension
}

var importParams = []string{
	models.ParamSkipExistingLayers,
	models.ParamOverrideExistingLayer,
	models.ParamOverwriteExisting,
	models.ParamDatasetTitle,
}

// ExtractParamsFromData keeps the import flags in the execution and leaves everything else request local.
func (b *Base) ExtractParamsFromData(payload handlers.Payload, action models.Action) (handlers.Payload, handlers.Payload) {
	return SplitPayload(payload, action, importParams...)
}

// SplitPayload moves keys (or only the title for a copy) from payload into the extracted params.
// store_spatial_files defaults to true and source to "upload".
func SplitPayload(payload handlers.Payload, action models.Action, keys ...string) (handlers.Payload, handlers.Payload) {
	extracted := handlers.Payload{}
	remaining := handlers.Payload{}

	for k, v := range payload {
		remaining[k] = v
	}

	if action == models.ActionCopy {
		if title, ok := remaining[models.ParamTitle]; ok {
			extracted[models.ParamTitle] = title
			delete(remaining, models.ParamTitle)
		}

		return extracted, remaining
	}

	for _, key := range keys {
		if v, ok := remaining[key]; ok {
			extracted[key] = v
			delete(remaining, key)
		}
	}

	extracted[models.ParamStoreSpatialFile] = true
	if _, ok := remaining["store_spatial_files"]; ok {
		extracted[models.ParamStoreSpatialFile] = models.Params(remaining).Bool("store_spatial_files")
		delete(remaining, "store_spatial_files")
	}

	extracted[models.ParamSource] = "upload"
	if v, ok := remaining[models.ParamSource]; ok {
		extracted[models.ParamSource] = v
		delete(remaining, models.ParamSource)
	}

	return extracted, remaining
}

func (b *Base) CreateErrorLog(err error, taskName, alternate string) string {
	return fmt.Sprintf("Task: %s raised an error during actions for layer: %s: %s", taskName, alternate, handlers.Detail(err))
}

// CreateResourceHandlerInfo links resource to this handler, updating the previous link if any.
func (b *Base) CreateResourceHandlerInfo(ctx context.Context, resource *models.Resource, executionID string, kwargs models.Params) error {
	info := &models.ResourceHandlerInfo{
		ID:                uuid.NewString(),
		ResourceID:        resource.ID,
		HandlerModulePath: b.key,
		ExecutionID:       executionID,
		Kwargs:            kwargs.Clone(),
		Created:           time.Now().UTC(),
	}

	existing, err := b.HandlerInfos.ListByResource(ctx, resource.ID)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		info.ID = existing[0].ID
		info.Created = existing[0].Created
	}

	return b.HandlerInfos.Save(ctx, info)
}

// Qualify prefixes name with the workspace unless it already carries one.
func (b *Base) Qualify(name string) string {
	if strings.Contains(name, ":") {
		return name
	}

	return b.Workspace + ":" + name
}

// FindExisting returns the resource user already owns under layerName, or nil.
func (b *Base) FindExisting(ctx context.Context, user, layerName string) (*models.Resource, error) {
	resource, err := b.Resources.FindByOwnerAndAlternate(ctx, user, b.Qualify(layerName))
	if persistence.IsResourceNotFound(err) {
		return nil, nil
	}

	return resource, err
}

// ShouldBeImported is false when the layer already exists and the user asked to skip existing layers.
func ShouldBeImported(existing *models.Resource, skipExisting bool) bool {
	return existing == nil || !skipExisting
}

// ResolveAlternate picks the table and layer name of a new import. An existing resource is reused when
// override is set; a name nobody uses is kept as is; anything else gets a name unique to the execution.
func (b *Base) ResolveAlternate(ctx context.Context, existing *models.Resource, layerName, executionID string, override bool) (string, error) {
	if existing != nil {
		if override {
			return existing.LayerName(), nil
		}

		return handlers.CreateAlternate(layerName, executionID), nil
	}

	taken, err := b.nameTaken(ctx, layerName)
	if err != nil {
		return "", err
	}

	if taken {
		return handlers.CreateAlternate(layerName, executionID), nil
	}

	return layerName, nil
}

func (b *Base) nameTaken(ctx context.Context, layerName string) (bool, error) {
	_, err := b.Resources.GetByAlternate(ctx, b.Qualify(layerName))

	switch {
	case err == nil:
		return true, nil
	case !persistence.IsResourceNotFound(err):
		return false, err
	}

	if b.Schemas == nil {
		return false, nil
	}

	return b.Schemas.Exists(ctx, layerName)
}

// CheckUploadLimit enforces the per-user parallel upload quota, when configured.
func (b *Base) CheckUploadLimit(ctx context.Context, user, executionID string) error {
	if b.Limits == nil {
		return nil
	}

	return b.Limits.ValidateParallelismLimitPerUser(ctx, user, executionID)
}

// CheckBaseFile validates that the base file exists and carries a single extension dot when strict.
func CheckBaseFile(kind handlers.ValidationKind, files map[string]string, strict bool) error {
	base := files["base_file"]
	if base == "" {
		return handlers.NewValidationError(kind, "base_file is required")
	}

	if _, err := os.Stat(base); err != nil {
		return handlers.NewValidationError(kind, "The file %s cannot be read: %v", base, err)
	}

	if strict && handlers.HasExtraDots(base) {
		return handlers.NewValidationError(kind, "Please remove the additional dots in the filename")
	}

	return nil
}

// StoredFiles lists the staged files kept on the resource when store_spatial_file is set.
func StoredFiles(execution *models.ExecutionRequest) []string {
	if !execution.InputParams.Bool(models.ParamStoreSpatialFile) {
		return nil
	}

	files := make([]string, 0, len(execution.Files()))
	for _, path := range execution.Files() {
		files = append(files, path)
	}

	sort.Strings(files)

	return files
}

// Register upserts resource and finalises it: metadata files, thumbnail and dirty flag.
func (b *Base) Register(ctx context.Context, resource *models.Resource, files map[string]string) (*models.Resource, error) {
	resource, err := b.Catalog.Upsert(ctx, resource)
	if err != nil {
		return nil, err
	}

	return b.Catalog.Finalize(ctx, resource, files)
}

// CopyResource duplicates original in the catalog under newAlternate, titled after the copy request.
func (b *Base) CopyResource(ctx context.Context, original *models.Resource, execution *models.ExecutionRequest, newAlternate string, _ models.Params) (*models.Resource, error) {
	copied, err := b.Catalog.Copy(ctx, original, execution.User, b.Qualify(newAlternate), execution.InputParams.String(models.ParamTitle))
	if err != nil {
		return nil, err
	}

	return b.Catalog.Finalize(ctx, copied, nil)
}

// copyTargets republishes a copied table with the SRS of the original resource.
func (b *Base) copyTargets(ctx context.Context, alternate string, kwargs models.Params) ([]handlers.PublishTarget, error) {
	original, err := b.Resources.GetByAlternate(ctx, b.Qualify(kwargs.String(handlers.KwargOriginalAlternate)))
	if err != nil {
		return nil, err
	}

	if original.SRID == "" {
		return nil, nil
	}

	return []handlers.PublishTarget{{Name: layerOf(alternate), CRS: original.SRID}}, nil
}

func (b *Base) AttachXML(ctx context.Context, resource *models.Resource, path string) error {
	return b.Catalog.AttachMetadata(ctx, resource, path)
}

func (b *Base) AttachSLD(ctx context.Context, resource *models.Resource, path string) error {
	return b.Catalog.SetStyle(ctx, resource, path)
}

// DeleteCatalogResource removes the resource registered under instance, if any.
func (b *Base) DeleteCatalogResource(ctx context.Context, _, instance string, _ models.Params) error {
	resource, err := b.Resources.GetByAlternate(ctx, b.Qualify(instance))
	if persistence.IsResourceNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	return b.Catalog.Delete(ctx, resource.ID)
}

// Unpublish removes the map server layer of instance.
func (b *Base) Unpublish(ctx context.Context, _, instance string, _ models.Params) error {
	return b.MapServer.DeleteLayer(ctx, b.Workspace, layerOf(instance))
}

// NothingToUndo is the compensator of steps without side effects.
func (b *Base) NothingToUndo(ctx context.Context, executionID, instance string, _ models.Params) error {
	b.log.DebugContext(ctx, "Nothing to roll back", "execution_id", executionID, "instance", instance)

	return nil
}

// DeleteTaskResults purges the task results of a finished execution. Inside a task the purge waits
// until the queue has recorded the outcome of that task, so no result outlives the execution.
func (b *Base) DeleteTaskResults(ctx context.Context, executionID string) error {
	if b.TaskResults == nil {
		return nil
	}

	purge := func(ctx context.Context) error {
		return b.TaskResults.DeleteByExecution(ctx, executionID)
	}

	if taskqueue.AfterSuccess(ctx, purge) {
		return nil
	}

	return purge(ctx)
}

func layerOf(alternate string) string {
	if _, name, ok := strings.Cut(alternate, ":"); ok {
		return name
	}

	return alternate
}
