// Package remote registers resources served by a remote service, which are linked rather than imported.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.remote.RemoteResourceHandler"

// maxPayload bounds the remote documents read during validation.
const maxPayload = 10 << 20

var remoteActions = map[models.Action][]string{
	models.ActionImport:   {handlers.StepStartImport, handlers.TaskImportResource, handlers.TaskCreateResource},
	models.ActionCopy:     {handlers.StepStartCopy, handlers.TaskCopyResource},
	models.ActionRollback: handlers.RollbackSteps,
}

// Handler links any reachable remote url.
type Handler struct {
	common.Direct
}

func New(deps *common.Deps) *Handler {
	h := &Handler{}
	h.Direct = common.NewDirect(common.NewBase(deps, Key, 10, remoteActions, handlers.ExtensionConfig{
		ID:     "remote",
		Label:  "Remote resource",
		Format: "remote",
	}), common.DirectOptions{
		SourceType:    models.SourceTypeRemote,
		Name:          ResourceName,
		AfterRegister: h.addLink,
	})

	return h
}

func (h *Handler) CanHandle(payload handlers.Payload) bool {
	return payload.String(models.ParamURL) != ""
}

func (h *Handler) ExtractParamsFromData(payload handlers.Payload, action models.Action) (handlers.Payload, handlers.Payload) {
	return ExtractParams(payload, action)
}

// ExtractParams keeps the url, title and type of a remote resource in the execution.
func ExtractParams(payload handlers.Payload, action models.Action) (handlers.Payload, handlers.Payload) {
	extracted, remaining := common.SplitPayload(payload, action,
		models.ParamURL, models.ParamTitle, models.ParamType,
		models.ParamSkipExistingLayers, models.ParamOverrideExistingLayer, models.ParamOverwriteExisting)

	if action != models.ActionCopy {
		extracted[models.ParamSource] = "remote"
	}

	return extracted, remaining
}

func (h *Handler) IsValid(ctx context.Context, _ map[string]string, _, executionID string) error {
	execution, err := h.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	_, err = Fetch(ctx, h.HTTP, execution.InputParams.String(models.ParamURL), false)

	return err
}

// Fetch checks that rawURL answers without error and returns its body when read is set.
func Fetch(ctx context.Context, client *http.Client, rawURL string, read bool) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, handlers.NewValidationError(handlers.ValidationRemote, "The provided url is not valid: %s", rawURL)
	}

	method := http.MethodHead
	if read {
		method = http.MethodGet
	}

	resp, err := request(ctx, client, method, u.String())
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		resp, err = request(ctx, client, http.MethodGet, u.String())
	}

	if err != nil {
		return nil, handlers.NewValidationError(handlers.ValidationRemote, "The provided url is not reachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, handlers.NewValidationError(handlers.ValidationRemote, "The provided url is not reachable, it answered %d", resp.StatusCode)
	}

	if !read {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, handlers.NewValidationError(handlers.ValidationRemote, "Failed to read the remote payload: %v", err)
	}

	return data, nil
}

func request(ctx context.Context, client *http.Client, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	return client.Do(req)
}

// ResourceName uses the title, falling back to the last segment of the url.
func ResourceName(execution *models.ExecutionRequest) string {
	if title := execution.InputParams.String(models.ParamTitle); title != "" {
		return title
	}

	u, err := url.Parse(execution.InputParams.String(models.ParamURL))
	if err != nil {
		return ""
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return u.Hostname()
	}

	return handlers.Stem(name)
}

func (h *Handler) addLink(ctx context.Context, execution *models.ExecutionRequest, resource *models.Resource) error {
	return addDataLink(ctx, h.Catalog, execution, resource)
}

// addDataLink attaches the remote url to resource as a data link.
func addDataLink(ctx context.Context, manager *catalog.Manager, execution *models.ExecutionRequest, resource *models.Resource) error {
	return manager.AddLink(ctx, resource, models.Link{
		Name:      resource.Alternate,
		URL:       execution.InputParams.String(models.ParamURL),
		Extension: execution.InputParams.String(models.ParamType),
		LinkType:  "data",
	})
}
