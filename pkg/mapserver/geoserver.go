package mapserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// GeoServerClient talks to the GeoServer REST API.
type GeoServerClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

func NewGeoServerClient(baseURL, username, password string, logger *slog.Logger) *GeoServerClient {
	return &GeoServerClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   logger.With("module", "geoserver"),
	}
}

func (c *GeoServerClient) GetStore(ctx context.Context, workspace, name string) (*Store, error) {
	status, body, err := c.do(ctx, http.MethodGet, c.path("workspaces", workspace, "datastores", name+".json"), "", nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("datastore %s:%s: %w", workspace, name, ErrNotFound)
	case status >= http.StatusBadRequest:
		return nil, c.statusError(status, body)
	}

	return &Store{Name: name, Workspace: workspace, Type: StoreTypeDatastore}, nil
}

type connectionEntry struct {
	Key   string `json:"@key"`
	Value string `json:"$"`
}

func (c *GeoServerClient) CreateDatastore(ctx context.Context, workspace, name string, params map[string]string) (*Store, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	entries := make([]connectionEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, connectionEntry{Key: k, Value: params[k]})
	}

	payload := map[string]any{
		"dataStore": map[string]any{
			"name":                 name,
			"connectionParameters": map[string]any{"entry": entries},
		},
	}

	status, body, err := c.doJSON(ctx, http.MethodPost, c.path("workspaces", workspace, "datastores"), payload)
	if err != nil {
		return nil, err
	}

	if status >= http.StatusBadRequest {
		return nil, c.statusError(status, body)
	}

	c.logger.InfoContext(ctx, "Datastore created", "workspace", workspace, "store", name)

	return &Store{Name: name, Workspace: workspace, Type: StoreTypeDatastore}, nil
}

func (c *GeoServerClient) PublishFeatureType(ctx context.Context, store *Store, name, srs string) error {
	payload := map[string]any{
		"featureType": map[string]any{
			"name":       name,
			"nativeName": name,
			"srs":        srs,
		},
	}

	status, body, err := c.doJSON(ctx, http.MethodPost, c.path("workspaces", store.Workspace, "datastores", store.Name, "featuretypes"), payload)
	if err != nil {
		return err
	}

	if status >= http.StatusBadRequest {
		if strings.Contains(string(body), "already exists") {
			return &AlreadyExistsError{Name: name, Store: store.Name}
		}

		return c.statusError(status, body)
	}

	return nil
}

func (c *GeoServerClient) PublishCoverage(ctx context.Context, workspace, name, path, srs string, overwrite bool) error {
	endpoint := c.path("workspaces", workspace, "coveragestores", name, "external.geotiff")

	query := url.Values{}
	query.Set("configure", "first")
	query.Set("coverageName", name)

	if overwrite {
		query.Set("update", "overwrite")
	}

	status, body, err := c.do(ctx, http.MethodPut, endpoint+"?"+query.Encode(), "text/plain", strings.NewReader("file:"+path))
	if err != nil {
		return err
	}

	if status >= http.StatusBadRequest {
		if !overwrite && strings.Contains(string(body), "already exists") {
			return &AlreadyExistsError{Name: name, Store: name}
		}

		return c.statusError(status, body)
	}

	c.logger.InfoContext(ctx, "Coverage published", "workspace", workspace, "layer", name, "srs", srs)

	return nil
}

func (c *GeoServerClient) DeleteLayer(ctx context.Context, workspace, name string) error {
	status, body, err := c.do(ctx, http.MethodDelete, c.path("workspaces", workspace, "layers", name)+"?recurse=true", "", nil)
	if err != nil {
		return err
	}

	if status == http.StatusNotFound {
		return nil
	}

	if status >= http.StatusBadRequest {
		return c.statusError(status, body)
	}

	return nil
}

func (c *GeoServerClient) path(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}

	return c.baseURL + "/rest/" + strings.Join(escaped, "/")
}

func (c *GeoServerClient) doJSON(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return c.do(ctx, method, endpoint, "application/json", bytes.NewReader(data))
}

func (c *GeoServerClient) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w: %w", method, endpoint, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, data, nil
}

func (c *GeoServerClient) statusError(status int, body []byte) error {
	err := fmt.Errorf("map server answered %d: %s", status, strings.TrimSpace(string(body)))
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return err
}
