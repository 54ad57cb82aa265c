package mediaserver

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

const (
	userAgent          = "mtxdash-client"
	defaultTimeout     = 10 * time.Second
	defaultPageSize    = 100
	maxErrorBodyLength = 4096
)

type httpClient interface {
	Do(*http.Request) (*http.Response, error)
}

// APIError is returned when the MediaMTX control API responds with a non-2xx
// status code.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}

	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Message)
}

// Is allows a 404 response to match [domain.ErrNotFound].
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound returns true if err is, or wraps, a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is a client for the MediaMTX control API.
//
// All methods are safe for use from multiple goroutines.
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	httpClient httpClient
	metrics    *RequestMetrics
	logger     *slog.Logger
}

// NewClientParams contains the parameters for building a new Client.
type NewClientParams struct {
	APIURL     string        // e.g. http://localhost:9997
	Username   string        // optional basic auth username
	Password   string        // optional basic auth password
	Timeout    time.Duration // defaults to 10 seconds
	HTTPClient httpClient    // optional, overrides Timeout
	Metrics    *RequestMetrics
	Logger     *slog.Logger
}

// NewClient creates a new MediaMTX API client.
func NewClient(params NewClientParams) (*Client, error) {
	baseURL, err := url.Parse(params.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse API URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("parse API URL: unsupported scheme %q", baseURL.Scheme)
	}

	var client httpClient = params.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cmp.Or(params.Timeout, defaultTimeout)}
	}

	return &Client{
		baseURL:    baseURL,
		username:   params.Username,
		password:   params.Password,
		httpClient: client,
		metrics:    params.Metrics,
		logger:     params.Logger,
	}, nil
}

// BaseURL returns the base URL of the control API.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type apiList[T any] struct {
	ItemCount int `json:"itemCount"`
	PageCount int `json:"pageCount"`
	Items     []T `json:"items"`
}

// ListPaths returns every path currently instantiated in the media server.
func (c *Client) ListPaths(ctx context.Context) ([]domain.LivePath, error) {
	return listAll[domain.LivePath](ctx, c, "paths/list")
}

// GetPath returns a single live path. A missing path is reported as an error
// matching [domain.ErrNotFound].
func (c *Client) GetPath(ctx context.Context, name string) (domain.LivePath, error) {
	var path domain.LivePath
	if err := c.do(ctx, http.MethodGet, "paths/get", name, nil, nil, &path); err != nil {
		return domain.LivePath{}, err
	}

	return path, nil
}

// ListPathConfigs returns every path configuration known to the media server.
func (c *Client) ListPathConfigs(ctx context.Context) ([]domain.PathConf, error) {
	return listAll[domain.PathConf](ctx, c, "config/paths/list")
}

// GetPathConfig returns the resolved configuration of a single path.
func (c *Client) GetPathConfig(ctx context.Context, name string) (domain.PathConf, error) {
	var conf domain.PathConf
	if err := c.do(ctx, http.MethodGet, "config/paths/get", name, nil, nil, &conf); err != nil {
		return domain.PathConf{}, err
	}

	return conf, nil
}

// AddPathConfig registers a new path configuration.
func (c *Client) AddPathConfig(ctx context.Context, conf domain.PathConf) error {
	return c.do(ctx, http.MethodPost, "config/paths/add", conf.Name, nil, conf, nil)
}

// PatchPathConfig updates the given fields of an existing path configuration.
func (c *Client) PatchPathConfig(ctx context.Context, name string, conf domain.PathConf) error {
	return c.do(ctx, http.MethodPatch, "config/paths/patch", name, nil, conf, nil)
}

// DeletePathConfig removes a path configuration.
func (c *Client) DeletePathConfig(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "config/paths/delete", name, nil, nil, nil)
}

// GetGlobalConfig returns the global configuration.
func (c *Client) GetGlobalConfig(ctx context.Context) (domain.GlobalConfig, error) {
	var cfg domain.GlobalConfig
	if err := c.do(ctx, http.MethodGet, "config/global/get", "", nil, nil, &cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PatchGlobalConfig updates the given fields of the global configuration.
func (c *Client) PatchGlobalConfig(ctx context.Context, cfg domain.GlobalConfig) error {
	return c.do(ctx, http.MethodPatch, "config/global/patch", "", nil, cfg, nil)
}

// listAll fetches every page of a list endpoint.
func listAll[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	var items []T

	for page := 0; ; page++ {
		query := url.Values{}
		query.Set("itemsPerPage", strconv.Itoa(defaultPageSize))
		query.Set("page", strconv.Itoa(page))

		var list apiList[T]
		if err := c.do(ctx, http.MethodGet, endpoint, "", query, nil, &list); err != nil {
			return nil, err
		}

		items = append(items, list.Items...)

		if page+1 >= list.PageCount {
			break
		}
	}

	return items, nil
}

// do performs a request against the control API. endpoint is the path below
// /v3/, and name an optional trailing path name.
func (c *Client) do(ctx context.Context, method, endpoint, name string, query url.Values, body, out any) (err error) {
	u := c.baseURL.JoinPath("v3", endpoint)
	if name != "" {
		u = u.JoinPath(name)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	startedAt := time.Now()
	var statusCode int
	defer func() {
		c.metrics.observe(method, endpoint, statusCode, time.Since(startedAt))
	}()

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	statusCode = httpResp.StatusCode
	c.logger.Debug("MediaMTX API request", "method", method, "url", u.Redacted(), "status", statusCode)

	if statusCode < 200 || statusCode > 299 {
		return newAPIError(httpResp)
	}

	if out == nil {
		return nil
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return nil
}

func newAPIError(httpResp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: httpResp.StatusCode}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyLength))
	if err != nil || len(respBody) == 0 {
		return apiErr
	}

	var errBody struct {
		Error string `json:"error"`
	}
	if err = json.Unmarshal(respBody, &errBody); err == nil {
		apiErr.Message = errBody.Error
	}

	return apiErr
}
