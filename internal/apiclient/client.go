// Package apiclient talks to a running sentinel server.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/cloudsentinel/internal/httpapi"
	"github.com/scan-io-git/cloudsentinel/internal/model"
	"github.com/scan-io-git/cloudsentinel/internal/policy"
	"github.com/scan-io-git/cloudsentinel/internal/storage"
	"github.com/scan-io-git/cloudsentinel/internal/timeline"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/config"
	"github.com/scan-io-git/cloudsentinel/pkg/shared/httpclient"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server responded with %d", e.StatusCode)
	}
	return fmt.Sprintf("server responded with %d: %s", e.StatusCode, e.Detail)
}

// Unwrap lets errors.Is(err, storage.ErrNotFound) work across the wire.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	return nil
}

// IsBadRequest reports whether the server rejected the input.
func IsBadRequest(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

type Client struct {
	rc *resty.Client
}

// New builds a client for baseURL using the retry, timeout and proxy settings of
// cfg.HTTPClient.
func New(baseURL string, logger hclog.Logger, cfg *config.Config) *Client {
	rc := httpclient.InitializeRestyClient(logger, cfg)
	rc.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	rc.SetHeader("Accept", "application/json")
	return &Client{rc: rc}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}, query map[string]string) error {
	var apiErr httpapi.ErrorResponse
	req := c.rc.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Detail: apiErr.Detail}
	}
	return nil
}

func (c *Client) Health(ctx context.Context) (httpapi.Health, error) {
	var h httpapi.Health
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &h, nil)
	return h, err
}

// Scan triggers a scan on the server and waits for the snapshot.
func (c *Client) Scan(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/scan", nil, &snap, nil); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) ListScans(ctx context.Context, limit int) ([]model.Meta, error) {
	metas := []model.Meta{}
	err := c.do(ctx, http.MethodGet, "/api/scans", nil, &metas, map[string]string{"limit": strconv.Itoa(limit)})
	return metas, err
}

func (c *Client) GetScan(ctx context.Context, scanID string) (model.Meta, *model.Snapshot, error) {
	var detail httpapi.ScanDetail
	if err := c.do(ctx, http.MethodGet, "/api/scans/"+scanID, nil, &detail, nil); err != nil {
		return model.Meta{}, nil, err
	}
	return detail.Meta, detail.Snapshot, nil
}

// Latest returns the newest Meta, or nil when the server has no scans.
func (c *Client) Latest(ctx context.Context) (*model.Meta, error) {
	var latest httpapi.LatestScore
	if err := c.do(ctx, http.MethodGet, "/api/score/latest", nil, &latest, nil); err != nil {
		return nil, err
	}
	if latest.ScanID == nil || latest.Score == nil {
		return nil, nil
	}
	meta := &model.Meta{ScanID: *latest.ScanID, Score: *latest.Score, DomainScores: latest.DomainScores}
	if latest.CreatedAt != nil {
		meta.CreatedAt = *latest.CreatedAt
	}
	return meta, nil
}

func (c *Client) Simulate(ctx context.Context, scenario string) (timeline.SimulateResponse, error) {
	var resp timeline.SimulateResponse
	err := c.do(ctx, http.MethodPost, "/api/simulate/"+scenario, nil, &resp, nil)
	return resp, err
}

func (c *Client) Timeline(ctx context.Context, since time.Time) ([]model.TimelineEvent, error) {
	var query map[string]string
	if !since.IsZero() {
		query = map[string]string{"since": since.UTC().Format(time.RFC3339Nano)}
	}
	var resp httpapi.TimelineResponse
	if err := c.do(ctx, http.MethodGet, "/api/timeline", nil, &resp, query); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) ValidatePolicy(ctx context.Context, policyJSON, policyType string) (policy.Response, error) {
	var resp policy.Response
	err := c.do(ctx, http.MethodPost, "/api/policy/validate", httpapi.PolicyRequest{PolicyJSON: policyJSON, PolicyType: policyType}, &resp, nil)
	return resp, err
}
