// Package remote provides the client for the authoritative remote row
// store. The backend exposes PostgREST-style routes: select-all over a
// table, batch upsert keyed by id, delete by id, and a websocket change
// feed per table. Remote column names are lowercase snake-style; the
// wire normalizer exists to satisfy that constraint before anything
// reaches this client.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/hweilin/tillsync/internal/errors"
	"github.com/hweilin/tillsync/internal/models"
)

// Config holds remote backend connection configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the remote row store over HTTP.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a new remote Client.
func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// createRequest builds a request against the REST surface with auth
// and content headers applied.
func (c *Client) createRequest(ctx context.Context, method, table, query string, body io.Reader) (*http.Request, error) {
	u := fmt.Sprintf("%s/rest/v1/%s", strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(table))
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// SelectAll fetches every row of a remote table.
func (c *Client) SelectAll(ctx context.Context, table string) ([]models.Record, error) {
	req, err := c.createRequest(ctx, http.MethodGet, table, "select=*", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport("select", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("select", table, resp)
	}

	var rows []models.Record
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransientNetwork,
			fmt.Sprintf("malformed select response for table %q", table), err)
	}
	return rows, nil
}

// UpsertBatch writes rows to a remote table in one call, keyed by id
// with id as the conflict target. The backend applies the batch
// atomically; a failure leaves the remote table as it was.
func (c *Client) UpsertBatch(ctx context.Context, table string, rows []models.Record) error {
	if len(rows) == 0 {
		return nil
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "upsert batch not serializable", err)
	}

	req, err := c.createRequest(ctx, http.MethodPost, table, "on_conflict=id", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport("upsert", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusNoContent {
		return classifyStatus("upsert", table, resp)
	}
	return nil
}

// DeleteByID removes one row from a remote table by id. A missing row
// is not an error.
func (c *Client) DeleteByID(ctx context.Context, table, id string) error {
	req, err := c.createRequest(ctx, http.MethodDelete, table, "id=eq."+url.QueryEscape(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport("delete", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return classifyStatus("delete", table, resp)
	}
	return nil
}

// Ping probes remote reachability for the connectivity prober.
func (c *Client) Ping(ctx context.Context) error {
	u := strings.TrimRight(c.config.BaseURL, "/") + "/rest/v1/"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport("ping", "", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperrors.Newf(apperrors.ErrTransientNetwork, "ping returned status %d", resp.StatusCode)
	}
	return nil
}

// ChangesURL returns the websocket endpoint for the change feed. With
// a table it scopes the feed server-side; with an empty table the
// subscription is expected to arrive as the first frame.
func (c *Client) ChangesURL(table string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	query := url.Values{"apikey": {c.config.APIKey}}
	if table != "" {
		query.Set("table", table)
	}
	return base + "/realtime/v1/changes?" + query.Encode()
}

// classifyTransport maps transport-level failures (timeouts, connection
// resets, DNS) to the transient error class.
func classifyTransport(op, table string, err error) error {
	msg := fmt.Sprintf("%s request failed", op)
	if table != "" {
		msg = fmt.Sprintf("%s request for table %q failed", op, table)
	}
	return apperrors.Wrap(apperrors.ErrTransientNetwork, msg, err)
}

// classifyStatus maps a non-success HTTP status to the engine taxonomy.
// 400/404/422 carry the backend's own schema diagnostics (missing
// table, unknown column) and classify as a remote schema mismatch;
// 408/429 and 5xx are transient.
func classifyStatus(op, table string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusNotFound ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.Newf(apperrors.ErrRemoteSchemaMismatch,
			"%s on table %q rejected with status %d: %s", op, table, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500:
		return apperrors.Newf(apperrors.ErrTransientNetwork,
			"%s on table %q failed with status %d", op, table, resp.StatusCode)
	default:
		return apperrors.Newf(apperrors.ErrSyncFailed,
			"%s on table %q failed with status %d: %s", op, table, resp.StatusCode, detail)
	}
}
