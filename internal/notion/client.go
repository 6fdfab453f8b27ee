package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/agini/astro-notion-blog/internal/config"
)

const (
	// notionVersion pins the API revision this client is written against.
	notionVersion = "2022-06-28"

	retryBaseDelay = 500 * time.Millisecond
)

// Client talks to the Notion API. Every call runs under a per-request
// timeout and a bounded retry policy: transient failures are re-attempted,
// client errors surface immediately.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
	databaseID string
	pageSize   int
	timeout    time.Duration
	attempts   uint
}

// New creates a Notion API client from configuration. The database id is
// canonicalized up front so it can be compared against ids in responses.
func New(cfg *config.NotionConfig) (*Client, error) {
	databaseID, err := config.CanonicalID(cfg.DatabaseID)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{},
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		databaseID: databaseID,
		pageSize:   cfg.PageSize,
		timeout:    cfg.Timeout(),
		attempts:   uint(cfg.Attempts),
	}, nil
}

// DatabaseID returns the canonical id of the configured database.
func (c *Client) DatabaseID() string {
	return c.databaseID
}

// do performs one API call with retry. body is marshaled as JSON when
// non-nil; the response is decoded into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return retry.Do(
		func() error {
			return c.doOnce(ctx, method, path, payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.RetryIf(IsRetryable),
		retry.Delay(retryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying notion api call",
				"method", method,
				"path", path,
				"attempt", n+1,
				"error", err)
		}),
	)
}

// doOnce is a single attempt: one HTTP round trip under the per-call timeout.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", notionVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ListBlockChildren lists all direct children of a page or block, walking
// the cursor until exhausted. Pagination is strictly sequential and the
// returned order matches the listing order; nothing is deduplicated.
func (c *Client) ListBlockChildren(ctx context.Context, blockID string) ([]RawBlock, error) {
	id, err := config.CanonicalID(blockID)
	if err != nil {
		return nil, err
	}

	var all []RawBlock
	var cursor *string

	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprintf("%d", c.pageSize))
		if cursor != nil {
			q.Set("start_cursor", *cursor)
		}

		var page BlockChildrenResponse
		path := fmt.Sprintf("/v1/blocks/%s/children?%s", id, q.Encode())
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list children of %s: %w", id, err)
		}

		all = append(all, page.Results...)

		if !page.HasMore || page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	return all, nil
}

// QueryDatabaseAll runs a database query and walks the cursor until
// exhausted, concatenating result pages in response order. The request's
// StartCursor and PageSize fields are managed by the driver.
func (c *Client) QueryDatabaseAll(ctx context.Context, req DatabaseQueryRequest) ([]RawPage, error) {
	req.PageSize = c.pageSize
	req.StartCursor = nil

	var all []RawPage

	for {
		var page DatabaseQueryResponse
		path := fmt.Sprintf("/v1/databases/%s/query", c.databaseID)
		if err := c.do(ctx, http.MethodPost, path, &req, &page); err != nil {
			return nil, fmt.Errorf("failed to query database: %w", err)
		}

		all = append(all, page.Results...)

		if !page.HasMore || page.NextCursor == nil {
			break
		}
		req.StartCursor = page.NextCursor
	}

	return all, nil
}

// RetrieveDatabase fetches the catalog's own metadata record.
func (c *Client) RetrieveDatabase(ctx context.Context) (*DatabaseResponse, error) {
	var db DatabaseResponse
	path := fmt.Sprintf("/v1/databases/%s", c.databaseID)
	if err := c.do(ctx, http.MethodGet, path, nil, &db); err != nil {
		return nil, fmt.Errorf("failed to retrieve database: %w", err)
	}
	return &db, nil
}
