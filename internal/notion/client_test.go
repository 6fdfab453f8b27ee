package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agini/astro-notion-blog/internal/config"
)

const testDatabaseID = "a1b2c3d4-e5f6-4789-8abc-def012345678"

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(&config.NotionConfig{
		Token:      "secret",
		DatabaseID: testDatabaseID,
		BaseURL:    baseURL,
		PageSize:   100,
		TimeoutMs:  2000,
		Attempts:   3,
	})
	require.NoError(t, err)
	return c
}

func blockPage(from, count int, next string) BlockChildrenResponse {
	resp := BlockChildrenResponse{Object: "list"}
	for i := 0; i < count; i++ {
		resp.Results = append(resp.Results, RawBlock{
			Object: "block",
			ID:     fmt.Sprintf("%08d-0000-4000-8000-000000000000", from+i),
			Type:   "paragraph",
			Paragraph: &TextPayload{
				RichText: []RichTextObject{{
					Type:      "text",
					Text:      &TextObject{Content: fmt.Sprintf("block %d", from+i)},
					PlainText: fmt.Sprintf("block %d", from+i),
				}},
			},
		})
	}
	if next != "" {
		resp.HasMore = true
		resp.NextCursor = &next
	}
	return resp
}

func TestListBlockChildren_Pagination(t *testing.T) {
	// Three pages of 100/100/37 must concatenate to 237 items in order.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var resp BlockChildrenResponse
		switch r.URL.Query().Get("start_cursor") {
		case "":
			resp = blockPage(0, 100, "cursor-1")
		case "cursor-1":
			resp = blockPage(100, 100, "cursor-2")
		case "cursor-2":
			resp = blockPage(200, 37, "")
		default:
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	blocks, err := c.ListBlockChildren(context.Background(), testDatabaseID)
	require.NoError(t, err)

	require.Len(t, blocks, 237)
	assert.Equal(t, int32(3), calls.Load())
	for i, b := range blocks {
		assert.Equal(t, fmt.Sprintf("%08d-0000-4000-8000-000000000000", i), b.ID)
	}
}

func TestListBlockChildren_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(BlockChildrenResponse{Object: "list"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	blocks, err := c.ListBlockChildren(context.Background(), testDatabaseID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	// Two server errors, then success: the third attempt's result surfaces.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"code": "internal_server_error", "message": "boom"})
			return
		}
		json.NewEncoder(w).Encode(blockPage(0, 1, ""))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	blocks, err := c.ListBlockChildren(context.Background(), testDatabaseID)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"code": "object_not_found", "message": "no such block"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListBlockChildren(context.Background(), testDatabaseID)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "object_not_found", apiErr.Code)
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestDo_RetriesExhaustedSurfacesLastError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListBlockChildren(context.Background(), testDatabaseID)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, int32(3), calls.Load(), "expected original call plus two retries")
}

func TestQueryDatabaseAll_CursorAdvances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req DatabaseQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := DatabaseQueryResponse{Object: "list"}
		if req.StartCursor == nil {
			resp.Results = []RawPage{{Object: "page", ID: "page-1"}}
			next := "c2"
			resp.HasMore = true
			resp.NextCursor = &next
		} else {
			require.Equal(t, "c2", *req.StartCursor)
			resp.Results = []RawPage{{Object: "page", ID: "page-2"}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	pages, err := c.QueryDatabaseAll(context.Background(), DatabaseQueryRequest{})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "page-1", pages[0].ID)
	assert.Equal(t, "page-2", pages[1].ID)
}

func TestRetrieveDatabase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/databases/"+testDatabaseID, r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(DatabaseResponse{
			Object: "database",
			ID:     testDatabaseID,
			Title: []RichTextObject{{
				Type: "text", PlainText: "My Blog",
				Text: &TextObject{Content: "My Blog"},
			}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	db, err := c.RetrieveDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "My Blog", db.Title[0].PlainText)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"server error", &APIError{Status: 500}, true},
		{"rate limited", &APIError{Status: 429}, true},
		{"unauthorized", &APIError{Status: 401}, false},
		{"not found", &APIError{Status: 404}, false},
		{"bad request", &APIError{Status: 400}, false},
		{"wrapped api error", fmt.Errorf("call: %w", &APIError{Status: 502}), true},
		{"plain network-ish error", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
