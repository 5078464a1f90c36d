// Package ingest keeps the knowledge store synchronized with external
// sources: pollers discover changed items, indexers embed and upsert them,
// and a supervisor keeps both loops alive per connection.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// ErrSourceAuth marks credential failures; the poller flips the
// connection to INVALID when it sees one.
var ErrSourceAuth = errors.New("source authentication failed")

// SourceItem is one artifact as listed by an external system.
type SourceItem struct {
	ExternalID  string
	Version     int64
	ContentHash string
	Title       string
	Scope       string
}

// Page is one page of a source listing.
type Page struct {
	Items      []SourceItem
	NextCursor string
}

// Source lists and fetches artifacts from one external system.
type Source interface {
	Kind() models.SourceKind

	// ListScopes enumerates the spaces/folders/projects available to the
	// credential, used when the connection does not pin scopes.
	ListScopes(ctx context.Context) ([]string, error)

	// ListItems pages through a scope. Pass an empty cursor for the first
	// page; an empty NextCursor ends the iteration.
	ListItems(ctx context.Context, scope, cursor string) (*Page, error)

	// FetchBody returns the full text of one item.
	FetchBody(ctx context.Context, externalID string) (string, error)
}

const sourceRequestTimeout = 30 * time.Second

// httpClient is the shared JSON-over-HTTP transport for sources.
type httpClient struct {
	base   string
	token  string
	client *http.Client
}

func newHTTPClient(baseURL, token string) *httpClient {
	return &httpClient{
		base:   baseURL,
		token:  token,
		client: &http.Client{Timeout: sourceRequestTimeout},
	}
}

// getJSON fetches path with query and decodes the response body into out.
func (c *httpClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("GET %s: status %d: %w", path, resp.StatusCode, ErrSourceAuth)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
