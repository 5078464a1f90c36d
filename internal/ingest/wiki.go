package ingest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

const wikiPageSize = 50

// WikiSource reads a Confluence-style REST API: spaces hold pages, each
// page carries a monotonically increasing version number.
type WikiSource struct {
	http *httpClient
}

// NewWikiSource creates a wiki source against baseURL.
func NewWikiSource(baseURL, token string) *WikiSource {
	return &WikiSource{http: newHTTPClient(baseURL, token)}
}

func (s *WikiSource) Kind() models.SourceKind { return models.SourceKindWiki }

func (s *WikiSource) ListScopes(ctx context.Context) ([]string, error) {
	var out struct {
		Results []struct {
			Key string `json:"key"`
		} `json:"results"`
	}
	if err := s.http.getJSON(ctx, "/rest/api/space", nil, &out); err != nil {
		return nil, err
	}
	keys := make([]string, len(out.Results))
	for i, space := range out.Results {
		keys[i] = space.Key
	}
	return keys, nil
}

func (s *WikiSource) ListItems(ctx context.Context, scope, cursor string) (*Page, error) {
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	query := url.Values{
		"spaceKey": {scope},
		"start":    {strconv.Itoa(start)},
		"limit":    {strconv.Itoa(wikiPageSize)},
	}
	var out struct {
		Results []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Version struct {
				Number int64 `json:"number"`
			} `json:"version"`
		} `json:"results"`
		Size int `json:"size"`
	}
	if err := s.http.getJSON(ctx, "/rest/api/content", query, &out); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, result := range out.Results {
		page.Items = append(page.Items, SourceItem{
			ExternalID: result.ID,
			Version:    result.Version.Number,
			Title:      result.Title,
			Scope:      scope,
		})
	}
	if out.Size == wikiPageSize {
		page.NextCursor = strconv.Itoa(start + wikiPageSize)
	}
	return page, nil
}

func (s *WikiSource) FetchBody(ctx context.Context, externalID string) (string, error) {
	query := url.Values{"expand": {"body.storage"}}
	var out struct {
		Title string `json:"title"`
		Body  struct {
			Storage struct {
				Value string `json:"value"`
			} `json:"storage"`
		} `json:"body"`
	}
	if err := s.http.getJSON(ctx, "/rest/api/content/"+externalID, query, &out); err != nil {
		return "", err
	}
	return out.Title + "\n\n" + out.Body.Storage.Value, nil
}
