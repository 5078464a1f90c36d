package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

const trackerPageSize = 50

// TrackerSource reads a Jira-style REST API: projects hold issues. Issues
// expose no version counter, so change detection hashes summary plus the
// updated timestamp.
type TrackerSource struct {
	http *httpClient
}

// NewTrackerSource creates a tracker source against baseURL.
func NewTrackerSource(baseURL, token string) *TrackerSource {
	return &TrackerSource{http: newHTTPClient(baseURL, token)}
}

func (s *TrackerSource) Kind() models.SourceKind { return models.SourceKindTracker }

func (s *TrackerSource) ListScopes(ctx context.Context) ([]string, error) {
	var out []struct {
		Key string `json:"key"`
	}
	if err := s.http.getJSON(ctx, "/rest/api/2/project", nil, &out); err != nil {
		return nil, err
	}
	keys := make([]string, len(out))
	for i, project := range out {
		keys[i] = project.Key
	}
	return keys, nil
}

func (s *TrackerSource) ListItems(ctx context.Context, scope, cursor string) (*Page, error) {
	startAt := 0
	if cursor != "" {
		startAt, _ = strconv.Atoi(cursor)
	}
	query := url.Values{
		"jql":        {fmt.Sprintf("project = %s ORDER BY updated DESC", scope)},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(trackerPageSize)},
		"fields":     {"summary,updated"},
	}
	var out struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Summary string `json:"summary"`
				Updated string `json:"updated"`
			} `json:"fields"`
		} `json:"issues"`
		Total int `json:"total"`
	}
	if err := s.http.getJSON(ctx, "/rest/api/2/search", query, &out); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, issue := range out.Issues {
		page.Items = append(page.Items, SourceItem{
			ExternalID:  issue.Key,
			ContentHash: hashContent(issue.Fields.Summary, issue.Fields.Updated),
			Title:       issue.Fields.Summary,
			Scope:       scope,
		})
	}
	if next := startAt + len(out.Issues); next < out.Total {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

func (s *TrackerSource) FetchBody(ctx context.Context, externalID string) (string, error) {
	query := url.Values{"fields": {"summary,description,comment"}}
	var out struct {
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
			Comment     struct {
				Comments []struct {
					Body string `json:"body"`
				} `json:"comments"`
			} `json:"comment"`
		} `json:"fields"`
	}
	if err := s.http.getJSON(ctx, "/rest/api/2/issue/"+externalID, query, &out); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(out.Fields.Summary)
	if out.Fields.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(out.Fields.Description)
	}
	for _, comment := range out.Fields.Comment.Comments {
		b.WriteString("\n\n")
		b.WriteString(comment.Body)
	}
	return b.String(), nil
}

func hashContent(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
