package ingest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

const emailPageSize = 100

// EmailSource reads a JSON mailbox gateway: folders hold messages, each
// identified by a stable id. Messages never change after delivery, so the
// version is fixed at 1 and removal is the only lifecycle event.
type EmailSource struct {
	http *httpClient
}

// NewEmailSource creates an email source against baseURL.
func NewEmailSource(baseURL, token string) *EmailSource {
	return &EmailSource{http: newHTTPClient(baseURL, token)}
}

func (s *EmailSource) Kind() models.SourceKind { return models.SourceKindEmail }

func (s *EmailSource) ListScopes(ctx context.Context) ([]string, error) {
	var out struct {
		Folders []string `json:"folders"`
	}
	if err := s.http.getJSON(ctx, "/mailboxes", nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

func (s *EmailSource) ListItems(ctx context.Context, scope, cursor string) (*Page, error) {
	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	query := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(emailPageSize)},
	}
	var out struct {
		Messages []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
		} `json:"messages"`
		Total int `json:"total"`
	}
	if err := s.http.getJSON(ctx, "/mailboxes/"+url.PathEscape(scope)+"/messages", query, &out); err != nil {
		return nil, err
	}

	page := &Page{}
	for _, message := range out.Messages {
		page.Items = append(page.Items, SourceItem{
			ExternalID: message.ID,
			Version:    1,
			Title:      message.Subject,
			Scope:      scope,
		})
	}
	if next := offset + len(out.Messages); next < out.Total {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

func (s *EmailSource) FetchBody(ctx context.Context, externalID string) (string, error) {
	var out struct {
		Subject string `json:"subject"`
		From    string `json:"from"`
		Body    string `json:"body"`
	}
	if err := s.http.getJSON(ctx, "/messages/"+url.PathEscape(externalID), nil, &out); err != nil {
		return "", err
	}
	return "Subject: " + out.Subject + "\nFrom: " + out.From + "\n\n" + out.Body, nil
}
