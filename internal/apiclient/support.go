package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"dev365-portal/internal/models"
)

// ListSupportRequests GET /support with the non-empty filter fields as query parameters
func (c *Client) ListSupportRequests(ctx context.Context, token string, filter models.SupportFilter) (*models.Envelope[[]models.SupportRequest], error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.WebsiteID != "" {
		q.Set("websiteId", filter.WebsiteID)
	}
	if filter.Category != "" {
		q.Set("category", string(filter.Category))
	}
	path := "/support"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out models.Envelope[[]models.SupportRequest]
	if err := c.do(ctx, "support.list", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSupportRequest GET /support/:id
func (c *Client) GetSupportRequest(ctx context.Context, token, id string) (*models.Envelope[models.SupportRequest], error) {
	var out models.Envelope[models.SupportRequest]
	if err := c.do(ctx, "support.get", http.MethodGet, "/support/"+escape(id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSupportByWebsite GET /support/website/:websiteId
func (c *Client) ListSupportByWebsite(ctx context.Context, token, websiteID string) (*models.Envelope[[]models.SupportRequest], error) {
	var out models.Envelope[[]models.SupportRequest]
	if err := c.do(ctx, "support.by_website", http.MethodGet, "/support/website/"+escape(websiteID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSupportRequest POST /support
func (c *Client) CreateSupportRequest(ctx context.Context, token string, dto models.CreateSupportRequestDTO) (*models.Envelope[models.SupportRequest], error) {
	var out models.Envelope[models.SupportRequest]
	if err := c.do(ctx, "support.create", http.MethodPost, "/support", token, dto, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
