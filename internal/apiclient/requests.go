package apiclient

import (
	"context"
	"net/http"

	"dev365-portal/internal/models"
)

// ListRequests GET /requests
func (c *Client) ListRequests(ctx context.Context, token string) (*models.Envelope[[]models.WebsiteRequest], error) {
	var out models.Envelope[[]models.WebsiteRequest]
	if err := c.do(ctx, "requests.list", http.MethodGet, "/requests", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRequest GET /requests/:id
func (c *Client) GetRequest(ctx context.Context, token, id string) (*models.Envelope[models.WebsiteRequest], error) {
	var out models.Envelope[models.WebsiteRequest]
	if err := c.do(ctx, "requests.get", http.MethodGet, "/requests/"+escape(id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRequest POST /requests
func (c *Client) CreateRequest(ctx context.Context, token string, dto models.CreateWebsiteRequestDTO) (*models.Envelope[models.WebsiteRequest], error) {
	var out models.Envelope[models.WebsiteRequest]
	if err := c.do(ctx, "requests.create", http.MethodPost, "/requests", token, dto, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRequest PATCH /requests/:id
func (c *Client) UpdateRequest(ctx context.Context, token, id string, patch models.UpdateWebsiteRequestDTO) (*models.Envelope[models.WebsiteRequest], error) {
	var out models.Envelope[models.WebsiteRequest]
	if err := c.do(ctx, "requests.update", http.MethodPatch, "/requests/"+escape(id), token, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckLimit GET /requests/check-limit, answered without a data wrapper
func (c *Client) CheckLimit(ctx context.Context, token string) (*models.CheckLimitResponse, error) {
	var out models.CheckLimitResponse
	if err := c.do(ctx, "requests.check_limit", http.MethodGet, "/requests/check-limit", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
