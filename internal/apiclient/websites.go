package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"dev365-portal/internal/models"
)

// ListWebsites GET /users/websites
func (c *Client) ListWebsites(ctx context.Context, token string) (*models.Envelope[[]models.Website], error) {
	var out models.Envelope[[]models.Website]
	if err := c.do(ctx, "websites.list", http.MethodGet, "/users/websites", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWebsite GET /users/websites/:id
func (c *Client) GetWebsite(ctx context.Context, token, id string) (*models.Envelope[models.Website], error) {
	var out models.Envelope[models.Website]
	if err := c.do(ctx, "websites.get", http.MethodGet, "/users/websites/"+escape(id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWebsitesByPlan GET /users/websites/plan?plan=<name>
func (c *Client) ListWebsitesByPlan(ctx context.Context, token, plan string) (*models.Envelope[[]models.Website], error) {
	q := url.Values{}
	q.Set("plan", plan)
	var out models.Envelope[[]models.Website]
	if err := c.do(ctx, "websites.by_plan", http.MethodGet, "/users/websites/plan?"+q.Encode(), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
