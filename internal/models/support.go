package models

import (
	"fmt"
	"time"
)

// WebsiteSummary is the denormalized website shown next to a ticket
type WebsiteSummary struct {
	ID            string        `json:"_id"`
	Name          string        `json:"name"`
	Status        WebsiteStatus `json:"status"`
	DeploymentURL string        `json:"deploymentUrl,omitempty"`
}

// SupportRequest is a ticket tied to one website
type SupportRequest struct {
	ID            string          `json:"_id"`
	UserID        string          `json:"userId"`
	WebsiteID     string          `json:"websiteId"`
	Category      SupportCategory `json:"category"`
	Subject       string          `json:"subject"`
	Message       string          `json:"message"`
	Status        SupportStatus   `json:"status"`
	Priority      SupportPriority `json:"priority,omitempty"`
	AssignedAdmin string          `json:"assignedAdmin,omitempty"`
	ResolvedAt    *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Website       *WebsiteSummary `json:"website,omitempty"`
}

// CreateSupportRequestDTO is the POST /support body
type CreateSupportRequestDTO struct {
	WebsiteID string          `json:"websiteId"`
	Category  SupportCategory `json:"category"`
	Subject   string          `json:"subject"`
	Message   string          `json:"message"`
}

func (d *CreateSupportRequestDTO) Validate() error {
	if d.WebsiteID == "" {
		return fmt.Errorf("website id is required")
	}
	if !d.Category.Valid() {
		return fmt.Errorf("unknown support category %q", d.Category)
	}
	return nil
}

// SupportFilter narrows GET /support. Empty fields are not sent.
type SupportFilter struct {
	Status    SupportStatus   `json:"status,omitempty" form:"status"`
	WebsiteID string          `json:"websiteId,omitempty" form:"websiteId"`
	Category  SupportCategory `json:"category,omitempty" form:"category"`
}
