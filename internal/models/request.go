package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WebsiteRequest is a user's submitted intent to have a website built
type WebsiteRequest struct {
	ID                  string        `json:"_id"`
	ProjectName         string        `json:"projectName"`
	Description         string        `json:"description"`
	ProjectType         ProjectType   `json:"projectType"`
	ContactName         string        `json:"contactName"`
	ContactEmail        string        `json:"contactEmail"`
	ContactPhone        string        `json:"contactPhone"`
	PagesRequired       *int          `json:"pagesRequired,omitempty"`
	Features            []string      `json:"features"`
	ReferenceLinks      []string      `json:"referenceLinks"`
	RecommendedTemplate string        `json:"recommendedTemplate,omitempty"`
	SelectedPlan        string        `json:"selectedPlan,omitempty"`
	Status              RequestStatus `json:"status"`
	EditableUntil       time.Time     `json:"editableUntil"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`

	// IsEditable is the backend's view at response time; use EditableAt for decisions
	IsEditable bool `json:"isEditable"`
}

// UnmarshalJSON decodes a request, reading an empty, null or malformed
// timestamp as the zero time so one bad field does not fail a whole list.
func (r *WebsiteRequest) UnmarshalJSON(data []byte) error {
	type plain WebsiteRequest
	aux := struct {
		*plain
		EditableUntil json.RawMessage `json:"editableUntil"`
		CreatedAt     json.RawMessage `json:"createdAt"`
		UpdatedAt     json.RawMessage `json:"updatedAt"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.EditableUntil = lenientTime(aux.EditableUntil, r.EditableUntil)
	r.CreatedAt = lenientTime(aux.CreatedAt, r.CreatedAt)
	r.UpdatedAt = lenientTime(aux.UpdatedAt, r.UpdatedAt)
	return nil
}

// lenientTime keeps current when the field was absent
func lenientTime(raw json.RawMessage, current time.Time) time.Time {
	if len(raw) == 0 {
		return current
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}
	}
	return t
}

// EditableAt reports whether the request may still be edited at now.
// The window is half-open: editing stops exactly at EditableUntil.
func (r *WebsiteRequest) EditableAt(now time.Time) bool {
	if r == nil || r.EditableUntil.IsZero() {
		return false
	}
	return now.Before(r.EditableUntil)
}

// RemainingEdit formats the time left in the edit window as "Hh Mm", or "Expired"
func (r *WebsiteRequest) RemainingEdit(now time.Time) string {
	if !r.EditableAt(now) {
		return "Expired"
	}
	diff := r.EditableUntil.Sub(now)
	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// CreateWebsiteRequestDTO is the POST /requests body
type CreateWebsiteRequestDTO struct {
	ProjectName         string      `json:"projectName"`
	Description         string      `json:"description"`
	ProjectType         ProjectType `json:"projectType"`
	ContactName         string      `json:"contactName"`
	ContactEmail        string      `json:"contactEmail"`
	ContactPhone        string      `json:"contactPhone"`
	PagesRequired       *int        `json:"pagesRequired,omitempty"`
	Features            []string    `json:"features"`
	ReferenceLinks      []string    `json:"referenceLinks"`
	RecommendedTemplate string      `json:"recommendedTemplate,omitempty"`
	SelectedPlan        string      `json:"selectedPlan,omitempty"`
}

// Validate checks the enum values that cross the wire. Field level rules
// (required fields, formats) belong to the form that builds the DTO.
func (d *CreateWebsiteRequestDTO) Validate() error {
	if !d.ProjectType.Valid() {
		return fmt.Errorf("unknown project type %q", d.ProjectType)
	}
	return nil
}

// UpdateWebsiteRequestDTO is the PATCH /requests/:id body. Nil fields are left untouched.
type UpdateWebsiteRequestDTO struct {
	ProjectName         *string      `json:"projectName,omitempty"`
	Description         *string      `json:"description,omitempty"`
	ProjectType         *ProjectType `json:"projectType,omitempty"`
	ContactName         *string      `json:"contactName,omitempty"`
	ContactEmail        *string      `json:"contactEmail,omitempty"`
	ContactPhone        *string      `json:"contactPhone,omitempty"`
	PagesRequired       *int         `json:"pagesRequired,omitempty"`
	Features            []string     `json:"features,omitempty"`
	ReferenceLinks      []string     `json:"referenceLinks,omitempty"`
	RecommendedTemplate *string      `json:"recommendedTemplate,omitempty"`
	SelectedPlan        *string      `json:"selectedPlan,omitempty"`
}

func (d *UpdateWebsiteRequestDTO) Validate() error {
	if d.ProjectType != nil && !d.ProjectType.Valid() {
		return fmt.Errorf("unknown project type %q", *d.ProjectType)
	}
	return nil
}

// Empty reports whether the patch would change nothing
func (d *UpdateWebsiteRequestDTO) Empty() bool {
	return d.ProjectName == nil && d.Description == nil && d.ProjectType == nil &&
		d.ContactName == nil && d.ContactEmail == nil && d.ContactPhone == nil &&
		d.PagesRequired == nil && d.Features == nil && d.ReferenceLinks == nil &&
		d.RecommendedTemplate == nil && d.SelectedPlan == nil
}
