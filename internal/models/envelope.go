package models

import "time"

// Envelope wraps every backend response except the limit check
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Plan    string `json:"plan,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckLimitResponse is returned by GET /requests/check-limit without a data wrapper
type CheckLimitResponse struct {
	Success         bool       `json:"success"`
	CanSubmit       bool       `json:"canSubmit"`
	NextAllowedTime *time.Time `json:"nextAllowedTime,omitempty"`
	Message         string     `json:"message"`
}

// Pagination describes a page of a paginated listing
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// PaginatedResponse is used by admin listings of the backend
type PaginatedResponse[T any] struct {
	Success    bool       `json:"success"`
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}
