package models

import "time"

// WebsiteStats summarizes a user's websites for the dashboard overview
type WebsiteStats struct {
	Total             int                   `json:"total"`
	ByStatus          map[WebsiteStatus]int `json:"byStatus"`
	ByBillingStatus   map[BillingStatus]int `json:"byBillingStatus"`
	ActiveProjects    int                   `json:"activeProjects"`
	CompletedProjects int                   `json:"completedProjects"`
	OverduePayments   int                   `json:"overduePayments"`
}

// ComputeWebsiteStats counts websites by status and billing status.
// Every known status is present in the maps, zero or not.
func ComputeWebsiteStats(websites []Website) WebsiteStats {
	stats := WebsiteStats{
		Total:           len(websites),
		ByStatus:        make(map[WebsiteStatus]int, len(WebsiteStatuses)),
		ByBillingStatus: make(map[BillingStatus]int, len(BillingStatuses)),
	}
	for _, s := range WebsiteStatuses {
		stats.ByStatus[s] = 0
	}
	for _, s := range BillingStatuses {
		stats.ByBillingStatus[s] = 0
	}

	for i := range websites {
		w := &websites[i]
		stats.ByStatus[w.Status]++
		stats.ByBillingStatus[w.Billing.Status]++

		switch w.Status {
		case WebsiteStatusCreated, WebsiteStatusInProgress, WebsiteStatusReview:
			stats.ActiveProjects++
		case WebsiteStatusCompleted, WebsiteStatusDeployed:
			stats.CompletedProjects++
		}
		if w.Billing.Status == BillingStatusOverdue {
			stats.OverduePayments++
		}
	}
	return stats
}

// RequestStats counts requests by status and how many are still editable
type RequestStats struct {
	Total    int                   `json:"total"`
	ByStatus map[RequestStatus]int `json:"byStatus"`
	Editable int                   `json:"editable"`
}

// ComputeRequestStats counts requests at now
func ComputeRequestStats(requests []WebsiteRequest, now time.Time) RequestStats {
	stats := RequestStats{
		Total:    len(requests),
		ByStatus: make(map[RequestStatus]int, len(RequestStatuses)),
	}
	for _, s := range RequestStatuses {
		stats.ByStatus[s] = 0
	}
	for i := range requests {
		stats.ByStatus[requests[i].Status]++
		if requests[i].EditableAt(now) {
			stats.Editable++
		}
	}
	return stats
}
