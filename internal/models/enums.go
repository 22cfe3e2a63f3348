package models

// ProjectType is the kind of website a request asks for
type ProjectType string

const (
	ProjectTypeBusiness    ProjectType = "BUSINESS"
	ProjectTypeEcommerce   ProjectType = "ECOMMERCE"
	ProjectTypePortfolio   ProjectType = "PORTFOLIO"
	ProjectTypeBlog        ProjectType = "BLOG"
	ProjectTypeLandingPage ProjectType = "LANDING_PAGE"
	ProjectTypeOther       ProjectType = "OTHER"
)

// ProjectTypes lists every project type in display order
var ProjectTypes = []ProjectType{
	ProjectTypeBusiness,
	ProjectTypeEcommerce,
	ProjectTypePortfolio,
	ProjectTypeBlog,
	ProjectTypeLandingPage,
	ProjectTypeOther,
}

// Valid reports whether t is one of the known project types
func (t ProjectType) Valid() bool {
	for _, v := range ProjectTypes {
		if t == v {
			return true
		}
	}
	return false
}

// RequestStatus is owned by the backend, the portal only reads it
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusInReview  RequestStatus = "IN_REVIEW"
	RequestStatusContacted RequestStatus = "CONTACTED"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
)

// RequestStatuses lists every request status
var RequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusInReview,
	RequestStatusContacted,
	RequestStatusApproved,
	RequestStatusRejected,
}

func (s RequestStatus) Valid() bool {
	for _, v := range RequestStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// WebsiteStatus tracks a provisioned website through the build pipeline
type WebsiteStatus string

const (
	WebsiteStatusCreated    WebsiteStatus = "CREATED"
	WebsiteStatusInProgress WebsiteStatus = "IN_PROGRESS"
	WebsiteStatusReview     WebsiteStatus = "REVIEW"
	WebsiteStatusCompleted  WebsiteStatus = "COMPLETED"
	WebsiteStatusDeployed   WebsiteStatus = "DEPLOYED"
	WebsiteStatusCancelled  WebsiteStatus = "CANCELLED"
)

// WebsiteStatuses lists every website status
var WebsiteStatuses = []WebsiteStatus{
	WebsiteStatusCreated,
	WebsiteStatusInProgress,
	WebsiteStatusReview,
	WebsiteStatusCompleted,
	WebsiteStatusDeployed,
	WebsiteStatusCancelled,
}

func (s WebsiteStatus) Valid() bool {
	for _, v := range WebsiteStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// BillingStatus is the commercial state of a deployed website
type BillingStatus string

const (
	BillingStatusPending   BillingStatus = "PENDING"
	BillingStatusActive    BillingStatus = "ACTIVE"
	BillingStatusOverdue   BillingStatus = "OVERDUE"
	BillingStatusSuspended BillingStatus = "SUSPENDED"
)

// BillingStatuses lists every billing status
var BillingStatuses = []BillingStatus{
	BillingStatusPending,
	BillingStatusActive,
	BillingStatusOverdue,
	BillingStatusSuspended,
}

func (s BillingStatus) Valid() bool {
	for _, v := range BillingStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// BillingCycle is lowercase on the wire, unlike the status enums
type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleYearly    BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleYearly:
		return true
	}
	return false
}

// BillingPlan is the plan label used to filter websites
type BillingPlan string

const (
	BillingPlanBasic  BillingPlan = "basic"
	BillingPlanPro    BillingPlan = "pro"
	BillingPlanCustom BillingPlan = "custom"
)

// BillingPlans lists every plan label
var BillingPlans = []BillingPlan{BillingPlanBasic, BillingPlanPro, BillingPlanCustom}

func (p BillingPlan) Valid() bool {
	for _, v := range BillingPlans {
		if p == v {
			return true
		}
	}
	return false
}

// SupportCategory classifies a support ticket
type SupportCategory string

const (
	SupportCategoryBug           SupportCategory = "BUG"
	SupportCategoryChangeRequest SupportCategory = "CHANGE_REQUEST"
	SupportCategoryBilling       SupportCategory = "BILLING"
	SupportCategoryGeneral       SupportCategory = "GENERAL"
)

// SupportCategories lists every ticket category
var SupportCategories = []SupportCategory{
	SupportCategoryBug,
	SupportCategoryChangeRequest,
	SupportCategoryBilling,
	SupportCategoryGeneral,
}

func (c SupportCategory) Valid() bool {
	for _, v := range SupportCategories {
		if c == v {
			return true
		}
	}
	return false
}

// SupportStatus is owned by the backend
type SupportStatus string

const (
	SupportStatusOpen       SupportStatus = "OPEN"
	SupportStatusInProgress SupportStatus = "IN_PROGRESS"
	SupportStatusResolved   SupportStatus = "RESOLVED"
)

func (s SupportStatus) Valid() bool {
	switch s {
	case SupportStatusOpen, SupportStatusInProgress, SupportStatusResolved:
		return true
	}
	return false
}

// SupportPriority is set by admins when triaging a ticket
type SupportPriority string

const (
	SupportPriorityLow    SupportPriority = "LOW"
	SupportPriorityMedium SupportPriority = "MEDIUM"
	SupportPriorityHigh   SupportPriority = "HIGH"
)

func (p SupportPriority) Valid() bool {
	switch p {
	case SupportPriorityLow, SupportPriorityMedium, SupportPriorityHigh:
		return true
	}
	return false
}
