package models

import (
	"errors"
	"time"
)

// Milestone is one step of a website build
type Milestone struct {
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Payment is one entry of a billing payment history
type Payment struct {
	Amount        float64   `json:"amount"`
	Date          time.Time `json:"date"`
	Method        string    `json:"method,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
}

// Billing is embedded in Website. Monetary fields are empty while PENDING.
type Billing struct {
	Status         BillingStatus `json:"status"`
	Plan           string        `json:"plan,omitempty"`
	Price          *float64      `json:"price,omitempty"`
	BillingCycle   BillingCycle  `json:"billingCycle,omitempty"`
	ActivatedAt    *time.Time    `json:"activatedAt,omitempty"`
	DueAt          *time.Time    `json:"dueAt,omitempty"`
	LastPaymentAt  *time.Time    `json:"lastPaymentAt,omitempty"`
	GraceEndsAt    *time.Time    `json:"graceEndsAt,omitempty"`
	SuspendedAt    *time.Time    `json:"suspendedAt,omitempty"`
	PaymentHistory []Payment     `json:"paymentHistory,omitempty"`
}

var (
	// ErrOverdueWithoutGrace OVERDUE billing must say when the grace period ends
	ErrOverdueWithoutGrace = errors.New("overdue billing has no grace end")
	// ErrSuspendedInGrace SUSPENDED billing whose grace period has not elapsed
	ErrSuspendedInGrace = errors.New("suspended billing is still within its grace period")
	// ErrUnknownBillingStatus status outside the known set
	ErrUnknownBillingStatus = errors.New("unknown billing status")
)

// Validate checks the billing invariants at now
func (b Billing) Validate(now time.Time) error {
	switch b.Status {
	case BillingStatusPending, BillingStatusActive:
		return nil
	case BillingStatusOverdue:
		if b.GraceEndsAt == nil {
			return ErrOverdueWithoutGrace
		}
		return nil
	case BillingStatusSuspended:
		if b.GraceEndsAt != nil && now.Before(*b.GraceEndsAt) {
			return ErrSuspendedInGrace
		}
		return nil
	}
	return ErrUnknownBillingStatus
}

// GraceRemaining is the time left before an OVERDUE site is suspended.
// ok is false when the billing is not in an actionable overdue state.
func (b Billing) GraceRemaining(now time.Time) (remaining time.Duration, ok bool) {
	if b.Status != BillingStatusOverdue || b.GraceEndsAt == nil {
		return 0, false
	}
	remaining = b.GraceEndsAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// TotalPaid sums the payment history
func (b Billing) TotalPaid() float64 {
	var total float64
	for _, p := range b.PaymentHistory {
		total += p.Amount
	}
	return total
}

// Website is a project provisioned by the backend from an approved request
type Website struct {
	ID                   string        `json:"_id"`
	UserID               string        `json:"userId"`
	RequestID            string        `json:"requestId"`
	Name                 string        `json:"name"`
	Description          string        `json:"description,omitempty"`
	ProjectType          string        `json:"projectType"`
	Status               WebsiteStatus `json:"status"`
	AssignedAdmin        string        `json:"assignedAdmin,omitempty"`
	Domain               string        `json:"domain,omitempty"`
	DeploymentURL        string        `json:"deploymentUrl,omitempty"`
	RepositoryURL        string        `json:"repositoryUrl,omitempty"`
	PagesCompleted       *int          `json:"pagesCompleted,omitempty"`
	TotalPages           *int          `json:"totalPages,omitempty"`
	CompletionPercentage *float64      `json:"completionPercentage,omitempty"`
	AdminNotes           string        `json:"adminNotes,omitempty"`
	ClientNotes          string        `json:"clientNotes,omitempty"`
	Milestones           []Milestone   `json:"milestones,omitempty"`
	Billing              Billing       `json:"billing"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	DeployedAt           *time.Time    `json:"deployedAt,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// Phase groups website statuses by what the dashboard may show
type Phase int

const (
	// PhaseBuilding covers CREATED through COMPLETED, billing is not meaningful yet
	PhaseBuilding Phase = iota
	// PhaseDeployed means billing and the deployment URL are live
	PhaseDeployed
	// PhaseCancelled is terminal
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseDeployed:
		return "deployed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "building"
	}
}

// Phase returns the lifecycle phase of the website
func (w *Website) Phase() Phase {
	switch w.Status {
	case WebsiteStatusDeployed:
		return PhaseDeployed
	case WebsiteStatusCancelled:
		return PhaseCancelled
	default:
		return PhaseBuilding
	}
}

// DeployedBilling returns the billing record only when it is meaningful:
// the site is DEPLOYED and billing has left PENDING.
func (w *Website) DeployedBilling() (Billing, bool) {
	if w.Phase() != PhaseDeployed {
		return Billing{}, false
	}
	if w.Billing.Status == BillingStatusPending || !w.Billing.Status.Valid() {
		return Billing{}, false
	}
	return w.Billing, true
}

// Progress returns the completion percentage, derived from page counters when
// the backend did not send one
func (w *Website) Progress() float64 {
	if w.CompletionPercentage != nil {
		return *w.CompletionPercentage
	}
	if w.PagesCompleted != nil && w.TotalPages != nil && *w.TotalPages > 0 {
		return float64(*w.PagesCompleted) * 100 / float64(*w.TotalPages)
	}
	return 0
}

// NextMilestone returns the first milestone not yet completed
func (w *Website) NextMilestone() (Milestone, bool) {
	for _, m := range w.Milestones {
		if !m.Completed {
			return m, true
		}
	}
	return Milestone{}, false
}
