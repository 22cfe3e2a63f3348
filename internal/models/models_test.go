package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumWireStrings(t *testing.T) {
	// 枚举值是后端协议的一部分，不能被重命名
	assert.Equal(t, []string{"BUSINESS", "ECOMMERCE", "PORTFOLIO", "BLOG", "LANDING_PAGE", "OTHER"}, toStrings(ProjectTypes))
	assert.Equal(t, []string{"PENDING", "IN_REVIEW", "CONTACTED", "APPROVED", "REJECTED"}, toStrings(RequestStatuses))
	assert.Equal(t, []string{"CREATED", "IN_PROGRESS", "REVIEW", "COMPLETED", "DEPLOYED", "CANCELLED"}, toStrings(WebsiteStatuses))
	assert.Equal(t, []string{"PENDING", "ACTIVE", "OVERDUE", "SUSPENDED"}, toStrings(BillingStatuses))
	assert.Equal(t, []string{"basic", "pro", "custom"}, toStrings(BillingPlans))
	assert.Equal(t, []string{"BUG", "CHANGE_REQUEST", "BILLING", "GENERAL"}, toStrings(SupportCategories))

	assert.Equal(t, "monthly", string(BillingCycleMonthly))
	assert.Equal(t, "quarterly", string(BillingCycleQuarterly))
	assert.Equal(t, "yearly", string(BillingCycleYearly))
	assert.Equal(t, "OPEN", string(SupportStatusOpen))
	assert.Equal(t, "IN_PROGRESS", string(SupportStatusInProgress))
	assert.Equal(t, "RESOLVED", string(SupportStatusResolved))
	assert.Equal(t, "LOW", string(SupportPriorityLow))
	assert.Equal(t, "MEDIUM", string(SupportPriorityMedium))
	assert.Equal(t, "HIGH", string(SupportPriorityHigh))
}

func TestEnumValid(t *testing.T) {
	assert.True(t, ProjectTypeBlog.Valid())
	assert.False(t, ProjectType("blog").Valid())
	assert.True(t, RequestStatusApproved.Valid())
	assert.False(t, RequestStatus("DONE").Valid())
	assert.True(t, BillingCycleQuarterly.Valid())
	assert.False(t, BillingCycle("MONTHLY").Valid())
	assert.False(t, SupportCategory("").Valid())
	assert.False(t, SupportPriority("URGENT").Valid())
}

func TestDecodeUnknownEnumIsLenient(t *testing.T) {
	var r WebsiteRequest
	err := json.Unmarshal([]byte(`{"_id":"r1","status":"ARCHIVED","projectType":"BLOG"}`), &r)
	require.NoError(t, err)
	assert.Equal(t, RequestStatus("ARCHIVED"), r.Status)
	assert.False(t, r.Status.Valid())
}

func TestDecodeBlankTimestampsIsLenient(t *testing.T) {
	payload := `{"success":true,"data":[
		{"_id":"r1","status":"PENDING","editableUntil":"","createdAt":"2026-03-01T09:00:00Z"},
		{"_id":"r2","status":"PENDING","editableUntil":null,"updatedAt":"yesterday"},
		{"_id":"r3","status":"PENDING","editableUntil":"2026-03-01T12:00:00Z"}
	]}`
	var env Envelope[[]WebsiteRequest]
	require.NoError(t, json.Unmarshal([]byte(payload), &env))
	require.NotNil(t, env.Data)
	data := *env.Data
	require.Len(t, data, 3)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// 空的截止时间等同于不可编辑，但不影响其他字段
	assert.True(t, data[0].EditableUntil.IsZero())
	assert.False(t, data[0].EditableAt(now))
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), data[0].CreatedAt.UTC())
	assert.True(t, data[1].EditableUntil.IsZero())
	assert.True(t, data[1].UpdatedAt.IsZero())
	assert.Equal(t, RequestStatusPending, data[1].Status)
	assert.True(t, data[2].EditableAt(now))

	var broken WebsiteRequest
	assert.Error(t, json.Unmarshal([]byte(`{"_id":7}`), &broken))
}

func TestEditableAtBoundary(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &WebsiteRequest{EditableUntil: deadline, IsEditable: true}

	assert.True(t, r.EditableAt(deadline.Add(-time.Millisecond)))
	assert.False(t, r.EditableAt(deadline))
	assert.False(t, r.EditableAt(deadline.Add(time.Millisecond)))

	// 服务端给出的 isEditable 不参与判断
	var zero WebsiteRequest
	zero.IsEditable = true
	assert.False(t, zero.EditableAt(deadline))

	var nilReq *WebsiteRequest
	assert.False(t, nilReq.EditableAt(deadline))
}

func TestRemainingEdit(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &WebsiteRequest{EditableUntil: deadline}

	assert.Equal(t, "5h 30m", r.RemainingEdit(deadline.Add(-5*time.Hour-30*time.Minute)))
	assert.Equal(t, "0h 0m", r.RemainingEdit(deadline.Add(-30*time.Second)))
	assert.Equal(t, "Expired", r.RemainingEdit(deadline))
}

func TestCreateDTOValidate(t *testing.T) {
	dto := CreateWebsiteRequestDTO{ProjectName: "Shop", ProjectType: ProjectTypeEcommerce}
	assert.NoError(t, dto.Validate())

	dto.ProjectType = "SHOP"
	assert.Error(t, dto.Validate())

	ticket := CreateSupportRequestDTO{WebsiteID: "w1", Category: SupportCategoryBug}
	assert.NoError(t, ticket.Validate())
	ticket.Category = "bug"
	assert.Error(t, ticket.Validate())
	ticket = CreateSupportRequestDTO{Category: SupportCategoryBug}
	assert.Error(t, ticket.Validate())
}

func TestUpdateDTOOmitsNilFields(t *testing.T) {
	name := "Renamed"
	patch := UpdateWebsiteRequestDTO{ProjectName: &name}
	assert.False(t, patch.Empty())
	assert.True(t, (&UpdateWebsiteRequestDTO{}).Empty())

	body, err := json.Marshal(patch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"projectName":"Renamed"}`, string(body))
}

func TestBillingValidate(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(48 * time.Hour)

	assert.NoError(t, Billing{Status: BillingStatusPending}.Validate(now))
	assert.NoError(t, Billing{Status: BillingStatusActive}.Validate(now))
	assert.ErrorIs(t, Billing{Status: BillingStatusOverdue}.Validate(now), ErrOverdueWithoutGrace)
	assert.NoError(t, Billing{Status: BillingStatusOverdue, GraceEndsAt: &future}.Validate(now))
	assert.ErrorIs(t, Billing{Status: BillingStatusSuspended, GraceEndsAt: &future}.Validate(now), ErrSuspendedInGrace)
	assert.NoError(t, Billing{Status: BillingStatusSuspended, GraceEndsAt: &past}.Validate(now))
	assert.ErrorIs(t, Billing{Status: "CLOSED"}.Validate(now), ErrUnknownBillingStatus)
}

func TestGraceRemaining(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	graceEnd := now.Add(36 * time.Hour)

	remaining, ok := Billing{Status: BillingStatusOverdue, GraceEndsAt: &graceEnd}.GraceRemaining(now)
	assert.True(t, ok)
	assert.Equal(t, 36*time.Hour, remaining)

	remaining, ok = Billing{Status: BillingStatusOverdue, GraceEndsAt: &graceEnd}.GraceRemaining(graceEnd.Add(time.Hour))
	assert.True(t, ok)
	assert.Zero(t, remaining)

	_, ok = Billing{Status: BillingStatusActive, GraceEndsAt: &graceEnd}.GraceRemaining(now)
	assert.False(t, ok)
}

func TestDeployedBilling(t *testing.T) {
	price := 599.0
	w := Website{Status: WebsiteStatusInProgress, Billing: Billing{Status: BillingStatusPending}}
	_, ok := w.DeployedBilling()
	assert.False(t, ok)
	assert.Equal(t, PhaseBuilding, w.Phase())

	w.Status = WebsiteStatusDeployed
	_, ok = w.DeployedBilling()
	assert.False(t, ok, "pending billing on a deployed site is not shown")

	w.Billing = Billing{Status: BillingStatusActive, Price: &price, PaymentHistory: []Payment{{Amount: 599}, {Amount: 599}}}
	b, ok := w.DeployedBilling()
	require.True(t, ok)
	assert.Equal(t, 1198.0, b.TotalPaid())
	assert.Equal(t, "deployed", w.Phase().String())

	w.Status = WebsiteStatusCancelled
	assert.Equal(t, PhaseCancelled, w.Phase())
	_, ok = w.DeployedBilling()
	assert.False(t, ok)
}

func TestProgressAndMilestones(t *testing.T) {
	done, total := 3, 4
	w := Website{PagesCompleted: &done, TotalPages: &total}
	assert.Equal(t, 75.0, w.Progress())

	pct := 40.0
	w.CompletionPercentage = &pct
	assert.Equal(t, 40.0, w.Progress())

	w.Milestones = []Milestone{{Title: "Design", Completed: true}, {Title: "Build"}, {Title: "Launch"}}
	next, ok := w.NextMilestone()
	require.True(t, ok)
	assert.Equal(t, "Build", next.Title)
}

func TestComputeWebsiteStats(t *testing.T) {
	websites := []Website{
		{Status: WebsiteStatusCreated, Billing: Billing{Status: BillingStatusPending}},
		{Status: WebsiteStatusReview, Billing: Billing{Status: BillingStatusPending}},
		{Status: WebsiteStatusDeployed, Billing: Billing{Status: BillingStatusActive}},
		{Status: WebsiteStatusDeployed, Billing: Billing{Status: BillingStatusOverdue}},
		{Status: WebsiteStatusCancelled, Billing: Billing{Status: BillingStatusSuspended}},
	}

	stats := ComputeWebsiteStats(websites)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.ActiveProjects)
	assert.Equal(t, 2, stats.CompletedProjects)
	assert.Equal(t, 1, stats.OverduePayments)
	assert.Equal(t, 2, stats.ByStatus[WebsiteStatusDeployed])
	assert.Equal(t, 0, stats.ByStatus[WebsiteStatusInProgress])
	assert.Equal(t, 2, stats.ByBillingStatus[BillingStatusPending])
}

func TestComputeRequestStats(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	requests := []WebsiteRequest{
		{Status: RequestStatusPending, EditableUntil: now.Add(time.Hour)},
		{Status: RequestStatusPending, EditableUntil: now.Add(-time.Hour)},
		{Status: RequestStatusApproved},
	}
	stats := ComputeRequestStats(requests, now)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[RequestStatusPending])
	assert.Equal(t, 0, stats.ByStatus[RequestStatusRejected])
	assert.Equal(t, 1, stats.Editable)
}

func TestCheckLimitDecode(t *testing.T) {
	var resp CheckLimitResponse
	err := json.Unmarshal([]byte(`{"success":true,"canSubmit":false,"nextAllowedTime":"2026-05-11T00:00:00Z","message":"wait"}`), &resp)
	require.NoError(t, err)
	assert.False(t, resp.CanSubmit)
	require.NotNil(t, resp.NextAllowedTime)
	assert.Equal(t, 2026, resp.NextAllowedTime.Year())
}

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
