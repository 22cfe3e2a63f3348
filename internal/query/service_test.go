package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev365-portal/internal/apiclient"
	"dev365-portal/internal/clock"
	"dev365-portal/internal/models"
)

// fakeBackend is a tiny in-memory dev365 backend that counts calls
type fakeBackend struct {
	mu       sync.Mutex
	clock    clock.Clock
	calls    map[string]int
	tokens   []string
	requests []models.WebsiteRequest
	websites []models.Website
	tickets  []models.SupportRequest
	cooldown time.Duration
	lastSub  time.Time
	failNext error
}

func newFakeBackend(clk clock.Clock) *fakeBackend {
	return &fakeBackend{clock: clk, calls: map[string]int{}, cooldown: 24 * time.Hour}
}

func (f *fakeBackend) record(op, token string) error {
	f.calls[op]++
	f.tokens = append(f.tokens, token)
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	return nil
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func ok[T any](v T) *models.Envelope[T] {
	return &models.Envelope[T]{Success: true, Data: &v}
}

func (f *fakeBackend) ListRequests(_ context.Context, token string) (*models.Envelope[[]models.WebsiteRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("requests.list", token); err != nil {
		return nil, err
	}
	return ok(append([]models.WebsiteRequest(nil), f.requests...)), nil
}

func (f *fakeBackend) GetRequest(_ context.Context, token, id string) (*models.Envelope[models.WebsiteRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("requests.get", token); err != nil {
		return nil, err
	}
	for _, r := range f.requests {
		if r.ID == id {
			return ok(r), nil
		}
	}
	return nil, &apiclient.APIError{Status: 404, Message: "Request not found"}
}

func (f *fakeBackend) CreateRequest(_ context.Context, token string, dto models.CreateWebsiteRequestDTO) (*models.Envelope[models.WebsiteRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("requests.create", token); err != nil {
		return nil, err
	}
	now := f.clock.Now()
	r := models.WebsiteRequest{
		ID:            fmt.Sprintf("r%d", len(f.requests)+1),
		ProjectName:   dto.ProjectName,
		ProjectType:   dto.ProjectType,
		Status:        models.RequestStatusPending,
		EditableUntil: now.Add(time.Hour),
		IsEditable:    true,
		CreatedAt:     now,
	}
	f.requests = append(f.requests, r)
	f.lastSub = now
	return ok(r), nil
}

func (f *fakeBackend) UpdateRequest(_ context.Context, token, id string, patch models.UpdateWebsiteRequestDTO) (*models.Envelope[models.WebsiteRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("requests.update", token); err != nil {
		return nil, err
	}
	for i := range f.requests {
		if f.requests[i].ID == id {
			if patch.ProjectName != nil {
				f.requests[i].ProjectName = *patch.ProjectName
			}
			return ok(f.requests[i]), nil
		}
	}
	return nil, &apiclient.APIError{Status: 404, Message: "Request not found"}
}

func (f *fakeBackend) CheckLimit(_ context.Context, token string) (*models.CheckLimitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("requests.check_limit", token); err != nil {
		return nil, err
	}
	if f.lastSub.IsZero() || !f.clock.Now().Before(f.lastSub.Add(f.cooldown)) {
		return &models.CheckLimitResponse{Success: true, CanSubmit: true, Message: "You can submit a request"}, nil
	}
	next := f.lastSub.Add(f.cooldown)
	return &models.CheckLimitResponse{Success: true, CanSubmit: false, NextAllowedTime: &next, Message: "Limit reached"}, nil
}

func (f *fakeBackend) ListWebsites(_ context.Context, token string) (*models.Envelope[[]models.Website], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("websites.list", token); err != nil {
		return nil, err
	}
	return ok(append([]models.Website(nil), f.websites...)), nil
}

func (f *fakeBackend) GetWebsite(_ context.Context, token, id string) (*models.Envelope[models.Website], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("websites.get", token); err != nil {
		return nil, err
	}
	for _, w := range f.websites {
		if w.ID == id {
			return ok(w), nil
		}
	}
	return nil, &apiclient.APIError{Status: 404, Message: "Website not found"}
}

func (f *fakeBackend) ListWebsitesByPlan(_ context.Context, token, plan string) (*models.Envelope[[]models.Website], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("websites.by_plan", token); err != nil {
		return nil, err
	}
	var out []models.Website
	for _, w := range f.websites {
		if w.Billing.Plan == plan {
			out = append(out, w)
		}
	}
	env := ok(out)
	env.Plan = plan
	return env, nil
}

func (f *fakeBackend) ListSupportRequests(_ context.Context, token string, filter models.SupportFilter) (*models.Envelope[[]models.SupportRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("support.list", token); err != nil {
		return nil, err
	}
	var out []models.SupportRequest
	for _, s := range f.tickets {
		if filter.WebsiteID != "" && s.WebsiteID != filter.WebsiteID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	return ok(out), nil
}

func (f *fakeBackend) GetSupportRequest(_ context.Context, token, id string) (*models.Envelope[models.SupportRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("support.get", token); err != nil {
		return nil, err
	}
	for _, s := range f.tickets {
		if s.ID == id {
			return ok(s), nil
		}
	}
	return nil, &apiclient.APIError{Status: 404, Message: "Support request not found"}
}

func (f *fakeBackend) ListSupportByWebsite(_ context.Context, token, websiteID string) (*models.Envelope[[]models.SupportRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("support.by_website", token); err != nil {
		return nil, err
	}
	var out []models.SupportRequest
	for _, s := range f.tickets {
		if s.WebsiteID == websiteID {
			out = append(out, s)
		}
	}
	return ok(out), nil
}

func (f *fakeBackend) CreateSupportRequest(_ context.Context, token string, dto models.CreateSupportRequestDTO) (*models.Envelope[models.SupportRequest], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("support.create", token); err != nil {
		return nil, err
	}
	s := models.SupportRequest{
		ID:        fmt.Sprintf("s%d", len(f.tickets)+1),
		WebsiteID: dto.WebsiteID,
		Category:  dto.Category,
		Subject:   dto.Subject,
		Message:   dto.Message,
		Status:    models.SupportStatusOpen,
	}
	f.tickets = append(f.tickets, s)
	return ok(s), nil
}

type fixture struct {
	clock   *clock.Fake
	backend *fakeBackend
	service *Service
	q       *Queries
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	backend := newFakeBackend(clk)
	cache := NewCache(WithClock(clk), WithStaleTime(5*time.Minute))
	svc := NewService(backend, cache, WithServiceClock(clk), WithLimitStaleTime(time.Minute))
	return &fixture{clock: clk, backend: backend, service: svc, q: svc.For("user-1", StaticToken("tok-1"))}
}

func TestReadsAreCachedAndEnvelopeUnwrapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.q.Requests(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = f.q.Requests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.count("requests.list"))
	assert.Equal(t, []string{"tok-1"}, f.backend.tokens)
}

func TestCreateRequestInvalidatesListAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.Requests(ctx)
	require.NoError(t, err)
	limit, err := f.q.CheckLimit(ctx)
	require.NoError(t, err)
	assert.True(t, limit.CanSubmit)

	created, err := f.q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: "Shop", ProjectType: models.ProjectTypeEcommerce})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, created.Status)

	c := f.service.Cache()
	assert.False(t, c.IsFresh(ctx, RequestsKey("user-1")))
	_, fresh := peekFresh(c, LimitKey("user-1"))
	assert.False(t, fresh)

	list, err := f.q.Requests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, f.backend.count("requests.list"))

	limit, err = f.q.CheckLimit(ctx)
	require.NoError(t, err)
	assert.False(t, limit.CanSubmit)
	assert.Equal(t, 2, f.backend.count("requests.check_limit"))
}

func TestCreateSucceedsWhenBroadcastFails(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	backend := newFakeBackend(clk)
	pub := &failingPublisher{}
	var reported int32
	cache := NewCache(
		WithClock(clk),
		WithStaleTime(5*time.Minute),
		WithPublisher(pub),
		WithPublishErrorHandler(func(error) { atomic.AddInt32(&reported, 1) }),
	)
	svc := NewService(backend, cache, WithServiceClock(clk))
	q := svc.For("user-1", StaticToken("tok-1"))
	ctx := context.Background()

	_, err := q.Requests(ctx)
	require.NoError(t, err)
	_, err = q.SupportRequests(ctx, models.SupportFilter{})
	require.NoError(t, err)

	created, err := q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: "Shop", ProjectType: models.ProjectTypeEcommerce})
	require.NoError(t, err)
	assert.Equal(t, "Shop", created.ProjectName)
	assert.Equal(t, 1, backend.count("requests.create"))
	assert.False(t, cache.IsFresh(ctx, RequestsKey("user-1")))

	_, err = q.CreateSupportRequest(ctx, models.CreateSupportRequestDTO{
		WebsiteID: "w1",
		Category:  models.SupportCategoryBug,
		Subject:   "Broken",
		Message:   "Footer links 404",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("support.create"))
	assert.False(t, cache.IsFresh(ctx, SupportListKey("user-1", "", "", "")))

	assert.EqualValues(t, 2, atomic.LoadInt32(&pub.calls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&reported))
}

func peekFresh(c *Cache, key Key) (*Entry, bool) {
	e, ok, err := c.Peek(context.Background(), key)
	if err != nil || !ok {
		return nil, false
	}
	return e, !e.Invalidated
}

func TestUpdateRequestInvalidatesOnlyItsKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B"} {
		_, err := f.q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: name, ProjectType: models.ProjectTypeBlog})
		require.NoError(t, err)
	}
	_, err := f.q.Requests(ctx)
	require.NoError(t, err)
	_, err = f.q.Request(ctx, "r1")
	require.NoError(t, err)
	_, err = f.q.Request(ctx, "r2")
	require.NoError(t, err)

	name := "A renamed"
	updated, err := f.q.UpdateRequest(ctx, "r1", models.UpdateWebsiteRequestDTO{ProjectName: &name})
	require.NoError(t, err)
	assert.Equal(t, "A renamed", updated.ProjectName)

	c := f.service.Cache()
	assert.False(t, c.IsFresh(ctx, RequestsKey("user-1")))
	assert.False(t, c.IsFresh(ctx, RequestKey("user-1", "r1")))
	assert.True(t, c.IsFresh(ctx, RequestKey("user-1", "r2")))

	gets := f.backend.count("requests.get")
	_, err = f.q.Request(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, gets, f.backend.count("requests.get"))

	r1, err := f.q.Request(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "A renamed", r1.ProjectName)
	assert.Equal(t, gets+1, f.backend.count("requests.get"))
}

func TestUpdateAfterEditWindowIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: "A", ProjectType: models.ProjectTypeBlog})
	require.NoError(t, err)

	name := "late"
	f.clock.Advance(time.Hour - time.Second)
	_, err = f.q.UpdateRequest(ctx, "r1", models.UpdateWebsiteRequestDTO{ProjectName: &name})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	_, err = f.q.UpdateRequest(ctx, "r1", models.UpdateWebsiteRequestDTO{ProjectName: &name})
	assert.ErrorIs(t, err, ErrEditWindowClosed)
	assert.Equal(t, 1, f.backend.count("requests.update"))
}

func TestCreateSupportInvalidatesListsAndOwnWebsite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.SupportRequests(ctx, models.SupportFilter{})
	require.NoError(t, err)
	_, err = f.q.SupportRequests(ctx, models.SupportFilter{Status: models.SupportStatusOpen})
	require.NoError(t, err)
	_, err = f.q.SupportByWebsite(ctx, "w1")
	require.NoError(t, err)
	_, err = f.q.SupportByWebsite(ctx, "w2")
	require.NoError(t, err)

	_, err = f.q.CreateSupportRequest(ctx, models.CreateSupportRequestDTO{
		WebsiteID: "w1",
		Category:  models.SupportCategoryBug,
		Subject:   "Broken",
		Message:   "Footer links 404",
	})
	require.NoError(t, err)

	c := f.service.Cache()
	assert.False(t, c.IsFresh(ctx, SupportListKey("user-1", "", "", "")))
	assert.False(t, c.IsFresh(ctx, SupportListKey("user-1", "OPEN", "", "")))
	assert.False(t, c.IsFresh(ctx, SupportByWebsiteKey("user-1", "w1")))
	assert.True(t, c.IsFresh(ctx, SupportByWebsiteKey("user-1", "w2")))

	tickets, err := f.q.SupportByWebsite(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	ticket, err := f.q.SupportRequest(ctx, tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SupportStatusOpen, ticket.Status)
}

func TestMissingTokenNeverCallsBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sources := []TokenSource{
		nil,
		StaticToken(""),
		TokenFunc(func(context.Context) (string, error) { return "", errors.New("provider offline") }),
	}
	for _, ts := range sources {
		q := f.service.For("anon", ts)

		_, err := q.Requests(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Equal(t, "Not authenticated", ErrNotAuthenticated.Error())
		_, err = q.Request(ctx, "r1")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = q.CheckLimit(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = q.Websites(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = q.WebsitesByPlan(ctx, "pro")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = q.SupportRequests(ctx, models.SupportFilter{})
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectType: models.ProjectTypeBlog})
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		name := "x"
		_, err = q.UpdateRequest(ctx, "r1", models.UpdateWebsiteRequestDTO{ProjectName: &name})
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		_, err = q.CreateSupportRequest(ctx, models.CreateSupportRequestDTO{WebsiteID: "w1", Category: models.SupportCategoryBug})
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	}
	assert.Equal(t, 0, f.backend.total())
}

func TestDisabledReadsWithoutParameter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.Request(ctx, "")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = f.q.Website(ctx, "")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = f.q.WebsitesByPlan(ctx, "")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = f.q.SupportRequest(ctx, "")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = f.q.SupportByWebsite(ctx, "")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = f.q.UpdateRequest(ctx, "", models.UpdateWebsiteRequestDTO{})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, 0, f.backend.total())
}

func TestTypedErrorsPassThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.Request(ctx, "missing")
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "Request not found", apiErr.Message)

	_, err = f.q.Requests(ctx)
	require.NoError(t, err)

	f.backend.failNext = &apiclient.APIError{Status: 500, Message: "Unknown error"}
	_, err = f.q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: "A", ProjectType: models.ProjectTypeBlog})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)

	// 失败的写操作不会使缓存失效
	assert.True(t, f.service.Cache().IsFresh(ctx, RequestsKey("user-1")))
}

func TestInvalidEnumRejectedBeforeSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: "A", ProjectType: "WIKI"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.q.CreateSupportRequest(ctx, models.CreateSupportRequestDTO{WebsiteID: "w1", Category: "URGENT"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, f.backend.total())
}

func TestWebsitesAndPlanFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.websites = []models.Website{
		{ID: "w1", Name: "Shop", Status: models.WebsiteStatusDeployed, Billing: models.Billing{Status: models.BillingStatusActive, Plan: "pro"}},
		{ID: "w2", Name: "Blog", Status: models.WebsiteStatusInProgress, Billing: models.Billing{Status: models.BillingStatusPending}},
	}

	all, err := f.q.Websites(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pro, err := f.q.WebsitesByPlan(ctx, "pro")
	require.NoError(t, err)
	require.Len(t, pro, 1)
	assert.Equal(t, "w1", pro[0].ID)

	site, err := f.q.Website(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, "Blog", site.Name)
}

func TestCachePartitionedPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := f.service.For("user-2", StaticToken("tok-2"))
	_, err := f.q.Requests(ctx)
	require.NoError(t, err)
	_, err = other.Requests(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, f.backend.count("requests.list"))
	assert.Equal(t, []string{"tok-1", "tok-2"}, f.backend.tokens)
}

func TestSubmitFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	limit, err := f.q.CheckLimit(ctx)
	require.NoError(t, err)
	require.True(t, limit.CanSubmit)

	_, err = f.q.CreateRequest(ctx, models.CreateWebsiteRequestDTO{ProjectName: "Shop", ProjectType: models.ProjectTypeEcommerce})
	require.NoError(t, err)

	list, err := f.q.Requests(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.RequestStatusPending, list[0].Status)
	assert.True(t, list[0].IsEditable)
	assert.True(t, list[0].EditableAt(f.clock.Now()))

	limit, err = f.q.CheckLimit(ctx)
	require.NoError(t, err)
	assert.False(t, limit.CanSubmit)
	require.NotNil(t, limit.NextAllowedTime)
	assert.Equal(t, testEpoch.Add(24*time.Hour), *limit.NextAllowedTime)
}
