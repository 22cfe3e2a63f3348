package query

import (
	"context"
	"fmt"
	"time"

	"dev365-portal/internal/clock"
	"dev365-portal/internal/models"
)

// API is the subset of the backend client the service calls
type API interface {
	ListRequests(ctx context.Context, token string) (*models.Envelope[[]models.WebsiteRequest], error)
	GetRequest(ctx context.Context, token, id string) (*models.Envelope[models.WebsiteRequest], error)
	CreateRequest(ctx context.Context, token string, dto models.CreateWebsiteRequestDTO) (*models.Envelope[models.WebsiteRequest], error)
	UpdateRequest(ctx context.Context, token, id string, patch models.UpdateWebsiteRequestDTO) (*models.Envelope[models.WebsiteRequest], error)
	CheckLimit(ctx context.Context, token string) (*models.CheckLimitResponse, error)

	ListWebsites(ctx context.Context, token string) (*models.Envelope[[]models.Website], error)
	GetWebsite(ctx context.Context, token, id string) (*models.Envelope[models.Website], error)
	ListWebsitesByPlan(ctx context.Context, token, plan string) (*models.Envelope[[]models.Website], error)

	ListSupportRequests(ctx context.Context, token string, filter models.SupportFilter) (*models.Envelope[[]models.SupportRequest], error)
	GetSupportRequest(ctx context.Context, token, id string) (*models.Envelope[models.SupportRequest], error)
	ListSupportByWebsite(ctx context.Context, token, websiteID string) (*models.Envelope[[]models.SupportRequest], error)
	CreateSupportRequest(ctx context.Context, token string, dto models.CreateSupportRequestDTO) (*models.Envelope[models.SupportRequest], error)
}

// Service binds the API client to a cache
type Service struct {
	api        API
	cache      *Cache
	clock      clock.Clock
	limitStale time.Duration
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithServiceClock sets the clock used for the edit window policy
func WithServiceClock(clk clock.Clock) ServiceOption {
	return func(s *Service) { s.clock = clk }
}

// WithLimitStaleTime sets how long a rate-limit answer is reused
func WithLimitStaleTime(d time.Duration) ServiceOption {
	return func(s *Service) { s.limitStale = d }
}

// NewService creates the query service
func NewService(api API, cache *Cache, opts ...ServiceOption) *Service {
	s := &Service{
		api:        api,
		cache:      cache,
		clock:      clock.System,
		limitStale: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the cache the service reads through
func (s *Service) Cache() *Cache {
	return s.cache
}

// Clock returns the service clock
func (s *Service) Clock() clock.Clock {
	return s.clock
}

// For returns the queries of one signed-in user. scope partitions the cache
// and should be the stable user id.
func (s *Service) For(scope string, tokens TokenSource) *Queries {
	return &Queries{svc: s, scope: scope, tokens: tokens}
}

// Queries are the reads and writes available to one user
type Queries struct {
	svc    *Service
	scope  string
	tokens TokenSource
}

// Scope returns the cache partition of the user
func (q *Queries) Scope() string {
	return q.scope
}

func listData[T any](env *models.Envelope[[]T]) []T {
	if env == nil || env.Data == nil {
		return []T{}
	}
	return *env.Data
}

func itemData[T any](env *models.Envelope[T]) (T, error) {
	var zero T
	if env == nil || env.Data == nil {
		return zero, ErrNoData
	}
	return *env.Data, nil
}

// Requests lists the user's website requests
func (q *Queries) Requests(ctx context.Context) ([]models.WebsiteRequest, error) {
	return Fetch(ctx, q.svc.cache, RequestsKey(q.scope), func(ctx context.Context) ([]models.WebsiteRequest, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return nil, err
		}
		env, err := q.svc.api.ListRequests(ctx, tok)
		if err != nil {
			return nil, err
		}
		return listData(env), nil
	})
}

// Request returns one request
func (q *Queries) Request(ctx context.Context, id string) (*models.WebsiteRequest, error) {
	if id == "" {
		return nil, ErrDisabled
	}
	r, err := Fetch(ctx, q.svc.cache, RequestKey(q.scope, id), func(ctx context.Context) (models.WebsiteRequest, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return models.WebsiteRequest{}, err
		}
		env, err := q.svc.api.GetRequest(ctx, tok, id)
		if err != nil {
			return models.WebsiteRequest{}, err
		}
		return itemData(env)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CheckLimit asks whether the user may submit another request. Answers are
// kept only briefly so a cached yes or no is never trusted for long.
func (q *Queries) CheckLimit(ctx context.Context) (*models.CheckLimitResponse, error) {
	r, err := Fetch(ctx, q.svc.cache, LimitKey(q.scope), func(ctx context.Context) (models.CheckLimitResponse, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return models.CheckLimitResponse{}, err
		}
		resp, err := q.svc.api.CheckLimit(ctx, tok)
		if err != nil {
			return models.CheckLimitResponse{}, err
		}
		return *resp, nil
	}, MaxAge(q.svc.limitStale))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InvalidateLimit forces the next CheckLimit to ask the backend
func (q *Queries) InvalidateLimit(ctx context.Context) error {
	return q.svc.cache.Invalidate(ctx, LimitKey(q.scope))
}

// CreateRequest submits a new request. On success the request list and the
// rate-limit answer are invalidated.
func (q *Queries) CreateRequest(ctx context.Context, dto models.CreateWebsiteRequestDTO) (*models.WebsiteRequest, error) {
	tok, err := resolveToken(ctx, q.tokens)
	if err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	env, err := q.svc.api.CreateRequest(ctx, tok, dto)
	if err != nil {
		return nil, err
	}
	if err := q.svc.cache.Invalidate(ctx, RequestsKey(q.scope), LimitKey(q.scope)); err != nil {
		return nil, err
	}
	created, err := itemData(env)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateRequest patches a request while its edit window is open. On success
// the request list and that request are invalidated; other requests stay cached.
func (q *Queries) UpdateRequest(ctx context.Context, id string, patch models.UpdateWebsiteRequestDTO) (*models.WebsiteRequest, error) {
	if id == "" {
		return nil, ErrDisabled
	}
	tok, err := resolveToken(ctx, q.tokens)
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	current, err := q.Request(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.EditableAt(q.svc.clock.Now()) {
		return nil, ErrEditWindowClosed
	}

	env, err := q.svc.api.UpdateRequest(ctx, tok, id, patch)
	if err != nil {
		return nil, err
	}
	if err := q.svc.cache.Invalidate(ctx, RequestsKey(q.scope), RequestKey(q.scope, id)); err != nil {
		return nil, err
	}
	updated, err := itemData(env)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Websites lists the user's websites
func (q *Queries) Websites(ctx context.Context) ([]models.Website, error) {
	return Fetch(ctx, q.svc.cache, WebsitesKey(q.scope), func(ctx context.Context) ([]models.Website, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return nil, err
		}
		env, err := q.svc.api.ListWebsites(ctx, tok)
		if err != nil {
			return nil, err
		}
		return listData(env), nil
	})
}

// Website returns one website
func (q *Queries) Website(ctx context.Context, id string) (*models.Website, error) {
	if id == "" {
		return nil, ErrDisabled
	}
	w, err := Fetch(ctx, q.svc.cache, WebsiteKey(q.scope, id), func(ctx context.Context) (models.Website, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return models.Website{}, err
		}
		env, err := q.svc.api.GetWebsite(ctx, tok, id)
		if err != nil {
			return models.Website{}, err
		}
		return itemData(env)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// WebsitesByPlan lists the user's websites on one plan
func (q *Queries) WebsitesByPlan(ctx context.Context, plan string) ([]models.Website, error) {
	if plan == "" {
		return nil, ErrDisabled
	}
	return Fetch(ctx, q.svc.cache, WebsitesByPlanKey(q.scope, plan), func(ctx context.Context) ([]models.Website, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return nil, err
		}
		env, err := q.svc.api.ListWebsitesByPlan(ctx, tok, plan)
		if err != nil {
			return nil, err
		}
		return listData(env), nil
	})
}

// SupportRequests lists tickets matching filter
func (q *Queries) SupportRequests(ctx context.Context, filter models.SupportFilter) ([]models.SupportRequest, error) {
	key := SupportListKey(q.scope, string(filter.Status), filter.WebsiteID, string(filter.Category))
	return Fetch(ctx, q.svc.cache, key, func(ctx context.Context) ([]models.SupportRequest, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return nil, err
		}
		env, err := q.svc.api.ListSupportRequests(ctx, tok, filter)
		if err != nil {
			return nil, err
		}
		return listData(env), nil
	})
}

// SupportRequest returns one ticket
func (q *Queries) SupportRequest(ctx context.Context, id string) (*models.SupportRequest, error) {
	if id == "" {
		return nil, ErrDisabled
	}
	r, err := Fetch(ctx, q.svc.cache, SupportKey(q.scope, id), func(ctx context.Context) (models.SupportRequest, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return models.SupportRequest{}, err
		}
		env, err := q.svc.api.GetSupportRequest(ctx, tok, id)
		if err != nil {
			return models.SupportRequest{}, err
		}
		return itemData(env)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SupportByWebsite lists the tickets of one website
func (q *Queries) SupportByWebsite(ctx context.Context, websiteID string) ([]models.SupportRequest, error) {
	if websiteID == "" {
		return nil, ErrDisabled
	}
	return Fetch(ctx, q.svc.cache, SupportByWebsiteKey(q.scope, websiteID), func(ctx context.Context) ([]models.SupportRequest, error) {
		tok, err := resolveToken(ctx, q.tokens)
		if err != nil {
			return nil, err
		}
		env, err := q.svc.api.ListSupportByWebsite(ctx, tok, websiteID)
		if err != nil {
			return nil, err
		}
		return listData(env), nil
	})
}

// CreateSupportRequest files a ticket. On success every ticket list and the
// ticket list of its website are invalidated.
func (q *Queries) CreateSupportRequest(ctx context.Context, dto models.CreateSupportRequestDTO) (*models.SupportRequest, error) {
	tok, err := resolveToken(ctx, q.tokens)
	if err != nil {
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	env, err := q.svc.api.CreateSupportRequest(ctx, tok, dto)
	if err != nil {
		return nil, err
	}
	if err := q.svc.cache.InvalidatePrefix(ctx, SupportListPrefix(q.scope)); err != nil {
		return nil, err
	}
	if err := q.svc.cache.Invalidate(ctx, SupportByWebsiteKey(q.scope, dto.WebsiteID)); err != nil {
		return nil, err
	}
	created, err := itemData(env)
	if err != nil {
		return nil, err
	}
	return &created, nil
}
