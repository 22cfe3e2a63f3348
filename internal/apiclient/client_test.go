package apiclient

import (
	"context"
	"errors"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev365-portal/internal/models"
)

type recordedCall struct {
	op     string
	status int
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (o *recordingObserver) ObserveCall(op string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, recordedCall{op: op, status: status})
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *recordingObserver) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	obs := &recordingObserver{}
	return New(srv.URL+"/", WithObserver(obs)), obs
}

func TestHeadersAndListRequests(t *testing.T) {
	client, obs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/requests", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"success":true,"count":1,"data":[{"_id":"r1","projectName":"Shop","status":"PENDING","isEditable":true}]}`))
	})

	env, err := client.ListRequests(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, env.Success)
	require.NotNil(t, env.Count)
	assert.Equal(t, 1, *env.Count)
	require.NotNil(t, env.Data)
	require.Len(t, *env.Data, 1)
	assert.Equal(t, "r1", (*env.Data)[0].ID)
	assert.Equal(t, models.RequestStatusPending, (*env.Data)[0].Status)

	require.Len(t, obs.calls, 1)
	assert.Equal(t, recordedCall{op: "requests.list", status: 200}, obs.calls[0])
}

func TestNotFoundCarriesBodyMessage(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "Request not found"}`))
	})

	_, err := client.GetRequest(context.Background(), "tok", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "Request not found", apiErr.Message)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestUnparseableBodyFallsBack(t *testing.T) {
	client, obs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html>gateway exploded</html>`))
	})

	_, err := client.ListWebsites(context.Background(), "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Equal(t, "Unknown error", apiErr.Message)
	assert.Equal(t, 500, obs.calls[0].status)
}

func TestJSONWithoutErrorFieldUsesStatus(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false}`))
	})

	_, err := client.CheckLimit(context.Background(), "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "HTTP 403", apiErr.Message)
}

func TestCreateAndUpdateBodies(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]map[string]interface{}{}
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(raw, &body))
		mu.Lock()
		seen[r.Method+" "+r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"_id":"r9","status":"PENDING"}}`))
	})

	ctx := context.Background()
	_, err := client.CreateRequest(ctx, "tok", models.CreateWebsiteRequestDTO{
		ProjectName: "Shop",
		ProjectType: models.ProjectTypeEcommerce,
		Features:    []string{"cart"},
	})
	require.NoError(t, err)

	name := "Shop v2"
	env, err := client.UpdateRequest(ctx, "tok", "r9", models.UpdateWebsiteRequestDTO{ProjectName: &name})
	require.NoError(t, err)
	assert.Equal(t, "r9", env.Data.ID)

	assert.Equal(t, "ECOMMERCE", seen["POST /requests"]["projectType"])
	assert.Equal(t, map[string]interface{}{"projectName": "Shop v2"}, seen["PATCH /requests/r9"])
}

func TestCheckLimitIsNotWrapped(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/requests/check-limit", r.URL.Path)
		w.Write([]byte(`{"success":true,"canSubmit":false,"nextAllowedTime":"2026-06-02T10:00:00Z","message":"Limit reached"}`))
	})

	resp, err := client.CheckLimit(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, resp.CanSubmit)
	require.NotNil(t, resp.NextAllowedTime)
	assert.Equal(t, time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC), resp.NextAllowedTime.UTC())
}

func TestWebsitePaths(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/websites/plan":
			assert.Equal(t, "pro", r.URL.Query().Get("plan"))
			w.Write([]byte(`{"success":true,"plan":"pro","data":[]}`))
		case "/users/websites/a%2Fb", "/users/websites/a/b":
			assert.Equal(t, "/users/websites/a%2Fb", r.URL.EscapedPath())
			w.Write([]byte(`{"success":true,"data":{"_id":"a/b","status":"DEPLOYED","billing":{"status":"ACTIVE"}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	byPlan, err := client.ListWebsitesByPlan(ctx, "tok", "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", byPlan.Plan)

	site, err := client.GetWebsite(ctx, "tok", "a/b")
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusActive, site.Data.Billing.Status)
}

func TestSupportFilterQuery(t *testing.T) {
	var queries []string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		w.Write([]byte(`{"success":true,"data":[]}`))
	})

	ctx := context.Background()
	_, err := client.ListSupportRequests(ctx, "tok", models.SupportFilter{})
	require.NoError(t, err)
	_, err = client.ListSupportRequests(ctx, "tok", models.SupportFilter{
		Status:    models.SupportStatusOpen,
		WebsiteID: "w1",
		Category:  models.SupportCategoryBilling,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "category=BILLING&status=OPEN&websiteId=w1"}, queries)
}

func TestSupportByWebsiteAndCreate(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /support/website/w1":
			w.Write([]byte(`{"success":true,"count":0,"data":[]}`))
		case "POST /support":
			var dto models.CreateSupportRequestDTO
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&dto))
			assert.Equal(t, models.SupportCategoryBug, dto.Category)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"success":true,"data":{"_id":"s1","websiteId":"w1","status":"OPEN","website":{"_id":"w1","name":"Shop","status":"DEPLOYED"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	list, err := client.ListSupportByWebsite(ctx, "tok", "w1")
	require.NoError(t, err)
	assert.Empty(t, *list.Data)

	created, err := client.CreateSupportRequest(ctx, "tok", models.CreateSupportRequestDTO{
		WebsiteID: "w1",
		Category:  models.SupportCategoryBug,
		Subject:   "Broken form",
		Message:   "Contact form returns 500",
	})
	require.NoError(t, err)
	require.NotNil(t, created.Data.Website)
	assert.Equal(t, "Shop", created.Data.Website.Name)
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	obs := &recordingObserver{}
	client := New(srv.URL, WithObserver(obs))
	_, err := client.ListRequests(context.Background(), "tok")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, obs.calls[0].status)
}
