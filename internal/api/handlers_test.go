package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-ranker/internal/crawler"
	"github.com/maltedev/product-ranker/internal/database"
	"github.com/maltedev/product-ranker/internal/models"
)

type fakeJobService struct {
	jobs      map[uuid.UUID]*database.CrawlJob
	createErr error
	cancelled []uuid.UUID
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{jobs: make(map[uuid.UUID]*database.CrawlJob)}
}

func (f *fakeJobService) Create(_ context.Context, searchURL string, pageLimit int, method string) (*database.CrawlJob, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	job := &database.CrawlJob{
		ID:        uuid.New(),
		SearchURL: searchURL,
		PageLimit: pageLimit,
		Method:    method,
		Status:    database.JobStatusPending,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobService) Get(_ context.Context, id uuid.UUID) (*database.CrawlJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobService) List(_ context.Context, _ int) ([]*database.CrawlJob, error) {
	out := make([]*database.CrawlJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (f *fakeJobService) Cancel(_ context.Context, id uuid.UUID) error {
	if _, ok := f.jobs[id]; !ok {
		return database.ErrJobNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

type fakeSessionLoader struct {
	snapshots map[string]*crawler.SessionSnapshot
}

func (f *fakeSessionLoader) LoadSession(_ context.Context, id string) (*crawler.SessionSnapshot, error) {
	snap, ok := f.snapshots[id]
	if !ok {
		return nil, database.ErrSessionNotFound
	}
	return snap, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeJobService, *fakeSessionLoader) {
	t.Helper()
	svc := newFakeJobService()
	loader := &fakeSessionLoader{snapshots: make(map[string]*crawler.SessionSnapshot)}
	srv := httptest.NewServer(NewHandlers(svc, loader).Routes())
	t.Cleanup(srv.Close)
	return srv, svc, loader
}

func TestCreateJob(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	body := `{"search_url": "https://www.amazon.com/s?k=yoga+mat", "page_limit": 3, "method": "wilson"}`
	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var got jobResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "https://www.amazon.com/s?k=yoga+mat", got.SearchURL)
	assert.Equal(t, 3, got.PageLimit)
	assert.Equal(t, "wilson", got.Method)
	assert.Equal(t, database.JobStatusPending, got.Status)
	assert.Len(t, svc.jobs, 1)
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	srv, svc, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"search_url": `},
		{"missing url", `{"page_limit": 3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, svc.jobs)
}

func TestGetJobNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s", srv.URL, uuid.New()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetJobRejectsBadID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/jobs/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelJob(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	job, err := svc.Create(context.Background(), "https://www.amazon.com/s?k=test", 2, "classic")
	require.NoError(t, err)

	resp, err := http.Post(fmt.Sprintf("%s/jobs/%s/cancel", srv.URL, job.ID), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []uuid.UUID{job.ID}, svc.cancelled)
}

func TestGetJobItems(t *testing.T) {
	srv, svc, loader := newTestServer(t)

	job, err := svc.Create(context.Background(), "https://www.amazon.com/s?k=test", 2, "classic")
	require.NoError(t, err)
	sessionID := "sess-items"
	job.Status = database.JobStatusCompleted
	job.SessionID = &sessionID

	loader.snapshots[sessionID] = &crawler.SessionSnapshot{
		ID: sessionID,
		Items: []*models.Item{
			{ASIN: "B0LOW00001", Title: "Budget Yoga Mat", Score: 3.2},
			{ASIN: "B0TOP00001", Title: "Premium Yoga Mat", Score: 4.6},
		},
	}

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s/items", srv.URL, job.ID))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []*models.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 2)
	assert.Equal(t, "B0TOP00001", items[0].ASIN, "items should come back best score first")
}

func TestGetJobItemsCSV(t *testing.T) {
	srv, svc, loader := newTestServer(t)

	job, err := svc.Create(context.Background(), "https://www.amazon.com/s?k=test", 2, "classic")
	require.NoError(t, err)
	sessionID := "sess-csv"
	job.SessionID = &sessionID
	loader.snapshots[sessionID] = &crawler.SessionSnapshot{
		ID:    sessionID,
		Items: []*models.Item{{ASIN: "B0CSV00001", Title: "CSV Yoga Mat", Score: 4.1}},
	}

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s/items?format=csv", srv.URL, job.ID))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "B0CSV00001")
}

func TestGetJobStats(t *testing.T) {
	srv, svc, loader := newTestServer(t)

	job, err := svc.Create(context.Background(), "https://www.amazon.com/s?k=test", 2, "classic")
	require.NoError(t, err)
	sessionID := "sess-stats"
	job.SessionID = &sessionID
	loader.snapshots[sessionID] = &crawler.SessionSnapshot{
		ID: sessionID,
		Items: []*models.Item{
			{ASIN: "B0STAT0001", Title: "Mat One", Rating: 4.0, Reviews: 100},
			{ASIN: "B0STAT0002", Title: "Mat Two", Rating: 3.0, Reviews: 10},
		},
	}

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s/stats", srv.URL, job.ID))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats models.BatchStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 10, stats.MinReviews)
	assert.Equal(t, 100, stats.MaxReviews)
	assert.InDelta(t, 3.5, stats.AvgRating, 0.001)
}

func TestGetJobItemsWithoutSession(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	job, err := svc.Create(context.Background(), "https://www.amazon.com/s?k=test", 2, "classic")
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s/items", srv.URL, job.ID))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListMethods(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/methods")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Methods []string `json:"methods"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Contains(t, got.Methods, "classic")
	assert.Contains(t, got.Methods, "wilson")
}
