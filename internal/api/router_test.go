package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisx599/ChatEmail/internal/batch"
	"github.com/chrisx599/ChatEmail/internal/cache"
	"github.com/chrisx599/ChatEmail/internal/mail"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
	"github.com/chrisx599/ChatEmail/pkg/config"
)

type fetcherFunc func(ctx context.Context) ([]models.Email, error)

func (f fetcherFunc) FetchEmails(ctx context.Context) ([]models.Email, error) { return f(ctx) }

type analyzerFunc func(ctx context.Context, subject, body, from string) (*models.Analysis, error)

func (f analyzerFunc) AnalyzeEmail(ctx context.Context, subject, body, from string) (*models.Analysis, error) {
	return f(ctx, subject, body, from)
}

var scores = map[string]int{"Newsletter": 3, "Sync": 9, "Sync reminder": 7}

func scoring(ctx context.Context, subject, body, from string) (*models.Analysis, error) {
	a := &models.Analysis{
		Priority: models.Priority{Score: scores[subject], UrgencyLevel: "Medium", Reasoning: "r"},
		Summary:  "s",
	}
	if strings.HasPrefix(subject, "Sync") {
		a.CalendarEvents = models.CalendarEvents{HasEvents: true, Events: []models.CalendarEvent{{Title: "Sync", Date: "2024-01-10"}}}
	}
	return a, nil
}

type testServer struct {
	app   *fiber.App
	cache *cache.Manager
}

func newTestServer(t *testing.T, fetch fetcherFunc) *testServer {
	t.Helper()
	store, err := sqlite.NewClient(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr := cache.NewManager(store)
	runner := batch.New(analyzerFunc(scoring), nil, batch.StoresFrom(mgr), batch.Config{})

	cfg := &config.Config{}
	cfg.Server.MaxRequestsPerMinute = 1000
	cfg.Server.Development = true
	cfg.Batch.MaxEmails = 50
	cfg.Export.Dir = t.TempDir()

	app, stop := NewRouter(cfg, Deps{
		Fetcher: fetch,
		Emails:  mgr.Emails,
		Runner:  runner,
		Cache:   mgr,
		Store:   store,
	})
	t.Cleanup(stop)
	return &testServer{app: app, cache: mgr}
}

func (s *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

const abcBody = `{"emails":[
	{"id":"A","subject":"Newsletter","from":"news@example.com"},
	{"id":"B","subject":"Sync","from":"boss@example.com"},
	{"id":"C","subject":"Sync reminder","from":"pm@example.com"}]}`

func TestAnalyzeThenExportCSV(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.do(t, "POST", "/api/v1/batch/analyze", abcBody)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		AnalyzedEmails []models.AnalyzedEmail `json:"analyzed_emails"`
		CalendarEvents []models.CalendarEvent `json:"calendar_events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.AnalyzedEmails, 3)
	assert.Equal(t, "B", body.AnalyzedEmails[0].ID)
	assert.Equal(t, "C", body.AnalyzedEmails[1].ID)
	assert.Equal(t, "A", body.AnalyzedEmails[2].ID)
	require.Len(t, body.CalendarEvents, 1)

	resp = s.do(t, "GET", "/api/v1/export/csv", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "email_report_")
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	var section string
	counts := map[string]int{}
	for _, rec := range records {
		if strings.HasPrefix(rec[0], "=== ") {
			section = rec[0]
			continue
		}
		counts[section]++
	}
	assert.Equal(t, 4, counts["=== PRIORITY EMAILS ==="], "header plus three rows")
	assert.Equal(t, 2, counts["=== CALENDAR EVENTS ==="], "header plus one row")
}

func TestAnalyzeWithoutEmails(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(t, "POST", "/api/v1/batch/analyze", `{"emails":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestReportAndExportBeforeAnyBatch(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, fiber.StatusNotFound, s.do(t, "GET", "/api/v1/batch/report", "").StatusCode)
	assert.Equal(t, fiber.StatusNotFound, s.do(t, "GET", "/api/v1/export/json", "").StatusCode)
}

func TestExportPDFFallsBack(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, fiber.StatusOK, s.do(t, "POST", "/api/v1/batch/analyze", abcBody).StatusCode)

	resp := s.do(t, "GET", "/api/v1/export/pdf?save=true", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "html", resp.Header.Get("X-Export-Fallback"))
	assert.True(t, strings.HasSuffix(resp.Header.Get("X-Export-Path"), ".html"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestFetchEmailsCachesThem(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context) ([]models.Email, error) {
		return []models.Email{{ID: "m1", Subject: "Sync", From: "boss@example.com"}}, nil
	})

	resp := s.do(t, "POST", "/api/v1/emails/fetch", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = s.do(t, "GET", "/api/v1/emails", "")
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)

	// An empty analyze request uses the cached emails.
	resp = s.do(t, "POST", "/api/v1/batch/analyze", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestFetchEmailsErrors(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context) ([]models.Email, error) {
		return nil, mail.ErrNotConfigured
	})
	assert.Equal(t, fiber.StatusServiceUnavailable, s.do(t, "POST", "/api/v1/emails/fetch", "").StatusCode)

	s = newTestServer(t, func(ctx context.Context) ([]models.Email, error) {
		return nil, errors.New("connection reset")
	})
	assert.Equal(t, fiber.StatusBadGateway, s.do(t, "POST", "/api/v1/emails/fetch", "").StatusCode)
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, fiber.StatusOK, s.do(t, "POST", "/api/v1/batch/analyze", abcBody).StatusCode)

	resp := s.do(t, "GET", "/api/v1/cache/status", "")
	var status cache.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, cache.Status{HasBatchSummary: true, HasAnalyzedEmails: true, HasCalendarEvents: true}, status)

	assert.Equal(t, fiber.StatusNoContent, s.do(t, "DELETE", "/api/v1/cache/analyzed_emails", "").StatusCode)
	assert.False(t, s.cache.AnalyzedEmails.HasCache(context.Background()))
	assert.True(t, s.cache.BatchSummary.HasCache(context.Background()))

	assert.Equal(t, fiber.StatusBadRequest, s.do(t, "DELETE", "/api/v1/cache/bogus", "").StatusCode)

	assert.Equal(t, fiber.StatusNoContent, s.do(t, "DELETE", "/api/v1/cache", "").StatusCode)
	assert.Equal(t, cache.Status{}, s.cache.Status(context.Background()))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, fiber.StatusOK, s.do(t, "GET", "/health", "").StatusCode)
	assert.Equal(t, fiber.StatusOK, s.do(t, "GET", "/ready", "").StatusCode)
	assert.Equal(t, fiber.StatusUpgradeRequired, s.do(t, "GET", "/ws/batch", "").StatusCode)
}

func TestWebSocketBatchAppliesLimits(t *testing.T) {
	s := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/batch", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	type frame struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}

	tooMany := make([]models.Email, 51)
	for i := range tooMany {
		tooMany[i] = models.Email{ID: fmt.Sprintf("m%d", i), Subject: "Newsletter"}
	}
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "analyze", "emails": tooMany}))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	assert.Contains(t, f.Error, "Too many emails")
	assert.False(t, s.cache.AnalyzedEmails.HasCache(context.Background()), "rejected batch must not run")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "analyze",
		"emails": []models.Email{{ID: "  B  ", Subject: "Sync"}, {ID: "C", Subject: "Sync reminder"}},
	}))

	var types []string
	for {
		require.NoError(t, conn.ReadJSON(&f))
		types = append(types, f.Type)
		if f.Type == "complete" || f.Type == "error" {
			break
		}
	}
	assert.Equal(t, []string{"status", "progress", "progress", "complete"}, types)

	_, ok := s.cache.AnalyzedEmails.GetAnalyzedEmail(context.Background(), "B")
	assert.True(t, ok, "ids are sanitized before the batch runs")
}
