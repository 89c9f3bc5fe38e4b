package alerting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackalert/stackalert/internal/domain"
	"github.com/stackalert/stackalert/internal/pkg/httputil"
	"github.com/stackalert/stackalert/internal/statuspage"
)

type mockRunner struct {
	summary  *RunSummary
	err      error
	services []statuspage.Service
}

func (m *mockRunner) Run(_ context.Context, services []statuspage.Service) (*RunSummary, error) {
	m.services = services
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

func newTriggerServer(runner PassRunner, secret string) *httptest.Server {
	services := []statuspage.Service{{Slug: "github", Name: "GitHub"}}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(httputil.SecretAuth(secret))
		NewHandler(runner, services).RegisterRoutes(r)
	})
	return httptest.NewServer(r)
}

func TestTriggerPoll_Success(t *testing.T) {
	runner := &mockRunner{summary: &RunSummary{
		Checked:        3,
		Events:         2,
		EmailsSent:     1,
		PendingFlushed: 4,
		DetectedEvents: []EventSummary{
			{Slug: "github", Type: domain.EventMajorOutage, From: "operational", To: "major_outage"},
			{Slug: "github", Type: domain.EventNewIncident, Incident: "inc-1"},
		},
	}}
	srv := newTriggerServer(runner, "test-secret-test-secret")
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/poll", nil)
	require.NoError(t, err)
	req.Header.Set(httputil.SecretHeader, "test-secret-test-secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Checked        int `json:"checked"`
		Events         int `json:"events"`
		EmailsSent     int `json:"emailsSent"`
		PendingFlushed int `json:"pendingFlushed"`
		Errors         int `json:"errors"`
		DetectedEvents []struct {
			Slug     string `json:"slug"`
			Type     string `json:"type"`
			From     string `json:"from"`
			To       string `json:"to"`
			Incident string `json:"incident"`
		} `json:"detectedEvents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 3, body.Checked)
	assert.Equal(t, 2, body.Events)
	assert.Equal(t, 1, body.EmailsSent)
	assert.Equal(t, 4, body.PendingFlushed)
	require.Len(t, body.DetectedEvents, 2)
	assert.Equal(t, "major_outage", body.DetectedEvents[0].Type)
	assert.Equal(t, "inc-1", body.DetectedEvents[1].Incident)

	require.Len(t, runner.services, 1)
	assert.Equal(t, "github", runner.services[0].Slug)
}

func TestTriggerPoll_EmptyEventsArray(t *testing.T) {
	runner := &mockRunner{summary: &RunSummary{Checked: 1}}
	srv := newTriggerServer(runner, "test-secret-test-secret")
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/poll", nil)
	req.Header.Set(httputil.SecretHeader, "test-secret-test-secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	// Always an array, never null.
	assert.Equal(t, "[]", string(body["detectedEvents"]))
}

func TestTriggerPoll_RunnerError(t *testing.T) {
	runner := &mockRunner{err: errors.New("db down")}
	srv := newTriggerServer(runner, "test-secret-test-secret")
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/poll", nil)
	req.Header.Set(httputil.SecretHeader, "test-secret-test-secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal error", body["error"])
}

func TestTriggerPoll_Auth(t *testing.T) {
	runner := &mockRunner{summary: &RunSummary{}}
	srv := newTriggerServer(runner, "test-secret-test-secret")
	defer srv.Close()

	tests := []struct {
		name       string
		configure  func(req *http.Request)
		wantStatus int
	}{
		{
			name:       "missing secret",
			configure:  func(_ *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			configure: func(req *http.Request) {
				req.Header.Set(httputil.SecretHeader, "wrong")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "header secret",
			configure: func(req *http.Request) {
				req.Header.Set(httputil.SecretHeader, "test-secret-test-secret")
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "query secret",
			configure: func(req *http.Request) {
				q := req.URL.Query()
				q.Set("secret", "test-secret-test-secret")
				req.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/poll", nil)
			require.NoError(t, err)
			tt.configure(req)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}
