package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dispatch-board/backend/internal/classify"
	"github.com/dispatch-board/backend/internal/positions"
	"github.com/dispatch-board/backend/internal/records"
	"github.com/dispatch-board/backend/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nocoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleGetDispatchRecords(t *testing.T) {
	srv := nocoServer(t, http.StatusOK, `{"list":[{"id":3,"conversation_analysis":{"summary":"Fall from ladder"},"Address":"1 Main St"}],"pageInfo":{"totalRows":1}}`)
	h := NewRecordsHandler(records.NewClient(records.Options{BaseURL: srv.URL, APIToken: "tok", TableID: "t1"}))

	rec := serve(newTestEcho(), h.HandleGetDispatchRecords, httptest.NewRequest(http.MethodGet, "/api/dispatch-records", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":3,"conversation_analysis":{"summary":"Fall from ladder"},"Address":"1 Main St"}]`, rec.Body.String())
}

func TestHandleGetDispatchRecords_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		opts       func(url string) records.Options
		wantStatus int
		wantError  string
	}{
		{
			name: "missing credentials", status: http.StatusOK,
			opts:       func(url string) records.Options { return records.Options{BaseURL: url} },
			wantStatus: http.StatusInternalServerError,
			wantError:  "Server configuration error: Missing NocoDB credentials",
		},
		{
			name: "bad token", status: http.StatusUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authentication failed: Invalid NocoDB API token",
		},
		{
			name: "unknown table", status: http.StatusNotFound,
			wantStatus: http.StatusNotFound,
			wantError:  "Table not found: Invalid NocoDB table ID",
		},
		{
			name: "store outage", status: http.StatusBadGateway,
			wantStatus: http.StatusBadGateway,
			wantError:  "NocoDB API error: ",
		},
		{
			name: "forbidden relayed", status: http.StatusForbidden,
			wantStatus: http.StatusForbidden,
			wantError:  "NocoDB API error: ",
		},
		{
			name: "schema violation", status: http.StatusOK, body: `{"list":[{"id":"abc"}]}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to fetch dispatch calls",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := nocoServer(t, tt.status, tt.body)
			opts := records.Options{BaseURL: srv.URL, APIToken: "tok", TableID: "t1"}
			if tt.opts != nil {
				opts = tt.opts(srv.URL)
			}
			h := NewRecordsHandler(records.NewClient(opts))

			rec := serve(newTestEcho(), h.HandleGetDispatchRecords, httptest.NewRequest(http.MethodGet, "/api/dispatch-records", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, strings.HasPrefix(body.Message, tt.wantError), "got %q", body.Message)
		})
	}
}

type classifierFunc func(ctx context.Context, summary string) classify.Result

func (f classifierFunc) Classify(ctx context.Context, summary string) classify.Result {
	return f(ctx, summary)
}

func TestHandleClassifySummary(t *testing.T) {
	var got string
	h := NewClassifyHandler(classifierFunc(func(ctx context.Context, summary string) classify.Result {
		got = summary
		return classify.Result{ChiefComplaint: "Cardiac Arrest", Source: classify.SourceModel}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/classify-summary", strings.NewReader(`{"summary":"CPR in progress"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := serve(newTestEcho(), h.HandleClassifySummary, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CPR in progress", got)
	assert.JSONEq(t, `{"chiefComplaint":"Cardiac Arrest","source":"model"}`, rec.Body.String())
}

func TestHandleClassifySummary_BadRequests(t *testing.T) {
	h := NewClassifyHandler(classifierFunc(func(ctx context.Context, summary string) classify.Result {
		t.Fatal("classifier must not be called")
		return classify.Result{}
	}))

	tests := []struct {
		name string
		body string
		code string
	}{
		{"empty body", ``, "VALIDATION_ERROR"},
		{"blank summary", `{"summary":"   "}`, "VALIDATION_ERROR"},
		{"malformed json", `{"summary":`, "BAD_REQUEST"},
		{"wrong type", `{"summary":42}`, "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/classify-summary", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := serve(newTestEcho(), h.HandleClassifySummary, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestHandleClassifySummary_FallbackStill200(t *testing.T) {
	srv := nocoServer(t, http.StatusServiceUnavailable, ``)
	h := NewClassifyHandler(classify.New(classify.Options{Endpoint: srv.URL, MaxFallbackLength: 60}))

	req := httptest.NewRequest(http.MethodPost, "/api/classify-summary", strings.NewReader(`{"summary":"Possible overdose in restroom"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := serve(newTestEcho(), h.HandleClassifySummary, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chiefComplaint":"Overdose","source":"fallback"}`, rec.Body.String())
}

func TestHandleHealth(t *testing.T) {
	coord := positions.NewCoordinator(testutil.NewMockFeed(testutil.Aircraft("N1", 39.7, -86.1)))
	_, err := coord.GetPositions(context.Background())
	require.NoError(t, err)
	h := NewHealthHandler("1.2.3", coord)

	rec := serve(newTestEcho(), h.HandleHealth, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    string           `json:"status"`
		Version   string           `json:"version"`
		Positions positions.Status `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.True(t, body.Positions.HasEntry)
	assert.Equal(t, 1, body.Positions.Vehicles)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		expose      bool
		err         error
		wantStatus  int
		wantCode    string
		wantDetails string
	}{
		{"api error", false, NewNotFoundError("nope"), http.StatusNotFound, "NOT_FOUND", ""},
		{"wrapped api error", false, errors.Join(errors.New("ctx"), NewValidationError("summary")), http.StatusBadRequest, "VALIDATION_ERROR", ""},
		{"echo error", false, echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"), http.StatusMethodNotAllowed, "HTTP_ERROR", ""},
		{"unknown hidden", false, errors.New("db exploded"), http.StatusInternalServerError, "UNKNOWN_ERROR", ""},
		{"unknown exposed", true, errors.New("db exploded"), http.StatusInternalServerError, "UNKNOWN_ERROR", "db exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/x", nil), rec)
			NewErrorHandler(tt.expose)(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantDetails, body.Details)
		})
	}
}

func TestRegisterRoutes(t *testing.T) {
	e := newTestEcho()
	coord := positions.NewCoordinator(testutil.NewMockFeed(testutil.Aircraft("N1", 39.7, -86.1)))
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Positions:      coord,
		Calls:          records.NewClient(records.Options{}),
		Classifier:     classify.New(classify.Options{}),
		StreamInterval: time.Second,
		Version:        "test",
	}))

	paths := map[string]bool{}
	for _, r := range e.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /api/health",
		"GET /api/positions",
		"GET /api/dispatch-records",
		"POST /api/classify-summary",
		"GET /api/ws/positions",
	} {
		assert.True(t, paths[want], want)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"N1"`)
}
