package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dispatch-board/backend/internal/feed"
	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/positions"
	"github.com/dispatch-board/backend/internal/testutil"
	"github.com/dispatch-board/backend/internal/upstream"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// serve runs a handler the way echo would, including the error handler.
func serve(e *echo.Echo, h echo.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(false)
	return e
}

func TestHandleGetPositions_JSON(t *testing.T) {
	lat, lon := 39.77, -86.15
	mock := testutil.NewMockFeed(
		testutil.Aircraft("N911LL", 39.76, -86.16, 270),
		feed.Aircraft{ID: "NOLON", Latitude: &lat},
		feed.Aircraft{ID: "N22HX", Latitude: &lat, Longitude: &lon, Type: "EC35"},
	)
	h := NewPositionsHandler(positions.NewCoordinator(mock))
	e := newTestEcho()

	rec := serve(e, h.HandleGetPositions, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderSnapshotID))
	assert.Empty(t, rec.Header().Get(HeaderSnapshotStale))

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "N911LL", body[0]["id"])
	assert.Equal(t, 270.0, body[0]["headingDegrees"])
	assert.Equal(t, "N22HX", body[1]["id"])
	assert.Equal(t, "EC35", body[1]["aircraftType"])
	assert.Equal(t, 39.77, body[1]["latitude"])
}

func TestHandleGetPositions_EmptyIsArray(t *testing.T) {
	h := NewPositionsHandler(positions.NewCoordinator(testutil.NewMockFeed()))
	rec := serve(newTestEcho(), h.HandleGetPositions, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleGetPositions_Msgpack(t *testing.T) {
	h := NewPositionsHandler(positions.NewCoordinator(testutil.NewMockFeed(testutil.Aircraft("N1", 39.7, -86.1, 90))))
	e := newTestEcho()

	tests := []struct {
		name string
		req  func() *http.Request
	}{
		{"query", func() *http.Request { return httptest.NewRequest(http.MethodGet, "/api/positions?format=msgpack", nil) }},
		{"accept", func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
			req.Header.Set(echo.HeaderAccept, MIMEApplicationMsgpack)
			return req
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, h.HandleGetPositions, tt.req())
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

			var got []models.VehiclePosition
			require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &got))
			require.Len(t, got, 1)
			assert.Equal(t, "N1", got[0].ID)
			require.NotNil(t, got[0].HeadingDegrees)
			assert.Equal(t, 90.0, *got[0].HeadingDegrees)
		})
	}
}

func TestHandleGetPositions_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"auth", &upstream.Error{Kind: upstream.KindAuth, Service: "aircraft feed", Status: 403}, http.StatusUnauthorized, "UPSTREAM_AUTH"},
		{"rate limited", &upstream.Error{Kind: upstream.KindRateLimited, Status: 429, RetryAfter: 30 * time.Second}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"timeout", &upstream.Error{Kind: upstream.KindTimeout}, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
		{"configuration", upstream.Configuration("aircraft feed", "feed token is not configured"), http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"other", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockFeed()
			mock.SetError(tt.err)
			h := NewPositionsHandler(positions.NewCoordinator(mock))

			rec := serve(newTestEcho(), h.HandleGetPositions, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandleGetPositions_RetryAfterHeader(t *testing.T) {
	mock := testutil.NewMockFeed()
	mock.SetError(&upstream.Error{Kind: upstream.KindRateLimited, Status: 429, RetryAfter: 1500 * time.Millisecond})
	h := NewPositionsHandler(positions.NewCoordinator(mock))

	rec := serve(newTestEcho(), h.HandleGetPositions, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestHandleGetPositions_StaleHeader(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mock := testutil.NewMockFeed(testutil.Aircraft("N1", 39.7, -86.1))
	coord := positions.NewCoordinator(mock, positions.WithClock(clock), positions.WithFailurePolicy(positions.ServeStaleOnFailure))
	h := NewPositionsHandler(coord)
	e := newTestEcho()

	rec := serve(e, h.HandleGetPositions, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	now = now.Add(2 * time.Minute)
	mock.SetError(errors.New("upstream down"))
	rec = serve(e, h.HandleGetPositions, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(HeaderSnapshotStale))
	assert.Contains(t, rec.Body.String(), `"id":"N1"`)
}
