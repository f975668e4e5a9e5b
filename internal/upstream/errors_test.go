package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func response(status int, headers map[string]string) *http.Response {
	resp := &http.Response{StatusCode: status, Header: http.Header{}}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusInternalServerError, KindOther},
		{http.StatusNotFound, KindOther},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromResponse("feed", response(tt.status, nil))
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.Status)
			assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", tt.status))
		})
	}
}

func TestFromResponse_RetryAfter(t *testing.T) {
	err := FromResponse("feed", response(http.StatusTooManyRequests, map[string]string{"Retry-After": "30"}))
	assert.Equal(t, 30*time.Second, err.RetryAfter)

	err = FromResponse("feed", response(http.StatusTooManyRequests, map[string]string{"Retry-After": "soon"}))
	assert.Zero(t, err.RetryAfter)
}

func TestFromTransport(t *testing.T) {
	timeout := FromTransport("feed", fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, timeout.Kind)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	other := FromTransport("feed", errors.New("connection refused"))
	assert.Equal(t, KindOther, other.Kind)

	already := &Error{Kind: KindAuth, Service: "feed"}
	assert.Same(t, already, FromTransport("feed", fmt.Errorf("wrapped: %w", already)))
}

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("refresh: %w", &Error{Kind: KindRateLimited, Service: "feed", Status: 429})

	assert.ErrorIs(t, err, &Error{Kind: KindRateLimited})
	assert.NotErrorIs(t, err, &Error{Kind: KindAuth})
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, KindOther, KindOf(errors.New("plain")))
}

func TestConfiguration(t *testing.T) {
	err := Configuration("records", "missing NocoDB credentials")
	assert.Equal(t, KindConfiguration, err.Kind)
	assert.Contains(t, err.Error(), "missing NocoDB credentials")
}
