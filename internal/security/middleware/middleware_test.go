package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/handler/respond"
	"github.com/wencestudios/freelancehub/internal/security/ratelimit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubValidator map[string]*domain.Session

func (v stubValidator) ValidateSession(_ context.Context, access, refresh string) (*domain.Session, error) {
	if access == "" {
		if refresh != "" {
			return nil, domain.ErrSessionExpired
		}
		return nil, domain.ErrUnauthenticated
	}
	if s, ok := v[access]; ok {
		return s, nil
	}
	return nil, domain.ErrInvalidSession
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	s := GetSession(r.Context())
	if s == nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = io.WriteString(w, s.UserID)
}

func TestAuthenticate(t *testing.T) {
	v := stubValidator{"good": {SessionID: "s1", UserID: "usr_1"}}
	h := Authenticate(v, quiet)(http.HandlerFunc(echoUser))

	cases := []struct {
		name    string
		header  string
		refresh string
		status  int
		code    string
	}{
		{"valid", "Bearer good", "", http.StatusOK, ""},
		{"lowercase scheme", "bearer good", "", http.StatusOK, ""},
		{"missing", "", "", http.StatusUnauthorized, "unauthenticated"},
		{"malformed", "Token good", "", http.StatusUnauthorized, "unauthenticated"},
		{"unknown", "Bearer nope", "", http.StatusUnauthorized, "invalid_session"},
		{"refresh only", "", "r1", http.StatusUnauthorized, "session_expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/bids/mine", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.refresh != "" {
				req.Header.Set(RefreshTokenHeader, tc.refresh)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.code == "" {
				assert.Equal(t, "usr_1", rec.Body.String())
				return
			}
			var body respond.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestAuthenticate_WebsocketQueryToken(t *testing.T) {
	v := stubValidator{"good": {UserID: "usr_1"}}
	h := Authenticate(v, quiet)(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/ws/notifications?token=good", nil)
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	plain := httptest.NewRequest(http.MethodGet, "/api/bids/mine?token=good", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, plain)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitByIP(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(2, time.Minute).WithClock(func() time.Time { return now })
	defer limiter.Stop()
	h := RateLimitByIP(limiter, quiet)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001").Code)
	limited := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000").Code)
}

func TestRateLimitByUser(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, time.Minute)
	defer limiter.Stop()
	h := RateLimitByUser(limiter, quiet)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		req = req.WithContext(WithSession(req.Context(), &domain.Session{UserID: userID}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("usr_1"))
	assert.Equal(t, http.StatusTooManyRequests, call("usr_1"))
	assert.Equal(t, http.StatusNoContent, call("usr_2"))
}

func TestValidateJSONContentType(t *testing.T) {
	h := ValidateJSONContentType(quiet)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader("title=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/bids/BID-1/accept", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSanitizeInputs(t *testing.T) {
	h := SanitizeInputs(quiet)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?q=%3Cscript%3E", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?q=essay", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLimitBody(t *testing.T) {
	h := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"title":"too long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Chunked bodies carry no length and are cut off while reading.
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"title":"too long"}`))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
