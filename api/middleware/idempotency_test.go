package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

type replayMem struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newReplayMem() *replayMem {
	return &replayMem{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *replayMem) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *replayMem) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key], m.ttls[key] = value.(string), ttl
	return nil
}

func (m *replayMem) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *replayMem) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *replayMem) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func routed(method, url, pattern, body, key string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload.Code
}

func TestMatchRule(t *testing.T) {
	cases := []struct {
		method, route string
		ttl           time.Duration
		ok            bool
	}{
		{http.MethodPost, "/api/v1/checkout/session", paymentReplayTTL, true},
		{http.MethodPut, "/api/v1/cart", standardReplayTTL, true},
		{http.MethodPost, "/api/v1/notifications/{notificationId}/read", standardReplayTTL, true},
		{http.MethodPost, "/api/v1/notifications/abc/read/extra", 0, false},
		{http.MethodPost, "/api/admin/v1/discount-codes", standardReplayTTL, true},
		{http.MethodPost, "/api/admin/v1", 0, false},
		{http.MethodPost, "/api/v1/auth/login", 0, false},
		{http.MethodGet, "/api/v1/cart", 0, false},
	}
	for _, tc := range cases {
		rule, ok := matchRule(tc.method, tc.route)
		if ok != tc.ok || (ok && rule.ttl != tc.ttl) {
			t.Fatalf("%s %s: got ok=%v ttl=%v", tc.method, tc.route, ok, rule.ttl)
		}
	}
}

func TestIdempotencyRequiresKeyOnMandatoryRoutes(t *testing.T) {
	called := false
	h := Idempotency(newReplayMem(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, routed(http.MethodPost, "/api/v1/auth/register", "/api/v1/auth/register", `{}`, ""))
	if rec.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 without handler call, got %d called=%v", rec.Code, called)
	}
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newReplayMem()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sessionId":"cs_1"}`))
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, routed(http.MethodPost, "/api/v1/checkout/session", "/api/v1/checkout/session", `{"items":[1]}`, "k1"))
		if rec.Code != http.StatusCreated || rec.Body.String() != `{"sessionId":"cs_1"}` {
			t.Fatalf("attempt %d: got %d %s", i, rec.Code, rec.Body.String())
		}
		if i == 1 && rec.Header().Get(replayedHeader) != "true" {
			t.Fatal("expected replay marker on second response")
		}
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	for k, ttl := range store.ttls {
		if ttl != paymentReplayTTL {
			t.Fatalf("%s stored with ttl %v", k, ttl)
		}
	}
}

func TestIdempotencyRejectsChangedBodyAndInFlight(t *testing.T) {
	store := newReplayMem()
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), routed(http.MethodPost, "/api/v1/auth/register", "/api/v1/auth/register", `{"a":1}`, "dup"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, routed(http.MethodPost, "/api/v1/auth/register", "/api/v1/auth/register", `{"a":2}`, "dup"))
	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %d %s", rec.Code, rec.Body.String())
	}

	pending, _ := json.Marshal(replayEntry{Pending: true, RequestHash: requestDigest([]byte(`{"b":1}`))})
	store.data[store.IdempotencyKey("|POST|/api/v1/auth/register", "busy")] = string(pending)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, routed(http.MethodPost, "/api/v1/auth/register", "/api/v1/auth/register", `{"b":1}`, "busy"))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), string(pkgerrors.CodeIdempotency)) {
		t.Fatalf("expected in-flight conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyReleasesKeyAfterServerError(t *testing.T) {
	store := newReplayMem()
	fail := true
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), routed(http.MethodPost, "/api/v1/seller/products", "/api/v1/seller/products", `{}`, "retry"))
	if len(store.data) != 0 {
		t.Fatalf("expected key released after 5xx, got %v", store.data)
	}

	fail = false
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, routed(http.MethodPost, "/api/v1/seller/products", "/api/v1/seller/products", `{}`, "retry"))
	if rec.Code != http.StatusOK || len(store.data) != 1 {
		t.Fatalf("expected retry to run and persist, got %d %v", rec.Code, store.data)
	}
}

func TestIdempotencyOptionalRouteWithoutKey(t *testing.T) {
	store := newReplayMem()
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls++ }))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), routed(http.MethodPut, "/api/v1/cart", "/api/v1/cart", `{}`, ""))
	}
	if calls != 2 || len(store.data) != 0 {
		t.Fatalf("calls=%d stored=%v", calls, store.data)
	}
}

func TestRoutePatternFallback(t *testing.T) {
	if got := routePattern(routed(http.MethodPut, "/api/v1/cart/", "/api/v1/*", "", "")); got != "/api/v1/cart" {
		t.Fatalf("expected raw path, got %q", got)
	}
	full := "/api/v1/notifications/{notificationId}/read"
	if got := routePattern(routed(http.MethodPost, "/api/v1/notifications/x/read", full, "", "")); got != full {
		t.Fatalf("expected pattern, got %q", got)
	}
}
