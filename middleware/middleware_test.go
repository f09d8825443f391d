package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"contractit/database"
	"contractit/models"

	"github.com/alicebob/miniredis/v2"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthenticator(nil, "secret", time.Hour)
	user := &models.User{ID: 7, Username: "alice", Roles: models.NewRoleSet(models.RoleClient)}

	token, err := a.GenerateToken(user)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || !claims.Roles.Has(models.RoleClient) || claims.Roles.Has(models.RoleContractor) {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewAuthenticator(nil, "other", time.Hour).ValidateToken(token); err == nil {
		t.Error("token signed with another secret must not validate")
	}
	expired := NewAuthenticator(nil, "secret", -time.Minute)
	old, _ := expired.GenerateToken(user)
	if _, err := a.ValidateToken(old); err == nil {
		t.Error("expired token must not validate")
	}
}

func authFixture(t *testing.T) (*Authenticator, *models.User, *models.User) {
	t.Helper()
	db := database.OpenTest(t)
	client := &models.User{Username: "client", Email: "c@example.com", PasswordHash: "x", Language: "fr", Roles: models.NewRoleSet(models.RoleClient)}
	contractor := &models.User{Username: "contractor", Email: "k@example.com", PasswordHash: "x", Language: "fr", Roles: models.NewRoleSet(models.RoleContractor)}
	for _, u := range []*models.User{client, contractor} {
		if err := db.Create(u).Error; err != nil {
			t.Fatal(err)
		}
	}
	return NewAuthenticator(db, "secret", time.Hour), client, contractor
}

func TestAPIAuthAndRoles(t *testing.T) {
	a, client, contractor := authFixture(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, GetUserFromContext(r.Context()).Username)
	})
	h := a.APIAuth(RequireAPIRole(models.RoleContractor)(ok))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + mustToken(t, a, client), http.StatusForbidden},
		{"contractor", "Bearer " + mustToken(t, a, contractor), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareRedirects(t *testing.T) {
	a, client, _ := authFixture(t)
	h := a.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("anonymous: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: mustToken(t, a, client)})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie session: status %d", rec.Code)
	}
}

func mustToken(t *testing.T, a *Authenticator, u *models.User) string {
	t.Helper()
	tok, err := a.GenerateToken(u)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("other IP throttled: %d", rec.Code)
	}
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var calls atomic.Int32
	h := Idempotency(rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"call":%d}`, n)
	}))

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/projects/1/bids", strings.NewReader("{}"))
		req.Header.Set(IdempotencyHeader, key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("abc")
	second := send("abc")
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("replay = %d %q, want %d %q", second.Code, second.Body.String(), first.Code, first.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Error("replay header missing")
	}

	send("other")
	if calls.Load() != 2 {
		t.Fatalf("new key should run the handler")
	}
}

func TestIdempotencyReleasesKeyOnPanic(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var calls atomic.Int32
	h := chimiddleware.Recoverer(Idempotency(rdb, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/bids/1/accept", nil)
		req.Header.Set(IdempotencyHeader, "retry-me")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panicking request = %d, want 500", rec.Code)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("key left behind after panic: %v", keys)
	}
	if rec := send(); rec.Code != http.StatusCreated {
		t.Fatalf("retry = %d, want 201", rec.Code)
	}
	if calls.Load() != 2 {
		t.Errorf("handler ran %d times, want 2", calls.Load())
	}
}

func TestIdempotencyDisabledWithoutRedis(t *testing.T) {
	var calls int
	h := Idempotency(nil, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(IdempotencyHeader, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
