package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	sessionkit "github.com/minyanlabs/sessionkit"
	"github.com/minyanlabs/sessionkit/session"
)

type singleUserVerifier struct{}

func (singleUserVerifier) VerifyCredentials(_ context.Context, username, password string) (sessionkit.Identity, error) {
	if username != "alice" || password != "correct-horse" {
		return sessionkit.Identity{}, errors.New("bad credentials")
	}
	return sessionkit.Identity{UserID: "uid-alice"}, nil
}

func newMiddlewareEngine(t *testing.T) *sessionkit.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	cfg := sessionkit.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "middleware-test"
	cfg.JWT.Audience = "middleware-test"
	cfg.Session.SweepEnabled = false
	cfg.CSRF.Secret = []byte("0123456789abcdef0123456789abcdef")

	engine, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSessionStore(session.NewMemoryStore()).
		WithCredentialVerifier(singleUserVerifier{}).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func TestRequireAuthInjectsClaims(t *testing.T) {
	engine := newMiddlewareEngine(t)
	pair, err := engine.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	var gotSubject string
	handler := RequireAuth(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		gotSubject = claims.Subject
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotSubject != "uid-alice" {
		t.Fatalf("expected subject uid-alice, got %q", gotSubject)
	}
}

func TestRequireAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	engine := newMiddlewareEngine(t)
	next, called := okHandler()
	handler := RequireAuth(engine)(next)

	for _, header := range []string{"", "Bearer ", "Basic abc", "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
	if *called {
		t.Fatal("next handler must not run on rejected requests")
	}
}

func TestRequireAuthRejectsRevokedSession(t *testing.T) {
	engine := newMiddlewareEngine(t)
	pair, err := engine.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := engine.Logout(context.Background(), pair.SessionID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	next, called := okHandler()
	handler := RequireAuth(engine)(next)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run for a revoked session")
	}
}

func TestRequireCSRFPassesSafeMethods(t *testing.T) {
	engine := newMiddlewareEngine(t)
	next, called := okHandler()
	handler := RequireCSRF(engine)(next)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, "/things", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", method, rec.Code)
		}
	}
	if !*called {
		t.Fatal("next handler should have run")
	}
}

func TestRequireCSRFEnforcesDoubleSubmit(t *testing.T) {
	engine := newMiddlewareEngine(t)
	pair, err := engine.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	token, err := engine.IssueCSRFToken(pair.SessionID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	next, _ := okHandler()
	handler := RequireAuth(engine)(RequireCSRF(engine)(next))

	send := func(cookie, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/things", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: cookie})
		}
		if header != "" {
			req.Header.Set(CSRFHeaderName, header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(token, token); code != http.StatusOK {
		t.Fatalf("matching pair: expected 200, got %d", code)
	}
	if code := send(token, ""); code != http.StatusForbidden {
		t.Fatalf("missing header: expected 403, got %d", code)
	}
	if code := send("", token); code != http.StatusForbidden {
		t.Fatalf("missing cookie: expected 403, got %d", code)
	}
	if code := send(token, "not-the-token"); code != http.StatusForbidden {
		t.Fatalf("mismatched header: expected 403, got %d", code)
	}
}

func TestRequireCSRFRejectsUnauthenticatedWrites(t *testing.T) {
	engine := newMiddlewareEngine(t)
	next, called := okHandler()
	handler := RequireCSRF(engine)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/things", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run without validated claims")
	}
}

func TestRequireCSRFAnswersJSONErrorBody(t *testing.T) {
	engine := newMiddlewareEngine(t)
	pair, err := engine.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	token, err := engine.IssueCSRFToken(pair.SessionID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	next, _ := okHandler()
	handler := RequireAuth(engine)(RequireCSRF(engine)(next))

	req := httptest.NewRequest(http.MethodPost, "/things", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	req.Header.Set(CSRFHeaderName, "not-the-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["error"] != "csrf_invalid" {
		t.Fatalf(`body error = %q, want "csrf_invalid"`, body["error"])
	}
}

func TestRequireAuthFailClosedWhenRevocationDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	cfg := sessionkit.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = "middleware-test"
	cfg.JWT.Audience = "middleware-test"
	cfg.Session.SweepEnabled = false
	cfg.CSRF.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Security.RevocationFailClosed = true

	engine, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSessionStore(session.NewMemoryStore()).
		WithCredentialVerifier(singleUserVerifier{}).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	pair, err := engine.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	mr.Close()

	next, called := okHandler()
	handler := RequireAuth(engine)(next)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if *called {
		t.Fatal("next handler must not run while revocation checks are unavailable")
	}
}
