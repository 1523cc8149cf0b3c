//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"testing"

	sessionkit "github.com/minyanlabs/sessionkit"
)

func TestLoginIssuesPairAndPersistsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair := mustLogin(t, env, "alice", "correct-horse")
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if pair.SessionID == "" || pair.FamilyID == "" {
		t.Fatal("expected session and family ids")
	}

	claims, err := env.engine.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.Subject != "uid-alice" {
		t.Fatalf("expected subject uid-alice, got %q", claims.Subject)
	}
	if claims.SID != pair.SessionID {
		t.Fatalf("expected sid %q, got %q", pair.SessionID, claims.SID)
	}

	infos, err := env.engine.ListSessions(ctx, "uid-alice")
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != pair.SessionID {
		t.Fatalf("expected the login session listed, got %+v", infos)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Login(context.Background(), "alice", "wrong"); !errors.Is(err, sessionkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "nobody", "x"); !errors.Is(err, sessionkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRefreshRotatesAndReplayBurnsFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first := mustLogin(t, env, "alice", "correct-horse")

	second, err := env.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Fatal("rotation must produce a new session row")
	}
	if second.FamilyID != first.FamilyID {
		t.Fatal("rotation must stay in the same family")
	}

	// Replaying the consumed token is theft evidence.
	if _, err := env.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, sessionkit.ErrSessionReused) {
		t.Fatalf("expected ErrSessionReused on replay, got %v", err)
	}

	// The burn takes the freshly rotated lineage down with it.
	if _, err := env.engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, sessionkit.ErrSessionReused) {
		t.Fatalf("expected ErrSessionReused for burned family, got %v", err)
	}

	// And the newest access token dies on the family marker.
	if _, err := env.engine.Validate(ctx, second.AccessToken); !errors.Is(err, sessionkit.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after family burn, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[sessionkit.MetricReuseDetected] == 0 {
		t.Fatal("expected reuse detection counter to move")
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)

	pair := mustLogin(t, env, "alice", "correct-horse")
	if _, err := env.engine.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, sessionkit.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
}

func TestLogoutIsIdempotentAndKillsAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair := mustLogin(t, env, "alice", "correct-horse")

	if err := env.engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := env.engine.Logout(ctx, pair.SessionID); err != nil {
		t.Fatalf("second logout must be a no-op, got %v", err)
	}
	if err := env.engine.Logout(ctx, "never-existed"); err != nil {
		t.Fatalf("logout of unknown session must be a no-op, got %v", err)
	}

	if _, err := env.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, sessionkit.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked after logout, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, sessionkit.ErrSessionReused) {
		t.Fatalf("expected ErrSessionReused for revoked row, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	a := mustLogin(t, env, "alice", "correct-horse")
	b := mustLogin(t, env, "alice", "correct-horse")
	other := mustLogin(t, env, "bob", "hunter2")

	count, err := env.engine.LogoutAll(ctx, "uid-alice")
	if err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sessions revoked, got %d", count)
	}

	for _, token := range []string{a.AccessToken, b.AccessToken} {
		if _, err := env.engine.Validate(ctx, token); !errors.Is(err, sessionkit.ErrSessionRevoked) {
			t.Fatalf("expected ErrSessionRevoked, got %v", err)
		}
	}
	if _, err := env.engine.Validate(ctx, other.AccessToken); err != nil {
		t.Fatalf("other user's session must survive, got %v", err)
	}
}

func TestRevokeSessionByID(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair := mustLogin(t, env, "alice", "correct-horse")

	if err := env.engine.RevokeSession(ctx, pair.SessionID); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := env.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, sessionkit.ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
	if err := env.engine.RevokeSession(ctx, "never-existed"); !errors.Is(err, sessionkit.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestValidateFailOpenByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	pair := mustLogin(t, env, "alice", "correct-horse")
	env.redis.Close()

	// Default policy accepts signature-valid tokens when the cache is down.
	if _, err := env.engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("expected fail-open validate to succeed, got %v", err)
	}
}

func TestValidateFailClosedWhenConfigured(t *testing.T) {
	env := newTestEnv(t, func(cfg *sessionkit.Config) {
		cfg.Security.RevocationFailClosed = true
	})
	ctx := context.Background()

	pair := mustLogin(t, env, "alice", "correct-horse")
	env.redis.Close()

	if _, err := env.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, sessionkit.ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}
}

func TestCSRFRoundTripViaEngine(t *testing.T) {
	env := newTestEnv(t, func(cfg *sessionkit.Config) {
		cfg.CSRF.Secret = []byte("0123456789abcdef0123456789abcdef")
	})

	pair := mustLogin(t, env, "alice", "correct-horse")

	token, err := env.engine.IssueCSRFToken(pair.SessionID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if err := env.engine.ValidateCSRFToken(pair.SessionID, token, token); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if err := env.engine.ValidateCSRFToken("other-session", token, token); !errors.Is(err, sessionkit.ErrCSRFInvalid) {
		t.Fatalf("expected ErrCSRFInvalid for wrong session, got %v", err)
	}
	if err := env.engine.ValidateCSRFToken(pair.SessionID, token, "mismatch"); !errors.Is(err, sessionkit.ErrCSRFInvalid) {
		t.Fatalf("expected ErrCSRFInvalid for mismatched pair, got %v", err)
	}
}
