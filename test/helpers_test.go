//go:build integration
// +build integration

package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	sessionkit "github.com/minyanlabs/sessionkit"
	"github.com/minyanlabs/sessionkit/session"
)

type testEnv struct {
	engine *sessionkit.Engine
	store  *session.MemoryStore
	redis  *miniredis.Miniredis
}

type mapVerifier map[string]string

func (m mapVerifier) VerifyCredentials(_ context.Context, username, password string) (sessionkit.Identity, error) {
	want, ok := m[username]
	if !ok || want != password {
		return sessionkit.Identity{}, errors.New("bad credentials")
	}
	return sessionkit.Identity{UserID: "uid-" + username, Roles: []string{"member"}}, nil
}

func newTestEnv(t *testing.T, mutate func(*sessionkit.Config)) *testEnv {
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
	cfg.JWT.Issuer = "sessionkit-test"
	cfg.JWT.Audience = "sessionkit-test"
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.Session.SweepEnabled = false
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	store := session.NewMemoryStore()
	engine, err := sessionkit.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSessionStore(store).
		WithCredentialVerifier(mapVerifier{"alice": "correct-horse", "bob": "hunter2"}).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, redis: mr}
}

func mustLogin(t *testing.T, env *testEnv, username, password string) *sessionkit.TokenPair {
	t.Helper()
	pair, err := env.engine.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return pair
}
