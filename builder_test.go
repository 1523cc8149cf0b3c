package sessionkit

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/minyanlabs/sessionkit/csrf"
)

func TestNewCSRFGuardWrapsUnderlyingCause(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.ProductionMode = true

	_, err := newCSRFGuard(cfg, zerolog.Nop())
	if !errors.Is(err, ErrCSRFMisconfigured) {
		t.Fatalf("err = %v, want ErrCSRFMisconfigured", err)
	}
	if !strings.Contains(err.Error(), csrf.ErrMisconfiguredSecret.Error()) {
		t.Fatalf("err %q does not carry the underlying cause", err)
	}
}

func TestNewCSRFGuardAppliesConfiguredTTL(t *testing.T) {
	cfg := defaultConfig()
	cfg.CSRF.Secret = []byte("0123456789abcdef0123456789abcdef")

	guard, err := newCSRFGuard(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	token, err := guard.Issue("sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := guard.Validate("sess-1", token, token); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
