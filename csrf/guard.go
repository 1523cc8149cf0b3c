// Package csrf implements double-submit CSRF protection with HMAC-signed
// tokens bound to a session. The token travels in both a cookie and a request
// header; validation requires the two copies to match, the MAC to verify
// against the session the request authenticated as, and the token to be
// younger than the guard's TTL.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrMisconfiguredSecret is returned by NewGuard when production mode is
// requested without a signing secret. This is a hard failure: silently
// generating a secret in production would invalidate every outstanding token
// on each restart and mask a deployment mistake.
var ErrMisconfiguredSecret = errors.New("csrf secret missing in production")

// ErrInvalid is returned when a token fails validation for any reason:
// missing copies, cookie/header mismatch, malformed encoding, or a MAC that
// does not verify for the session.
var ErrInvalid = errors.New("csrf token invalid")

const (
	nonceSize   = 16
	issuedAtLen = 8
	payloadSize = nonceSize + issuedAtLen
	secretSize  = 32
)

// DefaultTokenTTL bounds a token's validity when the caller does not set one.
const DefaultTokenTTL = time.Hour

// Guard issues and validates per-session CSRF tokens.
//
// Guard instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Guard struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewGuard creates a [Guard]. In production mode the secret is mandatory and
// its absence returns [ErrMisconfiguredSecret]. Outside production a missing
// secret is replaced by an ephemeral one, with a logged warning, so local
// setups work without configuration but tokens do not survive restarts.
// A non-positive ttl falls back to [DefaultTokenTTL].
func NewGuard(secret []byte, ttl time.Duration, production bool, log zerolog.Logger) (*Guard, error) {
	if len(secret) == 0 {
		if production {
			return nil, ErrMisconfiguredSecret
		}
		secret = make([]byte, secretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Warn().Msg("csrf secret not configured; using ephemeral secret, tokens will not survive restarts")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Guard{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue mints a token bound to sessionID. Format is
// base64url(nonce || issuedAt) + "." + base64url(HMAC-SHA256(secret, sessionID || payload)),
// where issuedAt is the mint time as big-endian unix seconds. The timestamp
// is covered by the MAC, so a client cannot extend its own token.
func (g *Guard) Issue(sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalid
	}

	payload := make([]byte, payloadSize)
	if _, err := rand.Read(payload[:nonceSize]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(payload[nonceSize:], uint64(g.now().Unix()))

	mac := g.sign(sessionID, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(mac), nil
}

// Validate checks the double-submit pair for sessionID. Both copies must be
// present and identical, the MAC must verify, and the token must be younger
// than the guard's TTL. All failures collapse to [ErrInvalid]; callers never
// learn which check failed.
func (g *Guard) Validate(sessionID, cookieToken, headerToken string) error {
	if sessionID == "" || cookieToken == "" || headerToken == "" {
		return ErrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrInvalid
	}

	payloadPart, macPart, ok := strings.Cut(cookieToken, ".")
	if !ok {
		return ErrInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil || len(payload) != payloadSize {
		return ErrInvalid
	}
	mac, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return ErrInvalid
	}

	if !hmac.Equal(mac, g.sign(sessionID, payload)) {
		return ErrInvalid
	}

	issuedAt := time.Unix(int64(binary.BigEndian.Uint64(payload[nonceSize:])), 0)
	if g.now().After(issuedAt.Add(g.ttl)) {
		return ErrInvalid
	}
	return nil
}

func (g *Guard) sign(sessionID string, payload []byte) []byte {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(sessionID))
	h.Write([]byte{'\n'})
	h.Write(payload)
	return h.Sum(nil)
}
