package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "sessionkit",
		Audience:      "directory-api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestMintVerifyRoundtrip(t *testing.T) {
	m := newTestManager(t)

	access, jti, exp, err := m.MintAccess("user-1", "sess-1", "fam-1", []string{"admin"})
	if err != nil {
		t.Fatalf("mint access: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}
	if !exp.After(time.Now()) {
		t.Fatal("expected expiry in the future")
	}

	claims, err := m.Verify(access, TypeAccess)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.Subject != "user-1" || claims.SID != "sess-1" {
		t.Fatalf("unexpected claims: subject=%q sid=%q", claims.Subject, claims.SID)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}

	refresh, rjti, _, err := m.MintRefresh("user-1", "sess-1", "fam-1", nil)
	if err != nil {
		t.Fatalf("mint refresh: %v", err)
	}
	if rjti == jti {
		t.Fatal("expected distinct jti per mint")
	}
	rclaims, err := m.Verify(refresh, TypeRefresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if rclaims.SID != "sess-1" || rclaims.FID != "fam-1" {
		t.Fatalf("unexpected lineage claims: sid=%q fid=%q", rclaims.SID, rclaims.FID)
	}
}

func TestVerifyRejectsCrossTypeUse(t *testing.T) {
	m := newTestManager(t)

	access, _, _, err := m.MintAccess("user-1", "sess-1", "fam-1", nil)
	if err != nil {
		t.Fatalf("mint access: %v", err)
	}
	if _, err := m.Verify(access, TypeRefresh); !errors.Is(err, ErrClaimMismatch) {
		t.Fatalf("expected claim mismatch using access token as refresh, got %v", err)
	}

	refresh, _, _, err := m.MintRefresh("user-1", "sess-1", "fam-1", nil)
	if err != nil {
		t.Fatalf("mint refresh: %v", err)
	}
	if _, err := m.Verify(refresh, TypeAccess); !errors.Is(err, ErrClaimMismatch) {
		t.Fatalf("expected claim mismatch using refresh token as access, got %v", err)
	}
}

func TestVerifyClassifiesExpired(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "sessionkit",
		Audience:      "directory-api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	expired := Claims{Type: string(TypeAccess), SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "jti-1",
		Subject:   "u1",
		Issuer:    "sessionkit",
		Audience:  gjwt.ClaimStrings{"directory-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expired)
	signed, _ := tok.SignedString(priv)

	if _, err := m.Verify(signed, TypeAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyLeewayAppliesToExpiryOnly(t *testing.T) {
	m := newTestManager(t)
	_, priv := newEdKeys(t)

	withinLeeway := Claims{Type: string(TypeAccess), SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "jti-1",
		Subject:   "u1",
		Issuer:    "sessionkit",
		Audience:  gjwt.ClaimStrings{"directory-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}

	// Same claims, but signed with a foreign key: leeway must not rescue a
	// bad signature.
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, withinLeeway)
	foreign, _ := tok.SignedString(priv)
	if _, err := m.Verify(foreign, TypeAccess); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for foreign key, got %v", err)
	}
}

func TestVerifyIssuerAudienceMismatch(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "sessionkit",
		Audience:      "directory-api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cases := []struct {
		name     string
		issuer   string
		audience string
	}{
		{"wrong issuer", "legacy-auth", "directory-api"},
		{"wrong audience", "sessionkit", "other-api"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := Claims{Type: string(TypeAccess), SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
				ID:        "jti-1",
				Subject:   "u1",
				Issuer:    tc.issuer,
				Audience:  gjwt.ClaimStrings{tc.audience},
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
				IssuedAt:  gjwt.NewNumericDate(time.Now()),
			}}
			tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
			signed, _ := tok.SignedString(priv)
			if _, err := m.Verify(signed, TypeAccess); !errors.Is(err, ErrClaimMismatch) {
				t.Fatalf("expected ErrClaimMismatch, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
		Issuer:        "sessionkit",
		Audience:      "directory-api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Type: string(TypeAccess), SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "jti-1",
		Issuer:    "sessionkit",
		Audience:  gjwt.ClaimStrings{"directory-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(signed, TypeAccess); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestVerifyUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		Issuer:        "sessionkit",
		Audience:      "directory-api",
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{Type: string(TypeAccess), SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "jti-1",
		Issuer:    "sessionkit",
		Audience:  gjwt.ClaimStrings{"directory-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	signed, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Verify(signed, TypeAccess); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, _, _, err := m.MintAccess("u1", "s1", "f1", nil)
	if err != nil {
		t.Fatalf("mint access: %v", err)
	}
	if _, err := m.Verify(good, TypeAccess); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}
}
