package control

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
)

func TestDisabledVerifierAuthorizesEverything(t *testing.T) {
	t.Parallel()

	var verifier Verifier
	if err := verifier.Authorize(""); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := verifier.Authorize("Bearer garbage"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
}

func TestAuthorizeAcceptsValidToken(t *testing.T) {
	t.Parallel()

	verifier, priv := newTestVerifier(t)
	token := mintToken(t, priv, jwt.RegisteredClaims{
		Issuer:    verifier.Issuer,
		Audience:  jwt.ClaimStrings{verifier.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})

	if err := verifier.Authorize("Bearer " + token); err != nil {
		t.Fatalf("authorize: %v", err)
	}
}

func TestAuthorizeRejectsMissingOrMalformedHeader(t *testing.T) {
	t.Parallel()

	verifier, _ := newTestVerifier(t)
	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer"} {
		err := verifier.Authorize(header)
		if err == nil {
			t.Fatalf("Authorize(%q) = nil, want error", header)
		}
		if got := gateerrors.KindOf(err); got != gateerrors.KindUnauthorized {
			t.Fatalf("Authorize(%q) kind = %q, want %q", header, got, gateerrors.KindUnauthorized)
		}
	}
}

func TestAuthorizeRejectsIssuerMismatch(t *testing.T) {
	t.Parallel()

	verifier, priv := newTestVerifier(t)
	token := mintToken(t, priv, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Audience:  jwt.ClaimStrings{verifier.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	assertUnauthorized(t, verifier.Authorize("Bearer "+token))
}

func TestAuthorizeRejectsAudienceMismatch(t *testing.T) {
	t.Parallel()

	verifier, priv := newTestVerifier(t)
	token := mintToken(t, priv, jwt.RegisteredClaims{
		Issuer:    verifier.Issuer,
		Audience:  jwt.ClaimStrings{"another-service"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	assertUnauthorized(t, verifier.Authorize("Bearer "+token))
}

func TestAuthorizeRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	verifier, priv := newTestVerifier(t)
	token := mintToken(t, priv, jwt.RegisteredClaims{
		Issuer:    verifier.Issuer,
		Audience:  jwt.ClaimStrings{verifier.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	assertUnauthorized(t, verifier.Authorize("Bearer "+token))
}

func TestAuthorizeRejectsTokenNotYetValid(t *testing.T) {
	t.Parallel()

	verifier, priv := newTestVerifier(t)
	token := mintToken(t, priv, jwt.RegisteredClaims{
		Issuer:    verifier.Issuer,
		Audience:  jwt.ClaimStrings{verifier.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
		NotBefore: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	assertUnauthorized(t, verifier.Authorize("Bearer "+token))
}

func TestAuthorizeRejectsForeignKey(t *testing.T) {
	t.Parallel()

	verifier, _ := newTestVerifier(t)
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	token := mintToken(t, otherPriv, jwt.RegisteredClaims{
		Issuer:    verifier.Issuer,
		Audience:  jwt.ClaimStrings{verifier.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	assertUnauthorized(t, verifier.Authorize("Bearer "+token))
}

func TestAuthorizeRejectsNonEdDSATokens(t *testing.T) {
	t.Parallel()

	verifier, _ := newTestVerifier(t)
	hmacToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    verifier.Issuer,
		Audience:  jwt.ClaimStrings{verifier.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := hmacToken.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	assertUnauthorized(t, verifier.Authorize("Bearer "+signed))
}

func TestLoadVerifierFromEnvDisabledWhenKeyUnset(t *testing.T) {
	t.Setenv("CACHEGATE_CONTROL_ISSUER", "")
	t.Setenv("CACHEGATE_CONTROL_AUDIENCE", "")
	t.Setenv("CACHEGATE_CONTROL_PUBLIC_KEY", "")

	verifier, err := LoadVerifierFromEnv()
	if err != nil {
		t.Fatalf("load verifier: %v", err)
	}
	if verifier.Enabled() {
		t.Fatal("expected disabled verifier")
	}
}

func TestLoadVerifierFromEnvRequiresIssuerAndAudience(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("CACHEGATE_CONTROL_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))
	t.Setenv("CACHEGATE_CONTROL_ISSUER", "")
	t.Setenv("CACHEGATE_CONTROL_AUDIENCE", "")

	if _, err := LoadVerifierFromEnv(); err == nil {
		t.Fatal("expected error without issuer")
	}

	t.Setenv("CACHEGATE_CONTROL_ISSUER", "cachegate-tests")
	if _, err := LoadVerifierFromEnv(); err == nil {
		t.Fatal("expected error without audience")
	}
}

func TestLoadVerifierFromEnvRejectsShortKey(t *testing.T) {
	t.Setenv("CACHEGATE_CONTROL_ISSUER", "cachegate-tests")
	t.Setenv("CACHEGATE_CONTROL_AUDIENCE", "control")
	t.Setenv("CACHEGATE_CONTROL_PUBLIC_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

	if _, err := LoadVerifierFromEnv(); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestLoadVerifierFromEnvParsesKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("CACHEGATE_CONTROL_ISSUER", "cachegate-tests")
	t.Setenv("CACHEGATE_CONTROL_AUDIENCE", "control")
	t.Setenv("CACHEGATE_CONTROL_PUBLIC_KEY", base64.StdEncoding.EncodeToString(pub))

	verifier, err := LoadVerifierFromEnv()
	if err != nil {
		t.Fatalf("load verifier: %v", err)
	}
	if !verifier.Enabled() {
		t.Fatal("expected enabled verifier")
	}

	token := mintToken(t, priv, jwt.RegisteredClaims{
		Issuer:    "cachegate-tests",
		Audience:  jwt.ClaimStrings{"control"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err := verifier.Authorize("Bearer " + token); err != nil {
		t.Fatalf("authorize: %v", err)
	}
}

func newTestVerifier(t *testing.T) (Verifier, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Verifier{
		Issuer:   "cachegate-tests",
		Audience: "control",
		Key:      pub,
		Now:      time.Now,
	}, priv
}

func mintToken(t *testing.T, key ed25519.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("expected authorization failure")
	}
	if got := gateerrors.KindOf(err); got != gateerrors.KindUnauthorized {
		t.Fatalf("kind = %q, want %q", got, gateerrors.KindUnauthorized)
	}
}
