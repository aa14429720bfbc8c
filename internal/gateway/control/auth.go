package control

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	gateerrors "github.com/louisbranch/cachegate/internal/gateway/errors"
)

// verifierEnv holds raw env values before post-parse validation.
type verifierEnv struct {
	Issuer    string `env:"CACHEGATE_CONTROL_ISSUER"`
	Audience  string `env:"CACHEGATE_CONTROL_AUDIENCE"`
	PublicKey string `env:"CACHEGATE_CONTROL_PUBLIC_KEY"`
}

// Verifier checks bearer tokens on the control channel. The zero value
// is disabled and authorizes everything.
type Verifier struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// controlClaims is the internal claims type used for JWT parsing.
type controlClaims struct {
	jwt.RegisteredClaims
}

// Enabled reports whether tokens are required.
func (v Verifier) Enabled() bool {
	return len(v.Key) == ed25519.PublicKeySize
}

// LoadVerifierFromEnv reads control channel auth configuration. An
// unset public key leaves the channel open.
func LoadVerifierFromEnv() (Verifier, error) {
	var raw verifierEnv
	if err := env.Parse(&raw); err != nil {
		return Verifier{}, fmt.Errorf("parse control auth env: %w", err)
	}
	publicKey := strings.TrimSpace(raw.PublicKey)
	if publicKey == "" {
		return Verifier{}, nil
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	if issuer == "" {
		return Verifier{}, fmt.Errorf("CACHEGATE_CONTROL_ISSUER is required")
	}
	if audience == "" {
		return Verifier{}, fmt.Errorf("CACHEGATE_CONTROL_AUDIENCE is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Verifier{}, fmt.Errorf("decode control public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Verifier{}, fmt.Errorf("control public key must be %d bytes", ed25519.PublicKeySize)
	}
	return Verifier{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      time.Now,
	}, nil
}

// Authorize validates the Authorization header value against the
// verifier. Disabled verifiers authorize everything.
func (v Verifier) Authorize(header string) error {
	if !v.Enabled() {
		return nil
	}
	if v.Now == nil {
		v.Now = time.Now
	}

	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Bearer ") {
		return gateerrors.E(gateerrors.KindUnauthorized, "bearer token is required")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return gateerrors.E(gateerrors.KindUnauthorized, "bearer token is required")
	}

	var parsed controlClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != v.Issuer {
		return gateerrors.E(gateerrors.KindUnauthorized, "token issuer mismatch")
	}
	if !audienceContains(parsed.Audience, v.Audience) {
		return gateerrors.E(gateerrors.KindUnauthorized, "token audience mismatch")
	}
	if parsed.ExpiresAt == nil {
		return gateerrors.E(gateerrors.KindUnauthorized, "token exp is required")
	}

	now := v.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return gateerrors.E(gateerrors.KindUnauthorized, "token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return gateerrors.E(gateerrors.KindUnauthorized, "token not active yet")
	}
	return nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return gateerrors.E(gateerrors.KindUnauthorized, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return gateerrors.E(gateerrors.KindUnauthorized, "token alg is invalid")
	}
	return gateerrors.E(gateerrors.KindUnauthorized, "token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
