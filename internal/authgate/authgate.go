// Package authgate is the boundary to the credential system. Credentials
// are issued elsewhere; this package only turns a presented token into a
// verified owner identity, or rejects it.
package authgate

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/pranjal030703/taskflow-pro/internal/models"
)

// Verifier resolves a credential token to an owner identity. Failures wrap
// models.ErrUnauthorized regardless of cause, so callers can treat missing,
// malformed and expired tokens uniformly.
type Verifier interface {
	Verify(ctx context.Context, token string) (owner string, err error)
}

// JWTVerifier validates HS256 tokens minted by the auth service. The owner
// identity lives in the user_id claim.
type JWTVerifier struct {
	secret []byte
	logger *logrus.Logger
}

func NewJWTVerifier(secret string, logger *logrus.Logger) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), logger: logger}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing credential", models.ErrUnauthorized)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		v.logger.WithFields(logrus.Fields{
			"component": "authgate",
		}).WithError(err).Debug("token rejected")
		return "", fmt.Errorf("%w: invalid or expired token", models.ErrUnauthorized)
	}

	owner := claimString(claims, "user_id")
	if owner == "" {
		return "", fmt.Errorf("%w: token carries no identity", models.ErrUnauthorized)
	}
	return owner, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		// Legacy tokens encode numeric user ids.
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// StaticVerifier maps fixed tokens to owners; test wiring only.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	if owner, ok := v[token]; ok {
		return owner, nil
	}
	return "", fmt.Errorf("%w: unknown token", models.ErrUnauthorized)
}
