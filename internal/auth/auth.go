// Package auth verifies the bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/HammerMeetNail/levelup/internal/config"
	"github.com/HammerMeetNail/levelup/internal/logging"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const devJWTSecret = "levelup-dev-secret"

// Principal is the identity a verified token carries.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// NewVerifier builds the verifier selected by AUTH_PROVIDER.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Provider {
	case "jwt", "":
		secret := cfg.JWTSecret
		if secret == "" {
			logging.Warn("AUTH_JWT_SECRET not set; using the development secret", nil)
			secret = devJWTSecret
		}
		return NewJWTVerifier(secret, cfg.JWTIssuer), nil
	case "firebase":
		return NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsPath)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}
