package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Brownie44l1/leafscan-api/internal/lazy"
)

const (
	// DefaultJWKSURL serves the public keys Firebase signs ID tokens with.
	DefaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	issuerPrefix   = "https://securetoken.google.com/"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type Config struct {
	ProjectID string
	JWKSURL   string
	// EnableVerification false parses tokens without checking signature,
	// issuer or expiry. Development only.
	EnableVerification bool
}

// FirebaseVerifier validates RS256 Firebase ID tokens against Google's JWKS.
// The key set is fetched on first use and refreshed in the background.
type FirebaseVerifier struct {
	cfg  Config
	jwks *lazy.Handle[keyfunc.Keyfunc]

	stopOnce sync.Once
	stop     context.CancelFunc
}

var _ Verifier = (*FirebaseVerifier)(nil)

func NewFirebaseVerifier(cfg Config) (*FirebaseVerifier, error) {
	if cfg.EnableVerification && cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required when verification is enabled")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	v := &FirebaseVerifier{cfg: cfg, stop: stop}
	v.jwks = lazy.New(func(context.Context) (keyfunc.Keyfunc, error) {
		k, err := keyfunc.NewDefaultCtx(refreshCtx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client: %w", err)
		}
		return k, nil
	})
	return v, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims *Claims
	var err error
	if v.cfg.EnableVerification {
		claims, err = v.verify(ctx, token)
	} else {
		claims, err = parseUnverified(token)
	}
	if err != nil {
		return Identity{}, err
	}

	id := claims.identity()
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return id, nil
}

func (v *FirebaseVerifier) verify(ctx context.Context, token string) (*Claims, error) {
	jwks, err := v.jwks.Get(ctx)
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuerPrefix+v.cfg.ProjectID),
		jwt.WithAudience(v.cfg.ProjectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrInvalidToken)
	}
	return claims, nil
}

func parseUnverified(token string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrInvalidToken)
	}
	return claims, nil
}

// Close stops the background key refresh.
func (v *FirebaseVerifier) Close() {
	v.stopOnce.Do(v.stop)
}
