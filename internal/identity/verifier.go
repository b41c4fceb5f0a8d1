package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/diewo77/bloodboard/auth"
)

// Claims are the access token claims issued by both providers.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"typ,omitempty"`
}

const refreshTokenType = "refresh"

// JWTVerifier validates access tokens with a shared HS256 secret or a JWKS endpoint.
type JWTVerifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
}

func NewHS256Verifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// NewJWKSVerifier fetches the signing keys from jwksURL and keeps them refreshed.
func NewJWKSVerifier(ctx context.Context, jwksURL string) (*JWTVerifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client for %s: %w", jwksURL, err)
	}
	return &JWTVerifier{jwks: k}, nil
}

func (v *JWTVerifier) keyfunc(token *jwt.Token) (interface{}, error) {
	if v.jwks != nil {
		return v.jwks.Keyfunc(token)
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return v.secret, nil
}

// Parse validates token and returns its claims. Expired tokens yield auth.ErrTokenExpired.
func (v *JWTVerifier) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, v.keyfunc, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, auth.ErrTokenExpired
		}
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// Verify implements auth.Verifier. Refresh tokens are rejected.
func (v *JWTVerifier) Verify(_ context.Context, accessToken string) (*auth.Principal, error) {
	claims, err := v.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Type == refreshTokenType {
		return nil, errors.New("refresh token used as access token")
	}
	return &auth.Principal{UserID: claims.Subject, Email: claims.Email}, nil
}

var _ auth.Verifier = (*JWTVerifier)(nil)
