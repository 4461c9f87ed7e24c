package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cartsync/internal/model"
)

// Claims is the shopper token a storefront backend signs for cartd.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// JWTProvider authenticates shoppers by an HS256 token signed with a secret
// shared with the storefront backend. The subject becomes the customer key.
type JWTProvider struct {
	secret []byte
	issuer string
}

// NewJWTProvider creates a provider. An empty issuer accepts any issuer.
func NewJWTProvider(secret, issuer string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), issuer: issuer}
}

// Resolve implements Provider. No bearer token is an anonymous session.
func (p *JWTProvider) Resolve(r *http.Request) (model.Session, error) {
	raw, err := bearerToken(r)
	if err != nil || raw == "" {
		return model.Session{}, err
	}

	claims, err := p.Validate(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Session{}, model.NewUnauthorizedError("token has expired")
		}
		return model.Session{}, model.NewUnauthorizedError("invalid token")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return model.Session{}, model.NewUnauthorizedError("missing subject in token")
	}

	return model.Session{
		Authenticated: true,
		CustomerKey:   sub,
		Identity: model.BuyerIdentity{
			Email: strings.TrimSpace(claims.Email),
			Phone: strings.TrimSpace(claims.Phone),
		},
	}, nil
}

// Validate parses and verifies a token.
func (p *JWTProvider) Validate(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Sign issues a token for s valid for ttl. Used by tooling and tests; the
// storefront backend normally signs its own.
func (p *JWTProvider) Sign(s model.Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   s.CustomerKey,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: s.Identity.Email,
		Phone: s.Identity.Phone,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
