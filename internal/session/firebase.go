package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"

	"cartsync/internal/model"
)

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseProvider authenticates shoppers by their Firebase ID token
// (Authorization: Bearer <token>). The Firebase uid becomes the customer key;
// the email and phone_number claims become the buyer identity.
type FirebaseProvider struct {
	verifier TokenVerifier
}

// NewFirebaseProvider wraps verifier.
func NewFirebaseProvider(verifier TokenVerifier) *FirebaseProvider {
	return &FirebaseProvider{verifier: verifier}
}

// NewFirebaseVerifier initializes the Firebase Auth client for projectID
// using application default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID string) (*auth.Client, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase auth: %w", err)
	}
	return client, nil
}

// Resolve implements Provider. No bearer token is an anonymous session; an
// invalid one is an error.
func (p *FirebaseProvider) Resolve(r *http.Request) (model.Session, error) {
	idToken, err := bearerToken(r)
	if err != nil || idToken == "" {
		return model.Session{}, err
	}

	token, err := p.verifier.VerifyIDToken(r.Context(), idToken)
	if err != nil {
		return model.Session{}, model.NewUnauthorizedError("invalid ID token")
	}
	uid := strings.TrimSpace(token.UID)
	if uid == "" {
		return model.Session{}, model.NewUnauthorizedError("invalid uid in token")
	}

	return model.Session{
		Authenticated: true,
		CustomerKey:   "firebase:" + uid,
		Identity: model.BuyerIdentity{
			Email: stringClaim(token.Claims, "email"),
			Phone: stringClaim(token.Claims, "phone_number"),
		},
	}, nil
}

func stringClaim(claims map[string]any, name string) string {
	if raw, ok := claims[name]; ok {
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// bearerToken returns the Authorization bearer token, or "" when the header
// is absent.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", model.NewUnauthorizedError("expected bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", model.NewUnauthorizedError("empty bearer token")
	}
	return token, nil
}
