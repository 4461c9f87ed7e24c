// Package session derives the cart session and the shopper's identity from an
// incoming request.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"

	"cartsync/internal/model"
)

// Header and cookie names.
const (
	SessionHeader  = "Cart-Session"
	SessionCookie  = "cart_session"
	IdentityHeader = "Buyer-Identity"
)

// Provider resolves the shopper's session from a request. A request carrying
// no credentials yields an anonymous session, not an error.
type Provider interface {
	Resolve(r *http.Request) (model.Session, error)
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ValidID reports whether id is usable as a cart session id.
func ValidID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ID returns the cart session id for the request: the Cart-Session header,
// else the cart_session cookie. When neither is present (or the value is not
// a safe id) a new id is minted and set as a cookie.
func ID(w http.ResponseWriter, r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); sessionIDPattern.MatchString(id) {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && sessionIDPattern.MatchString(c.Value) {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60 * 60 * 24 * 30,
	})
	return id
}

// === Buyer-Identity header ===

// HeaderProvider trusts a Buyer-Identity header set by the storefront's own
// backend. Deploy it only behind a gateway that strips the header from
// shopper traffic.
type HeaderProvider struct{}

// Resolve implements Provider. A malformed header is a validation error.
func (HeaderProvider) Resolve(r *http.Request) (model.Session, error) {
	s, err := ParseIdentityHeader(r.Header.Get(IdentityHeader))
	if err != nil {
		return model.Session{}, model.NewValidationError(IdentityHeader, err.Error())
	}
	return s, nil
}

// ParseIdentityHeader parses a Buyer-Identity header (RFC 8941 Dictionary).
//
// Format: key="cus_42", email="ada@shop.io", phone="+14155550100", authenticated=?1
//
// Every member is optional. An empty header is an anonymous session.
func ParseIdentityHeader(header string) (model.Session, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return model.Session{}, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return model.Session{}, fmt.Errorf("invalid Buyer-Identity header: %w", err)
	}

	var s model.Session
	if s.CustomerKey, err = stringMember(dict, "key"); err != nil {
		return model.Session{}, err
	}
	if s.Identity.Email, err = stringMember(dict, "email"); err != nil {
		return model.Session{}, err
	}
	if s.Identity.Phone, err = stringMember(dict, "phone"); err != nil {
		return model.Session{}, err
	}

	if member, ok := dict.Get("authenticated"); ok {
		item, ok := member.(httpsfv.Item)
		if !ok {
			return model.Session{}, errors.New("authenticated value must be an item")
		}
		b, ok := item.Value.(bool)
		if !ok {
			return model.Session{}, errors.New("authenticated value must be a boolean")
		}
		s.Authenticated = b
	}
	return s, nil
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	switch v := item.Value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

// FormatIdentityHeader renders s as a Buyer-Identity header value.
func FormatIdentityHeader(s model.Session) (string, error) {
	dict := httpsfv.NewDictionary()
	if s.CustomerKey != "" {
		dict.Add("key", httpsfv.NewItem(s.CustomerKey))
	}
	if s.Identity.Email != "" {
		dict.Add("email", httpsfv.NewItem(s.Identity.Email))
	}
	if s.Identity.Phone != "" {
		dict.Add("phone", httpsfv.NewItem(s.Identity.Phone))
	}
	if s.Authenticated {
		dict.Add("authenticated", httpsfv.NewItem(true))
	}
	return httpsfv.Marshal(dict)
}
