package model

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches tag parsing.
var validate = validator.New()

// placeholderDomains are domains storefront tooling uses for throwaway
// addresses; a buyer identity carrying one must not claim a cart.
var placeholderDomains = []string{
	"example.com",
	"example.org",
	"example.net",
	"test.com",
	"placeholder.invalid",
}

var placeholderLocalParts = []string{"noreply", "no-reply", "placeholder"}

// BuyerIdentity is the contact identity attached to a remote cart.
type BuyerIdentity struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// CanonicalEmail returns the lowercased, trimmed email if it is valid, else "".
func (b BuyerIdentity) CanonicalEmail() string {
	email := strings.ToLower(strings.TrimSpace(b.Email))
	if email == "" || validate.Var(email, "email") != nil {
		return ""
	}
	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]
	for _, d := range placeholderDomains {
		if domain == d {
			return ""
		}
	}
	for _, p := range placeholderLocalParts {
		if local == p {
			return ""
		}
	}
	return email
}

// CanonicalPhone returns the phone in E.164 form if it can be normalized, else "".
// Spaces, dashes, dots and parentheses are stripped; a leading "00" becomes "+".
func (b BuyerIdentity) CanonicalPhone() string {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')', '\t':
			return -1
		}
		return r
	}, b.Phone)
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	if phone == "" || validate.Var(phone, "e164") != nil {
		return ""
	}
	return phone
}

// Canonical returns the identity with only valid fields, normalized.
func (b BuyerIdentity) Canonical() BuyerIdentity {
	return BuyerIdentity{Email: b.CanonicalEmail(), Phone: b.CanonicalPhone()}
}

// IsValid reports whether at least one field is usable.
func (b BuyerIdentity) IsValid() bool {
	c := b.Canonical()
	return c.Email != "" || c.Phone != ""
}

// Matches reports whether a remote cart's identity already reflects every
// valid field of b. Fields invalid in b are ignored.
func (b BuyerIdentity) Matches(remote BuyerIdentity) bool {
	want := b.Canonical()
	have := BuyerIdentity{
		Email: strings.ToLower(strings.TrimSpace(remote.Email)),
		Phone: remote.CanonicalPhone(),
	}
	if want.Email != "" && want.Email != have.Email {
		return false
	}
	if want.Phone != "" && want.Phone != have.Phone {
		return false
	}
	return true
}

// Session is the identity context produced once at the request boundary and
// passed explicitly to the engine.
type Session struct {
	Authenticated bool          `json:"authenticated"`
	CustomerKey   string        `json:"customer_key,omitempty"`
	Identity      BuyerIdentity `json:"identity"`
}

// PointerKey is the key under which the session's cart pointer is stored.
// Empty for anonymous sessions, which never touch the pointer store.
func (s Session) PointerKey() string {
	if !s.Authenticated {
		return ""
	}
	if key := strings.TrimSpace(s.CustomerKey); key != "" {
		return key
	}
	c := s.Identity.Canonical()
	if c.Email != "" {
		return "email:" + c.Email
	}
	if c.Phone != "" {
		return "phone:" + c.Phone
	}
	return ""
}
