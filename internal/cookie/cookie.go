// Package cookie provides helpers for the anonymous cart cookie.
package cookie

import (
	"net/http"
	"time"
)

// CartCookieName stores the guest cart token for anonymous shoppers.
const CartCookieName = "licensa_cart"

// Config holds cookie configuration.
type Config struct {
	// Domain scopes the cookie. Empty means host-only.
	Domain string

	// Secure determines whether cookies require HTTPS.
	// Should be true in production, false in development.
	Secure bool

	// CartTTL is how long a guest cart cookie lives.
	CartTTL time.Duration
}

// NewConfig creates a new cookie configuration.
//
// Example:
//
//	cfg := cookie.NewConfig("", true, 30*24*time.Hour)  // production
//	cfg := cookie.NewConfig("", false, time.Hour)       // development
func NewConfig(domain string, secure bool, cartTTL time.Duration) *Config {
	return &Config{
		Domain:  domain,
		Secure:  secure,
		CartTTL: cartTTL,
	}
}

// SetCart sets the guest cart cookie. The cookie is HttpOnly and SameSite=Lax
// so it survives the redirect back from the payment provider.
func (c *Config) SetCart(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookieName,
		Value:    token,
		Domain:   c.Domain,
		Path:     "/",
		MaxAge:   int(c.CartTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCart removes the guest cart cookie, typically after a merge.
// Domain and Path must match the original cookie.
func (c *Config) ClearCart(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CartCookieName,
		Value:    "",
		Domain:   c.Domain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get retrieves a cookie value from the request.
// Returns empty string if cookie not found.
func Get(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
