package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// CookieConfig controls how tokens are written to the browser.
type CookieConfig struct {
	// Secure marks cookies Secure with SameSite=None, for production
	// deployments served cross-site over TLS.
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c CookieConfig) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	}
}

func (c CookieConfig) setTokens(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, c.cookie(AccessCookieName, pair.AccessToken, c.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshCookieName, pair.RefreshToken, c.RefreshTTL))
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		cookie := c.cookie(name, "", 0)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}
