package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"chatview-server/internal/types"
)

// =============================================================================
// Cookie Helpers
// =============================================================================

const (
	prefsCookieName = "chatview_prefs"
	prefsMaxAge     = 365 * 24 * 60 * 60
)

// SetCookie sets an HTTP cookie with standard security defaults.
// Uses the request to determine if the Secure flag should be set.
func SetCookie(w http.ResponseWriter, r *http.Request, name, value, path string, maxAge int, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   shouldSecureCookie(r),
		SameSite: sameSite,
	})
}

// SetLaxCookie sets a cookie with lax security (allows cross-site top-level navigation).
// Suitable for preferences.
func SetLaxCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	SetCookie(w, r, name, value, "/", maxAge, http.SameSiteLaxMode)
}

func shouldSecureCookie(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// prefsFromRequest reads display preferences from the prefs cookie. A missing
// or unreadable cookie yields the defaults.
func prefsFromRequest(r *http.Request) types.Preferences {
	prefs := types.DefaultPreferences()
	c, err := r.Cookie(prefsCookieName)
	if err != nil {
		return prefs
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return prefs
	}
	var stored types.Preferences
	if err := json.Unmarshal(raw, &stored); err != nil {
		return prefs
	}
	if stored.Timezone != "" {
		if _, err := time.LoadLocation(stored.Timezone); err != nil {
			stored.Timezone = ""
		}
	}
	return stored
}

func setPrefsCookie(w http.ResponseWriter, r *http.Request, prefs types.Preferences) {
	raw, _ := json.Marshal(prefs)
	SetLaxCookie(w, r, prefsCookieName, base64.RawURLEncoding.EncodeToString(raw), prefsMaxAge)
}
