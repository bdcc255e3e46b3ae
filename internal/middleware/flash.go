package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// FlashCookieName holds a one-shot notification across a redirect.
const FlashCookieName = "flash"

// Flash kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a notification shown once on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SetFlash stores a notification for the next page.
func SetFlash(w http.ResponseWriter, kind, message string) {
	raw, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   60,
	})
}

// PopFlash returns the pending notification, if any, and clears it.
func PopFlash(w http.ResponseWriter, r *http.Request) (Flash, bool) {
	c, err := r.Cookie(FlashCookieName)
	if err != nil || c.Value == "" {
		return Flash{}, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return Flash{}, false
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil || f.Message == "" {
		return Flash{}, false
	}
	return f, true
}
