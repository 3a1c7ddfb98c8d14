package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"hugchat/internal/auth"
	"hugchat/internal/httputil"
)

// SessionCookieName is the anonymous session cookie.
const SessionCookieName = "hc_session"

const sessionCookieMaxAge = 30 * 24 * time.Hour

// Identity resolves the caller's identity and stores it in the request
// context. A valid bearer token yields a user id; otherwise the caller is
// anonymous and identified by a session cookie, minted on first contact.
// Requests never fail here: endpoints that require a login enforce it
// themselves.
func Identity(verifier auth.JWTVerifier, secureCookies bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""
			if token := bearerToken(r); token != "" && verifier != nil {
				claims, err := verifier.VerifyToken(token)
				if err != nil {
					logger.Debug("rejected bearer token", "path", r.URL.Path, "error", err)
				} else {
					userID = claims.Subject
				}
			}

			sessionID := sessionFromCookie(r)
			if sessionID == "" {
				sessionID = shortuuid.New()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(sessionCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, httputil.WithIdentity(r, userID, sessionID))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func sessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}
