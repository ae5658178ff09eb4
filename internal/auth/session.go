// Package auth identifies the signed-in user from the session cookie. Login
// itself happens elsewhere; this package only reads and clears the session.
package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/config"
)

// SessionName is the cookie name of the app session.
const SessionName = "newscast_session"

// Sessions returns the session middleware backed by a signed cookie store.
func Sessions(cfg *config.Config) gin.HandlerFunc {
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	// The default has Secure=true which breaks localhost (plain HTTP).
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// HandleLogout clears the session
func HandleLogout(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		session.Clear()

		if err := session.Save(); err != nil {
			logger.Error("Session clear error", "error", err)
		}

		c.Status(http.StatusNoContent)
	}
}
