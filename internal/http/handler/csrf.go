package handler

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	mw "github.com/edirooss/firewatch-server/internal/http/middleware"
)

// IssueSessionCSRF issues a CSRF token for the current session.
//
//   - Creates one if missing and stores it in the session.
//   - Returns the token in JSON with cache disabled.
func IssueSessionCSRF(c *gin.Context) {
	sess := sessions.Default(c)
	token, _ := sess.Get(mw.CSRFSessionKey).(string)
	if token == "" {
		var err error
		if token, err = randomTokenHex(32); err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not issue token"})
			return
		}
		sess.Set(mw.CSRFSessionKey, token)
		if err := sess.Save(); err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "could not issue token"})
			return
		}
	}

	// Avoid cache serving stale tokens
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.JSON(http.StatusOK, gin.H{"csrf": token})
}

func randomTokenHex(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
