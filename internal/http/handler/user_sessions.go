package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/service"
)

type UserSessionsHandler struct {
	log *zap.Logger
	svc *service.AuthService
}

func NewUserSessionsHandler(log *zap.Logger, authsvc *service.AuthService) *UserSessionsHandler {
	return &UserSessionsHandler{log.Named("usr_sessions"), authsvc}
}

// Login authenticates a user and creates a new session.
//
// Status Codes:
//   - 200 OK
//   - 400 Bad Request            → malformed body
//   - 401 Unauthorized           → wrong email or password
//   - 403 Forbidden              → account not activated yet
//   - 500 Internal Server Error  → session store failure
func (h *UserSessionsHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bind(c.Request, &req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	p, err := h.svc.AuthenticateWithPassword(c, req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"message": "account pending approval"})
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
		return
	}

	s := sessions.Default(c)
	if err := h.svc.UserSession.SetUserSession(s, p.ID); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "could not create session"})
		return
	}

	c.JSON(http.StatusOK, p)
}

// Logout clears the current session.
func (h *UserSessionsHandler) Logout(c *gin.Context) {
	s := sessions.Default(c)
	if err := h.svc.UserSession.ClearUserSession(s); err != nil {
		c.Error(err)
	}
	c.Status(http.StatusNoContent)
}
