package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edirooss/firewatch-server/internal/domain/principal"
	"github.com/edirooss/firewatch-server/internal/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is not activated")
)

type contextKey string

const principalKey contextKey = "auth.principal"

// compared against when the account does not exist, so both paths cost one bcrypt
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("firewatch-dummy-password"), bcrypt.DefaultCost)

// AuthService handles authentication logic.
type AuthService struct {
	log         *zap.Logger
	UserSession *UserSessionService
	repo        *repo.Repository
}

// NewAuthService creates a new AuthService.
func NewAuthService(log *zap.Logger, repo *repo.Repository, usersess *UserSessionService) *AuthService {
	return &AuthService{log: log.Named("auth"), UserSession: usersess, repo: repo}
}

// HashPassword returns the bcrypt hash stored on accounts.
func HashPassword(password string) ([]byte, error) {
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// AuthenticateWithPassword authenticates using email and password.
// On success, it sets and returns the Principal.
func (s *AuthService) AuthenticateWithPassword(c *gin.Context, email, password string) (*principal.Principal, error) {
	u, err := s.repo.Users.GetByEmail(c.Request.Context(), strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			s.log.Warn("user lookup failed", zap.Error(err))
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrAccountInactive
	}

	p := &principal.Principal{ID: u.ID, Role: u.Role, Credential: principal.Login}
	s.setPrincipal(c, p)
	return p, nil
}

// AuthenticateWithSession reads the session cookie and reloads the account,
// so deactivated users lose access on their next request.
func (s *AuthService) AuthenticateWithSession(c *gin.Context) (*principal.Principal, bool) {
	session := sessions.Default(c)
	uid, ok := s.UserSession.GetUserID(session)
	if !ok {
		return nil, false
	}

	p, err := s.loadActive(c.Request.Context(), uid)
	if err != nil {
		s.log.Debug("session rejected", zap.String("uid", uid), zap.Error(err))
		return nil, false
	}
	p.Credential = principal.Session
	s.setPrincipal(c, p)
	return p, true
}

// AuthenticateWithBearerToken looks up the principal mapped to token.
func (s *AuthService) AuthenticateWithBearerToken(c *gin.Context, token string) (*principal.Principal, bool) {
	p, err := s.repo.Principals.GetByToken(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, repo.ErrPrincipalNotFound) {
			s.log.Warn("bearer lookup failed", zap.Error(err))
		}
		return nil, false
	}
	p.Credential = principal.Bearer
	s.setPrincipal(c, p)
	return p, true
}

func (s *AuthService) loadActive(ctx context.Context, uid string) (*principal.Principal, error) {
	u, err := s.repo.Users.GetByEmail(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return nil, ErrAccountInactive
	}
	return &principal.Principal{ID: u.ID, Role: u.Role}, nil
}

// WhoAmI returns the authenticated Principal from the Gin context.
// Returns nil if no principal is set.
func (s *AuthService) WhoAmI(c *gin.Context) *principal.Principal {
	if v, ok := c.Get(string(principalKey)); ok {
		if p, ok := v.(*principal.Principal); ok {
			return p
		}
	}
	return nil
}

// setPrincipal attaches the Principal to the Gin context (private).
func (s *AuthService) setPrincipal(c *gin.Context, p *principal.Principal) {
	c.Set(string(principalKey), p)
}
