package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
)

// UserSessionConfig controls the session store and cookie.
type UserSessionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Secret        string // cookie signing key
	MaxAge        int    // seconds
	Secure        bool   // cookie only over https
}

// UserSessionService manages viewer sessions. The store slides the cookie
// expiry on every save; the issue time caps a session's total lifetime.
type UserSessionService struct {
	store         sessions.Store
	cookieOptions sessions.Options
	lifetime      time.Duration
	now           func() time.Time
}

const (
	sessionKeyUserID   = "uid"
	sessionKeyIssuedAt = "iat" // unix seconds
)

// NewUserSessionService creates a Redis-backed session store.
func NewUserSessionService(cfg UserSessionConfig) (*UserSessionService, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	store, err := redis.NewStoreWithDB(10, "tcp", cfg.RedisAddr, cfg.RedisPassword,
		fmt.Sprint(cfg.RedisDB), []byte(cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}
	return newUserSessionService(store, cfg), nil
}

// NewCookieUserSessionService keeps sessions in signed cookies only.
// Used by tests and single-node setups without a session Redis.
func NewCookieUserSessionService(cfg UserSessionConfig) *UserSessionService {
	return newUserSessionService(cookie.NewStore([]byte(cfg.Secret)), cfg)
}

func newUserSessionService(store sessions.Store, cfg UserSessionConfig) *UserSessionService {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 8 * 3600
	}
	cookieOptions := sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	store.Options(cookieOptions)
	return &UserSessionService{
		store:         store,
		cookieOptions: cookieOptions,
		lifetime:      time.Duration(maxAge) * time.Second,
		now:           time.Now,
	}
}

// Middleware attaches session handling.
func (s *UserSessionService) Middleware() gin.HandlerFunc {
	return sessions.Sessions("sid" /* Cookie name */, s.store)
}

// SetUserSession starts a fresh session for uid. Values left from an earlier
// login are dropped.
func (s *UserSessionService) SetUserSession(session sessions.Session, uid string) error {
	session.Clear()
	session.Set(sessionKeyUserID, uid)
	session.Set(sessionKeyIssuedAt, s.now().Unix())

	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ClearUserSession clears all session data and expires the cookie.
func (s *UserSessionService) ClearUserSession(session sessions.Session) error {
	session.Clear()

	opts := s.cookieOptions
	opts.MaxAge = -1
	session.Options(opts)

	if err := session.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetUserID returns the user ID from the given session. It reports false
// when no user is set or the session outlived its lifetime.
func (s *UserSessionService) GetUserID(session sessions.Session) (string, bool) {
	uid, ok := session.Get(sessionKeyUserID).(string)
	if !ok || uid == "" {
		return "", false
	}
	iat, ok := session.Get(sessionKeyIssuedAt).(int64)
	if !ok || s.now().Sub(time.Unix(iat, 0)) > s.lifetime {
		return "", false
	}
	return uid, true
}
