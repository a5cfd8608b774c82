package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"tasktracker/internal/auth"
	dom "tasktracker/internal/domain"
	"tasktracker/internal/dto"
	"tasktracker/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles login, register, logout and the current account.
type AuthHandler struct {
	sessions     *auth.Store
	userSvc      *service.UserService
	log          *slog.Logger
	secureCookie bool
}

// NewAuthHandler returns a new AuthHandler. secureCookie marks the
// session cookie HTTPS-only.
func NewAuthHandler(sessions *auth.Store, userSvc *service.UserService, log *slog.Logger, secureCookie bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, userSvc: userSvc, log: log, secureCookie: secureCookie}
}

// Login godoc
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.LoginRequest  true  "Credentials"
// @Success      200   {object}  dto.AuthResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.userSvc.ValidateCredentials(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		h.log.ErrorContext(c.Request.Context(), "login failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if !h.startSession(c, user) {
		return
	}
	c.JSON(http.StatusOK, dto.AuthResponse{OK: true, User: dto.UserToResponse(user)})
}

// Register godoc
// @Summary      Register
// @Description  New accounts always get the user role.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterRequest  true  "Account"
// @Success      201   {object}  dto.AuthResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.userSvc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		default:
			h.log.ErrorContext(c.Request.Context(), "registration failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}
	if !h.startSession(c, user) {
		return
	}
	c.JSON(http.StatusCreated, dto.AuthResponse{OK: true, User: dto.UserToResponse(user)})
}

// Logout godoc
// @Summary      Logout
// @Tags         auth
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID, err := c.Cookie(auth.SessionCookieName)
	if err == nil && sessionID != "" {
		if err := h.sessions.Delete(c.Request.Context(), sessionID); err != nil {
			h.log.WarnContext(c.Request.Context(), "session delete failed", "err", err)
		}
	}
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", h.secureCookie, true)
	c.Status(http.StatusNoContent)
}

// Me godoc
// @Summary      Current account
// @Tags         auth
// @Produce      json
// @Security     CookieAuth
// @Success      200  {object}  dto.UserResponse
// @Failure      401  {object}  map[string]string
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	user, err := h.userSvc.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUnknownActor) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.log.ErrorContext(c.Request.Context(), "load account failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	// Role comes from the session so the response matches what the
	// policy sees for this session.
	user.Role = actor.Role
	c.JSON(http.StatusOK, dto.UserToResponse(user))
}

func (h *AuthHandler) startSession(c *gin.Context, user dom.User) bool {
	sessionID, err := h.sessions.Create(c.Request.Context(), user.Actor())
	if err != nil {
		h.log.ErrorContext(c.Request.Context(), "create session failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return false
	}
	c.SetCookie(auth.SessionCookieName, sessionID, int(h.sessions.TTL().Seconds()), "/", "", h.secureCookie, true)
	return true
}
