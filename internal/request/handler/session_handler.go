package handler

import (
	"errors"

	"github.com/JiaqinWu/CGHPI-Request-System/internal/auth"
	"github.com/JiaqinWu/CGHPI-Request-System/internal/middleware"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	svc *auth.Service
}

func NewSessionHandler(svc *auth.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type selectRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SelectRole starts a fresh session in the chosen role. Any session sent
// with the call is ended.
// POST /api/v1/session/role
func (h *SessionHandler) SelectRole(c *gin.Context) {
	var req selectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "role is required")
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	tok, err := h.svc.SelectRole(c.Request.Context(), middleware.GetClaims(c), role)
	if err != nil {
		InternalError(c, "start session: "+err.Error())
		return
	}
	Success(c, tok)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a coordinator.
// POST /api/v1/session/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "email and password are required")
		return
	}
	tok, err := h.svc.Login(c.Request.Context(), middleware.GetClaims(c), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			Unauthorized(c, "Invalid credentials or role mismatch.")
			return
		}
		InternalError(c, "login: "+err.Error())
		return
	}
	Success(c, tok)
}

// Logout ends the current session.
// POST /api/v1/session/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.GetClaims(c)); err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, nil)
}

// Current returns the session of the caller.
// GET /api/v1/session
func (h *SessionHandler) Current(c *gin.Context) {
	s, _ := middleware.GetSession(c)
	Success(c, s)
}
