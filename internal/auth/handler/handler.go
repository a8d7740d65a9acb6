package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zealess/doj-backend/internal/account"
	"github.com/zealess/doj-backend/internal/auth/credentials"
	"github.com/zealess/doj-backend/internal/middleware"
	"github.com/zealess/doj-backend/internal/token"
)

type Handler struct {
	credentialService *credentials.Service
	accounts          account.Store
	codec             *token.Codec
	sessionTTL        time.Duration
	editGrades        []string
}

func NewHandler(
	credentialService *credentials.Service,
	accounts account.Store,
	codec *token.Codec,
	sessionTTL time.Duration,
	editGrades []string,
) *Handler {
	return &Handler{
		credentialService: credentialService,
		accounts:          accounts,
		codec:             codec,
		sessionTTL:        sessionTTL,
		editGrades:        editGrades,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, requireAuth gin.HandlerFunc) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	authed := r.Group("/")
	authed.Use(requireAuth)
	authed.GET("/auth/me", h.Me)
	authed.PUT("/profile", h.UpdateProfile)
}

// currentAccount loads the account behind the verified bearer token.
func (h *Handler) currentAccount(c *gin.Context) (*account.Account, bool) {
	subject, ok := middleware.SubjectFromContext(c.Request.Context())
	if !ok {
		return nil, false
	}
	acc, err := h.accounts.GetByID(c.Request.Context(), subject)
	if err != nil {
		return nil, false
	}
	return acc, true
}
