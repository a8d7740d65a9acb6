package link

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zealess/doj-backend/internal/account"
)

// Handler exposes the link flow over HTTP. The start and callback
// routes are browser-facing and answer with redirects, never JSON; the
// sync route is a machine API for the bot.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/link/start", h.start)
	r.GET("/link/callback", h.callback)
	r.POST("/link/sync", h.sync)
}

// GET /link/start?token=JWT
func (h *Handler) start(c *gin.Context) {
	callerToken := c.Query("token")
	if callerToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing token",
		})
		return
	}

	authURL, err := h.service.Initiate(callerToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid token",
		})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// GET /link/callback?code=...&state=...
func (h *Handler) callback(c *gin.Context) {
	location := h.service.CompleteCallback(
		c.Request.Context(),
		c.Query("code"),
		c.Query("state"),
	)
	c.Redirect(http.StatusFound, location)
}

type syncRequest struct {
	SharedSecret    string   `json:"sharedSecret"`
	ExternalID      string   `json:"externalId"`
	DisplayName     *string  `json:"displayName"`
	Nickname        *string  `json:"nickname"`
	AvatarRef       *string  `json:"avatarRef"`
	RoleIdentifiers []string `json:"roleIdentifiers"`
}

// POST /link/sync
func (h *Handler) sync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.ExternalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing externalId"})
		return
	}

	acc, err := h.service.Sync(
		c.Request.Context(),
		req.SharedSecret,
		req.ExternalID,
		SyncAttributes{
			DisplayName: req.DisplayName,
			Nickname:    req.Nickname,
			AvatarRef:   req.AvatarRef,
			RoleIDs:     req.RoleIdentifiers,
		},
	)

	switch {
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no account linked to this id"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"user": acc.Safe()})
	}
}
