package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zealess/doj-backend/internal/token"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	acc, err := h.credentialService.Authenticate(
		c.Request.Context(),
		req.Identifier,
		req.Password,
	)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	bearer, err := h.codec.Issue(acc.ID, acc.Role, token.PurposeSession, h.sessionTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "logged_in",
		"token":  bearer,
		"user":   acc.Safe(),
	})
}
