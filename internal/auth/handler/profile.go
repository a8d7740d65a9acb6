package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zealess/doj-backend/internal/account"
	"github.com/zealess/doj-backend/internal/grade"
)

// UpdateProfile applies a structural patch to the caller's own account.
// Only callers whose resolved grade sits in the configured allow-list
// may write; everyone else gets a 403 with nothing persisted.
func (h *Handler) UpdateProfile(c *gin.Context) {
	acc, ok := h.currentAccount(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	if !grade.Allowed(acc.Grade(), h.editGrades) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient grade"})
		return
	}

	var patch account.StructuralPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	patch.Apply(acc)

	if err := h.accounts.Update(c.Request.Context(), acc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": acc.Safe()})
}
