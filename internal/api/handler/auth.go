package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetAnonID створює гостя з псевдонімом та повертає JWT.
// ?name= picks the display name instead of a generated alias.
func (h *Handler) GetAnonID(c *gin.Context) {
	anonID := uuid.NewString()

	user, err := h.Matcher.EnsureUser(c.Request.Context(), anonID, c.Query("name"), true)
	if err != nil {
		respondError(c, err)
		return
	}

	token, exp, err := h.Tokens.Issue(user.ID, true)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":        token,
		"anon_id":      user.ID,
		"display_name": user.DisplayName,
		"expires_at":   exp,
	})
}
