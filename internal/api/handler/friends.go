package handler

import (
	"net/http"

	"rando/backend/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

type friendRequestBody struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) ListFriends(c *gin.Context) {
	list, err := h.Friends.FriendsOf(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": list})
}

// PendingRequests lists requests waiting for the caller's answer.
func (h *Handler) PendingRequests(c *gin.Context) {
	list, err := h.Friends.PendingFor(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

func (h *Handler) SendFriendRequest(c *gin.Context) {
	var body friendRequestBody
	if err := bind(c, &body); err != nil {
		respondError(c, err)
		return
	}
	req, err := h.Friends.SendRequest(c.Request.Context(), middleware.UserID(c), body.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	req, err := h.Friends.Accept(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) RejectFriendRequest(c *gin.Context) {
	if err := h.Friends.Reject(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Unfriend(c *gin.Context) {
	if err := h.Friends.Unfriend(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
