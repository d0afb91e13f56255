package handler

import (
	"net/http"

	"rando/backend/internal/api/middleware"
	"rando/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

type joinBody struct {
	Mood        string `json:"mood"`
	DisplayName string `json:"display_name" binding:"max=64"`
}

func (h *Handler) joinRequest(c *gin.Context) (chathub.JoinRequest, error) {
	var body joinBody
	if err := bindOptional(c, &body); err != nil {
		return chathub.JoinRequest{}, err
	}
	return chathub.JoinRequest{
		UserID:      middleware.UserID(c),
		DisplayName: body.DisplayName,
		Mood:        body.Mood,
		IsGuest:     middleware.IsGuest(c),
	}, nil
}

// JoinQueue puts the caller in the queue and returns the entry. Joining again
// only refreshes the entry.
func (h *Handler) JoinQueue(c *gin.Context) {
	req, err := h.joinRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	entry, err := h.Matcher.Join(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) LeaveQueue(c *gin.Context) {
	left, err := h.Matcher.Leave(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": left})
}

// PollQueue makes one pairing attempt.
func (h *Handler) PollQueue(c *gin.Context) {
	sess, err := h.Matcher.TryMatch(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": sess != nil, "session": sess})
}

func (h *Handler) QueueStatus(c *gin.Context) {
	st, err := h.Matcher.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Search joins and holds the request until a partner is found or the search
// times out (408).
func (h *Handler) Search(c *gin.Context) {
	req, err := h.joinRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	sess, err := h.Matcher.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
