package handler

import (
	"net/http"

	"rando/backend/internal/api/middleware"
	"rando/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

type messageBody struct {
	Content string `json:"content" binding:"required"`
}

type reportBody struct {
	Reason   string `json:"reason" binding:"required"`
	Category string `json:"category"`
	Evidence string `json:"evidence"`
}

type rateBody struct {
	Stars int `json:"stars" binding:"required"`
}

type directBody struct {
	FriendID string `json:"friend_id" binding:"required"`
}

// ListSessions returns the caller's recent sessions, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	list, err := h.Sessions.History(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Sessions.Get(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) SessionSummary(c *gin.Context) {
	sum, err := h.Sessions.Summary(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.Sessions.End(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListMessages(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	msgs, err := h.Sessions.Messages(c.Request.Context(), c.Param("id"), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var body messageBody
	if err := bind(c, &body); err != nil {
		respondError(c, err)
		return
	}
	msg, err := h.Sessions.SendMessage(c.Request.Context(), c.Param("id"), middleware.UserID(c), body.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ReportPartner(c *gin.Context) {
	var body reportBody
	if err := bind(c, &body); err != nil {
		respondError(c, err)
		return
	}
	r, err := h.Sessions.Report(c.Request.Context(), c.Param("id"), middleware.UserID(c), chathub.ReportInput{
		Reason:   body.Reason,
		Category: body.Category,
		Evidence: body.Evidence,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": r.ID, "status": r.Status, "priority": r.Priority})
}

func (h *Handler) BlockPartner(c *gin.Context) {
	sess, err := h.Sessions.Block(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) RateSession(c *gin.Context) {
	var body rateBody
	if err := bind(c, &body); err != nil {
		respondError(c, err)
		return
	}
	if err := h.Sessions.Rate(c.Request.Context(), c.Param("id"), middleware.UserID(c), body.Stars); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartDirectChat opens a session with a friend, bypassing the queue.
func (h *Handler) StartDirectChat(c *gin.Context) {
	var body directBody
	if err := bind(c, &body); err != nil {
		respondError(c, err)
		return
	}
	sess, err := h.Sessions.StartDirectChat(c.Request.Context(), middleware.UserID(c), body.FriendID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
