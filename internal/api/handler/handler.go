// Package handler exposes the matchmaking, session and friends services over
// gin, plus the websocket push channel.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"rando/backend/internal/api/middleware"
	"rando/backend/internal/chathub"
	"rando/backend/internal/errorx"
	"rando/backend/internal/friends"
	"rando/backend/internal/localization"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler містить посилання на сервіси, які обслуговує API.
type Handler struct {
	Hub       *chathub.ManagerService
	Matcher   *chathub.MatcherService
	Sessions  *chathub.SessionService
	Friends   *friends.Service
	Tokens    *middleware.TokenIssuer
	Localizer *localization.Localizer

	// Ping checks the database for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func NewHandler(
	hub *chathub.ManagerService,
	matcher *chathub.MatcherService,
	sessions *chathub.SessionService,
	fr *friends.Service,
	tokens *middleware.TokenIssuer,
	loc *localization.Localizer,
) *Handler {
	if loc == nil {
		loc = localization.Default()
	}
	return &Handler{
		Hub:       hub,
		Matcher:   matcher,
		Sessions:  sessions,
		Friends:   fr,
		Tokens:    tokens,
		Localizer: loc,
	}
}

// respondError writes {"error": slug, "message": ...} with the status mapped
// from the error code. Internal details never reach the client.
func respondError(c *gin.Context, err error) {
	if c.Request.Context().Err() != nil {
		// client went away
		c.Abort()
		return
	}

	status := errorx.HTTPStatus(err)
	msg := http.StatusText(status)
	var ce *errorx.CodeError
	if errors.As(err, &ce) && status < http.StatusInternalServerError {
		msg = ce.Msg
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", middleware.UserID(c)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorx.Slug(err), "message": msg})
}

// bindOptional decodes a JSON body when there is one.
func bindOptional(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return errorx.Wrap(err, errorx.CodeInvalidParam, bindMessage(err))
	}
	return nil
}

func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidParam, bindMessage(err))
	}
	return nil
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errorx.Newf(errorx.CodeInvalidParam, "invalid limit %q", raw)
	}
	return n, nil
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Starters returns conversation openers for ?lang= (English by default).
func (h *Handler) Starters(c *gin.Context) {
	lang := c.DefaultQuery("lang", "en")
	c.JSON(http.StatusOK, gin.H{"lang": lang, "starters": h.Localizer.Starters(lang)})
}
