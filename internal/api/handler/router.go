package handler

import (
	"net/http"
	"time"

	"rando/backend/internal/api/middleware"
	"rando/backend/internal/config"
	"rando/backend/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route. Queue and friend writes share a per-user rate
// limit; reads and the websocket are only authenticated.
func NewRouter(h *Handler, cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	initTrans()

	r := gin.New()
	r.Use(logger.RequestID(), logger.GinLogger(), logger.GinRecovery(true), middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	// /ws hijacks the connection; promhttp compresses on its own
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/anonid", h.GetAnonID)
	r.GET("/starters", h.Starters)

	auth := middleware.Auth(h.Tokens)
	limited := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, middleware.KeyByUserOrIP()).Handler()

	r.GET("/ws", auth, h.ServeWebSocket(newUpgrader(cfg.HTTP.AllowedOrigins)))

	queue := r.Group("/queue", auth)
	{
		queue.POST("/join", limited, h.JoinQueue)
		queue.POST("/leave", h.LeaveQueue)
		queue.POST("/poll", limited, h.PollQueue)
		queue.GET("/status", h.QueueStatus)
		queue.POST("/search", limited, h.Search)
	}

	sessions := r.Group("/sessions", auth)
	{
		sessions.GET("", h.ListSessions)
		sessions.POST("/direct", limited, h.StartDirectChat)
		sessions.GET("/:id", h.GetSession)
		sessions.GET("/:id/summary", h.SessionSummary)
		sessions.POST("/:id/end", h.EndSession)
		sessions.GET("/:id/messages", h.ListMessages)
		sessions.POST("/:id/messages", limited, h.SendMessage)
		sessions.POST("/:id/report", limited, h.ReportPartner)
		sessions.POST("/:id/block", h.BlockPartner)
		sessions.POST("/:id/rate", h.RateSession)
	}

	fr := r.Group("/friends", auth)
	{
		fr.GET("", h.ListFriends)
		fr.GET("/requests", h.PendingRequests)
		fr.POST("/requests", limited, h.SendFriendRequest)
		fr.POST("/requests/:id/accept", h.AcceptFriendRequest)
		fr.POST("/requests/:id/reject", h.RejectFriendRequest)
		fr.DELETE("/:id", h.Unfriend)
	}

	return r
}
