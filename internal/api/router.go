package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/labweave/labweave/internal/middleware"
	"github.com/labweave/labweave/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log            *logrus.Logger
	Hub            *ws.Hub
	Documents      DocumentService
	Graph          GraphQueryService
	Resync         ResyncService
	Checks         []NamedCheck
	CORSOrigins    []string
	Version        string
	ServiceName    string
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
}

// multipartOverhead is the body allowance on top of MaxUploadBytes for form fields and boundaries.
const multipartOverhead = 1 << 20

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.MaxMultipartMemory = 32 << 20
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.CallerIdentity())
	r.Use(otelgin.Middleware(deps.ServiceName))
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(deps.MaxUploadBytes + multipartOverhead))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.UserIDHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{ContentHashHeader, "Content-Disposition", "Retry-After", middleware.RequestIDHeader},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, deps.RateLimitRPS, deps.RateLimitBurst).Handler())
	r.Use(middleware.PrometheusMiddleware())
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	var clients func() int
	if deps.Hub != nil {
		clients = deps.Hub.ClientCount
	}

	health := NewHealthHandler(deps.Checks, clients, log, deps.Version)
	docs := NewDocumentHandler(deps.Documents, log, deps.MaxUploadBytes)
	graph := NewGraphHandler(deps.Graph, log)
	admin := NewAdminHandler(deps.Resync, deps.Documents, log)

	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	// Documents and versions.
	api.GET("/documents", docs.List)
	api.POST("/documents", docs.Create)
	api.GET("/documents/:id", docs.Get)
	api.PATCH("/documents/:id", docs.Update)
	api.DELETE("/documents/:id", docs.Delete)
	api.POST("/documents/:id/links", docs.Link)
	api.GET("/documents/:id/content", docs.CurrentContent)
	api.GET("/documents/:id/versions", docs.ListVersions)
	api.POST("/documents/:id/versions", docs.AddVersion)
	api.GET("/documents/:id/versions/:number", docs.GetVersion)
	api.GET("/documents/:id/versions/:number/content", docs.VersionContent)
	api.POST("/documents/:id/versions/:number/restore", docs.Restore)

	// Graph queries.
	api.GET("/graph/nodes/:id", graph.GetNode)
	api.DELETE("/graph/nodes/:id", graph.DeleteNode)
	api.GET("/graph/neighbors/:id", graph.Neighbors)
	api.GET("/graph/path/:from/:to", graph.Path)
	api.GET("/graph/related/:id", graph.Related)
	api.GET("/graph/search", graph.Search)

	// Admin.
	api.POST("/admin/resync", admin.Resync)
	api.POST("/admin/gc", admin.CollectGarbage)

	// WebSocket event feed.
	if deps.Hub != nil {
		api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
