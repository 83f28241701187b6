// Package httpapi wires the HTTP transport (Gin) of every service to its
// application service, middleware and route handlers. One engine runs per
// process; RegisterRoutes mounts the public and internal API of a domain
// service and RegisterGateway mounts the reverse proxy.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Actor: parse the caller headers once
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and security headers
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/saidovdiyorbek/threads/docs"
	"github.com/saidovdiyorbek/threads/internal/actor"
	"github.com/saidovdiyorbek/threads/internal/config"
	"github.com/saidovdiyorbek/threads/internal/gateway"
	"github.com/saidovdiyorbek/threads/internal/http/handlers"
	"github.com/saidovdiyorbek/threads/internal/http/middleware"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/repo"
	"github.com/saidovdiyorbek/threads/internal/services"
	"github.com/saidovdiyorbek/threads/internal/storage"
)

// RegisterRoutes attaches the middleware and the endpoints of cfg.Service to
// r. Sibling services are reached through the remote clients built from
// cfg.Upstream.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) error {
	bodyLimit := cfg.MaxBodyBytes
	if cfg.Service == config.ServiceAttach && cfg.Storage.MaxUploadBytes > 0 {
		bodyLimit = cfg.Storage.MaxUploadBytes
	}

	var scope string
	switch cfg.Service {
	case config.ServicePost:
		scope = services.ScopePosts
	case config.ServiceComment:
		scope = services.ScopeComments
	}
	lookup := func(ctx context.Context, userID uint64, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if err != nil {
			return false, err
		}
		return rec != nil, nil
	}

	use(r, cfg, bodyLimit, middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200, Scope: scope}, lookup))

	// Downloads are served with ranges; compressing them would break those.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/attaches/(open|download)/`})))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	internal := r.Group(remote.InternalPrefix)

	timeout := cfg.Upstream.Timeout
	switch cfg.Service {
	case config.ServiceUser:
		h := handlers.NewUserHandler(services.NewUserService(db))
		api.POST("/users", h.CreateUser)
		api.GET("/users", h.ListUsers)
		api.GET("/users/:id", h.GetUser)
		api.PUT("/users/:id", h.UpdateUser)
		api.DELETE("/users/:id", h.DeleteUser)
		api.POST("/users/follow", h.Follow)
		api.POST("/users/unfollow", h.Unfollow)
		api.GET("/users/:id/profile", h.Profile)

		internal.GET("/users/:id/exists", h.Exists)
		internal.GET("/users/:id/short-info", h.ShortInfo)
		internal.PUT("/users/:id/post-count/increment", h.IncrementPostCount)
		internal.PUT("/users/:id/post-count/decrement", h.DecrementPostCount)

	case config.ServicePost:
		svc := services.NewPostService(db,
			remote.NewUsers(cfg.Upstream.UserURL, timeout),
			remote.NewAttaches(cfg.Upstream.AttachURL, timeout),
			remote.NewComments(cfg.Upstream.CommentURL, timeout),
		)
		svc.IdempotencyTTL = cfg.IdempotencyTTL
		h := handlers.NewPostHandler(svc)
		api.POST("/posts", h.CreatePost)
		api.GET("/posts", h.ListPosts)
		api.GET("/posts/search", h.SearchPosts)
		api.GET("/posts/:id", h.GetPost)
		api.PUT("/posts/:id", h.UpdatePost)
		api.DELETE("/posts/:id", h.DeletePost)
		api.GET("/posts/users/:userId", h.PostsByUser)
		api.GET("/posts/users/:userId/liked", h.LikedPosts)
		api.POST("/posts/:id/like", h.LikePost)
		api.POST("/posts/:id/unlike", h.UnlikePost)

		internal.GET("/posts/:id/exists", h.Exists)
		internal.PUT("/posts/:id/comment-count/increment", h.IncrementCommentCount)
		internal.PUT("/posts/:id/comment-count/decrement", h.DecrementCommentCount)

	case config.ServiceComment:
		svc := services.NewCommentService(db,
			remote.NewUsers(cfg.Upstream.UserURL, timeout),
			remote.NewPosts(cfg.Upstream.PostURL, timeout),
			remote.NewAttaches(cfg.Upstream.AttachURL, timeout),
		)
		svc.IdempotencyTTL = cfg.IdempotencyTTL
		h := handlers.NewCommentHandler(svc)
		api.POST("/comments", h.CreateComment)
		api.GET("/comments", h.ListComments)
		api.GET("/comments/:id", h.GetComment)
		api.PUT("/comments/:id", h.UpdateComment)
		api.DELETE("/comments/:id", h.DeleteComment)
		api.GET("/comments/:id/replies", h.Replies)
		api.GET("/comments/users/:userId", h.CommentsByUser)
		api.GET("/comments/posts/:postId", h.CommentsByPost)
		api.POST("/comments/:id/like", h.LikeComment)
		api.POST("/comments/:id/unlike", h.UnlikeComment)

		internal.DELETE("/comments/posts/:postId", h.TrashByPost)

	case config.ServiceAttach:
		store, err := storage.New(cfg.Storage.UploadDir)
		if err != nil {
			return err
		}
		h := handlers.NewAttachHandler(services.NewAttachService(db, store, cfg.Storage.PublicURL))
		api.POST("/attaches/upload", h.UploadFiles)
		api.GET("/attaches/open/:hash", h.OpenFile)
		api.GET("/attaches/download/:hash", h.DownloadFile)

		internal.POST("/attaches/exists", h.Exists)
		internal.POST("/attaches/hashes/exists", h.ListExists)
		internal.DELETE("/attaches/delete-list", h.DeleteList)

	default:
		return fmt.Errorf("httpapi: %q is not a domain service", cfg.Service)
	}
	return nil
}

// RegisterGateway attaches the shared middleware and the reverse proxy to r.
// transport may be nil.
func RegisterGateway(r *gin.Engine, cfg config.Config, transport http.RoundTripper) error {
	gw, err := gateway.New(cfg.Upstream.ByService(), transport)
	if err != nil {
		return err
	}
	use(r, cfg, cfg.Storage.MaxUploadBytes, nil)
	r.Any("/api/*path", gw.Handle)
	return nil
}

// use installs the middleware chain shared by every engine together with the
// health, metrics and fallback routes. idem may be nil.
func use(r *gin.Engine, cfg config.Config, bodyLimit int64, idem gin.HandlerFunc) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Actor())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	if bodyLimit > 0 {
		r.Use(limitBody(bodyLimit))
	}
	r.Use(middleware.Metrics(cfg.Service))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if idem != nil {
		r.Use(idem)
	}
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	useCORS(r, cfg.CORS.AllowedOrigins)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.CodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.CodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.Service})
	})
}

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		actor.HeaderUserID, actor.HeaderUsername, actor.HeaderRole,
		middleware.HeaderIdempotencyKey,
	}
	corsExpose = []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed}
)

// useCORS allows every origin when none is configured and otherwise echoes
// the allow-listed request origin.
func useCORS(r *gin.Engine, origins []string) {
	if len(origins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     corsMethods,
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    corsExpose,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Requests exceeding the cap fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
