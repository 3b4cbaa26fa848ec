// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"ripple/internal/cache"
	"ripple/internal/config"
	"ripple/internal/database"
	"ripple/internal/jobs"
	"ripple/internal/middleware"
	"ripple/internal/models"
	"ripple/internal/moderation"
	"ripple/internal/notifications"
	"ripple/internal/repository"
	"ripple/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config      *config.Config
	db          *gorm.DB
	redis       *redis.Client
	userRepo    repository.UserRepository
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	postSvc     service.PostService
	commentSvc  service.CommentService
	classifier  moderation.Classifier
	queue       *jobs.Queue
	notifier    *notifications.Notifier
	hub         *notifications.TopicHub
	broadcaster *notifications.Broadcaster
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	var classifier moderation.Classifier
	if cfg.ModerationURL != "" {
		classifier = moderation.NewHTTPClassifier(cfg.ModerationURL)
	} else {
		// Local fallback so development works without the classifier service.
		classifier = moderation.NewStaticClassifier("obscene")
	}

	return newServer(cfg, db, redisClient, classifier), nil
}

// NewServerWithDeps builds a server over preconstructed dependencies.
// Used by tests that supply an in-memory database or a fake classifier.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, classifier moderation.Classifier) *Server {
	return newServer(cfg, db, redisClient, classifier)
}

func newServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, classifier moderation.Classifier) *Server {
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	s := &Server{
		config:      cfg,
		db:          db,
		redis:       redisClient,
		userRepo:    userRepo,
		postRepo:    postRepo,
		commentRepo: commentRepo,
		postSvc:     service.NewPostService(postRepo),
		commentSvc:  service.NewCommentService(commentRepo, postRepo),
		classifier:  classifier,
		hub:         notifications.NewTopicHub(),
	}

	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
	}
	s.broadcaster = notifications.NewBroadcaster(s.hub, s.notifier)

	s.queue = jobs.NewQueue(jobs.Deps{
		Users:      userRepo,
		Posts:      postRepo,
		Comments:   commentRepo,
		Classifier: classifier,
		Publisher:  s.broadcaster,
	}, cfg.JobWorkers, cfg.JobQueueSize)

	return s
}

// Queue exposes the task queue, mainly for tests.
func (s *Server) Queue() *jobs.Queue { return s.queue }

// Hub exposes the topic hub, mainly for tests.
func (s *Server) Hub() *notifications.TopicHub { return s.hub }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Request ID for tracing
	app.Use(requestid.New())

	app.Use(recover.New())

	// Security headers
	app.Use(helmet.New())

	// Span per request; picks up the request ID set above
	app.Use(middleware.Tracing())

	// Propagate request ID and user ID into the request context for logging
	app.Use(middleware.ContextMiddleware())

	// Structured Logging middleware
	app.Use(middleware.StructuredLogger())

	// Prometheus HTTP metrics
	prom := middleware.InitMetrics("ripple")
	prom.RegisterAt(app, "/metrics")
	app.Use(middleware.MetricsMiddleware(prom))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	// CORS middleware with WebSocket support
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	api.Get("/", s.HealthCheck)
	api.Get("/health/live", s.Liveness)
	api.Get("/health/ready", s.HealthCheck)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)

	// Public post routes (browse)
	publicPosts := api.Group("/posts")
	publicPosts.Get("/", s.GetPosts)
	publicPosts.Get("/:id/comments/:commentId", s.GetComment)
	publicPosts.Get("/:id/comments", s.GetComments)
	publicPosts.Get("/:id", s.GetPost)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(s.redis, 10, time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/comments", middleware.RateLimit(s.redis, 20, time.Minute, "create_comment"), s.CreateComment)
	posts.Put("/:id/comments/:commentId", s.UpdateComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	// Generic /:id routes (for update, delete)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	// Websocket endpoints; tokens are optional here, anonymous clients may
	// subscribe but cannot create anything.
	ws := api.Group("/ws", s.SocketIdentity())
	ws.Get("/feed", s.FeedSocketHandler())
	ws.Get("/posts/:id/comments", s.PostSocketHandler())
}

// Liveness reports that the process is up.
func (s *Server) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// HealthCheck handles health check requests
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "Ripple",
		"version": "1.0.0",
		"status":  "healthy",
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Extract token from "Bearer <token>" or "token" query parameter (for WebSockets)
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		userID, err := s.validateToken(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError(err.Error()))
		}

		// Store user ID in context
		c.Locals("userID", userID)

		return c.Next()
	}
}

// validateToken parses and verifies a JWT and returns the subject user ID.
func (s *Server) validateToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}

	// Validate issuer and audience
	if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != "ripple-api" {
		return 0, fmt.Errorf("invalid token issuer")
	}
	if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != "ripple-client" {
		return 0, fmt.Errorf("invalid token audience")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, fmt.Errorf("invalid subject claim")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID in token")
	}

	if jti, exists := claims["jti"].(string); exists && jti != "" {
		if len(jti) < 10 {
			return 0, fmt.Errorf("invalid token ID")
		}
	}

	return uint(userID), nil
}

// optionalUserID extracts the user ID from a bearer token or "token" query
// parameter without enforcing authentication. Absent or invalid credentials
// yield the anonymous identity.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	tokenString := ""
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		return 0, false
	}

	userID, err := s.validateToken(tokenString)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// SocketIdentity resolves the optional identity before the websocket
// upgrade so connection handlers can read it from Locals.
func (s *Server) SocketIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if userID, ok := s.optionalUserID(c); ok {
			c.Locals("userID", userID)
		}
		return c.Next()
	}
}

// App builds the configured Fiber application without binding a listener.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Ripple API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, models.StatusForError(err), err)
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()

	// Wire the topic hub to the Redis subscriber if available
	if s.hub != nil && s.notifier != nil {
		go func() {
			if err := s.hub.StartWiring(context.Background(), s.notifier); err != nil {
				log.Printf("failed to start topic hub wiring: %v", err)
			}
		}()
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop accepting jobs and drain queued work
	if s.queue != nil {
		if err := s.queue.Shutdown(ctx); err != nil {
			log.Printf("error shutting down job queue: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			log.Printf("error shutting down topic hub: %v", err)
		}
	}

	// Close database connection
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	// Close Redis connection
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
