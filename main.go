package main

import (
	"context"
	"fmt"
	"time"

	_uuid "github.com/google/uuid"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"memchat/budget"
	"memchat/controller"
	"memchat/memory"
	"memchat/model"
	"memchat/platform"
	"memchat/service"
)

// CORSMiddleware ...
// CORS (Cross-Origin Resource Sharing)
func CORSMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Origin, Authorization, Accept, Client-Security-Token, Accept-Encoding, x-access-token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-Id, X-Token-Budget")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
		} else {
			c.Next()
		}
	}
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		latency := time.Since(start)

		status := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		userAgent := c.Request.UserAgent()
		requestId := c.GetString("requestId")

		logrus.Infof(
			" [%s] %d | %v | %s | %s | %s | %s ",
			requestId,
			status,
			latency,
			clientIP,
			method,
			path,
			userAgent,
		)
	}
}

type app struct {
	auth          controller.AuthController
	user          controller.UserController
	chat          controller.ChatController
	memory        controller.MemoryController
	conversations controller.ConversationController
}

func setupRouter(cfg *platform.Config, a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg.CORSOrigin))
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware())

	v1 := r.Group("/v1")
	{
		v1.POST("/user/register", a.user.Register)
		v1.POST("/user/login", a.user.Login)

		//Refresh the token
		v1.POST("/token/refresh", a.auth.Refresh)

		optional := v1.Group("", a.auth.OptionalToken)
		optional.POST("/chat", a.chat.Chat)
		optional.POST("/chat/budget", a.chat.Budget)

		optional.POST("/memory", a.memory.Post)
		optional.GET("/memory", a.memory.Get)
		optional.DELETE("/memory", a.memory.Delete)

		optional.GET("/conversations", a.conversations.List)
		optional.POST("/conversations", a.conversations.Create)
		optional.PUT("/conversations", a.conversations.Put)
		optional.DELETE("/conversations", a.conversations.Delete)
		optional.GET("/conversations/:id", a.conversations.Get)
		optional.PUT("/conversations/:id", a.conversations.Put)
		optional.DELETE("/conversations/:id", a.conversations.Delete)
		optional.GET("/conversations/:id/export", a.conversations.Export)
	}
	return r
}

func scheduleJobs(cfg *platform.Config, reconciler *service.MemoryReconciler, digest *service.DigestService) (*cron.Cron, error) {
	c := cron.New()
	if reconciler != nil && cfg.MemoryReconcileSpec != "" {
		if _, err := c.AddFunc(cfg.MemoryReconcileSpec, func() {
			_, _ = reconciler.Run(context.Background())
		}); err != nil {
			return nil, fmt.Errorf("invalid MEMORY_RECONCILE_SPEC: %w", err)
		}
	}
	if digest != nil && cfg.DigestSpec != "" {
		if _, err := c.AddFunc(cfg.DigestSpec, func() {
			_, _ = digest.Run(context.Background())
		}); err != nil {
			return nil, fmt.Errorf("invalid DIGEST_SPEC: %w", err)
		}
	}
	return c, nil
}

func main() {
	cfg := platform.LoadConfig()

	hook := platform.InitLogger(cfg.LogDir, "memchat")
	defer hook.Close()
	logger := platform.Logger

	//init database
	db, err := platform.InitDB(cfg.DB)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %s", err)
	}
	if err := model.InstallDB(db); err != nil {
		logger.Fatalf("Failed to migrate database: %s", err)
	}

	limits := budget.DefaultLimits()
	if cfg.ModelTokenLimits != "" {
		extra, err := budget.ParseLimits(cfg.ModelTokenLimits)
		if err != nil {
			logger.Fatalf("Invalid MODEL_TOKEN_LIMITS: %s", err)
		}
		limits = limits.Merge(extra)
	}

	memories := memory.NewService(model.NewMemoryStore(db), memory.WithLogger(logger))
	conversationStore := model.NewConversationStore(db)
	tokens := service.NewTokenService(cfg.AccessSecret)

	chatOpts := []service.ChatOption{
		service.WithRecorder(conversationStore),
		service.WithBudgeter(budget.New(limits, cfg.ReserveFraction)),
		service.WithDefaultModel(cfg.LLMModel),
	}
	if cfg.MemoryEnabled {
		chatOpts = append(chatOpts, service.WithMemory(memories))
	}
	chatService := service.NewChatService(platform.NewOpenAICompleter(cfg.LLMBaseURL, cfg.LLMAPIKey), chatOpts...)

	a := &app{
		auth:   controller.AuthController{Tokens: tokens},
		user:   controller.UserController{Users: &service.UserService{Tokens: tokens}},
		chat:   controller.ChatController{Service: chatService},
		memory: controller.MemoryController{Memories: memories},
		conversations: controller.ConversationController{Conversations: &service.ConversationService{
			Repo:     conversationStore,
			Memories: memories,
		}},
	}

	var reconciler *service.MemoryReconciler
	if cfg.MemoryEnabled {
		reconciler = &service.MemoryReconciler{Conversations: conversationStore, Memories: memories}
	}
	var digest *service.DigestService
	if cfg.SMTP.Enabled() {
		digest = service.NewDigestService(memories, &service.SMTPMailer{Config: cfg.SMTP})
	}
	jobs, err := scheduleJobs(cfg, reconciler, digest)
	if err != nil {
		logger.Fatalf("Failed to schedule jobs: %s", err)
	}
	jobs.Start()
	defer jobs.Stop()

	r := setupRouter(cfg, a)
	logger.Infof("Server started on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Errorf("Server stopped: %s", err)
	}
	chatService.Wait()
}
