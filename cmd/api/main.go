package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relation-engine/relation-engine/internal/config"
	"github.com/relation-engine/relation-engine/internal/handlers"
	"github.com/relation-engine/relation-engine/internal/middleware"
	"github.com/relation-engine/relation-engine/internal/repository"
	"github.com/relation-engine/relation-engine/internal/services"
	"github.com/relation-engine/relation-engine/pkg/cache"
	"github.com/relation-engine/relation-engine/pkg/logger"
	"github.com/relation-engine/relation-engine/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.NewLogger()
	logger.Info("Starting Relation Engine API server...")

	db, err := repository.NewDatabase(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	redisClient := cache.NewRedisClient(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		cfg.Redis.MinIdleConns,
	)
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}

	relationEventsProducer := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.RelationEvents)
	defer relationEventsProducer.Close()

	userRepo := repository.NewUserRepository(db.DB)

	identityService := services.NewIdentityService(userRepo)
	userService := services.NewUserService(userRepo, logger)
	followService := services.NewFollowService(db.DB, identityService, relationEventsProducer, logger)
	connectionService := services.NewConnectionService(db.DB, identityService, relationEventsProducer, logger)
	blockService := services.NewBlockService(db.DB, identityService, relationEventsProducer, logger)
	statusService := services.NewStatusService(db.DB, identityService, redisClient, logger)

	userHandler := handlers.NewUserHandler(userService, cfg.JWT.Secret, cfg.JWT.ExpireTime)
	relationshipHandler := handlers.NewRelationshipHandler(followService, connectionService, blockService, statusService)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api := router.Group("/api/v1")
	{
		users := api.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
			users.GET("/:id/followers", relationshipHandler.GetFollowers)
			users.GET("/:id/following", relationshipHandler.GetFollowing)
			users.GET("/:id/connections", relationshipHandler.GetConnections)
			users.GET("/:id/counts", relationshipHandler.GetUserCounts)
		}

		api.GET("/stats", relationshipHandler.GetStats)

		protected := api.Group("")
		protected.Use(middleware.NewJWTAuth(&middleware.JWTConfig{Secret: cfg.JWT.Secret}))
		{
			protected.POST("/follows", relationshipHandler.Follow)
			protected.DELETE("/follows/:id", relationshipHandler.Unfollow)

			protected.POST("/connections", relationshipHandler.RequestConnection)
			protected.POST("/connections/:id/accept", relationshipHandler.AcceptConnection)
			protected.POST("/connections/:id/reject", relationshipHandler.RejectConnection)
			protected.DELETE("/connections/:id", relationshipHandler.RemoveConnection)
			protected.GET("/connections/pending", relationshipHandler.GetPendingRequests)
			protected.GET("/connections/sent", relationshipHandler.GetSentRequests)

			protected.POST("/blocks", relationshipHandler.Block)
			protected.DELETE("/blocks/:id", relationshipHandler.Unblock)
			protected.GET("/blocks", relationshipHandler.GetBlocked)

			protected.GET("/relationships/:id", relationshipHandler.GetRelationship)
			protected.GET("/relationships/:id/history", relationshipHandler.GetRelationshipHistory)
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func init() {
	// 默认配置不存在时生成一份，方便本地起服务
	configPath := "configs/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.MkdirAll("configs", 0755); err != nil {
			log.Printf("Failed to create configs directory: %v", err)
			return
		}
		if err := createDefaultConfig(configPath); err != nil {
			log.Printf("Failed to create default config: %v", err)
		}
	}
}

func createDefaultConfig(path string) error {
	defaultConfig := `server:
  port: ":8080"
  mode: "debug"
  read_timeout: 30s
  write_timeout: 30s

database:
  host: "localhost"
  port: 5432
  user: "relationuser"
  password: "relationpass"
  dbname: "relationengine"
  sslmode: "disable"
  max_open_conns: 100
  max_idle_conns: 10

redis:
  host: "localhost"
  port: 6379
  password: ""
  db: 0
  pool_size: 100
  min_idle_conns: 10

kafka:
  brokers:
    - "localhost:9092"
  topics:
    relation_events: "relation-events"

jwt:
  secret: "your-secret-key-change-in-production"
  expire_time: 24h`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
