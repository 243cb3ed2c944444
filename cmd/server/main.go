package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger-cms/auth"
	"ledger-cms/internal/account"
	"ledger-cms/internal/bootstrap"
	"ledger-cms/internal/config"
	"ledger-cms/internal/content"
	"ledger-cms/internal/contenttype"
	"ledger-cms/internal/db"
	"ledger-cms/internal/logger"
	"ledger-cms/internal/middleware"
	"ledger-cms/internal/node"
	"ledger-cms/internal/publish"
	"ledger-cms/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()
	logger.Init(config.AppConfig.Environment)

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	// Initialize Redis
	redis.InitRedis()
	cache := redis.NewCache(redis.RedisClient)

	// Initialize registries and services
	nodes := node.NewRegistry(db.AppDb)
	types := contenttype.NewRegistry(db.AppDb, nodes)
	builder := publish.NewBuildClient()
	contentService := content.NewService(db.AppDb, nodes, types, cache, builder)
	accountService := account.NewService(db.AppDb)

	// Provision built-in content types and the root user
	ctx := context.Background()
	if err := bootstrap.EnsureContentTypes(ctx, types); err != nil {
		log.Fatalf("bootstrap content types: %v", err)
	}
	if err := bootstrap.EnsureRootUser(ctx, db.AppDb, contentService); err != nil {
		log.Fatalf("bootstrap root user: %v", err)
	}

	// Initialize handlers
	contentHandler := content.NewHandler(contentService)
	accountHandler := account.NewHandler(accountService)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	// Session routes
	router.POST("/login", accountHandler.Login)
	router.DELETE("/logout", auth.AuthMiddleWare(), accountHandler.Logout)

	// Edit routes
	router.POST("/edit/article", auth.AuthMiddleWare(), contentHandler.SaveArticle)
	router.POST("/edit/user", auth.AuthMiddleWare(), contentHandler.SaveUser)
	router.POST("/edit/site", auth.AuthMiddleWare(), contentHandler.SaveSite)
	router.POST("/edit/content-type", auth.AuthMiddleWare(), contentHandler.SaveContentType)
	router.GET("/edit/:kind/:node_id", auth.AuthMiddleWare(), contentHandler.BeginEdit)
	router.GET("/content-control", auth.AuthMiddleWare(), contentHandler.ContentControl)

	// Public view route
	router.GET("/view/:node_id", contentHandler.View)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	<-shutdownCtx.Done()
	log.Println("Server shutdown complete")
}
