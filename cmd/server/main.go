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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vedaaanggshetty/Aura/internal/api"
	"github.com/vedaaanggshetty/Aura/internal/inference"
	"github.com/vedaaanggshetty/Aura/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	inferenceService := inference.NewService(cfg.Inference, sugar)
	if err := inferenceService.Initialize(ctx); err != nil {
		sugar.Fatalf("inference: initialize failed: %v", err)
	}
	defer inferenceService.Shutdown()

	router := setupRouter(inferenceService, sugar)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: a chat response is open-ended while the
		// model generates.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		sugar.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("server crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("graceful shutdown failed: %v", err)
	}

	sugar.Info("server stopped cleanly")
}

func setupRouter(inferenceService *inference.Service, sugar *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(api.RequestID(), api.AccessLog(sugar), gin.Recovery(), api.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(inferenceService, sugar).RegisterRoutes(router)

	return router
}
