package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spacechat/internal/auth"
	"spacechat/internal/chat"
	"spacechat/internal/config"
	"spacechat/internal/logger"
	"spacechat/internal/realtime"
	"spacechat/internal/server"
	"spacechat/internal/storage"
)

func main() {
	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging first
	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	// Initialize database
	if err := storage.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	conversationRepo := storage.NewConversationRepository(storage.DB)
	if err := conversationRepo.MigrateTable(); err != nil {
		log.Fatalf("Failed to migrate conversation tables: %v", err)
	}
	messageRepo := storage.NewMessageRepository(storage.DB)
	if err := messageRepo.MigrateTable(); err != nil {
		log.Fatalf("Failed to migrate message table: %v", err)
	}
	userRepo := storage.NewUserRepository(storage.DB)
	if err := userRepo.MigrateTable(); err != nil {
		log.Fatalf("Failed to migrate user table: %v", err)
	}

	// Push channel and websocket fan-out
	broker := realtime.NewBroker(cfg.Chat.SubscriberBuffer)
	hub := realtime.NewHub()

	chatService := chat.NewService(
		conversationRepo,
		messageRepo,
		broker,
		broker,
		cfg.Chat.ReconcileWindow(),
		cfg.Chat.SubscriberBuffer,
	)
	authService := auth.NewService(userRepo, cfg)

	handlers := server.NewHandlers(authService, chatService, hub, cfg)
	srv := server.New(cfg, handlers)

	// Start HTTP server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Create a channel for receiving OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	log.Printf("Received signal: %v, shutting down...", sig)

	// Gracefully shutdown server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Server gracefully stopped")
}
