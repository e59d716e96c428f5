// Package main provides the stdio MCP entry point for the risk fusion pipeline.
// It requires no external services: outcomes go to SQLite in the data directory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/diabetes-risk-fusion/internal/config"
	"github.com/diabetes-risk-fusion/internal/mcp"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Load lightweight configuration
	cfg := config.LoadLiteConfig()

	// stdout carries the protocol, so diagnostics go to stderr
	log.SetOutput(os.Stderr)
	log.Printf("Data directory: %s", cfg.DataDir)

	// Create MCP server
	server, err := mcp.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start MCP server
	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}

	log.Println("Diabetes risk MCP server stopped")
}
