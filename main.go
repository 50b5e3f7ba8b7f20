package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storybot/config"
	"storybot/db"
	"storybot/exporter"
	"storybot/handlers"
	"storybot/narrator"
	"storybot/session"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	ctx := context.Background()

	store, err := db.Connect(ctx, config.GetMongoDBURI(), config.GetMongoDBDatabase())
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer store.Close()
	store.CreateIndexes(ctx)

	narr, err := narrator.New(ctx, config.GetGeminiAPIKey(), config.GetGeminiModel())
	if err != nil {
		log.Fatal("Failed to create Gemini client:", err)
	}

	docs, err := exporter.New(ctx, config.GetGoogleCredentialsJSON())
	if err != nil {
		log.Fatal("Failed to set up Docs exporter:", err)
	}

	engine := session.New(store, narr, docs, nil)

	// Rebuild the active-story map and re-arm rogue loops from the store.
	if err := engine.LoadActiveStories(ctx); err != nil {
		log.Fatal("Failed to load active stories:", err)
	}
	if err := engine.ResumeRogue(ctx); err != nil {
		log.Printf("Warning: resuming rogue loops failed: %v", err)
	}

	server := &http.Server{
		Addr:         config.GetListenAddr(),
		Handler:      handlers.NewRouter(engine, config.GetAllowedOrigins()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Cancel every guild's rogue loop before exit.
	engine.Shutdown()

	log.Println("Server stopped")
}
