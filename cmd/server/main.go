package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lyallcooper/treescan/internal/app"
	"github.com/lyallcooper/treescan/internal/webfs"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	port := flag.Int("port", 0, "port to listen on (overrides TREESCAN_PORT)")
	bind := flag.String("bind", "", "address to bind to (default all interfaces)")
	flag.Parse()

	server, err := app.CreateServer(app.ServerConfig{
		Port:        *port,
		Version:     version,
		Commit:      commit,
		WebFS:       webfs.FS,
		BindAddress: *bind,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	cleanupCancel, cleanupDone := server.StartCleanupLoop()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.HTTP.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server listening on http://localhost:%d", server.Config.Port)
	if err := server.HTTP.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	cleanupCancel()
	<-cleanupDone
	server.Cleanup()
	log.Println("Server stopped")
}
