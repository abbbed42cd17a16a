// main.go - HTTP server application
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lantern/internal"
)

func main() {
	// Best effort, env vars may come from the environment directly
	_ = godotenv.Load()

	app := internal.NewApp()

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run()
	}()

	waitForShutdownSignal(app, errChan)
}

// waitForShutdownSignal blocks until a termination signal or a server error,
// then performs graceful shutdown.
func waitForShutdownSignal(app *internal.Application, errChan <-chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
		return
	}

	log.Println("Initiating graceful shutdown...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	log.Println("Server shutdown complete")
}
