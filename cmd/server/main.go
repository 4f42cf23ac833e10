package main

import (
	"context"
	"io"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/meetchat/internal/server"
	"github.com/Tyrowin/meetchat/internal/upload"
)

func main() {
	log.Println("Starting MeetChat server...")

	config := server.NewConfigFromEnv()

	store, rdb, err := server.NewStore(context.Background(), config.Store)
	if err != nil {
		log.Fatalf("Failed to create store: %v", err)
	}

	uploads, err := upload.NewStore(config.UploadDir, server.UploadURLPrefix)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}

	hub := server.NewHub(store, config)
	server.StartHub(hub)

	router := server.SetupRoutes(hub, uploads)
	httpServer := server.CreateServer(config.Port, router)

	go func() {
		if err := server.StartServer(httpServer); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	var hubResources []io.Closer
	if rdb != nil {
		hubResources = append(hubResources, rdb)
	}

	operations := map[string]gfshutdown.Operation{
		"http-server": func(context.Context) error {
			return server.ShutdownServer(httpServer, config.ShutdownTimeout)
		},
		"hub": func(context.Context) error {
			return server.StopHub(hub, config.ShutdownTimeout, hubResources...)
		},
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), config.ShutdownTimeout, operations)

	exitCode := <-wait
	log.Printf("MeetChat server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
