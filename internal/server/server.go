// Package server starts and stops the hub and HTTP server as one unit.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/meetchat/internal/chat"
)

// NewStore builds the membership store selected by cfg. The redis backend
// starts empty: keys left under the prefix by a previous process are
// deleted. Its client is returned so the caller can close it on shutdown.
func NewStore(ctx context.Context, cfg StoreConfig) (chat.Store, *redis.Client, error) {
	if cfg.Backend != StoreRedis {
		return chat.NewMemoryStore(), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	store := chat.NewRedisStore(rdb, cfg.RedisPrefix)
	if err := store.Reset(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to clear stale state under %q: %w", cfg.RedisPrefix, err)
	}
	log.Printf("Using redis store at %s with prefix %q", cfg.RedisAddr, cfg.RedisPrefix)
	return store, rdb, nil
}

// StartHub starts the hub loop in a separate goroutine.
// This should be called before starting the HTTP server.
func StartHub(hub *Hub) {
	go hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// StopHub shuts the hub down and then closes the resources it was using,
// such as the redis client behind its store. The hub loop may still touch
// the store until Shutdown returns, so they are closed only afterwards.
func StopHub(hub *Hub, timeout time.Duration, closers ...io.Closer) error {
	err := hub.Shutdown(timeout)
	for _, c := range closers {
		if cerr := c.Close(); cerr != nil {
			log.Printf("Error closing hub resource: %v", cerr)
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
