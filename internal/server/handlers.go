// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the admin chat toggle and file uploads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/meetchat/internal/chat"
	"github.com/Tyrowin/meetchat/internal/upload"
)

const adminRequestTimeout = 5 * time.Second

// ChatToggle is the body of the admin toggle endpoints.
type ChatToggle struct {
	Disabled bool `json:"disabled"`
}

// StatusResponse is returned by the JSON health endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

// WebSocketHandler returns the handler that upgrades requests to WebSocket
// connections and registers them with hub. Only GET is accepted.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     hub.origins.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)

		// The hub launches the pump goroutines once the client is registered.
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "MeetChat server is running!")
}

// StatusHandler reports liveness and the number of connected clients.
func StatusHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", Clients: hub.ClientCount()})
	}
}

// UpdateChatToggleHandler enables or disables chat for everyone and pushes
// the new settings to every connection.
func UpdateChatToggleHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var toggle ChatToggle
		if err := json.NewDecoder(r.Body).Decode(&toggle); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
		defer cancel()

		err := hub.Do(ctx, func(router *chat.Router) {
			router.SetChatEnabled(ctx, !toggle.Disabled)
		})
		if err != nil {
			log.Printf("Failed to update chat toggle: %v", err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

// GetChatToggleHandler reports whether chat is currently disabled.
func GetChatToggleHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
		defer cancel()

		var settings chat.Settings
		err := hub.Do(ctx, func(router *chat.Router) {
			settings = router.Settings()
		})
		if err != nil {
			log.Printf("Failed to read chat toggle: %v", err)
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusOK, ChatToggle{Disabled: !settings.ChatEnabled})
	}
}

// UploadHandler accepts one multipart file in the "file" field and answers
// with its public URL.
func UploadHandler(store *upload.Store, maxSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxSize {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
			case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
			default:
				log.Printf("Invalid upload from %s: %v", r.RemoteAddr, err)
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
			}
			return
		}
		defer func() { _ = file.Close() }()

		res, err := store.Save(header.Filename, file)
		if err != nil {
			log.Printf("Failed to store upload from %s: %v", r.RemoteAddr, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Upload failed"})
			return
		}

		log.Printf("Stored upload %s from %s", res.FileURL, r.RemoteAddr)
		writeJSON(w, http.StatusOK, res)
	}
}
