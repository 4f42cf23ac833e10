// Package server wires HTTP handlers into a gorilla/mux router for the
// MeetChat application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Tyrowin/meetchat/internal/upload"
)

// UploadURLPrefix is the path uploaded files are served under.
const UploadURLPrefix = "/uploads"

// SetupRoutes configures and returns the router with all application routes.
// A nil uploads store disables the upload endpoints.
func SetupRoutes(hub *Hub, uploads *upload.Store) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", StatusHandler(hub)).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub))

	r.HandleFunc("/update-chat-toggle", UpdateChatToggleHandler(hub)).Methods(http.MethodPost)
	r.HandleFunc("/get-chat-toggle", GetChatToggleHandler(hub)).Methods(http.MethodGet)

	if uploads != nil {
		r.HandleFunc("/upload", UploadHandler(uploads, hub.cfg.MaxUploadSize)).Methods(http.MethodPost)
		r.PathPrefix(UploadURLPrefix + "/").Handler(
			http.StripPrefix(UploadURLPrefix+"/", http.FileServer(http.Dir(uploads.Dir()))),
		).Methods(http.MethodGet)
	}

	return r
}
