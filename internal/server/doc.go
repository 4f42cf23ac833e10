// Package server implements the HTTP and WebSocket transport for MeetChat.
//
// A single Hub goroutine owns the chat router: client registration, every
// decoded client event and every admin request pass through it one at a
// time. The implementation is organized into specialized files for
// configuration, hub management, clients, routing, and HTTP handlers.
package server
