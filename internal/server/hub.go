// Package server coordinates client registration, event dispatch, and
// connection cleanup for the MeetChat WebSocket system via the Hub type.
package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/meetchat/internal/chat"
)

// ErrHubStopped is returned by Do once the hub loop has exited.
var ErrHubStopped = errors.New("hub stopped")

type hubRequest struct {
	fn   func(*chat.Router)
	done chan struct{}
}

// Hub manages all WebSocket client connections and owns the chat router.
// Every router call happens on the goroutine running Run, one event at a
// time, so the router and its store need no locking. The mutex only guards
// the client map for readers outside the loop.
type Hub struct {
	clients    map[string]*Client
	router     *chat.Router
	cfg        Config
	origins    originPolicy
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	requests   chan hubRequest
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub whose router keeps its state in store. A nil cfg
// uses the defaults.
func NewHub(store chat.Store, cfg *Config, opts ...chat.RouterOption) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := cfg.sanitize()

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		cfg:        sanitized,
		origins:    newOriginPolicy(sanitized.AllowedOrigins),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		requests:   make(chan hubRequest),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.router = chat.NewRouter(store, h, opts...)
	return h
}

// Config returns the sanitized configuration the hub was built with.
func (h *Hub) Config() Config {
	cfg := h.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Do runs fn against the router on the hub goroutine and waits for it to
// finish.
func (h *Hub) Do(ctx context.Context, fn func(*chat.Router)) error {
	req := hubRequest{fn: fn, done: make(chan struct{})}

	select {
	case h.requests <- req:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit hands an inbound frame to the loop unless the hub is stopping.
func (h *Hub) submit(ev inboundEvent) {
	select {
	case h.inbound <- ev:
	case <-h.ctx.Done():
	}
}

// leave hands a finished client to the loop unless the hub is stopping.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, inbound events and router requests. This method should be
// called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.inbound:
			if !h.isRegistered(ev.client) {
				continue
			}
			h.router.Dispatch(h.ctx, ev.client.id, ev.envelope.Event, ev.envelope.Data)

		case req := <-h.requests:
			req.fn(h.router)
			close(req.done)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	h.router.Connect(h.ctx, client.id)
}

func (h *Hub) removeClient(client *Client) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)

	h.router.Disconnect(h.ctx, client.id)
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	current, ok := h.clients[client.id]
	return ok && current == client
}

func (h *Hub) lookup(connID string) *Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[connID]
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// deliver queues message for client and drops the connection when its
// buffer is full. The read pump then unregisters it through the normal path.
func (h *Hub) deliver(client *Client, message []byte) {
	if h.safeSend(client, message) {
		return
	}
	log.Printf("Client %s from %s dropped due to full send buffer", client.id, client.addr)
	client.drop()
}

// Emit implements chat.Emitter.
func (h *Hub) Emit(connID, event string, payload any) {
	client := h.lookup(connID)
	if client == nil {
		return
	}
	message, err := encodeEnvelope(event, payload)
	if err != nil {
		log.Printf("Error encoding %s for %s: %v", event, connID, err)
		return
	}
	h.deliver(client, message)
}

// Broadcast implements chat.Emitter.
func (h *Hub) Broadcast(event string, payload any) {
	h.BroadcastExcept("", event, payload)
}

// BroadcastExcept implements chat.Emitter.
func (h *Hub) BroadcastExcept(connID, event string, payload any) {
	message, err := encodeEnvelope(event, payload)
	if err != nil {
		log.Printf("Error encoding %s for broadcast: %v", event, err)
		return
	}

	clients := h.getClientSnapshot()
	for _, client := range clients {
		if client.id == connID {
			continue
		}
		h.deliver(client, message)
	}
}

// Connected implements chat.Emitter.
func (h *Hub) Connected(connID string) bool {
	return h.lookup(connID) != nil
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every send channel so the write pumps exit, then
// closes the connections so the read pumps exit.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		if !client.closed {
			client.closed = true
			close(client.send)
		}
		delete(h.clients, id)
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
