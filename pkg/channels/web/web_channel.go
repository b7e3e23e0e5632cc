// Package web exposes the assistant over HTTP and WebSocket: a
// stateless dispatch endpoint, the orchestrated send endpoint,
// conversation management and a live turn feed with typing signals.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"studychat/pkg/handler"
	"studychat/pkg/llm"
	"studychat/pkg/monitor"
	"studychat/pkg/store"
	"studychat/pkg/study"
	"studychat/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type Config struct {
	Port int `json:"port"` // Default: 9453
}

// SafeConn serializes writes to a websocket connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// Channel is the web surface of the assistant.
type Channel struct {
	config   Config
	server   *http.Server
	pipeline *handler.Pipeline
	router   *llm.Router
	store    store.Store
	refs     *study.RefSource

	connections map[string]map[*SafeConn]struct{} // ownerID/chatID -> conns
	mu          sync.RWMutex
}

// NewChannel creates the web channel. The pipeline's Signaler should be
// this channel so typing indicators reach subscribed clients.
func NewChannel(cfg Config, st store.Store, router *llm.Router, refs *study.RefSource) *Channel {
	if cfg.Port == 0 {
		cfg.Port = 9453
	}
	return &Channel{
		config:      cfg,
		router:      router,
		store:       st,
		refs:        refs,
		connections: make(map[string]map[*SafeConn]struct{}),
	}
}

// SetPipeline attaches the send pipeline. Split from NewChannel because
// the pipeline itself needs the channel as its Signaler.
func (c *Channel) SetPipeline(p *handler.Pipeline) {
	c.pipeline = p
}

func (c *Channel) ID() string {
	return "web"
}

// Handler returns the routed HTTP handler, exposed for tests.
func (c *Channel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", c.handleChat)
	mux.HandleFunc("POST /api/ask", c.handleAsk)
	mux.HandleFunc("GET /api/conversations", c.handleListConversations)
	mux.HandleFunc("POST /api/conversations/rename", c.handleRename)
	mux.HandleFunc("POST /api/conversations/delete", c.handleDelete)
	mux.HandleFunc("GET /api/books", c.handleListBooks)
	mux.HandleFunc("GET /ws", c.handleWebSocket)
	return withRequestID(mux)
}

// withRequestID tags every request with an id so log lines from one
// dispatch correlate. The id is echoed back in a response header.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := utils.GenerateID()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(monitor.WithRequestID(r.Context(), id)))
	})
}

func (c *Channel) Start() error {
	addr := fmt.Sprintf(":%d", c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: c.Handler(),
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *Channel) Stop() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

// SetTyping implements handler.Signaler by broadcasting a signal frame
// to every client subscribed to the conversation.
func (c *Channel) SetTyping(ownerID, chatID string, typing bool) {
	value := "typing_off"
	if typing {
		value = "typing_on"
	}
	frame, err := json.Marshal(map[string]string{
		"type":  "signal",
		"value": value,
	})
	if err != nil {
		slog.Error("Failed to marshal signal", "error", err)
		return
	}

	key := ownerID + "/" + chatID
	c.mu.RLock()
	conns := make([]*SafeConn, 0, len(c.connections[key]))
	for conn := range c.connections[key] {
		conns = append(conns, conn)
	}
	c.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			slog.Debug("Dropping signal to closed connection", "key", key, "error", err)
		}
	}
}

func (c *Channel) register(key string, conn *SafeConn) {
	c.mu.Lock()
	if c.connections[key] == nil {
		c.connections[key] = make(map[*SafeConn]struct{})
	}
	c.connections[key][conn] = struct{}{}
	c.mu.Unlock()
}

func (c *Channel) unregister(key string, conn *SafeConn) {
	c.mu.Lock()
	delete(c.connections[key], conn)
	if len(c.connections[key]) == 0 {
		delete(c.connections, key)
	}
	c.mu.Unlock()
}

func (c *Channel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	chatID := r.URL.Query().Get("chat")
	if ownerID == "" || chatID == "" {
		http.Error(w, "owner and chat are required", http.StatusBadRequest)
		return
	}

	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: rawConn}

	key := ownerID + "/" + chatID
	c.register(key, conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.unregister(key, conn)
		conn.Close()
	}()

	snapshots, err := c.store.SubscribeTurns(ctx, ownerID, chatID)
	if err != nil {
		slog.Error("Turn subscription failed", "key", key, "error", err)
		return
	}

	go func() {
		for snap := range snapshots {
			frame, err := json.Marshal(map[string]any{
				"type": "turns",
				"data": snap,
			})
			if err != nil {
				slog.Error("Failed to marshal turn snapshot", "key", key, "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				cancel()
				return
			}
		}
	}()

	// The read loop only detects disconnects; clients send over HTTP.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
