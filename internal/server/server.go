// Package server provides HTTP server initialization and lifecycle management
// for the lingua API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrypster/lingua/internal/config"
	"github.com/scrypster/lingua/internal/engine"
	"github.com/scrypster/lingua/internal/indexer"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
	"github.com/scrypster/lingua/web/handlers"
)

// Version is reported by /api/health.
var Version = "dev"

// Deps are the components the server exposes.
type Deps struct {
	Config   *config.Config
	Messages storage.MessageStore
	Services handlers.Services

	// Engine receives message-created events and feeds the websocket hub.
	// Nil disables background processing.
	Engine *engine.Engine

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewHandler builds the full middleware chain and routes:
// request id, rate limit, security headers, then auth on /api/v1 and /ws.
func NewHandler(deps Deps, hub *handlers.WebSocketHub) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	cfg := deps.Config

	rpc := handlers.NewRPCHandler(handlers.Operations(deps.Services))
	var publisher handlers.Publisher
	if deps.Engine != nil {
		publisher = deps.Engine
	}
	conversations := handlers.NewConversationHandlers(deps.Messages, publisher)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/v1/conversations", conversations.CreateConversation)
	apiMux.HandleFunc("POST /api/v1/conversations/{id}/messages", conversations.PostMessage)
	apiMux.HandleFunc("GET /api/v1/conversations/{id}/messages", conversations.ListMessages)
	apiMux.Handle("/api/v1/{operation}", rpc)
	apiMux.Handle("/ws", hub)

	mux := http.NewServeMux()

	// Health endpoint, no auth required.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "healthy", "version": Version}
		if deps.Engine != nil {
			body["queue"] = deps.Engine.QueueLength()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	authed := handlers.RequireAuth(apiMux, cfg.Security)
	mux.Handle("/api/v1/", authed)
	mux.Handle("/ws", authed)

	handler := handlers.SecurityHeaders(mux)
	handler = handlers.RateLimitMiddleware(handler, handlers.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))
	handler = handlers.RequestID(handler, logger)
	return handler
}

// BridgeEvents forwards engine outcomes to the websocket hub, addressed to
// the participants of the message's conversation.
func BridgeEvents(eng *engine.Engine, hub *handlers.WebSocketHub, messages storage.MessageStore, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	audience := func(msg types.Message) []string {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		users, err := messages.ListParticipants(ctx, msg.ConversationID)
		if err != nil {
			logger.Warn("server: failed to resolve event audience",
				"conversation_id", msg.ConversationID, "error", err)
			return nil
		}
		return users
	}

	eng.SetOnIndexed(func(msg types.Message, outcome indexer.Outcome) {
		if outcome != indexer.OutcomeGenerated {
			return
		}
		hub.Broadcast(handlers.Event{
			Type: handlers.EventEmbeddingIndexed,
			Data: map[string]string{
				"messageId":      msg.ID,
				"conversationId": msg.ConversationID,
			},
			Audience: audience(msg),
		})
	})
	eng.SetOnExtracted(func(msg types.Message, data *types.StructuredData) {
		hub.Broadcast(handlers.Event{
			Type: handlers.EventStructuredDataExtracted,
			Data: map[string]any{
				"conversationId": msg.ConversationID,
				"structuredData": data,
			},
			Audience: audience(msg),
		})
	})
}

// Start listens on the configured address and serves until ctx is done.
// It returns the actual address (useful with port 0) and the websocket hub.
func Start(ctx context.Context, deps Deps) (string, *handlers.WebSocketHub, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	hub := handlers.NewWebSocketHub(allowedOrigins(cfg.Server), logger)
	go hub.Run()
	if deps.Engine != nil {
		BridgeEvents(deps.Engine, hub, deps.Messages, logger)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(deps, hub),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Model calls retry with backoff, so responses may take a while.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: serve failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server: shutdown error", "error", err)
		}
		hub.Stop()
	}()

	logger.Info("server: listening", "addr", actualAddr)
	return actualAddr, hub, nil
}

func allowedOrigins(cfg config.ServerConfig) []string {
	return []string{
		fmt.Sprintf("localhost:%d", cfg.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Port),
	}
}
