package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"swarmstream/internal/domain"
	"swarmstream/internal/usecase"
)

type StreamTorrentUseCase interface {
	Execute(ctx context.Context, id domain.ContentID, src domain.TorrentSource, fileIndex int) (usecase.StreamResult, error)
}

type ResolveMetadataUseCase interface {
	Execute(ctx context.Context, src domain.TorrentSource) (domain.TorrentSummary, bool, error)
}

type StreamStatsProvider interface {
	List(ctx context.Context) ([]usecase.StreamStats, error)
	Get(ctx context.Context, id domain.ContentID) (usecase.StreamStats, error)
}

// StreamCounter tracks open consumer streams per content id. The handler
// reports open on first byte served and close when the consumer goes away,
// so the count mirrors live HTTP connections exactly.
type StreamCounter interface {
	StreamOpened(ctx context.Context, id domain.ContentID, name string)
	StreamClosed(ctx context.Context, id domain.ContentID)
}

type EventStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.StreamEvent, error)
}

type Server struct {
	streamTorrent  StreamTorrentUseCase
	resolve        ResolveMetadataUseCase
	stats          StreamStatsProvider
	counter        StreamCounter
	history        EventStore
	allowedOrigins []string
	torrentDirs    []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithResolveMetadata(uc ResolveMetadataUseCase) ServerOption {
	return func(s *Server) {
		s.resolve = uc
	}
}

func WithStats(provider StreamStatsProvider) ServerOption {
	return func(s *Server) {
		s.stats = provider
	}
}

func WithStreamCounter(counter StreamCounter) ServerOption {
	return func(s *Server) {
		s.counter = counter
	}
}

func WithHistory(store EventStore) ServerOption {
	return func(s *Server) {
		s.history = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithTorrentDirs whitelists the directories a caller-supplied torrentPath
// may point into. With no dirs configured, torrentPath is rejected outright;
// the resolver must never read arbitrary server-side files.
func WithTorrentDirs(dirs ...string) ServerOption {
	return func(s *Server) {
		s.torrentDirs = dirs
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(stream StreamTorrentUseCase, opts ...ServerOption) *Server {
	s := &Server{
		streamTorrent: stream,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/resolve", s.handleResolve)
	mux.HandleFunc("/api/v1/streams", s.handleStreams)
	mux.HandleFunc("/api/v1/streams/", s.handleStreamByID)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/stream", s.handleStreamBySource)
	mux.HandleFunc("/stream/", s.handleStreamByPath)
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "swarmstream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/stream")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastStats pushes the current per-session stats to all connected
// WebSocket clients.
func (s *Server) BroadcastStats(stats []usecase.StreamStats) {
	if s.wsHub != nil {
		s.wsHub.Broadcast("streams", stats)
	}
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
