package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/feed-fanout/internal/auth"
	"github.com/blackmichael/feed-fanout/internal/domain"
)

const defaultFeedLimit = 50

// Server is the HTTP server exposing the engine's read-side operations and
// the change-stream subscription endpoint.
type Server struct {
	reader     *domain.FeedReader
	marker     *domain.ReadMarker
	verifier   *auth.Verifier
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server. stream may be nil when no broadcaster
// endpoint should be exposed.
func NewServer(
	port int,
	reader *domain.FeedReader,
	marker *domain.ReadMarker,
	verifier *auth.Verifier,
	stream http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		reader:   reader,
		marker:   marker,
		verifier: verifier,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/feed/following", s.handleFollowingFeed)
	mux.HandleFunc("GET /v1/feed/explore", s.handleExploreFeed)
	mux.HandleFunc("POST /v1/feed/read", s.handleMarkAsRead)
	mux.HandleFunc("GET /health", s.handleHealth)
	if stream != nil {
		mux.Handle("GET /v1/stream/subscribe", stream)
	}

	// No WriteTimeout: the stream endpoint holds its connection open.
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     withLogging(logger, mux),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFollowingFeed(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.UserID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := s.reader.GetFollowingFeed(r.Context(), userID, limit, cursor)
	if err != nil {
		s.logger.Error("failed to get following feed",
			"user_id", userID,
			"limit", limit,
			"cursor", cursor,
			"error", err,
		)
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(page))
}

func (s *Server) handleExploreFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := s.reader.GetFeed(r.Context(), limit, cursor)
	if err != nil {
		s.logger.Error("failed to get explore feed", "limit", limit, "cursor", cursor, "error", err)
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeedResponse(page))
}

func (s *Server) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.UserID(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var body struct {
		PostIDs []string `json:"postIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be JSON with a postIds array")
		return
	}

	updated, err := s.marker.MarkAsRead(r.Context(), userID, body.PostIDs)
	if err != nil {
		s.logger.Error("failed to mark as read",
			"user_id", userID,
			"post_ids", len(body.PostIDs),
			"error", err,
		)
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updatedCount": updated})
}

func parseLimit(r *http.Request) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return defaultFeedLimit, nil
	}
	parsed, err := strconv.Atoi(l)
	if err != nil {
		return 0, domain.Validationf("limit must be an integer, got %q", l)
	}
	return parsed, nil
}

// feedEntryResponse is the wire shape of one feed entry.
type feedEntryResponse struct {
	PostID            string   `json:"postId"`
	AuthorID          string   `json:"authorId"`
	AuthorHandle      string   `json:"authorHandle"`
	AuthorDisplayName string   `json:"authorDisplayName,omitempty"`
	AuthorAvatarURL   string   `json:"authorAvatarUrl,omitempty"`
	Caption           string   `json:"caption"`
	MediaURLs         []string `json:"mediaUrls,omitempty"`
	CreatedAt         string   `json:"createdAt"`
	LikesCount        int64    `json:"likesCount"`
	CommentsCount     int64    `json:"commentsCount"`
	IsLiked           bool     `json:"isLiked"`
}

func toFeedResponse(page *domain.FeedPage) map[string]any {
	items := make([]feedEntryResponse, len(page.Entries))
	for i, e := range page.Entries {
		items[i] = feedEntryResponse{
			PostID:            e.PostID,
			AuthorID:          e.AuthorID,
			AuthorHandle:      e.AuthorHandle,
			AuthorDisplayName: e.AuthorDisplayName,
			AuthorAvatarURL:   e.AuthorAvatarURL,
			Caption:           e.Caption,
			MediaURLs:         e.MediaURLs,
			CreatedAt:         e.CreatedAt.UTC().Format(time.RFC3339Nano),
			LikesCount:        e.LikesCount,
			CommentsCount:     e.CommentsCount,
			IsLiked:           e.IsLiked,
		}
	}
	resp := map[string]any{"items": items}
	if page.Cursor != "" {
		resp["nextCursor"] = page.Cursor
	}
	return resp
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case domain.IsAuth(err):
		writeError(w, http.StatusUnauthorized, "AuthRequired", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "InternalError", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
