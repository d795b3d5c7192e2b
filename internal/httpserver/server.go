// Package httpserver exposes the derived feed read model, the mutation
// endpoints used by the presentation layer, and the websocket channel that
// pushes change notifications after every rebuild.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/murmurfeed/murmur/internal/config"
	"github.com/murmurfeed/murmur/internal/domain"
	"github.com/murmurfeed/murmur/internal/metrics"
)

// Server is the HTTP server over the feed engine.
type Server struct {
	cfg        config.ServerConfig
	engine     *domain.Engine
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer wires the routes and returns a server ready to Start.
func NewServer(cfg config.ServerConfig, engine *domain.Engine, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /feed", s.handleFeed)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /posts", s.handleCreatePost)
	mux.HandleFunc("PATCH /posts/{id}", s.handleEditPost)
	mux.HandleFunc("DELETE /posts/{id}", s.handleDeletePost)
	mux.HandleFunc("POST /posts/{id}/comments", s.handleComment)
	mux.HandleFunc("POST /posts/{id}/reports", s.handleReport)
	mux.HandleFunc("POST /posts/{id}/shares", s.handleShare)
	mux.HandleFunc("POST /comments/{id}/replies", s.handleReply)
	mux.HandleFunc("POST /reactions", s.handleReact)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
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

// Handler exposes the full handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFeed serves a page of the derived feed document. The cursor is an
// opaque offset; batch_size is the default page.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.BatchSize
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	offset := 0
	if c := r.URL.Query().Get("cursor"); c != "" {
		parsed, err := strconv.Atoi(c)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid cursor")
			return
		}
		offset = parsed
	}

	entries := s.engine.FeedEntries()
	meta := s.engine.FeedMeta()

	if offset > len(entries) {
		offset = len(entries)
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}

	resp := map[string]any{
		"meta":  meta,
		"posts": entries[offset:end],
	}
	if end < len(entries) {
		resp["cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

type createPostRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Author == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "author and content are required")
		return
	}
	post, err := s.engine.CreatePost(r.Context(), req.Author, req.Content)
	if err != nil {
		s.writeMutationError(w, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": post.ID})
}

type reactRequest struct {
	TargetID string `json:"target_id"`
	User     string `json:"user"`
	Emoji    string `json:"emoji"`
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TargetID == "" || req.User == "" || req.Emoji == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "target_id, user, and emoji are required")
		return
	}
	if err := s.engine.React(r.Context(), req.TargetID, req.User, req.Emoji); err != nil {
		s.writeMutationError(w, "react", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type commentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Author == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "author and content are required")
		return
	}
	comment, err := s.engine.CommentOn(r.Context(), r.PathValue("id"), req.Author, req.Content)
	if err != nil {
		s.writeMutationError(w, "comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": comment.ID})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Author == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "author and content are required")
		return
	}
	reply, err := s.engine.ReplyTo(r.Context(), r.PathValue("id"), req.Author, req.Content)
	if err != nil {
		s.writeMutationError(w, "reply", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": reply.ID})
}

type editRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "content is required")
		return
	}
	if err := s.engine.Edit(r.Context(), r.PathValue("id"), req.Content); err != nil {
		s.writeMutationError(w, "edit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reportRequest struct {
	Reporter string `json:"reporter"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reporter == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "reporter is required")
		return
	}
	if err := s.engine.Report(r.Context(), r.PathValue("id"), req.Reporter); err != nil {
		s.writeMutationError(w, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeMutationError(w, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type shareRequest struct {
	Author  string `json:"author"`
	Mode    string `json:"mode"`
	Content string `json:"content"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Author == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "author is required")
		return
	}
	shared, err := s.engine.Share(r.Context(), r.PathValue("id"), domain.PostKind(req.Mode), req.Author, req.Content)
	if err != nil {
		s.writeMutationError(w, "share", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": shared.ID})
}

// writeMutationError maps engine failures onto recoverable, actionable
// responses. The interface layer never crashes on a failed mutation.
func (s *Server) writeMutationError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
		return
	}
	s.logger.Error("mutation failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "InternalError", op+" failed, please retry")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
		return false
	}
	return true
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
