package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/engine/ingest"
	"github.com/WessleyAI/wessley-rag/engine/rag"
	"github.com/WessleyAI/wessley-rag/pkg/metrics"
	"github.com/WessleyAI/wessley-rag/pkg/mid"
	"github.com/WessleyAI/wessley-rag/pkg/natsutil"
)

// NATS subjects for completed operations.
const (
	SubjectIngestCompleted = "rag.ingest.completed"
	SubjectQueryCompleted  = "rag.query.completed"
)

// uploadField is the multipart field carrying documents.
const uploadField = "files"

// server owns the current session. PUT /api/config swaps it.
type server struct {
	mu      sync.RWMutex
	session *rag.Session

	events  *natsutil.Events
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newServer(session *rag.Session, events *natsutil.Events, met *metrics.Metrics, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{session: session, events: events, metrics: met, logger: logger}
}

func (s *server) current() *rag.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("POST /api/documents", s.handleDocuments)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	DocumentsAvailable bool   `json:"documents_available"`
	Collection         string `json:"collection"`
	Chunks             uint64 `json:"chunks"`
	Model              string `json:"model"`
	EmbeddingModel     string `json:"embedding_model"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.current()
	cfg := sess.Config()
	n, err := sess.Count(r.Context())
	if err != nil && !errors.Is(err, domain.ErrCollectionNotInitialized) {
		s.fail(w, r, "status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		DocumentsAvailable: n > 0,
		Collection:         cfg.CollectionName,
		Chunks:             n,
		Model:              cfg.ModelName,
		EmbeddingModel:     cfg.EmbeddingModel,
	})
}

// ConfigResponse is the JSON response for the config endpoints.
type ConfigResponse struct {
	domain.Config
	ChatModels      []string `json:"chat_models"`
	EmbeddingModels []string `json:"embedding_models"`
	MaxK            int      `json:"max_k"`
}

func configResponse(cfg domain.Config) ConfigResponse {
	return ConfigResponse{
		Config:          cfg,
		ChatModels:      domain.ChatModels,
		EmbeddingModels: domain.EmbeddingModels,
		MaxK:            domain.MaxK,
	}
}

func (s *server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configResponse(s.current().Config()))
}

// handlePutConfig applies a partial config on top of the current one.
// Documents must be uploaded again afterwards.
func (s *server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.session.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if cfg.K > domain.MaxK {
		s.fail(w, r, "reconfigure failed",
			domain.NewValidationError("k", fmt.Sprint(cfg.K), domain.ErrInvalidConfiguration))
		return
	}
	next, err := s.session.Reconfigure(cfg)
	if err != nil {
		s.fail(w, r, "reconfigure failed", err)
		return
	}
	s.session = next
	s.logger.Info("session reconfigured", "model", cfg.ModelName, "embedding_model", cfg.EmbeddingModel, "k", cfg.K)
	writeJSON(w, http.StatusOK, configResponse(cfg))
}

// FailureJSON is one ingestion failure as reported to clients.
type FailureJSON struct {
	Document string `json:"document"`
	Stage    string `json:"stage"`
	Chunk    int    `json:"chunk"`
	Error    string `json:"error"`
}

// IngestResponse is the JSON response for POST /api/documents.
type IngestResponse struct {
	ingest.Report
	Failures []FailureJSON `json:"failures"`
}

// IngestEvent is published on SubjectIngestCompleted.
type IngestEvent struct {
	RequestID  string `json:"request_id"`
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
	Chunks     int    `json:"chunks"`
	Stored     int    `json:"stored"`
	Failures   int    `json:"failures"`
}

func (s *server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := readDocuments(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := s.current()
	report, err := sess.Ingest(r.Context(), docs, nil)
	if err != nil {
		s.fail(w, r, "ingest failed", err)
		return
	}

	resp := IngestResponse{Report: report, Failures: make([]FailureJSON, len(report.Failures))}
	for i, f := range report.Failures {
		resp.Failures[i] = FailureJSON{Document: f.Document, Stage: f.Stage, Chunk: f.Chunk, Error: f.Err.Error()}
	}
	s.events.Emit(r.Context(), SubjectIngestCompleted, IngestEvent{
		RequestID:  mid.GetRequestID(r.Context()),
		Collection: sess.Config().CollectionName,
		Documents:  report.Documents,
		Chunks:     report.Chunks,
		Stored:     report.Stored,
		Failures:   len(report.Failures),
	})
	writeJSON(w, http.StatusOK, resp)
}

// readDocuments collects every file under uploadField.
func readDocuments(r *http.Request) ([]domain.Document, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expected multipart upload: %w", err)
	}
	var docs []domain.Document
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", part.FileName(), err)
		}
		docs = append(docs, domain.Document{
			Name:      part.FileName(),
			MediaType: part.Header.Get("Content-Type"),
			Data:      data,
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no files in field %q", uploadField)
	}
	return docs, nil
}

// ChatRequest is the JSON body for POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Answer    string       `json:"answer"`
	Rewritten string       `json:"rewritten"`
	Sources   []rag.Source `json:"sources"`
	Model     string       `json:"model"`
}

// QueryEvent is published on SubjectQueryCompleted.
type QueryEvent struct {
	RequestID  string `json:"request_id"`
	Collection string `json:"collection"`
	Streamed   bool   `json:"streamed"`
	Sources    int    `json:"sources"`
	Error      string `json:"error,omitempty"`
}

func decodeChat(r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, errors.New("invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return req, errors.New("question is required")
	}
	return req, nil
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := s.current()
	answer, err := sess.Query(r.Context(), req.Question)
	s.emitQuery(r, sess, false, answer, err)
	if err != nil {
		s.fail(w, r, "rag query failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Answer:    answer.Text,
		Rewritten: answer.Rewritten,
		Sources:   answer.Sources,
		Model:     sess.Config().ModelName,
	})
}

// handleChatStream sends a "sources" event, one "token" event per
// fragment, then "done" or "error". Failures before the first event are
// plain JSON errors.
func (s *server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sess := s.current()
	stream, err := sess.QueryStream(r.Context(), req.Question)
	if err != nil {
		s.emitQuery(r, sess, true, nil, err)
		s.fail(w, r, "rag query failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sources := stream.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	writeEvent(w, "sources", sources)
	flusher.Flush()

	var streamErr error
	for frag, err := range stream.Fragments {
		if err != nil {
			streamErr = err
			break
		}
		writeEvent(w, "token", map[string]string{"token": frag})
		flusher.Flush()
	}

	s.emitQuery(r, sess, true, &rag.Answer{Sources: stream.Sources}, streamErr)
	if streamErr != nil {
		s.logger.Error("stream interrupted", "err", streamErr, "request_id", mid.GetRequestID(r.Context()))
		writeEvent(w, "error", map[string]string{"error": streamErr.Error()})
	} else {
		writeEvent(w, "done", struct{}{})
	}
	flusher.Flush()
}

func (s *server) emitQuery(r *http.Request, sess *rag.Session, streamed bool, answer *rag.Answer, err error) {
	ev := QueryEvent{
		RequestID:  mid.GetRequestID(r.Context()),
		Collection: sess.Config().CollectionName,
		Streamed:   streamed,
	}
	if answer != nil {
		ev.Sources = len(answer.Sources)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.events.Emit(r.Context(), SubjectQueryCompleted, ev)
}

// --- Errors ---

// statusFor maps pipeline error classes to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration), errors.Is(err, domain.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCollectionNotInitialized):
		return http.StatusConflict
	case errors.Is(err, rag.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case domain.IsServiceError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(msg, "err", err, "request_id", mid.GetRequestID(r.Context()))
	} else {
		s.logger.Warn(msg, "err", err, "request_id", mid.GetRequestID(r.Context()))
	}
	writeError(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeEvent(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
