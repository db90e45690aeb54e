// Package server exposes the answering pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"watchrag/internal/domain"
	"watchrag/internal/service"
)

// EmptyQuestionWarning is sent back over the chat socket for blank input.
const EmptyQuestionWarning = "Por favor, escribe una pregunta."

// Answerer is the server-facing subset of the RAG service.
type Answerer interface {
	Answer(ctx context.Context, question string) (service.AnswerResult, error)
}

type askResponse struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

type chatIn struct {
	Message string `json:"message"`
}

type chatOut struct {
	User       string  `json:"user"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

type Server struct {
	rag      Answerer
	log      *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
}

func New(rag Answerer, log *slog.Logger) *Server {
	return &Server{
		rag: rag,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ask", enableCORS(s.handleAsk))
	mux.HandleFunc("GET /ws/chat", s.handleChat)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.log.Info("Serving", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	res, err := s.rag.Answer(r.Context(), r.URL.Query().Get("q"))
	if errors.Is(err, domain.ErrEmptyQuestion) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter q is required"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: res.Answer, Confidence: res.Confidence})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	for {
		var in chatIn
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Chat connection closed", slog.Any("error", err))
			}
			return
		}

		out := chatOut{User: in.Message}
		res, err := s.rag.Answer(r.Context(), in.Message)
		switch {
		case errors.Is(err, domain.ErrEmptyQuestion):
			out.Message = EmptyQuestionWarning
		case err != nil:
			out.Message = err.Error()
		default:
			out.Message = res.Answer
			out.Confidence = res.Confidence
		}
		if err := conn.WriteJSON(out); err != nil {
			s.log.Debug("Chat write failed", slog.Any("error", err))
			return
		}
	}
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		next.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
