// Package upstreamtest provides an in-process fake of the remote chat API.
package upstreamtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/unigo-labs/unigo-chat/internal/domain"
)

// Server is a fake remote API backed by httptest.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	authenticated bool
	failChat      bool
	conversations map[string]domain.Conversation
	saved         int
	chats         []string
}

// New starts a fake API and stops it when t finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{conversations: map[string]domain.Conversation{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", s.me)
	mux.HandleFunc("GET /api/chat/history", s.history)
	mux.HandleFunc("POST /api/chat", s.chat)
	mux.HandleFunc("POST /api/onboarding", s.onboarding)
	mux.HandleFunc("POST /api/chat/save", s.save)
	mux.HandleFunc("POST /api/chat/reset", s.reset)
	mux.HandleFunc("GET /api/chat/list", s.list)
	mux.HandleFunc("GET /api/chat/load", s.load)
	mux.HandleFunc("POST /api/chat/summarize", s.summarize)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetAuthenticated switches the auth check result.
func (s *Server) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
}

// SetChatFailure makes the chat endpoint return 500.
func (s *Server) SetChatFailure(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failChat = v
}

// AddConversation stores a conversation served by the load endpoint.
func (s *Server) AddConversation(c domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID.String()] = c
}

// Saved returns how many times history was saved.
func (s *Server) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Chats returns the chat messages received so far.
func (s *Server) Chats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chats...)
}

func (s *Server) isAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) me(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"is_authenticated": s.isAuthenticated()})
}

func (s *Server) history(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"history": []domain.ChatMessage{}})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	fail := s.failChat
	s.chats = append(s.chats, req.Message)
	s.mu.Unlock()
	if fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"response": "echo: " + req.Message, "conversation_id": 101})
}

func (s *Server) onboarding(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"recommended_majors": []map[string]any{
		{"major_name": "컴퓨터공학", "score": 0.93, "cluster": "공학"},
		{"major_name": "데이터사이언스", "score": 0.88, "cluster": "공학"},
	}})
}

func (s *Server) save(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.saved++
	s.mu.Unlock()
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) reset(w http.ResponseWriter, _ *http.Request) {
	if !s.isAuthenticated() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConversationSummary, 0, len(s.conversations))
	for id, c := range s.conversations {
		out = append(out, domain.ConversationSummary{ID: domain.FlexString(id), Title: c.Title, MessageCount: len(c.Messages)})
	}
	writeJSON(w, map[string]any{"conversations": out})
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.conversations[r.URL.Query().Get("conversation_id")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"conversation": c})
}

func (s *Server) summarize(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"summary": "대화 요약\n끝"})
}
