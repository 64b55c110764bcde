// Package devserver is an in-process implementation of the chat and auth
// API, used for local development and end-to-end tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/logger"
)

const (
	defaultTitle = "New Chat"
	titleLength  = 30
	maxBodySize  = 1 << 20
)

type user struct {
	email    string
	fullName string
	hash     []byte
	chats    []*chat // oldest first
}

type chat struct {
	id       int
	title    string
	messages []api.Message
}

// chatJSON encodes ids as numbers, the way the production service does.
type chatJSON struct {
	ID       int           `json:"id"`
	Title    string        `json:"title"`
	Messages []api.Message `json:"messages"`
}

func (c *chat) toJSON() chatJSON {
	msgs := make([]api.Message, len(c.messages))
	copy(msgs, c.messages)
	return chatJSON{ID: c.id, Title: c.title, Messages: msgs}
}

// Server holds every user, token and chat in memory.
type Server struct {
	responder  Responder
	bcryptCost int

	mu     sync.Mutex
	users  map[string]*user // by email
	tokens map[string]*user
	nextID int
}

// Option configures a Server.
type Option func(*Server)

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// New creates a Server answering messages with responder.
func New(responder Responder, opts ...Option) *Server {
	s := &Server{
		responder:  responder,
		bcryptCost: bcrypt.DefaultCost,
		users:      make(map[string]*user),
		tokens:     make(map[string]*user),
		nextID:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /chats", s.authed(s.handleListChats))
	mux.HandleFunc("POST /chats/new", s.authed(s.handleNewChat))
	mux.HandleFunc("POST /chats/message", s.authed(s.handleMessage))
	mux.HandleFunc("DELETE /chats/{id}", s.authed(s.handleDeleteChat))
	return logRequests(mux)
}

// ListenAndServe serves the API on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("dev server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.L.Info("shutting down server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dev server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dev server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		FullName string `json:"fullName"`
	}
	if !decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" {
		writeDetail(w, http.StatusBadRequest, "Email, password and full name are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		logger.L.Error("hashing password failed", "error", err)
		writeDetail(w, http.StatusBadRequest, "Password could not be used")
		return
	}

	s.mu.Lock()
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.users[email] = &user{email: email, fullName: strings.TrimSpace(req.FullName), hash: hash}
	s.mu.Unlock()

	logger.L.Info("user registered", "email", email)
	writeJSON(w, http.StatusCreated, map[string]string{"email": email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	s.mu.Lock()
	u := s.users[email]
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = u
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, api.LoginResponse{AccessToken: token, Username: u.fullName})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

// authed resolves the bearer token to a user or answers 401.
func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		s.mu.Lock()
		u := s.tokens[token]
		s.mu.Unlock()
		if u == nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next(w, r, u)
	}
}

// Revoke invalidates a token. Later calls with it answer 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *Server) handleListChats(w http.ResponseWriter, _ *http.Request, u *user) {
	s.mu.Lock()
	out := make([]chatJSON, 0, len(u.chats))
	for i := len(u.chats) - 1; i >= 0; i-- {
		out = append(out, u.chats[i].toJSON())
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNewChat(w http.ResponseWriter, _ *http.Request, u *user) {
	s.mu.Lock()
	c := &chat{id: s.nextID, title: defaultTitle}
	s.nextID++
	u.chats = append(u.chats, c)
	out := c.toJSON()
	s.mu.Unlock()

	logger.L.Debug("chat created", "chat_id", out.ID, "email", u.email)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request, u *user) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}

	s.mu.Lock()
	i := u.chatIndex(id)
	if i >= 0 {
		u.chats = append(u.chats[:i], u.chats[i+1:]...)
	}
	s.mu.Unlock()

	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	logger.L.Debug("chat deleted", "chat_id", id, "email", u.email)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, u *user) {
	var req struct {
		ChatID  api.ID `json:"chatId"`
		Content string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := strconv.Atoi(string(req.ChatID))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeDetail(w, http.StatusBadRequest, "Message content is required")
		return
	}

	s.mu.Lock()
	i := u.chatIndex(id)
	if i < 0 {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	c := u.chats[i]
	c.messages = append(c.messages, api.Message{Role: "user", Content: content})
	if c.title == defaultTitle {
		c.title = title(content)
	}
	history := make([]api.Message, len(c.messages))
	copy(history, c.messages)
	s.mu.Unlock()

	reply, err := s.responder.Reply(r.Context(), history)
	if err != nil {
		logger.L.Error("responder failed", "chat_id", id, "error", err)
		writeDetail(w, http.StatusBadGateway, "Failed to generate a reply")
		return
	}
	bot := api.Message{Role: "assistant", Content: reply}

	s.mu.Lock()
	c.messages = append(c.messages, bot)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]api.Message{"bot_message": bot})
}

func (u *user) chatIndex(id int) int {
	for i, c := range u.chats {
		if c.id == id {
			return i
		}
	}
	return -1
}

func title(content string) string {
	if utf8.RuneCountInString(content) <= titleLength {
		return content
	}
	return string([]rune(content)[:titleLength])
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warn("writing response failed", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.L.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", r.Header.Get("X-Request-ID"),
			"duration", time.Since(start),
		)
	})
}
