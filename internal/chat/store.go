package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/logger"
	"github.com/comigor/fastbot-go/internal/session"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a credential
	// and the session has none. No remote call is made.
	ErrNotAuthenticated = errors.New("chat: not authenticated")

	// ErrConversationNotFound is returned for ids absent from the collection.
	ErrConversationNotFound = errors.New("chat: conversation not found")

	// ErrSendInFlight is returned when a conversation already has a send
	// awaiting its reply.
	ErrSendInFlight = errors.New("chat: a message is already being sent to this conversation")

	// ErrSessionChanged is returned when the session was reset while a
	// remote call was outstanding. Its result is discarded.
	ErrSessionChanged = errors.New("chat: session changed during the request")
)

// Remote is the subset of the api client the store talks to.
type Remote interface {
	ListChats(ctx context.Context) ([]api.Chat, error)
	NewChat(ctx context.Context) (api.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	SendMessage(ctx context.Context, chatID, content string) (api.Message, error)
}

// Session gates remote activity and is logged out on unauthorized results.
type Session interface {
	Authenticated() bool
	Logout(ctx context.Context) error
}

// Snapshot is a copy of the store state for rendering.
type Snapshot struct {
	Conversations []Conversation
	SelectedID    string
	Composing     bool
}

// Store owns the conversation collection and the selection. All mutation
// goes through its methods; remote calls are made without holding the lock
// so reads and other intents stay available while a call is in flight.
type Store struct {
	remote  Remote
	session Session

	mu       sync.Mutex
	convs    []*Conversation
	selected string
	inFlight map[string]bool // conversation id -> send outstanding
	epoch    uint64          // bumped by Reset

	listenersMu sync.Mutex
	listeners   []func()
}

// NewStore creates an empty store.
func NewStore(remote Remote, session Session) *Store {
	return &Store{
		remote:   remote,
		session:  session,
		inFlight: make(map[string]bool),
	}
}

// OnChange registers fn to run after every state change. fn runs outside
// the store lock and may read the store.
func (s *Store) OnChange(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.listenersMu.Lock()
	fns := slices.Clone(s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// begin captures the epoch a remote call belongs to and checks the session.
// The epoch is taken first so a logout racing the check still invalidates
// the call.
func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()
	if !s.session.Authenticated() {
		return 0, ErrNotAuthenticated
	}
	return epoch, nil
}

// stale reports whether a Reset happened since epoch. s.mu must be held.
func (s *Store) stale(epoch uint64) bool {
	return s.epoch != epoch
}

func (s *Store) discarded(op string, attrs ...any) error {
	attrs = append([]any{"op", op}, attrs...)
	logger.L.Debug("discarding result from a previous session", attrs...)
	return ErrSessionChanged
}

// failed logs err and, for unauthorized results, logs the session out
// unless the session has already been reset since epoch.
// It must be called without s.mu held.
func (s *Store) failed(ctx context.Context, epoch uint64, op string, err error, attrs ...any) error {
	attrs = append([]any{"op", op, "error", err}, attrs...)
	logger.L.Error("chat operation failed", attrs...)
	s.mu.Lock()
	current := !s.stale(epoch)
	s.mu.Unlock()
	if current && errors.Is(err, api.ErrUnauthorized) {
		if lerr := s.session.Logout(ctx); lerr != nil {
			logger.L.Error("logout after unauthorized failed", "error", lerr)
		}
	}
	return err
}

// LoadAll replaces the collection with the service's list, keeping the
// service's order. When nothing valid is selected afterwards, the first
// conversation is selected.
func (s *Store) LoadAll(ctx context.Context) error {
	epoch, err := s.begin()
	if err != nil {
		return err
	}
	chats, err := s.remote.ListChats(ctx)
	if err != nil {
		return s.failed(ctx, epoch, "load", err)
	}

	convs := make([]*Conversation, 0, len(chats))
	seen := make(map[string]bool, len(chats))
	for _, c := range chats {
		if seen[string(c.ID)] {
			logger.L.Warn("duplicate conversation id in list; keeping the first", "chat_id", c.ID)
			continue
		}
		seen[string(c.ID)] = true
		convs = append(convs, fromAPIChat(c))
	}

	s.mu.Lock()
	if s.stale(epoch) {
		s.mu.Unlock()
		return s.discarded("load")
	}
	s.convs = convs
	if s.indexOf(s.selected) < 0 {
		s.selected = s.firstID()
	}
	s.mu.Unlock()

	logger.L.Debug("conversations loaded", "count", len(convs))
	s.notify()
	return nil
}

// CreateNew asks the service for a new conversation, puts it at the front
// of the collection and selects it.
func (s *Store) CreateNew(ctx context.Context) (Conversation, error) {
	epoch, err := s.begin()
	if err != nil {
		return Conversation{}, err
	}
	chat, err := s.remote.NewChat(ctx)
	if err != nil {
		return Conversation{}, s.failed(ctx, epoch, "create", err)
	}
	conv := fromAPIChat(chat)
	if conv.Title == "" {
		conv.Title = DefaultTitle
	}

	s.mu.Lock()
	if s.stale(epoch) {
		s.mu.Unlock()
		return Conversation{}, s.discarded("create", "chat_id", conv.ID)
	}
	if i := s.indexOf(conv.ID); i >= 0 {
		s.convs = append(s.convs[:i], s.convs[i+1:]...)
	}
	s.convs = append([]*Conversation{conv}, s.convs...)
	s.selected = conv.ID
	out := conv.clone()
	s.mu.Unlock()

	logger.L.Info("conversation created", "chat_id", conv.ID)
	s.notify()
	return out, nil
}

// Select makes id the active conversation. It reports false, leaving the
// selection alone, when id is not in the collection.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return false
	}
	changed := s.selected != id
	s.selected = id
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return true
}

// Delete removes a conversation once the service has confirmed the
// deletion. A failed delete leaves the collection and selection untouched.
func (s *Store) Delete(ctx context.Context, id string) error {
	epoch, err := s.begin()
	if err != nil {
		return err
	}
	s.mu.Lock()
	known := s.indexOf(id) >= 0
	s.mu.Unlock()
	if !known {
		return ErrConversationNotFound
	}

	if err := s.remote.DeleteChat(ctx, id); err != nil {
		return s.failed(ctx, epoch, "delete", err, "chat_id", id)
	}

	s.mu.Lock()
	if s.stale(epoch) {
		s.mu.Unlock()
		return s.discarded("delete", "chat_id", id)
	}
	if i := s.indexOf(id); i >= 0 {
		s.convs = append(s.convs[:i], s.convs[i+1:]...)
	}
	if s.selected == id {
		s.selected = s.firstID()
	}
	delete(s.inFlight, id)
	s.mu.Unlock()

	logger.L.Info("conversation deleted", "chat_id", id)
	s.notify()
	return nil
}

// Send appends content to a conversation as a user message right away,
// then asks the service for the assistant reply.
//
// Empty content or an empty id is a no-op. On success the user message is
// confirmed, the reply appended, and a conversation still titled
// DefaultTitle takes its title from content. On failure the user message
// stays, marked StatusFailed. The composing flag is cleared either way.
func (s *Store) Send(ctx context.Context, conversationID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" || conversationID == "" {
		return nil
	}
	epoch, err := s.begin()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.stale(epoch) {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	i := s.indexOf(conversationID)
	if i < 0 {
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	if s.inFlight[conversationID] {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	userMsg := newMessage(RoleUser, content, StatusPending)
	s.convs[i].Messages = append(s.convs[i].Messages, userMsg)
	s.inFlight[conversationID] = true
	s.mu.Unlock()
	s.notify()

	reply, err := s.remote.SendMessage(ctx, conversationID, content)

	s.mu.Lock()
	if s.stale(epoch) {
		s.mu.Unlock()
		if err != nil {
			logger.L.Debug("send failed after the session was reset", "chat_id", conversationID, "error", err)
		}
		return s.discarded("send", "chat_id", conversationID)
	}
	delete(s.inFlight, conversationID)
	conv := s.conversation(conversationID)
	if conv != nil {
		if m := conv.message(userMsg.LocalID); m != nil {
			m.Status = StatusConfirmed
			if err != nil {
				m.Status = StatusFailed
			}
		}
		if err == nil {
			conv.Messages = append(conv.Messages, fromAPIMessage(reply))
			if conv.Title == DefaultTitle {
				conv.Title = titleFrom(content)
			}
		}
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		return s.failed(ctx, epoch, "send", err, "chat_id", conversationID)
	}
	if conv == nil {
		// deleted while the reply was on its way
		logger.L.Debug("dropping reply for a conversation no longer present", "chat_id", conversationID)
	}
	return nil
}

// Reset drops every conversation and the selection. Remote calls started
// before Reset discard their results.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.convs = nil
	s.selected = ""
	s.inFlight = make(map[string]bool)
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Conversations: make([]Conversation, 0, len(s.convs)),
		SelectedID:    s.selected,
		Composing:     len(s.inFlight) > 0,
	}
	for _, c := range s.convs {
		out.Conversations = append(out.Conversations, c.clone())
	}
	return out
}

// Selected returns a copy of the active conversation.
func (s *Store) Selected() (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.conversation(s.selected); c != nil {
		return c.clone(), true
	}
	return Conversation{}, false
}

// SelectedID returns the active conversation id, or "" when none is.
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(s.selected) < 0 {
		return ""
	}
	return s.selected
}

// Composing reports whether any send is awaiting its reply.
func (s *Store) Composing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight) > 0
}

// Get returns a copy of the conversation with the given id.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.conversation(id); c != nil {
		return c.clone(), nil
	}
	return Conversation{}, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) conversation(id string) *Conversation {
	if i := s.indexOf(id); i >= 0 {
		return s.convs[i]
	}
	return nil
}

func (s *Store) firstID() string {
	if len(s.convs) == 0 {
		return ""
	}
	return s.convs[0].ID
}

// Lifecycle is the part of the session store the conversation store follows.
type Lifecycle interface {
	OnLogin(func(context.Context, session.Credential))
	OnLogout(func())
}

// Follow ties the store to a session: every login reloads the list and
// every logout clears the collection, so nothing survives a logout even in
// memory.
func (s *Store) Follow(l Lifecycle) {
	l.OnLogin(func(ctx context.Context, _ session.Credential) {
		if err := s.LoadAll(ctx); err != nil {
			logger.L.Warn("reload after login failed", "error", err)
		}
	})
	l.OnLogout(s.Reset)
}
