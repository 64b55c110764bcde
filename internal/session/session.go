// Package session holds the authenticated credential and its two-state
// lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/fastbot-go/internal/kv"
	"github.com/comigor/fastbot-go/internal/logger"
)

// Storage keys of the persisted credential.
const (
	TokenKey = "fastbot_token"
	UserKey  = "fastbot_user"
)

// State of the session FSM.
type State string

const (
	StateUnauthenticated State = "Unauthenticated"
	StateAuthenticated   State = "Authenticated"
)

// Trigger of the session FSM.
type Trigger string

const (
	TriggerRestore Trigger = "Restore"
	TriggerLogin   Trigger = "Login"
	TriggerLogout  Trigger = "Logout"
)

// ErrEmptyToken is returned by Login when the credential has no token.
var ErrEmptyToken = errors.New("session: empty token")

// Credential is the opaque bearer token plus the display name shown to the
// user.
type Credential struct {
	Token       string
	DisplayName string
}

// Store holds the current credential. It starts unauthenticated; Restore,
// Login and Logout are the only ways to move between states.
type Store struct {
	kv kv.Store

	mu   sync.RWMutex
	fsm  *stateless.StateMachine
	cred Credential

	listenersMu sync.Mutex
	onLogin     []func(context.Context, Credential)
	onLogout    []func()
}

// New creates a Store persisting its credential in storage.
func New(storage kv.Store) *Store {
	s := &Store{kv: storage}

	fsm := stateless.NewStateMachine(StateUnauthenticated)
	fsm.Configure(StateUnauthenticated).
		Permit(TriggerRestore, StateAuthenticated).
		Permit(TriggerLogin, StateAuthenticated).
		Ignore(TriggerLogout)
	fsm.Configure(StateAuthenticated).
		PermitReentry(TriggerLogin).
		Ignore(TriggerRestore).
		Permit(TriggerLogout, StateUnauthenticated)
	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.L.Debug("session transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})
	s.fsm = fsm

	return s
}

// Restore reads a previously persisted credential. A stored token moves the
// session to authenticated; no network call is made either way.
func (s *Store) Restore(ctx context.Context) error {
	token, ok, err := s.kv.Get(ctx, TokenKey)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok || token == "" {
		logger.L.Debug("no stored credential")
		return nil
	}
	name, _, err := s.kv.Get(ctx, UserKey)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fsm.FireCtx(ctx, TriggerRestore); err != nil {
		return err
	}
	s.cred = Credential{Token: token, DisplayName: name}
	logger.L.Info("session restored", "user", name)
	return nil
}

// Login persists cred, makes the session authenticated and then runs the
// login listeners (the conversation store reloads its list there).
func (s *Store) Login(ctx context.Context, cred Credential) error {
	if cred.Token == "" {
		return ErrEmptyToken
	}
	if err := s.kv.Set(ctx, TokenKey, cred.Token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	if err := s.kv.Set(ctx, UserKey, cred.DisplayName); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	s.mu.Lock()
	if err := s.fsm.FireCtx(ctx, TriggerLogin); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cred = cred
	s.mu.Unlock()
	logger.L.Info("logged in", "user", cred.DisplayName)

	for _, fn := range s.loginListeners() {
		fn(ctx, cred)
	}
	return nil
}

// Logout clears the persisted credential, makes the session
// unauthenticated and runs the logout listeners. An expired credential and
// an explicit logout take the same path.
func (s *Store) Logout(ctx context.Context) error {
	// storage is cleared even when already logged out, so a stale entry
	// can never resurrect the session on the next Restore
	if err := s.kv.Delete(ctx, TokenKey, UserKey); err != nil {
		logger.L.Error("failed to clear stored credential", "error", err)
	}

	s.mu.Lock()
	wasAuthenticated := s.state() == StateAuthenticated
	if err := s.fsm.FireCtx(ctx, TriggerLogout); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cred = Credential{}
	s.mu.Unlock()

	if wasAuthenticated {
		logger.L.Info("logged out")
	}
	for _, fn := range s.logoutListeners() {
		fn()
	}
	return nil
}

// OnLogin registers fn to run after every successful Login.
func (s *Store) OnLogin(fn func(context.Context, Credential)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.onLogin = append(s.onLogin, fn)
}

// OnLogout registers fn to run after every Logout.
func (s *Store) OnLogout(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

func (s *Store) loginListeners() []func(context.Context, Credential) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return slices.Clone(s.onLogin)
}

func (s *Store) logoutListeners() []func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return slices.Clone(s.onLogout)
}

// State returns the current FSM state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state()
}

func (s *Store) state() State {
	return s.fsm.MustState().(State)
}

// Authenticated reports whether a credential is held.
func (s *Store) Authenticated() bool {
	return s.State() == StateAuthenticated
}

// Credential returns the current credential and whether there is one.
func (s *Store) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.state() == StateAuthenticated
}

// Token implements api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Token
}
