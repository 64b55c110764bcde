// Package auth drives the sign-in screen: the login and signup form, and
// sign-in through an external identity provider.
//
// The provider is an injection point. NewForm accepts any IdentityProvider,
// and a nil provider makes SignInWithProvider report MsgProviderUnavailable.
// The fastbot binary passes nil.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/logger"
	"github.com/comigor/fastbot-go/internal/session"
)

// Inline messages shown on the form.
const (
	MsgMissingFields       = "Please fill in all fields."
	MsgAuthFailed          = "Authentication failed"
	MsgAccountCreated      = "Account created! Please sign in."
	MsgSignInCancelled     = "Sign-in cancelled."
	MsgProviderUnavailable = "Identity provider sign-in is not configured."
	MsgProviderFailed      = "Failed to sign in with the identity provider."
)

// Mode of the form.
type Mode int

const (
	ModeLogin Mode = iota
	ModeSignup
)

func (m Mode) String() string {
	if m == ModeSignup {
		return "signup"
	}
	return "login"
}

// ErrSignInCancelled is returned by an IdentityProvider when the user
// dismissed the sign-in.
var ErrSignInCancelled = errors.New("sign-in cancelled")

// Assertion is the result of an external identity-provider sign-in.
type Assertion struct {
	IDToken     string
	DisplayName string
}

// IdentityProvider runs an external sign-in flow.
type IdentityProvider interface {
	SignIn(ctx context.Context) (Assertion, error)
}

// Backend is the unauthenticated part of the api client.
type Backend interface {
	Login(ctx context.Context, email, password string) (api.LoginResponse, error)
	Signup(ctx context.Context, email, password, fullName string) error
}

// Session receives the credential once sign-in succeeds.
type Session interface {
	Login(ctx context.Context, cred session.Credential) error
}

// Fields are the editable inputs of the form.
type Fields struct {
	Email    string
	Password string
	FullName string
}

// State is a copy of the form state for rendering.
type State struct {
	Mode         Mode
	Fields       Fields
	ShowPassword bool
	Busy         bool
	Error        string
	Notice       string
}

// Form is the login/signup form controller. Failures never escape as
// errors to the caller's UI; they land in State.Error.
type Form struct {
	backend  Backend
	session  Session
	provider IdentityProvider // nil when not configured

	mu    sync.Mutex
	state State
}

// NewForm creates a form in login mode. provider may be nil.
func NewForm(backend Backend, sess Session, provider IdentityProvider) *Form {
	return &Form{backend: backend, session: sess, provider: provider}
}

// State returns a copy of the form state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SetFields replaces the input values.
func (f *Form) SetFields(fields Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Fields = fields
}

// TogglePassword flips password visibility.
func (f *Form) TogglePassword() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.ShowPassword = !f.state.ShowPassword
}

// ToggleMode switches between login and signup, clearing the inputs, the
// messages and password visibility.
func (f *Form) ToggleMode() {
	f.mu.Lock()
	defer f.mu.Unlock()
	mode := ModeSignup
	if f.state.Mode == ModeSignup {
		mode = ModeLogin
	}
	f.state = State{Mode: mode}
}

// HasProvider reports whether identity-provider sign-in is available.
func (f *Form) HasProvider() bool {
	return f.provider != nil
}

// begin clears messages and marks the form busy. It returns false if a
// submission is already running.
func (f *Form) begin() (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Busy {
		return f.state, false
	}
	f.state.Error = ""
	f.state.Notice = ""
	f.state.Busy = true
	return f.state, true
}

func (f *Form) finish(update func(*State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Busy = false
	if update != nil {
		update(&f.state)
	}
}

func (f *Form) fail(msg string) {
	f.finish(func(s *State) { s.Error = msg })
}

// Submit runs login or signup for the current mode. It reports whether the
// session was logged in.
func (f *Form) Submit(ctx context.Context) bool {
	st, ok := f.begin()
	if !ok {
		return false
	}

	in := st.Fields
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" || (st.Mode == ModeSignup && strings.TrimSpace(in.FullName) == "") {
		f.fail(MsgMissingFields)
		return false
	}

	if st.Mode == ModeSignup {
		if err := f.backend.Signup(ctx, email, in.Password, strings.TrimSpace(in.FullName)); err != nil {
			logger.L.Warn("signup failed", "error", err)
			f.fail(message(err))
			return false
		}
		logger.L.Info("account created", "email", email)
		f.finish(func(s *State) {
			*s = State{Mode: ModeLogin, Fields: Fields{Email: email}, Notice: MsgAccountCreated}
		})
		return false
	}

	resp, err := f.backend.Login(ctx, email, in.Password)
	if err != nil {
		logger.L.Warn("login failed", "error", err)
		f.fail(message(err))
		return false
	}
	if err := f.session.Login(ctx, session.Credential{Token: resp.AccessToken, DisplayName: resp.Username}); err != nil {
		logger.L.Error("storing credential failed", "error", err)
		f.fail(err.Error())
		return false
	}
	f.finish(func(s *State) { *s = State{Mode: ModeLogin} })
	return true
}

// SignInWithProvider runs the external identity-provider flow and logs the
// session in with its assertion. It reports whether the session was logged in.
func (f *Form) SignInWithProvider(ctx context.Context) bool {
	if f.provider == nil {
		f.mu.Lock()
		f.state.Error = MsgProviderUnavailable
		f.state.Notice = ""
		f.mu.Unlock()
		return false
	}
	if _, ok := f.begin(); !ok {
		return false
	}

	a, err := f.provider.SignIn(ctx)
	switch {
	case errors.Is(err, ErrSignInCancelled):
		f.fail(MsgSignInCancelled)
		return false
	case err != nil:
		logger.L.Warn("identity provider sign-in failed", "error", err)
		msg := err.Error()
		if msg == "" {
			msg = MsgProviderFailed
		}
		f.fail(msg)
		return false
	}

	if err := f.session.Login(ctx, session.Credential{Token: a.IDToken, DisplayName: a.DisplayName}); err != nil {
		logger.L.Error("storing credential failed", "error", err)
		f.fail(err.Error())
		return false
	}
	f.finish(func(s *State) { *s = State{Mode: ModeLogin} })
	return true
}

// message turns a backend failure into the inline form message.
func message(err error) string {
	if errors.Is(err, api.ErrTimeout) {
		return "The server did not respond in time."
	}
	var te *api.TransportError
	if errors.As(err, &te) {
		return "Could not reach the server."
	}
	return api.Detail(err, MsgAuthFailed)
}
