package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/comigor/fastbot-go/internal/api"
)

type responderFunc func(ctx context.Context, history []api.Message) (string, error)

func (f responderFunc) Reply(ctx context.Context, history []api.Message) (string, error) {
	return f(ctx, history)
}

func newTestServer(t *testing.T, r Responder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(r, WithBcryptCost(bcrypt.MinCost)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, token, body string) (int, map[string]any, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func signupAndLogin(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	status, _, _ := call(t, srv, http.MethodPost, "/auth/signup", "", `{"email":"ada@example.com","password":"pw","fullName":"Ada"}`)
	require.Equal(t, http.StatusCreated, status)
	status, body, _ := call(t, srv, http.MethodPost, "/auth/login", "", `{"email":"ada@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Ada", body["username"])
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestSignup_DuplicateEmail(t *testing.T) {
	srv := newTestServer(t, Echo{})
	signupAndLogin(t, srv)

	status, body, _ := call(t, srv, http.MethodPost, "/auth/signup", "", `{"email":"ADA@example.com","password":"x","fullName":"Other"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Email already registered", body["detail"])
}

func TestSignup_MissingFields(t *testing.T) {
	srv := newTestServer(t, Echo{})
	status, body, _ := call(t, srv, http.MethodPost, "/auth/signup", "", `{"email":"a@b.c","password":"pw"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, body["detail"])
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := newTestServer(t, Echo{})
	signupAndLogin(t, srv)

	for _, body := range []string{
		`{"email":"ada@example.com","password":"wrong"}`,
		`{"email":"nobody@example.com","password":"pw"}`,
	} {
		status, resp, _ := call(t, srv, http.MethodPost, "/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "Invalid email or password", resp["detail"])
	}
}

func TestChats_RequireToken(t *testing.T) {
	srv := newTestServer(t, Echo{})
	for _, tc := range []struct{ method, path, token string }{
		{http.MethodGet, "/chats", ""},
		{http.MethodGet, "/chats", "bogus"},
		{http.MethodPost, "/chats/new", ""},
		{http.MethodDelete, "/chats/1", ""},
		{http.MethodPost, "/chats/message", "bogus"},
	} {
		status, body, _ := call(t, srv, tc.method, tc.path, tc.token, "")
		require.Equal(t, http.StatusUnauthorized, status, "%s %s", tc.method, tc.path)
		require.NotEmpty(t, body["detail"])
	}
}

func TestChats_NewestFirstAndDelete(t *testing.T) {
	srv := newTestServer(t, Echo{})
	token := signupAndLogin(t, srv)

	var ids []float64
	for range 3 {
		status, body, _ := call(t, srv, http.MethodPost, "/chats/new", token, "")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "New Chat", body["title"])
		ids = append(ids, body["id"].(float64))
	}

	status, _, raw := call(t, srv, http.MethodGet, "/chats", token, "")
	require.Equal(t, http.StatusOK, status)
	var list []chatJSON
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 3)
	require.Equal(t, []int{int(ids[2]), int(ids[1]), int(ids[0])}, []int{list[0].ID, list[1].ID, list[2].ID})

	status, _, _ = call(t, srv, http.MethodDelete, "/chats/"+jsonNumber(ids[1]), token, "")
	require.Equal(t, http.StatusOK, status)
	status, body, _ := call(t, srv, http.MethodDelete, "/chats/"+jsonNumber(ids[1]), token, "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Chat not found", body["detail"])
	status, _, _ = call(t, srv, http.MethodDelete, "/chats/not-a-number", token, "")
	require.Equal(t, http.StatusNotFound, status)

	_, _, raw = call(t, srv, http.MethodGet, "/chats", token, "")
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 2)
}

func TestChats_AreScopedToTheirOwner(t *testing.T) {
	srv := newTestServer(t, Echo{})
	ada := signupAndLogin(t, srv)
	_, created, _ := call(t, srv, http.MethodPost, "/chats/new", ada, "")

	call(t, srv, http.MethodPost, "/auth/signup", "", `{"email":"bob@example.com","password":"pw","fullName":"Bob"}`)
	_, login, _ := call(t, srv, http.MethodPost, "/auth/login", "", `{"email":"bob@example.com","password":"pw"}`)
	bob := login["access_token"].(string)

	_, _, raw := call(t, srv, http.MethodGet, "/chats", bob, "")
	require.JSONEq(t, `[]`, string(raw))
	status, _, _ := call(t, srv, http.MethodDelete, "/chats/"+jsonNumber(created["id"].(float64)), bob, "")
	require.Equal(t, http.StatusNotFound, status)
}

func TestMessage_RepliesAndSetsTitle(t *testing.T) {
	var seen []api.Message
	srv := newTestServer(t, responderFunc(func(_ context.Context, h []api.Message) (string, error) {
		seen = h
		return "Hi!", nil
	}))
	token := signupAndLogin(t, srv)
	_, created, _ := call(t, srv, http.MethodPost, "/chats/new", token, "")
	id := jsonNumber(created["id"].(float64))

	status, _, raw := call(t, srv, http.MethodPost, "/chats/message", token, `{"chatId":"`+id+`","content":"Hello world"}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"bot_message":{"role":"assistant","content":"Hi!"}}`, string(raw))
	require.Equal(t, []api.Message{{Role: "user", Content: "Hello world"}}, seen)

	_, _, raw = call(t, srv, http.MethodGet, "/chats", token, "")
	var list []chatJSON
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Equal(t, "Hello world", list[0].Title)
	require.Equal(t, []api.Message{
		{Role: "user", Content: "Hello world"},
		{Role: "assistant", Content: "Hi!"},
	}, list[0].Messages)
}

func TestMessage_Failures(t *testing.T) {
	srv := newTestServer(t, responderFunc(func(context.Context, []api.Message) (string, error) {
		return "", errors.New("model offline")
	}))
	token := signupAndLogin(t, srv)
	_, created, _ := call(t, srv, http.MethodPost, "/chats/new", token, "")
	id := jsonNumber(created["id"].(float64))

	status, _, _ := call(t, srv, http.MethodPost, "/chats/message", token, `{"chatId":999,"content":"hi"}`)
	require.Equal(t, http.StatusNotFound, status)

	status, _, _ = call(t, srv, http.MethodPost, "/chats/message", token, `{"chatId":`+id+`,"content":"  "}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _, _ = call(t, srv, http.MethodPost, "/chats/message", token, `not json`)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	status, body, _ := call(t, srv, http.MethodPost, "/chats/message", token, `{"chatId":`+id+`,"content":"hi"}`)
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "Failed to generate a reply", body["detail"])
}

func TestRevoke(t *testing.T) {
	s := New(Echo{}, WithBcryptCost(bcrypt.MinCost))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	token := signupAndLogin(t, srv)

	s.Revoke(token)
	status, _, _ := call(t, srv, http.MethodGet, "/chats", token, "")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestTitle(t *testing.T) {
	require.Equal(t, "short", title("short"))
	require.Equal(t, strings.Repeat("ü", 30), title(strings.Repeat("ü", 40)))
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(int(f))
	return string(b)
}
