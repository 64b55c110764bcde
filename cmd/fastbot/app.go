package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/comigor/fastbot-go/internal/api"
	"github.com/comigor/fastbot-go/internal/auth"
	"github.com/comigor/fastbot-go/internal/chat"
	"github.com/comigor/fastbot-go/internal/config"
	"github.com/comigor/fastbot-go/internal/kv"
	"github.com/comigor/fastbot-go/internal/session"
)

// app wires the client stack the TUI and the commands share.
type app struct {
	storage *kv.SQLite
	session *session.Store
	api     *api.Client
	chats   *chat.Store
	form    *auth.Form
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	storage := kv.OpenSQLite(cfg.Storage.Path)
	sess := session.New(storage)
	if err := sess.Restore(ctx); err != nil {
		storage.Close()
		return nil, err
	}

	client := api.NewClient(cfg.API, sess)
	chats := chat.NewStore(client, sess)
	chats.Follow(sess)

	return &app{
		storage: storage,
		session: sess,
		api:     client,
		chats:   chats,
		form:    auth.NewForm(client, sess, nil),
	}, nil
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("warning: closing storage: %v", err))
	}
}

// requireLogin loads the conversation list, which also proves the stored
// credential is still accepted.
func (a *app) requireLogin(ctx context.Context) error {
	if !a.session.Authenticated() {
		return errors.New("not logged in; run 'fastbot login' first")
	}
	if err := a.chats.LoadAll(ctx); err != nil {
		return explain(err)
	}
	return nil
}

// explain turns store and api failures into messages for the terminal.
func explain(err error) error {
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		return errors.New("session expired; run 'fastbot login' again")
	case errors.Is(err, chat.ErrNotAuthenticated):
		return errors.New("not logged in; run 'fastbot login' first")
	case errors.Is(err, api.ErrTimeout):
		return errors.New("the server did not respond in time")
	}
	var se *api.StatusError
	if errors.As(err, &se) && se.Detail != "" {
		return errors.New(se.Detail)
	}
	return err
}

func openLog(path string) (*os.File, error) {
	if path == "" {
		path = filepath.Join(config.Dir(), "fastbot.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// readPassword prompts without echo on a terminal and reads a plain line
// otherwise, so passwords can be piped in.
func readPassword(prompt string, in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(bufio.NewReader(in))
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
