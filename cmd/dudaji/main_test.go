package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dudaji/dudaji-chat/internal/session"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(c string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.calls, ",")
}

func stubServer(t *testing.T) (*httptest.Server, *callLog) {
	t.Helper()
	calls := &callLog{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		calls.add("login")
		io.WriteString(w, `{"uid":"A","displayName":"Alice","email":"alice@example.com","token":"tok-a","tokenExpiresAt":"2099-01-01T00:00:00Z"}`)
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		calls.add("logout " + r.Header.Get("Authorization"))
	})
	mux.HandleFunc("/api/v1/rooms", func(w http.ResponseWriter, r *http.Request) {
		calls.add("rooms")
		io.WriteString(w, `[{"id":"room1","name":"General","role":"admin","memberCount":2,"onlineCount":1,"lastMessage":"hi"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestLoginRoomsLogout(t *testing.T) {
	srv, calls := stubServer(t)
	sessionFile := filepath.Join(t.TempDir(), "session.cbor")
	ctx := context.Background()

	var out bytes.Buffer
	if err := run(ctx, []string{"--session-file", sessionFile, "rooms"}, &out); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("rooms without session = %v", err)
	}

	out.Reset()
	args := []string{"--server", srv.URL, "--session-file", sessionFile, "login", "--email", "alice@example.com", "--password", "secret1"}
	if err := run(ctx, args, &out); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out.String(), "Logged in as alice@example.com") {
		t.Fatalf("login output = %q", out.String())
	}

	// Адрес сервера берется из сохраненной сессии.
	out.Reset()
	if err := run(ctx, []string{"--session-file", sessionFile, "whoami"}, &out); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out.String(), "uid: A") || !strings.Contains(out.String(), srv.URL) {
		t.Fatalf("whoami output = %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"--session-file", sessionFile, "rooms"}, &out); err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if !strings.Contains(out.String(), "General") || !strings.Contains(out.String(), "admin") {
		t.Fatalf("rooms output = %q", out.String())
	}

	out.Reset()
	if err := run(ctx, []string{"--session-file", sessionFile, "logout"}, &out); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := session.NewStore(sessionFile).Load(); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("session after logout = %v", err)
	}

	if got, want := calls.String(), "login,rooms,logout Bearer tok-a"; got != want {
		t.Fatalf("calls = %s, want %s", got, want)
	}
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"--session-file", filepath.Join(t.TempDir(), "s"), "dance"}, &out)
	if err == nil || !strings.Contains(out.String(), "usage: dudaji") {
		t.Fatalf("err = %v, output = %q", err, out.String())
	}
}

func TestMissingArguments(t *testing.T) {
	srv, _ := stubServer(t)
	sessionFile := filepath.Join(t.TempDir(), "session.cbor")
	if err := session.NewStore(sessionFile).Save(&session.Session{Server: srv.URL, UID: "A", Token: "tok-a"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := run(context.Background(), []string{"--session-file", sessionFile, "approve", "room1"}, &out)
	if err == nil || !strings.Contains(err.Error(), "approve ROOM UID") {
		t.Fatalf("approve with one argument = %v", err)
	}
}
