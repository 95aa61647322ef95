package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"invalid credentials"}`)
			return
		}
		io.WriteString(w, `{"uid":"A","email":"`+req.Email+`","token":"tok-a","tokenExpiresAt":"2026-03-02T12:00:00Z"}`)
	})
	mux.HandleFunc("/api/v1/rooms", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-a" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"missing or invalid token"}`)
			return
		}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":"room1"}`)
			return
		}
		io.WriteString(w, `[{"id":"room1","name":"General","role":"admin","memberCount":1}]`)
	})
	mux.HandleFunc("/api/v1/rooms/room1/join-requests/B/approve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"only room admins can do this"}`)
	})
	mux.HandleFunc("/api/v1/rooms/room1/files", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":       "m1",
			"type":     "file",
			"fileName": header.Filename,
			"text":     string(data),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientLoginAndRooms(t *testing.T) {
	srv := newTestServer(t)
	c, err := New(srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := c.ListRooms(ctx); err == nil {
		t.Fatal("ListRooms without token succeeded")
	}

	if _, err := c.Login(ctx, "alice@example.com", "wrong"); err == nil {
		t.Fatal("login with wrong password succeeded")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "invalid credentials" {
			t.Fatalf("login error = %#v", err)
		}
	}

	resp, err := c.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.UID != "A" || resp.Token != "tok-a" {
		t.Fatalf("login response = %+v", resp)
	}

	rooms, err := c.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != "General" || rooms[0].Role != "admin" {
		t.Fatalf("rooms = %+v", rooms)
	}

	id, err := c.CreateRoom(ctx, "Second")
	if err != nil || id != "room1" {
		t.Fatalf("CreateRoom = %q, %v", id, err)
	}

	var apiErr *APIError
	if err := c.Approve(ctx, "room1", "B"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("Approve = %v", err)
	}
}

func TestClientUploadFile(t *testing.T) {
	srv := newTestServer(t)
	c, err := New(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.SetToken("tok-a")

	msg, err := c.UploadFile(context.Background(), "room1", "notes.txt", strings.NewReader("agenda"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if msg.ID != "m1" || msg.FileName != "notes.txt" || msg.Text != "agenda" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestRoomURL(t *testing.T) {
	if got := roomURL("a b", "join-requests", "u/1", "approve"); got != "/api/v1/rooms/a%20b/join-requests/u%2F1/approve" {
		t.Fatalf("roomURL = %s", got)
	}
}
