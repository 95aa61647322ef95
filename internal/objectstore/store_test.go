package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"room-1/123-a.png", "room-1/123-a.png", false},
		{"/room-1//a.png", "room-1/a.png", false},
		{"room-1/../../etc/passwd", "etc/passwd", false},
		{"", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := cleanPath(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("cleanPath(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestPublicURL(t *testing.T) {
	got := publicURL("http://localhost:8080/", "room-abc/1700-my file.png")
	want := "http://localhost:8080/files/room-abc/1700-my%20file.png"
	if got != want {
		t.Fatalf("publicURL = %q, want %q", got, want)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	const p = "room-r1/1700000000000-hello.txt"

	if err := s.Put(ctx, p, "text/plain", strings.NewReader("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	rc, ct, err := s.Open(ctx, p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "hello" || !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Open = %q (%s)", body, ct)
	}

	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Open(ctx, p); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Open after delete = %v, want ErrObjectNotFound", err)
	}
	if err := s.Delete(ctx, p); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFSStore(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "http://localhost")
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}

func TestGridFSStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Disconnect(ctx)

	s, err := NewGridFSStore(client.Database("dudaji_chat_test"), "chat-files", "http://localhost")
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}
