package activitypub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolveInbox(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/activity+json" {
			t.Errorf("Expected activity+json Accept header, got %s", r.Header.Get("Accept"))
		}
		switch r.URL.Path {
		case "/users/bob":
			w.Header().Set("Content-Type", "application/activity+json")
			fmt.Fprintf(w, `{"id":"%s/users/bob","type":"Person","preferredUsername":"bob","inbox":"%s/custom/inbox"}`, server.URL, server.URL)
		case "/users/broken":
			fmt.Fprint(w, `{"type":"Person"}`)
		case "/users/impostor":
			fmt.Fprint(w, `{"id":"https://evil.example/users/eve","type":"Person","inbox":"https://evil.example/inbox"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	resolver := NewRemoteResolver(5 * time.Second)
	ctx := context.Background()

	actor, err := resolver.FetchRemoteActor(ctx, server.URL+"/users/bob")
	if err != nil {
		t.Fatalf("FetchRemoteActor failed: %v", err)
	}
	if actor.PreferredUsername != "bob" {
		t.Errorf("Expected preferredUsername bob, got %s", actor.PreferredUsername)
	}

	if got := resolver.ResolveInbox(ctx, server.URL+"/users/bob"); got != server.URL+"/custom/inbox" {
		t.Errorf("Expected advertised inbox, got %s", got)
	}
	for _, path := range []string{"/users/broken", "/users/missing", "/users/impostor"} {
		if got := resolver.ResolveInbox(ctx, server.URL+path); got != server.URL+path+"/inbox" {
			t.Errorf("Expected fallback inbox for %s, got %s", path, got)
		}
	}
}

func TestFetchRemoteActorRejectsBadURI(t *testing.T) {
	resolver := NewRemoteResolver(time.Second)
	for _, uri := range []string{"", "ftp://remote.example/users/bob", "/users/bob"} {
		if _, err := resolver.FetchRemoteActor(context.Background(), uri); err == nil {
			t.Errorf("Expected error for %q", uri)
		}
	}
}

func TestExtractUsername(t *testing.T) {
	tests := map[string]string{
		"https://example.com/users/alice": "alice",
		"https://example.com/@alice":      "alice",
		"https://example.com/users/bob/":  "bob",
	}
	for uri, want := range tests {
		if got := extractUsername(uri); got != want {
			t.Errorf("extractUsername(%q): expected %s, got %s", uri, want, got)
		}
	}
}
