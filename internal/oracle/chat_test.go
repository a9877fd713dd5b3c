package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat_Ask(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", auth, "Bearer secret")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"GEO"}}]}`))
	}))
	defer srv.Close()

	c := NewChat(ChatConfig{BaseURL: srv.URL + "/", APIKey: "secret", Model: "m1"})
	reply, err := c.Ask(context.Background(), DefaultSystemPrompt, []Message{User("which?")})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if reply != "GEO" {
		t.Errorf("Ask() = %q, want %q", reply, "GEO")
	}
	if got.Model != "m1" {
		t.Errorf("request model = %q, want %q", got.Model, "m1")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem || got.Messages[1].Content != "which?" {
		t.Errorf("request messages = %+v", got.Messages)
	}
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewChat(ChatConfig{BaseURL: srv.URL}).Ask(context.Background(), "", nil)
	if err == nil {
		t.Fatal("Ask() expected error for 429")
	}
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewChat(ChatConfig{BaseURL: srv.URL}).Ask(context.Background(), "", nil)
	if !errors.Is(err, ErrEmptyReply) {
		t.Errorf("Ask() error = %v, want ErrEmptyReply", err)
	}
}

func TestScript_RepliesInOrder(t *testing.T) {
	s := NewScript("a", "b")
	ctx := context.Background()

	for _, want := range []string{"a", "b"} {
		got, err := s.Ask(ctx, "", []Message{User("q")})
		if err != nil || got != want {
			t.Errorf("Ask() = (%q, %v), want (%q, nil)", got, err, want)
		}
	}
	if _, err := s.Ask(ctx, "", nil); !errors.Is(err, ErrScriptExhausted) {
		t.Errorf("Ask() after exhaustion error = %v, want ErrScriptExhausted", err)
	}
	if n := len(s.Calls()); n != 3 {
		t.Errorf("len(Calls()) = %d, want 3", n)
	}
}
