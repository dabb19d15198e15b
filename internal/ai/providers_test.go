package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

func collect(t *testing.T, chunks <-chan string, errs <-chan error) (string, error) {
	t.Helper()
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	return b.String(), <-errs
}

func TestOllamaChat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi"},"done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3")
	reply, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "hi" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "llama3" || got.Stream || len(got.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOllamaChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "").Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusServiceUnavailable || !strings.Contains(se.Body, "model not loaded") {
		t.Fatalf("unexpected status error: %+v", se)
	}
}

func TestOllamaStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	chunks, errs := NewOllamaProvider(srv.URL, "m").StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	out, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if out != "Hello" {
		t.Fatalf("unexpected stream output %q", out)
	}
}

func TestOpenRouterChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		if r.Header.Get("X-Title") != "GopherChat" {
			t.Errorf("missing app name header")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "openrouter/auto", "", "GopherChat")
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "pong" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestOpenRouterChat_RequiresKey(t *testing.T) {
	p := NewOpenRouterProvider("http://127.0.0.1:1", "", "m", "", "")
	if _, err := p.Chat(context.Background(), nil); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestOpenRouterStreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "key", "m", "", "")
	chunks, errs := p.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	out, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if out != "ab" {
		t.Fatalf("unexpected stream output %q", out)
	}
}

func TestProviderHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOllamaProvider(srv.URL, "m").Chat(ctx, []Message{{Role: RoleUser, Content: "x"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGeminiContents(t *testing.T) {
	instruction, contents, err := geminiContents([]Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: "again"},
	})
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if instruction == nil || instruction.Parts[0].Text != "You are helpful." {
		t.Fatalf("unexpected system instruction: %+v", instruction)
	}
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	if len(contents) != len(wantRoles) {
		t.Fatalf("expected %d contents, got %d", len(wantRoles), len(contents))
	}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("content %d: role %q, want %q", i, c.Role, wantRoles[i])
		}
	}
}

func TestGeminiContents_RejectsUnknownRole(t *testing.T) {
	_, _, err := geminiContents([]Message{{Role: "tool", Content: "x"}})
	if err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
	_, _, err = geminiContents([]Message{{Role: RoleSystem, Content: "only system"}})
	if err == nil {
		t.Fatalf("expected error for missing turns")
	}
}

func TestGeminiChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hi there"}]}}]}`))
	}))
	defer srv.Close()

	p, err := newGeminiProvider(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	}, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	reply, err := p.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if _, ok := body["contents"]; !ok {
		t.Fatalf("request carried no contents: %v", body)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		return ProviderFunc(func(ctx context.Context, _ []Message) (string, error) {
			return "model=" + model, nil
		}), nil
	})

	if !reg.Has("FAKE") {
		t.Fatalf("expected case-insensitive lookup")
	}
	p, err := reg.Get(context.Background(), "fake", " m1 ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	out, _ := p.Chat(context.Background(), nil)
	if out != "model=m1" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := reg.Get(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "fake" {
		t.Fatalf("unexpected names %v", names)
	}
}
