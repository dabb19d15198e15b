package naming

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/chat"
)

func fixed(reply string, err error) (ai.Provider, *[]ai.Message) {
	var seen []ai.Message
	return ai.ProviderFunc(func(_ context.Context, messages []ai.Message) (string, error) {
		seen = messages
		return reply, err
	}), &seen
}

func TestGenerate(t *testing.T) {
	p, seen := fixed("Italian Cuisine Basics\n", nil)
	g := NewGenerator(p, nil)

	name, err := g.Generate(context.Background(), "cooking italian food")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if n := len(strings.Fields(name)); n < 2 || n > 4 {
		t.Fatalf("expected 2-4 words, got %q", name)
	}
	if name != "Italian Cuisine Basics" {
		t.Fatalf("unexpected name %q", name)
	}

	if len(*seen) != 1 || (*seen)[0].Role != ai.RoleUser {
		t.Fatalf("expected a single user message, got %+v", *seen)
	}
	if !strings.Contains((*seen)[0].Content, "cooking italian food") {
		t.Fatalf("prompt does not mention the topic: %q", (*seen)[0].Content)
	}
}

func TestGenerateCleansAnswer(t *testing.T) {
	cases := map[string]string{
		`"ML Fundamentals"`:                     "ML Fundamentals",
		"**Trip  Planning**.":                   "Trip Planning",
		"\n\nName: Garden Design Ideas\nextra":  "Garden Design Ideas",
		"Session name: 'Home Budget Tracking'!": "Home Budget Tracking",
	}
	for in, want := range cases {
		p, _ := fixed(in, nil)
		got, err := NewGenerator(p, nil).Generate(context.Background(), "topic")
		if err != nil {
			t.Fatalf("generate(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateRejectsUnusableAnswer(t *testing.T) {
	for _, in := range []string{"", "   ", "Cooking", "A very long rambling title for this"} {
		p, _ := fixed(in, nil)
		_, err := NewGenerator(p, nil).Generate(context.Background(), "cooking italian food")
		if !errors.Is(err, ErrBadName) {
			t.Fatalf("answer %q: expected ErrBadName, got %v", in, err)
		}
	}
}

func TestGenerateModelFailure(t *testing.T) {
	cause := errors.New("quota exceeded")
	p, _ := fixed("", cause)

	name, err := NewGenerator(p, nil).Generate(context.Background(), "cooking italian food")
	if !errors.Is(err, cause) {
		t.Fatalf("expected model error, got %v", err)
	}
	if name != "" {
		t.Fatalf("expected no name on failure, got %q", name)
	}
}

func TestGenerateRequiresTopic(t *testing.T) {
	p, seen := fixed("Unused Name", nil)

	_, err := NewGenerator(p, nil).Generate(context.Background(), "  ")
	if !errors.Is(err, chat.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if *seen != nil {
		t.Fatalf("model must not be called without a topic")
	}
}
