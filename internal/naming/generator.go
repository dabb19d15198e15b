// Package naming derives short session labels from a topic with one model call.
package naming

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/prompts"
)

const (
	minWords = 2
	maxWords = 4
)

// ErrBadName is returned when the model answer is not a usable 2-4 word label.
var ErrBadName = errors.New("model returned an unusable session name")

// Generator is stateless apart from its collaborators and safe for concurrent use.
type Generator struct {
	provider ai.Provider
	prompts  *prompts.Set
}

func NewGenerator(provider ai.Provider, set *prompts.Set) *Generator {
	if set == nil {
		set = prompts.Default()
	}
	return &Generator{provider: provider, prompts: set}
}

var _ chat.Namer = (*Generator)(nil)

func (g *Generator) Generate(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", chat.ErrValidation)
	}

	prompt, err := g.prompts.RenderSessionName(topic)
	if err != nil {
		return "", fmt.Errorf("render naming prompt: %w", err)
	}

	out, err := g.provider.Chat(ctx, []ai.Message{{Role: ai.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("generate session name: %w", err)
	}

	name := clean(out)
	if n := len(strings.Fields(name)); n < minWords || n > maxWords {
		return "", fmt.Errorf("%w: %q", ErrBadName, strings.TrimSpace(out))
	}
	return name, nil
}

// clean keeps the first non-empty line, drops a "Name:" style prefix and any
// wrapping quotes or markdown, and collapses whitespace.
func clean(s string) string {
	var line string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if i := strings.Index(line, ":"); i >= 0 && i < len(line)-1 {
		if strings.EqualFold(strings.TrimSpace(line[:i]), "name") ||
			strings.EqualFold(strings.TrimSpace(line[:i]), "session name") {
			line = line[i+1:]
		}
	}
	line = strings.Trim(line, " \t\"'`*_#.!?;:,")
	return strings.Join(strings.Fields(line), " ")
}
