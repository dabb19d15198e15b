package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the official genai SDK.
// One client is shared; WithModel returns a copy bound to another model.
type GeminiProvider struct {
	client *genai.Client
	Model  string
	Config genai.GenerateContentConfig
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	return newGeminiProvider(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model)
}

func newGeminiProvider(ctx context.Context, cc *genai.ClientConfig, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(cc.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &GeminiProvider{client: client, Model: model}, nil
}

func (p *GeminiProvider) WithModel(model string) *GeminiProvider {
	if strings.TrimSpace(model) == "" {
		return p
	}
	cp := *p
	cp.Model = model
	return &cp
}

// geminiContents splits system messages into the system instruction and maps
// the remaining turns onto Gemini roles. Unknown roles are rejected.
func geminiContents(messages []Message) (*genai.Content, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			return nil, nil, fmt.Errorf("gemini: unsupported role %q", m.Role)
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("gemini: no conversation turns")
	}
	var instruction *genai.Content
	if len(system) > 0 {
		instruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return instruction, contents, nil
}

func (p *GeminiProvider) request(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	instruction, contents, err := geminiContents(messages)
	if err != nil {
		return nil, nil, err
	}
	cfg := p.Config
	cfg.SystemInstruction = instruction
	return contents, &cfg, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	contents, cfg, err := p.request(messages)
	if err != nil {
		return "", err
	}
	res, err := p.client.Models.GenerateContent(ctx, p.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func (p *GeminiProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		contents, cfg, err := p.request(messages)
		if err != nil {
			errs <- err
			return
		}
		for res, err := range p.client.Models.GenerateContentStream(ctx, p.Model, contents, cfg) {
			if err != nil {
				errs <- fmt.Errorf("gemini stream: %w", err)
				return
			}
			if text := res.Text(); text != "" && !send(ctx, chunks, text) {
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}
