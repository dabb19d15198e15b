package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Wire roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider generates one assistant reply for an ordered conversation.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StatusError is returned when an upstream model API answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	return &StatusError{
		Provider: provider,
		Code:     resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}

func ok2xx(code int) bool { return code >= 200 && code < 300 }

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, messages []Message) (string, error)

func (f ProviderFunc) Chat(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// IsTimeout reports whether err came from a deadline rather than a refusal.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
