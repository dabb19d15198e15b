package ai

import "context"

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both channels are closed when streaming ends; at most one error is sent.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// send delivers a chunk unless the consumer has gone away.
func send(ctx context.Context, chunks chan<- string, s string) bool {
	select {
	case chunks <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
