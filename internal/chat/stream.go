package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/observability"
)

// SendMessageStream runs the same turn as SendMessage but yields the reply in
// chunks. The chunk channel is closed before exactly one value is delivered on
// either the result or the error channel. Providers without streaming support
// deliver the whole reply as a single chunk.
func (s *Service) SendMessageStream(ctx context.Context, token, content string) (<-chan string, <-chan *TurnResult, <-chan error) {
	chunks := make(chan string, 16)
	results := make(chan *TurnResult, 1)
	errs := make(chan error, 1)

	go func() {
		res, err := s.streamTurn(ctx, token, content, chunks)
		close(chunks)
		if err != nil {
			errs <- err
			return
		}
		results <- res
	}()

	return chunks, results, errs
}

func (s *Service) streamTurn(ctx context.Context, token, content string, out chan<- string) (*TurnResult, error) {
	provider, msgs, unlock, err := s.beginTurn(ctx, token, content)
	if err != nil {
		return nil, err
	}
	defer unlock()

	mctx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	reply, err := relay(mctx, provider, msgs, out)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		err = modelErr(mctx, err)
		observability.LoggerFromContext(ctx).Error("model stream failed", "session", token, "error", err)
		return nil, err
	}

	return s.finishTurn(ctx, token, reply), nil
}

// relay forwards provider chunks to out and returns the concatenated reply.
func relay(ctx context.Context, p ai.Provider, msgs []ai.Message, out chan<- string) (string, error) {
	sp, ok := p.(ai.StreamProvider)
	if !ok {
		reply, err := p.Chat(ctx, msgs)
		if err != nil {
			return "", err
		}
		if !forward(ctx, out, reply) {
			return "", ctx.Err()
		}
		return reply, nil
	}

	chunks, errs := sp.StreamChat(ctx, msgs)
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
		if !forward(ctx, out, chunk) {
			return "", ctx.Err()
		}
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return b.String(), nil
}

func forward(ctx context.Context, out chan<- string, s string) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
