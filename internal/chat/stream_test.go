package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/suPer8Hu/gopherchat/internal/ai"
)

type chunkProvider struct {
	chunks []string
	err    error
}

func (p chunkProvider) Chat(context.Context, []ai.Message) (string, error) {
	return strings.Join(p.chunks, ""), p.err
}

func (p chunkProvider) StreamChat(ctx context.Context, _ []ai.Message) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, c := range p.chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return out, errs
}

func drain(chunks <-chan string, results <-chan *TurnResult, errs <-chan error) (string, *TurnResult, error) {
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	select {
	case res := <-results:
		return b.String(), res, nil
	case err := <-errs:
		return b.String(), nil, err
	}
}

func TestSendMessageStream(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.registry.Register("chunky", func(context.Context, string) (ai.Provider, error) {
		return chunkProvider{chunks: []string{"Hel", "lo ", "there"}}, nil
	})
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, f.user.ID, "chunky", "m")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	text, res, err := drain(f.svc.SendMessageStream(ctx, sess.Token, "Hi"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if text != "Hello there" || res.Reply != "Hello there" || !res.Persisted {
		t.Fatalf("unexpected stream outcome text=%q res=%+v", text, res)
	}

	msgs := f.stored(t, sess.Token)
	if len(msgs) != 2 || msgs[1].Body != "Hello there" || msgs[1].Sender != "ai" {
		t.Fatalf("unexpected stored log %+v", msgs)
	}
}

func TestSendMessageStreamFallsBackToChat(t *testing.T) {
	f := newFixture(t, Options{})

	text, res, err := drain(f.svc.SendMessageStream(context.Background(), f.token, "Hi"))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if text != "ok" || res.Reply != "ok" {
		t.Fatalf("unexpected outcome text=%q res=%+v", text, res)
	}
}

func TestSendMessageStreamFailureKeepsHumanTurn(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.registry.Register("broken", func(context.Context, string) (ai.Provider, error) {
		return chunkProvider{chunks: []string{"partial"}, err: errors.New("connection reset")}, nil
	})
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, f.user.ID, "broken", "m")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, _, err = drain(f.svc.SendMessageStream(ctx, sess.Token, "Hi"))
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	msgs := f.stored(t, sess.Token)
	if len(msgs) != 1 || msgs[0].Sender != "human" {
		t.Fatalf("expected only the human turn, got %+v", msgs)
	}
}

func TestSendMessageStreamUnknownSession(t *testing.T) {
	f := newFixture(t, Options{})

	_, _, err := drain(f.svc.SendMessageStream(context.Background(), "abc", "Hi"))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
