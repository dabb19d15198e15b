package chat

import (
	"context"

	"github.com/suPer8Hu/gopherchat/internal/ai"
)

// Turn is one recognised utterance of a transcript.
type Turn struct {
	Role Role
	Text string
}

// Transcript is a session's log ready for a model call. Records whose sender
// tag could not be decoded are kept apart in Unrecognized and never reach
// the model.
type Transcript struct {
	Turns        []Turn
	Unrecognized []Message
}

// ProviderMessages renders the system instruction followed by every turn,
// oldest first.
func (t Transcript) ProviderMessages(system string) []ai.Message {
	out := make([]ai.Message, 0, len(t.Turns)+1)
	if system != "" {
		out = append(out, ai.Message{Role: ai.RoleSystem, Content: system})
	}
	for _, turn := range t.Turns {
		role, ok := turn.Role.wireRole()
		if !ok {
			continue
		}
		out = append(out, ai.Message{Role: role, Content: turn.Text})
	}
	return out
}

type Assembler struct {
	store  MessageStore
	window int
}

// NewAssembler builds transcripts from store. A positive window keeps only the
// most recent window turns; zero keeps the whole conversation.
func NewAssembler(store MessageStore, window int) *Assembler {
	if window < 0 {
		window = 0
	}
	return &Assembler{store: store, window: window}
}

// Assemble re-reads the session log on every call.
func (a *Assembler) Assemble(ctx context.Context, sessionID string) (Transcript, error) {
	msgs, err := a.store.Load(ctx, sessionID)
	if err != nil {
		return Transcript{}, err
	}

	t := Transcript{Turns: make([]Turn, 0, len(msgs))}
	for _, m := range msgs {
		role := m.Role()
		if !role.Known() {
			t.Unrecognized = append(t.Unrecognized, m)
			continue
		}
		t.Turns = append(t.Turns, Turn{Role: role, Text: m.Body})
	}

	if a.window > 0 && len(t.Turns) > a.window {
		t.Turns = t.Turns[len(t.Turns)-a.window:]
	}
	return t, nil
}
