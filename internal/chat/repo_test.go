package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRepoAppendLoadDelete(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		role := RoleHuman
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := repo.Append(ctx, "s1", role, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := repo.Append(ctx, "s2", RoleHuman, "elsewhere"); err != nil {
		t.Fatalf("append s2: %v", err)
	}

	msgs, err := repo.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Body != fmt.Sprintf("turn %d", i) {
			t.Fatalf("message %d out of order: %q", i, m.Body)
		}
		if i > 0 && m.ID <= msgs[i-1].ID {
			t.Fatalf("ids must increase")
		}
	}

	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err = repo.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty log, got %d", len(msgs))
	}
	// deleting an empty log is fine
	if err := repo.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete empty: %v", err)
	}

	other, _ := repo.Load(ctx, "s2")
	if len(other) != 1 {
		t.Fatalf("delete must not touch other sessions")
	}
}

func TestRepoConcurrentAppendsKeepPerSessionOrder(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	const sessions, perSession = 4, 10

	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				if _, err := repo.Append(ctx, sid, RoleHuman, fmt.Sprintf("%s-%d", sid, i)); err != nil {
					errs <- err
					return
				}
			}
		}(fmt.Sprintf("s%d", s))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	for s := 0; s < sessions; s++ {
		sid := fmt.Sprintf("s%d", s)
		msgs, err := repo.Load(ctx, sid)
		if err != nil {
			t.Fatalf("load %s: %v", sid, err)
		}
		if len(msgs) != perSession {
			t.Fatalf("%s: expected %d messages, got %d", sid, perSession, len(msgs))
		}
		for i, m := range msgs {
			if m.SessionID != sid || m.Body != fmt.Sprintf("%s-%d", sid, i) {
				t.Fatalf("%s: message %d out of order: %+v", sid, i, m)
			}
		}
	}
}

func TestRepoAppendRejectsUnknownRole(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	if _, err := repo.Append(context.Background(), "s1", RoleUnknown, "x"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"human": RoleHuman,
		"ai":    RoleAssistant,
		"":      RoleUnknown,
		"Human": RoleUnknown,
		"robot": RoleUnknown,
	}
	for tag, want := range cases {
		if got := ParseRole(tag); got != want {
			t.Fatalf("ParseRole(%q) = %v, want %v", tag, got, want)
		}
	}
	if ParseRole(RoleHuman.Tag()) != RoleHuman || ParseRole(RoleAssistant.Tag()) != RoleAssistant {
		t.Fatalf("tags must round trip")
	}
}
