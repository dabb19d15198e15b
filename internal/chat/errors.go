package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/suPer8Hu/gopherchat/internal/ai"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrJobNotFound      = errors.New("job not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrModelTimeout     = errors.New("model timeout")
	ErrValidation       = errors.New("validation failed")

	// ErrJobFailed marks a job whose turn failed and whose failure is
	// already recorded on the job row.
	ErrJobFailed = errors.New("job failed")
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// modelErr classifies a failed model call made under ctx.
func modelErr(ctx context.Context, err error) error {
	if ai.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrModelTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
}
