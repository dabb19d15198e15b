// Package worker runs queued chat turns delivered over RabbitMQ.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/observability"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
)

type Runner interface {
	RunJob(ctx context.Context, jobID string, attempt int) error
}

type Retrier interface {
	PublishRetry(ctx context.Context, jobID string, attempt int, delay time.Duration) error
}

type Pool struct {
	Runner      Runner
	Retrier     Retrier
	Concurrency int
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

func (p *Pool) defaults() {
	if p.Concurrency <= 0 {
		p.Concurrency = 2
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 5 * time.Second
	}
	if p.Logger == nil {
		p.Logger = observability.Logger()
	}
}

// Run dispatches deliveries to Concurrency workers until ctx ends or the
// delivery channel closes, then waits for in-flight jobs.
func (p *Pool) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	p.defaults()

	jobs := make(chan amqp.Delivery, p.Concurrency*2)

	var wg sync.WaitGroup
	wg.Add(p.Concurrency)
	for i := 0; i < p.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				p.handle(ctx, workerID, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			p.Logger.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				p.Logger.Warn("delivery channel closed")
				return
			}
			jobs <- d
		}
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	msg, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		p.Logger.Error("bad job message", "worker", workerID, "error", err)
		_ = d.Nack(false, false)
		return
	}

	log := p.Logger.With("worker", workerID, "job_id", msg.JobID)
	attempt := rabbitmq.Attempt(d.Headers)
	start := time.Now()
	err = p.Runner.RunJob(ctx, msg.JobID, attempt)
	cost := time.Since(start)

	switch {
	case err == nil:
		log.Info("job done", "attempt", attempt, "cost", cost)
	case retryable(err):
		if attempt < p.MaxAttempts && p.Retrier != nil {
			rerr := p.Retrier.PublishRetry(ctx, msg.JobID, attempt+1, p.RetryDelay)
			if rerr == nil {
				log.Warn("job retry scheduled", "attempt", attempt, "cost", cost, "error", err)
				_ = d.Ack(false)
				return
			}
			log.Error("job retry publish failed", "error", rerr)
		}
		log.Error("job dead-lettered", "attempt", attempt, "cost", cost, "error", err)
		_ = d.Nack(false, false)
		return
	case errors.Is(err, chat.ErrJobNotFound):
		log.Error("job not found", "error", err)
		_ = d.Nack(false, false)
		return
	default:
		// outcome already recorded on the job row
		log.Warn("job failed", "cost", cost, "error", err)
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "error", err)
	}
}

// retryable reports infrastructure failures hit before the job was claimed.
// Turn failures are recorded on the job row and never retried.
func retryable(err error) bool {
	return errors.Is(err, chat.ErrStoreUnavailable) && !errors.Is(err, chat.ErrJobFailed)
}
