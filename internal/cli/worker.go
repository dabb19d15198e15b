package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/gopherchat/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued chat turns from RabbitMQ",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.RabbitURL == "" {
		return errors.New("RABBIT_URL is required for the worker")
	}

	retry, err := rabbitmq.NewPublisher(a.cfg.RabbitURL, a.cfg.RabbitQueue)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, retry.Close)

	consumer, err := rabbitmq.NewConsumer(a.cfg.RabbitURL, a.cfg.RabbitQueue, a.cfg.WorkerConcurrency)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, consumer.Close)

	deliveries, err := consumer.Deliveries()
	if err != nil {
		return err
	}

	a.log.Info("worker started", "queue", a.cfg.RabbitQueue, "concurrency", a.cfg.WorkerConcurrency)
	pool := &worker.Pool{
		Runner:      a.svc,
		Retrier:     retry,
		Concurrency: a.cfg.WorkerConcurrency,
		Logger:      a.log,
	}
	pool.Run(ctx, deliveries)
	return nil
}
