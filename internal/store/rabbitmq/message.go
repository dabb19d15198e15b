package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// headerAttempt counts how many times a job message has been delivered to a worker.
const headerAttempt = "x-attempt"

type JobMessage struct {
	JobID string `json:"job_id"`
}

func DecodeJob(body []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return JobMessage{}, fmt.Errorf("decode job message: %w", err)
	}
	if m.JobID == "" {
		return JobMessage{}, errors.New("decode job message: missing job_id")
	}
	return m, nil
}

// Attempt reads the delivery attempt from message headers; first delivery is 1.
func Attempt(h amqp.Table) int {
	switch v := h[headerAttempt].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}
