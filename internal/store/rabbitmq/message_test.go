package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDecodeJob(t *testing.T) {
	m, err := DecodeJob([]byte(`{"job_id":"01HZX3J5Q4M9V2B7K8N6T0R1SA"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.JobID != "01HZX3J5Q4M9V2B7K8N6T0R1SA" {
		t.Fatalf("unexpected job id %q", m.JobID)
	}

	for _, body := range []string{``, `{}`, `{"job_id":""}`, `not json`} {
		if _, err := DecodeJob([]byte(body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestAttempt(t *testing.T) {
	cases := []struct {
		h    amqp.Table
		want int
	}{
		{nil, 1},
		{amqp.Table{}, 1},
		{amqp.Table{headerAttempt: int32(3)}, 3},
		{amqp.Table{headerAttempt: int64(2)}, 2},
		{amqp.Table{headerAttempt: "x"}, 1},
	}
	for _, tc := range cases {
		if got := Attempt(tc.h); got != tc.want {
			t.Fatalf("Attempt(%v) = %d, want %d", tc.h, got, tc.want)
		}
	}
}

func TestQueueNames(t *testing.T) {
	if RetryQueue("chat_jobs") != "chat_jobs.retry" || DeadLetterQueue("chat_jobs") != "chat_jobs.dlq" {
		t.Fatalf("unexpected queue names")
	}
}
