package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one queued turn, run by the worker through SendMessage.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	SessionID string `gorm:"type:varchar(64);index;not null;index:uniq_job_session_idempo,unique,priority:1" json:"session_id"`
	Prompt    string `gorm:"type:text;not null" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_job_session_idempo,unique,priority:2" json:"idempotency_key,omitempty"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id"`
	Reply           *string `gorm:"type:text" json:"reply"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "chat_jobs" }
