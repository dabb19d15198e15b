package chat

import (
	"context"
	"errors"

	"github.com/suPer8Hu/gopherchat/internal/models"
	"gorm.io/gorm"
)

// MessageStore is the append-only turn log.
type MessageStore interface {
	Append(ctx context.Context, sessionID string, role Role, body string) (*Message, error)
	Load(ctx context.Context, sessionID string) ([]Message, error)
	Delete(ctx context.Context, sessionID string) error
}

// Repo persists sessions, messages and jobs. Every method is a single
// committed statement unless noted otherwise.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var _ MessageStore = (*Repo)(nil)

// Sessions

func (r *Repo) UserExists(ctx context.Context, userID uint64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&cnt).Error; err != nil {
		return false, storeErr("check user", err)
	}
	return cnt > 0, nil
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return storeErr("create session", err)
	}
	return nil
}

func (r *Repo) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("token = ?", token).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storeErr("get session", err)
	}
	return &s, nil
}

func (r *Repo) ListSessionsByUser(ctx context.Context, userID uint64) ([]Session, error) {
	sessions := []Session{}
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&sessions).Error; err != nil {
		return nil, storeErr("list sessions", err)
	}
	return sessions, nil
}

func (r *Repo) UpdateSessionName(ctx context.Context, token, name string) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("token = ?", token).
		Update("short_name", name)
	if res.Error != nil {
		return storeErr("update session name", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSession removes the session and all of its messages in one
// transaction. Messages are cleared even when the session row is already
// gone; ErrSessionNotFound is still reported in that case.
func (r *Repo) DeleteSession(ctx context.Context, token string) error {
	var found bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", token).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("token = ?", token).Delete(&Session{})
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return storeErr("delete session", err)
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

// Messages

// Append inserts one turn. The auto-increment id is the turn's position.
func (r *Repo) Append(ctx context.Context, sessionID string, role Role, body string) (*Message, error) {
	if !role.Known() {
		return nil, validationErr("cannot append a turn with unknown role")
	}
	m := &Message{
		SessionID: sessionID,
		Body:      body,
		Sender:    role.Tag(),
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, storeErr("append message", err)
	}
	return m, nil
}

// Load returns the full log for a session, oldest first.
func (r *Repo) Load(ctx context.Context, sessionID string) ([]Message, error) {
	msgs := []Message{}
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, storeErr("load messages", err)
	}
	return msgs, nil
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&Message{}).Error; err != nil {
		return storeErr("delete messages", err)
	}
	return nil
}

// ListMessages returns one page of messages in DESC id order (newest -> oldest).
func (r *Repo) ListMessages(ctx context.Context, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	msgs := []Message{}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, storeErr("list messages", err)
	}
	return msgs, nil
}

// Jobs

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return storeErr("create job", err)
	}
	return nil
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, storeErr("get job", err)
	}
	return &j, nil
}

// MarkJobRunning moves a queued job to running. It reports false when the job
// was not queued, e.g. a redelivered message for a finished job.
func (r *Repo) MarkJobRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	if res.Error != nil {
		return false, storeErr("mark job running", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID *uint64, reply string) error {
	if err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"reply":             reply,
			"error":             nil,
		}).Error; err != nil {
		return storeErr("mark job succeeded", err)
	}
	return nil
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	if err := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error; err != nil {
		return storeErr("mark job failed", err)
	}
	return nil
}

func (r *Repo) GetJobBySessionAndIdempotencyKey(ctx context.Context, sessionID, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND idempotency_key = ?", sessionID, key).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, storeErr("get job by key", err)
	}
	return &job, nil
}

// CreateJobOrGetExisting creates a job, but if (session_id, idempotency_key)
// already exists it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.CreateJob(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	createErr := r.db.WithContext(ctx).Create(job).Error
	if createErr == nil {
		return job, true, nil
	}

	existing, err := r.GetJobBySessionAndIdempotencyKey(ctx, job.SessionID, *job.IdempotencyKey)
	if err == nil {
		return existing, false, nil
	}
	if errors.Is(err, ErrJobNotFound) {
		return nil, false, storeErr("create job", createErr)
	}
	return nil, false, err
}
