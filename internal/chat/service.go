package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/suPer8Hu/gopherchat/internal/ai"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/observability"
)

const (
	defaultProvider     = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultSystemPrompt = "You are a helpful assistant who remembers previous conversations."

	maxSessionNameLen = 100
)

// Namer turns a free-text topic into a short session label.
type Namer interface {
	Generate(ctx context.Context, topic string) (string, error)
}

type Options struct {
	// ContextWindowSize caps the turns sent to the model; 0 sends all of them.
	ContextWindowSize int
	ModelTimeout      time.Duration
	StoreTimeout      time.Duration
	SystemPrompt      string

	DefaultProvider string
	DefaultModel    string

	// Optional collaborators. Messages defaults to the Repo and Locker to an
	// in-process MemoryLocker.
	Messages MessageStore
	Locker   Locker
	Namer    Namer
}

type Service struct {
	repo      *Repo
	messages  MessageStore
	assembler *Assembler
	registry  *ai.Registry
	locker    Locker
	namer     Namer

	systemPrompt    string
	modelTimeout    time.Duration
	storeTimeout    time.Duration
	defaultProvider string
	defaultModel    string
}

func NewService(repo *Repo, registry *ai.Registry, opts Options) *Service {
	s := &Service{
		repo:            repo,
		messages:        opts.Messages,
		registry:        registry,
		locker:          opts.Locker,
		namer:           opts.Namer,
		systemPrompt:    opts.SystemPrompt,
		modelTimeout:    opts.ModelTimeout,
		storeTimeout:    opts.StoreTimeout,
		defaultProvider: opts.DefaultProvider,
		defaultModel:    opts.DefaultModel,
	}
	if s.messages == nil {
		s.messages = repo
	}
	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.systemPrompt == "" {
		s.systemPrompt = defaultSystemPrompt
	}
	if s.modelTimeout <= 0 {
		s.modelTimeout = 60 * time.Second
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = 5 * time.Second
	}
	if s.defaultProvider == "" {
		s.defaultProvider = defaultProvider
	}
	if s.defaultModel == "" {
		s.defaultModel = defaultModel
	}
	s.assembler = NewAssembler(s.messages, opts.ContextWindowSize)
	return s
}

// TurnResult is the outcome of one conversation turn. Persisted is false when
// the reply was generated but could not be written to the log.
type TurnResult struct {
	SessionID string `json:"session_token"`
	Reply     string `json:"response"`
	MessageID uint64 `json:"message_id,omitempty"`
	Persisted bool   `json:"persisted"`
}

// storeCtx bounds a persistence call and detaches it from request
// cancellation, so an accepted turn is not lost when the client goes away.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}

func (s *Service) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Sessions

func (s *Service) CreateSession(ctx context.Context, userID uint64, provider, model string) (*Session, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" {
		provider = s.defaultProvider
	}
	if model == "" && provider == s.defaultProvider {
		model = s.defaultModel
	}
	if s.registry != nil && !s.registry.Has(provider) {
		return nil, validationErr(fmt.Sprintf("unknown provider %q", provider))
	}

	rctx, cancel := s.readCtx(ctx)
	defer cancel()

	exists, err := s.repo.UserExists(rctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	session := &Session{
		Token:    uuid.NewString(),
		UserID:   userID,
		Provider: provider,
		Model:    model,
	}
	if err := s.repo.CreateSession(rctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrSessionNotFound
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	return s.repo.GetSessionByToken(rctx, token)
}

func (s *Service) ListSessions(ctx context.Context, userID uint64) ([]Session, error) {
	rctx, cancel := s.readCtx(ctx)
	defer cancel()

	exists, err := s.repo.UserExists(rctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}
	return s.repo.ListSessionsByUser(rctx, userID)
}

// DeleteSession removes the session together with its whole message log.
func (s *Service) DeleteSession(ctx context.Context, token string) error {
	unlock, err := s.lock(ctx, token)
	if err != nil {
		return err
	}
	defer unlock()

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.DeleteSession(sctx, token)
}

// NameSession asks the model for a short label for topic and stores it.
func (s *Service) NameSession(ctx context.Context, token, topic string) (string, error) {
	if s.namer == nil {
		return "", fmt.Errorf("%w: session naming is not configured", ErrModelUnavailable)
	}
	if strings.TrimSpace(topic) == "" {
		return "", validationErr("topic is required")
	}
	if _, err := s.GetSession(ctx, token); err != nil {
		return "", err
	}

	mctx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()
	name, err := s.namer.Generate(mctx, topic)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return "", err
		}
		return "", modelErr(mctx, err)
	}

	sctx, cancelStore := s.storeCtx(ctx)
	defer cancelStore()
	if err := s.repo.UpdateSessionName(sctx, token, name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Service) RenameSession(ctx context.Context, token, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return validationErr("session_short_name is required")
	}
	if utf8.RuneCountInString(name) > maxSessionNameLen {
		return validationErr(fmt.Sprintf("session_short_name longer than %d characters", maxSessionNameLen))
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.UpdateSessionName(sctx, token, name)
}

// Messages

// History returns the session's full log, oldest first.
func (s *Service) History(ctx context.Context, token string) ([]Message, error) {
	if _, err := s.GetSession(ctx, token); err != nil {
		return nil, err
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	return s.messages.Load(rctx, token)
}

func (s *Service) ListMessages(ctx context.Context, token string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if _, err := s.GetSession(ctx, token); err != nil {
		return nil, err
	}
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	return s.repo.ListMessages(rctx, token, limit, beforeID)
}

func (s *Service) providerForSession(ctx context.Context, sess *Session) (ai.Provider, error) {
	p := sess.Provider
	m := sess.Model
	if p == "" {
		p = s.defaultProvider
	}
	if m == "" && p == s.defaultProvider {
		m = s.defaultModel
	}
	provider, err := s.registry.Get(ctx, p, m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return provider, nil
}

func (s *Service) lock(ctx context.Context, token string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, token)
	if err != nil {
		return nil, storeErr("acquire turn lock", err)
	}
	return unlock, nil
}

// beginTurn runs the steps shared by every turn variant: take the session
// lock, resolve the session, persist the human turn and assemble the
// transcript. On success the caller owns unlock.
func (s *Service) beginTurn(ctx context.Context, token, content string) (ai.Provider, []ai.Message, func(), error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, nil, validationErr("message is required")
	}

	// resolve under the lock: a DeleteSession that wins the race must be seen
	unlock, err := s.lock(ctx, token)
	if err != nil {
		return nil, nil, nil, err
	}

	// 1) resolve session before touching the log or the model
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	provider, err := s.providerForSession(ctx, sess)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}

	// 2) store human turn; nothing is sent to the model unless this commits
	sctx, cancel := s.storeCtx(ctx)
	_, err = s.messages.Append(sctx, token, RoleHuman, content)
	cancel()
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}

	// 3) transcript now ends with the turn just stored
	rctx, cancelRead := s.readCtx(ctx)
	transcript, err := s.assembler.Assemble(rctx, token)
	cancelRead()
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	if n := len(transcript.Unrecognized); n > 0 {
		observability.LoggerFromContext(ctx).Warn("skipping turns with unrecognised sender",
			"session", token, "count", n, "first_id", transcript.Unrecognized[0].ID)
	}

	return provider, transcript.ProviderMessages(s.systemPrompt), unlock, nil
}

// finishTurn stores the assistant turn. A failed write is reported to the
// operator and the reply is still handed back.
func (s *Service) finishTurn(ctx context.Context, token, reply string) *TurnResult {
	res := &TurnResult{SessionID: token, Reply: reply}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	msg, err := s.messages.Append(sctx, token, RoleAssistant, reply)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("assistant turn not persisted",
			"session", token, "error", err)
		return res
	}
	res.MessageID = msg.ID
	res.Persisted = true
	return res
}

// SendMessage runs one conversation turn: resolve session, store the human
// turn, assemble the transcript, call the model, store the assistant turn.
// Steps run strictly in that order and turns of one session never interleave.
func (s *Service) SendMessage(ctx context.Context, token, content string) (*TurnResult, error) {
	provider, msgs, unlock, err := s.beginTurn(ctx, token, content)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 4) call model; the human turn stays stored if this fails
	mctx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	reply, err := provider.Chat(mctx, msgs)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		err = modelErr(mctx, err)
		cancel()
		observability.LoggerFromContext(ctx).Error("model call failed", "session", token, "error", err)
		return nil, err
	}
	cancel()

	// 5) store assistant turn
	return s.finishTurn(ctx, token, reply), nil
}

// Jobs

// EnqueueTurn records a turn to be run later by the worker. With a key, a
// repeated request returns the job created the first time.
func (s *Service) EnqueueTurn(ctx context.Context, token, content string, idempotencyKey *string) (*Job, bool, error) {
	if strings.TrimSpace(content) == "" {
		return nil, false, validationErr("message is required")
	}
	if _, err := s.GetSession(ctx, token); err != nil {
		return nil, false, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, false, fmt.Errorf("new job id: %w", err)
	}
	j := &Job{
		ID:             id,
		SessionID:      token,
		Prompt:         content,
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.CreateJobOrGetExisting(sctx, j)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	rctx, cancel := s.readCtx(ctx)
	defer cancel()
	return s.repo.GetJobByID(rctx, jobID)
}

// RunJob executes a queued job through SendMessage and records the outcome.
// A job an earlier attempt left running is resumed when attempt > 1; any
// other job that is no longer queued is skipped.
func (s *Service) RunJob(ctx context.Context, jobID string, attempt int) error {
	rctx, cancelRead := s.readCtx(ctx)
	j, err := s.repo.GetJobByID(rctx, jobID)
	cancelRead()
	if err != nil {
		return err
	}

	switch {
	case j.Status == JobQueued:
		sctx, cancel := s.storeCtx(ctx)
		claimed, err := s.repo.MarkJobRunning(sctx, jobID)
		cancel()
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
	case j.Status == JobRunning && attempt > 1:
		settled, err := s.recoverJob(ctx, j)
		if err != nil || settled {
			return err
		}
		observability.LoggerFromContext(ctx).Warn("resuming job", "job_id", jobID, "attempt", attempt)
	default:
		return nil
	}

	res, turnErr := s.SendMessage(ctx, j.SessionID, j.Prompt)

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if turnErr != nil {
		if err := s.repo.MarkJobFailed(sctx, jobID, turnErr.Error()); err != nil {
			return errors.Join(turnErr, err)
		}
		return fmt.Errorf("%w: %w", ErrJobFailed, turnErr)
	}

	var msgID *uint64
	if res.Persisted {
		msgID = &res.MessageID
	}
	return s.repo.MarkJobSucceeded(sctx, jobID, msgID, res.Reply)
}

// recoverJob settles a running job whose turn already completed but whose
// outcome was never written: the newest human turn carrying the job prompt,
// stored after the job was created and followed by an assistant turn, is
// taken as the result. It reports whether the job was settled.
func (s *Service) recoverJob(ctx context.Context, j *Job) (bool, error) {
	rctx, cancelRead := s.readCtx(ctx)
	msgs, err := s.messages.Load(rctx, j.SessionID)
	cancelRead()
	if err != nil {
		return false, err
	}

	for i := len(msgs) - 2; i >= 0; i-- {
		human, reply := msgs[i], msgs[i+1]
		if human.CreatedAt.Before(j.CreatedAt) {
			break
		}
		if human.Role() != RoleHuman || human.Body != j.Prompt || reply.Role() != RoleAssistant {
			continue
		}
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		if err := s.repo.MarkJobSucceeded(sctx, j.ID, &reply.ID, reply.Body); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
