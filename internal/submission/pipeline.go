// Package submission turns an answer set into one submit call and reports
// a discriminated outcome.
package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjawhar/exam-runner/internal/backend"
	"github.com/sjawhar/exam-runner/internal/exam"
	"github.com/sjawhar/exam-runner/internal/storage"
)

var (
	// ErrSessionBusy means a task is still preparing or recording.
	ErrSessionBusy = errors.New("session busy: stop preparation and recording before submitting")
	// ErrAlreadySubmitted means an attempt already exists for this test.
	ErrAlreadySubmitted = errors.New("test already submitted")
	// ErrInFlight means another submission for the same test has not returned.
	ErrInFlight = errors.New("submission already in flight")
)

type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRetryable   Outcome = "retryable"
	OutcomeNeedsReauth Outcome = "needs_reauth"
	OutcomeRejected    Outcome = "rejected"
)

// Backend is the remote submission collaborator.
type Backend interface {
	Submit(ctx context.Context, testID int, responses []exam.Response) (int64, error)
}

// ProgressStore is the part of storage.Store the pipeline needs.
type ProgressStore interface {
	Save(ctx context.Context, snap storage.Snapshot) error
	Clear(ctx context.Context, testID int) error
	SetRedirect(ctx context.Context, path string) error
}

// Request is an immutable copy of what is being submitted. The pipeline
// never writes to Answers.
type Request struct {
	TestID     int
	Answers    exam.AnswerSet
	Marked     []int
	ReturnPath string
	Busy       bool
	At         time.Time
}

type Result struct {
	Outcome   Outcome
	AttemptID int64
	Err       error
}

type Pipeline struct {
	backend Backend
	store   ProgressStore
	logger  *zap.Logger

	mu        sync.Mutex
	inFlight  map[int]bool
	submitted map[int]int64
}

func NewPipeline(b Backend, store ProgressStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		backend:   b,
		store:     store,
		logger:    logger,
		inFlight:  make(map[int]bool),
		submitted: make(map[int]int64),
	}
}

// Submit sends every ready answer in one request. On success the stored
// progress is cleared. On authentication failure progress and the return
// path are saved first. Any other failure leaves everything as it was.
func (p *Pipeline) Submit(ctx context.Context, req Request) Result {
	if err := p.claim(req); err != nil {
		return Result{Outcome: OutcomeRejected, Err: err}
	}

	responses := req.Answers.Responses()
	attemptID, err := p.backend.Submit(ctx, req.TestID, responses)

	p.mu.Lock()
	delete(p.inFlight, req.TestID)
	if err == nil {
		p.submitted[req.TestID] = attemptID
	}
	p.mu.Unlock()

	switch {
	case err == nil:
		if clearErr := p.store.Clear(ctx, req.TestID); clearErr != nil {
			p.logger.Warn("clear progress after submission", zap.Int("test_id", req.TestID), zap.Error(clearErr))
		}
		p.logger.Info("test submitted",
			zap.Int("test_id", req.TestID),
			zap.Int64("attempt_id", attemptID),
			zap.Int("responses", len(responses)))
		return Result{Outcome: OutcomeSuccess, AttemptID: attemptID}

	case errors.Is(err, backend.ErrAuthExpired):
		p.logger.Warn("submission needs re-authentication", zap.Int("test_id", req.TestID))
		var saveErr error
		snap := storage.Snapshot{
			TestID:          req.TestID,
			Answers:         req.Answers.Values(),
			MarkedQuestions: req.Marked,
			Timestamp:       req.At,
		}
		if e := p.store.Save(ctx, snap); e != nil {
			saveErr = fmt.Errorf("save progress before re-authentication: %w", e)
		}
		if e := p.store.SetRedirect(ctx, req.ReturnPath); e != nil {
			saveErr = errors.Join(saveErr, fmt.Errorf("remember return path: %w", e))
		}
		if saveErr != nil {
			p.logger.Error("persist before re-authentication", zap.Error(saveErr))
		}
		return Result{Outcome: OutcomeNeedsReauth, Err: errors.Join(err, saveErr)}

	default:
		p.logger.Warn("submission failed", zap.Int("test_id", req.TestID), zap.Error(err))
		return Result{Outcome: OutcomeRetryable, Err: err}
	}
}

// Submitted reports the attempt ID of a completed submission.
func (p *Pipeline) Submitted(testID int) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.submitted[testID]
	return id, ok
}

func (p *Pipeline) claim(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Busy {
		return ErrSessionBusy
	}
	if _, ok := p.submitted[req.TestID]; ok {
		return ErrAlreadySubmitted
	}
	if p.inFlight[req.TestID] {
		return ErrInFlight
	}
	p.inFlight[req.TestID] = true
	return nil
}
