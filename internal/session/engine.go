// Package session runs one timed exam: the per-task phase machine, the
// session and phase clocks, audio capture, autosave, recovery and
// submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sjawhar/exam-runner/internal/audio"
	"github.com/sjawhar/exam-runner/internal/clock"
	"github.com/sjawhar/exam-runner/internal/exam"
	"github.com/sjawhar/exam-runner/internal/storage"
	"github.com/sjawhar/exam-runner/internal/submission"
)

const (
	DefaultAutosaveInterval = 2 * time.Minute
	DefaultRecoveryWindow   = 24 * time.Hour
)

type Options struct {
	AutosaveInterval time.Duration
	RecoveryWindow   time.Duration
	// ReturnPath is where the UI sends the user back to after logging in
	// again.
	ReturnPath string
}

// Engine owns all session state. Every method must run on the scheduler's
// thread; callers outside it go through Scheduler.Call.
type Engine struct {
	sched     clock.Scheduler
	recorder  Recorder
	store     Store
	submitter Submitter
	hub       EventBroadcaster
	logger    *zap.Logger
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	test         exam.Test
	answers      exam.AnswerSet
	marked       map[int]bool
	states       []taskState
	current      int
	sessionClock *clock.Countdown
	phaseClock   *clock.Countdown
	autosave     clock.Timer
	recovery     *storage.Snapshot

	started    bool
	complete   bool
	expired    bool
	submitting bool
	submitted  bool
	attemptID  int64
	closed     bool
}

func NewEngine(sched clock.Scheduler, test exam.Test, recorder Recorder, store Store, submitter Submitter, hub EventBroadcaster, logger *zap.Logger, opts Options) *Engine {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	if opts.RecoveryWindow <= 0 {
		opts.RecoveryWindow = DefaultRecoveryWindow
	}

	e := &Engine{
		sched:        sched,
		recorder:     recorder,
		store:        store,
		submitter:    submitter,
		hub:          hub,
		logger:       logger.With(zap.Int("test_id", test.ID)),
		opts:         opts,
		test:         test,
		answers:      exam.AnswerSet{},
		marked:       make(map[int]bool),
		states:       make([]taskState, len(test.Tasks)),
		sessionClock: clock.NewCountdown(sched),
		phaseClock:   clock.NewCountdown(sched),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	recorder.SetHandlers(audio.Handlers{
		OnTick:     e.onRecordingTick,
		OnCaptured: e.onCaptured,
		OnError:    e.onRecordingError,
		OnDevice:   e.onDevice,
	})
	return e
}

// Start offers stored progress, starts the session clock and autosave, and
// enters the first task. Speaking tests ask for the microphone right away.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return fmt.Errorf("%w: already started", ErrInvalidTransition)
	}
	if len(e.test.Tasks) == 0 {
		return fmt.Errorf("%w: test has no tasks", ErrInvalidTransition)
	}
	e.started = true

	snap, err := e.store.Load(ctx, e.test.ID)
	switch {
	case err != nil:
		e.logger.Warn("load stored progress", zap.Error(err))
	case snap == nil:
	case snap.Recoverable(e.sched.Now(), e.opts.RecoveryWindow):
		e.recovery = snap
		e.hub.BroadcastRecoveryOffered(e.test.ID, snap.Timestamp, len(snap.Answers))
	default:
		e.logger.Info("discarding stale progress", zap.Time("saved_at", snap.Timestamp))
		if err := e.store.Clear(ctx, e.test.ID); err != nil {
			e.logger.Warn("clear stale progress", zap.Error(err))
		}
	}

	if e.test.DurationSeconds > 0 {
		e.sessionClock.Start(e.test.DurationSeconds, func(remaining int) {
			e.hub.BroadcastClockTick(ClockSession, 0, remaining)
		}, e.expireSession)
	}
	e.autosave = e.sched.Every(e.opts.AutosaveInterval, func() {
		e.saveProgress("autosave", nil)
	})

	if e.test.HasSpeaking() && e.recorder.DeviceState() == audio.DeviceIdle {
		e.recorder.RequestAccess(e.ctx, nil)
	}

	e.logger.Info("session started",
		zap.String("kind", string(e.test.Kind)),
		zap.Int("tasks", len(e.test.Tasks)),
		zap.Int("duration_seconds", e.test.DurationSeconds))
	e.enter(0)
	return nil
}

// AcceptRecovery restores the offered answers and marks.
func (e *Engine) AcceptRecovery() error {
	if e.recovery == nil {
		return ErrNoRecovery
	}
	snap := e.recovery
	e.recovery = nil

	now := e.sched.Now()
	restored := 0
	for qid, value := range snap.Answers {
		task, ok := e.test.Task(qid)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		e.answers.Set(restoredAnswer(task, value, now))
		restored++
	}
	for _, qid := range snap.MarkedQuestions {
		if _, ok := e.test.Task(qid); ok {
			e.marked[qid] = true
		}
	}

	e.logger.Info("progress restored", zap.Int("answers", restored), zap.Time("saved_at", snap.Timestamp))
	e.hub.BroadcastNotice("info", "progress_restored", fmt.Sprintf("Restored %d answers", restored))
	for i := range e.test.Tasks {
		e.hub.BroadcastPhaseChanged(e.taskView(i))
	}
	return nil
}

// DeclineRecovery drops the offered snapshot.
func (e *Engine) DeclineRecovery() error {
	if e.recovery == nil {
		return ErrNoRecovery
	}
	e.recovery = nil

	var err error
	e.sched.Background(func() {
		err = e.store.Clear(e.ctx, e.test.ID)
	}, func() {
		if err != nil {
			e.logger.Warn("clear declined progress", zap.Error(err))
		}
	})
	return nil
}

// dropRecoveryOffer treats the first answer given while an offer is pending
// as declining it. The stored snapshot is left for the next save to replace.
func (e *Engine) dropRecoveryOffer(reason string) {
	if e.recovery == nil {
		return
	}
	e.recovery = nil
	e.logger.Info("recovery offer dropped", zap.String("reason", reason))
	e.hub.BroadcastNotice("info", "recovery_declined", "Saved progress was not restored")
}

func restoredAnswer(task exam.Task, value string, now time.Time) exam.Answer {
	if decoded, err := audio.Decode(value); err == nil {
		return exam.Answer{
			QuestionID: task.ID,
			Kind:       exam.AnswerAudio,
			Audio:      &exam.AudioRef{DurationSeconds: decoded.DurationSeconds, Encoded: value},
			UpdatedAt:  now,
		}
	}
	if len(task.Options) > 0 && task.HasOption(value) {
		return exam.Answer{QuestionID: task.ID, Kind: exam.AnswerOption, Option: value, UpdatedAt: now}
	}
	return exam.Answer{QuestionID: task.ID, Kind: exam.AnswerText, Text: value, UpdatedAt: now}
}

// Begin leaves INTRO for the current task.
func (e *Engine) Begin() error {
	if err := e.active(); err != nil {
		return err
	}
	st := &e.states[e.current]
	if st.phase != PhaseIntro {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, st.phase)
	}
	if e.test.HasSpeaking() {
		switch e.recorder.DeviceState() {
		case audio.DeviceReady:
		case audio.DeviceDenied:
			return ErrDevicePermissionDenied
		default:
			return ErrDeviceUnavailable
		}
	}

	task := e.test.Tasks[e.current]
	if task.PreparationSeconds > 0 {
		e.prepare(e.current)
		return nil
	}
	e.respond(e.current)
	return nil
}

// SkipPreparation ends preparation early.
func (e *Engine) SkipPreparation() error {
	if err := e.active(); err != nil {
		return err
	}
	if e.states[e.current].phase != PhasePreparation {
		return fmt.Errorf("%w: not preparing", ErrInvalidTransition)
	}
	e.phaseClock.Skip()
	return nil
}

func (e *Engine) prepare(idx int) {
	st := &e.states[idx]
	task := e.test.Tasks[idx]

	st.phase = PhasePreparation
	st.remaining = task.PreparationSeconds
	e.phaseClock.Start(task.PreparationSeconds, func(remaining int) {
		st.remaining = remaining
		e.hub.BroadcastClockTick(ClockPreparation, task.ID, remaining)
	}, func() {
		e.respond(idx)
	})
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
}

func (e *Engine) respond(idx int) {
	st := &e.states[idx]
	task := e.test.Tasks[idx]

	st.phase = PhaseResponding
	st.remaining = 0
	e.phaseClock.Cancel()
	if task.ResponseSeconds > 0 {
		st.remaining = task.ResponseSeconds
		e.phaseClock.Start(task.ResponseSeconds, func(remaining int) {
			st.remaining = remaining
			e.hub.BroadcastClockTick(ClockResponse, task.ID, remaining)
		}, func() {
			e.responseTimeUp(idx)
		})
	}
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
}

func (e *Engine) responseTimeUp(idx int) {
	st := &e.states[idx]
	qid := e.test.Tasks[idx].ID

	st.timeUp = true
	if active, ok := e.recorder.Active(); ok && active == qid {
		e.recorder.StopRecording(qid)
	}
	e.hub.BroadcastNotice("info", "response_time_up", "Response time is over")
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
}

// StartRecording begins capture for the current speaking task.
func (e *Engine) StartRecording() error {
	if err := e.active(); err != nil {
		return err
	}
	if !e.test.HasSpeaking() {
		return fmt.Errorf("%w: not a speaking test", ErrInvalidTransition)
	}
	if err := e.acceptingInput(e.current); err != nil {
		return err
	}

	task := e.test.Tasks[e.current]
	a, err := e.recorder.StartRecording(task.ID)
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) && e.recorder.DeviceState() == audio.DeviceDenied {
			return fmt.Errorf("%w: %w", ErrDevicePermissionDenied, err)
		}
		return err
	}
	e.dropRecoveryOffer("recording started")

	e.answers.Set(exam.Answer{
		QuestionID: task.ID,
		Kind:       exam.AnswerAudio,
		Audio:      &exam.AudioRef{ArtifactID: a.ID},
		UpdatedAt:  e.sched.Now(),
	})
	e.hub.BroadcastRecordingState(task.ID, audio.StateRecording.String(), 0)
	return nil
}

// StopRecording finalizes the current task's recording. It is a no-op when
// nothing is recording.
func (e *Engine) StopRecording() error {
	if !e.started {
		return ErrNotStarted
	}
	qid := e.test.Tasks[e.current].ID
	if active, ok := e.recorder.Active(); ok && active == qid {
		e.recorder.StopRecording(qid)
		e.hub.BroadcastRecordingState(qid, audio.StateStopping.String(), 0)
	}
	return nil
}

func (e *Engine) Replay() error {
	if !e.started {
		return ErrNotStarted
	}
	return e.recorder.Replay(e.test.Tasks[e.current].ID)
}

func (e *Engine) Pause() error {
	if !e.started {
		return ErrNotStarted
	}
	e.recorder.Pause()
	return nil
}

func (e *Engine) Seek(offset time.Duration) error {
	if !e.started {
		return ErrNotStarted
	}
	return e.recorder.Seek(e.test.Tasks[e.current].ID, offset)
}

// RetryDeviceAccess asks for the microphone again after a refusal.
func (e *Engine) RetryDeviceAccess() error {
	if e.closed {
		return ErrSessionOver
	}
	e.recorder.RequestAccess(e.ctx, nil)
	return nil
}

// AnswerAudio returns a playable WAV for questionID, from the live artifact
// or from a restored answer.
func (e *Engine) AnswerAudio(questionID int) ([]byte, error) {
	if _, ok := e.test.Task(questionID); !ok {
		return nil, ErrUnknownQuestion
	}
	if a, ok := e.recorder.Artifact(questionID); ok && a.State() == audio.StateCaptured {
		return a.WAV(), nil
	}
	answer, ok := e.answers.Get(questionID)
	if !ok || answer.Kind != exam.AnswerAudio || answer.Audio == nil || answer.Audio.Encoded == "" {
		return nil, ErrNoAudio
	}
	decoded, err := audio.Decode(answer.Audio.Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode stored recording: %w", err)
	}
	return decoded.WAV, nil
}

func (e *Engine) onRecordingTick(questionID, seconds int) {
	e.hub.BroadcastRecordingState(questionID, audio.StateRecording.String(), seconds)
}

func (e *Engine) onCaptured(a *audio.Artifact) {
	answer, ok := e.answers.Get(a.QuestionID)
	if !ok || answer.Audio == nil || answer.Audio.ArtifactID != a.ID {
		e.logger.Debug("ignoring superseded capture", zap.Int("question_id", a.QuestionID), zap.String("artifact_id", a.ID))
		return
	}
	answer.Audio = &exam.AudioRef{ArtifactID: a.ID, DurationSeconds: a.Seconds(), Encoded: a.Encoded()}
	answer.UpdatedAt = e.sched.Now()
	e.answers.Set(answer)
	e.hub.BroadcastRecordingState(a.QuestionID, audio.StateCaptured.String(), a.Seconds())
}

func (e *Engine) onRecordingError(questionID int, err error) {
	e.hub.BroadcastRecordingState(questionID, audio.StateError.String(), 0)
	e.hub.BroadcastNotice("error", "capture_failed", err.Error())
}

func (e *Engine) onDevice(state audio.DeviceState, err error) {
	switch state {
	case audio.DeviceDenied:
		msg := "Microphone access was denied"
		if err != nil {
			msg = err.Error()
		}
		e.hub.BroadcastNotice("error", "device_denied", msg)
	case audio.DeviceReady:
		e.hub.BroadcastNotice("info", "device_ready", "Microphone ready")
	}
}

// SetText stores a free-text answer for the current task.
func (e *Engine) SetText(questionID int, text string) error {
	idx, err := e.inputTask(questionID)
	if err != nil {
		return err
	}
	if e.test.HasSpeaking() {
		return fmt.Errorf("%w: speaking tasks take recordings", ErrInputDisabled)
	}
	e.dropRecoveryOffer("answer entered")
	e.answers.Set(exam.Answer{QuestionID: questionID, Kind: exam.AnswerText, Text: text, UpdatedAt: e.sched.Now()})
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
	return nil
}

// SelectOption stores an option code for the current task.
func (e *Engine) SelectOption(questionID int, code string) error {
	idx, err := e.inputTask(questionID)
	if err != nil {
		return err
	}
	task := e.test.Tasks[idx]
	if strings.TrimSpace(code) == "" || !task.HasOption(code) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, code)
	}
	e.dropRecoveryOffer("answer entered")
	e.answers.Set(exam.Answer{QuestionID: questionID, Kind: exam.AnswerOption, Option: code, UpdatedAt: e.sched.Now()})
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
	return nil
}

// ToggleMark flags or unflags a question and returns the new flag.
func (e *Engine) ToggleMark(questionID int) (bool, error) {
	if _, ok := e.test.Task(questionID); !ok {
		return false, ErrUnknownQuestion
	}
	e.dropRecoveryOffer("question marked")
	if e.marked[questionID] {
		delete(e.marked, questionID)
		return false, nil
	}
	e.marked[questionID] = true
	return true, nil
}

func (e *Engine) inputTask(questionID int) (int, error) {
	if err := e.active(); err != nil {
		return 0, err
	}
	if _, ok := e.test.Task(questionID); !ok {
		return 0, ErrUnknownQuestion
	}
	if e.test.Tasks[e.current].ID != questionID {
		return 0, fmt.Errorf("%w: question %d is not the current task", ErrInputDisabled, questionID)
	}
	if err := e.acceptingInput(e.current); err != nil {
		return 0, err
	}
	return e.current, nil
}

func (e *Engine) acceptingInput(idx int) error {
	st := e.states[idx]
	if st.phase != PhaseResponding {
		return fmt.Errorf("%w: %s", ErrInputDisabled, st.phase)
	}
	if st.timeUp {
		return fmt.Errorf("%w: response time is over", ErrInputDisabled)
	}
	return nil
}

// Next moves to the following task, or completes the session after the
// last one.
func (e *Engine) Next() error {
	if err := e.active(); err != nil {
		return err
	}
	if e.recordingCurrent() {
		return ErrNavigationBlocked
	}
	if e.current == len(e.test.Tasks)-1 {
		if e.complete {
			return fmt.Errorf("%w: session already complete", ErrInvalidTransition)
		}
		e.leave(e.current)
		e.complete = true
		e.logger.Info("session complete")
		e.hub.BroadcastSessionComplete(e.test.ID)
		return nil
	}
	e.leave(e.current)
	e.enter(e.current + 1)
	return nil
}

// Back moves to the previous task. A running recording is finalized.
func (e *Engine) Back() error {
	if err := e.active(); err != nil {
		return err
	}
	if e.current == 0 {
		return fmt.Errorf("%w: already at the first task", ErrInvalidTransition)
	}
	e.leave(e.current)
	e.enter(e.current - 1)
	return nil
}

// GoTo jumps to the task at index.
func (e *Engine) GoTo(index int) error {
	if err := e.active(); err != nil {
		return err
	}
	if index < 0 || index >= len(e.test.Tasks) {
		return fmt.Errorf("%w: task index %d", ErrUnknownQuestion, index)
	}
	if index == e.current {
		return nil
	}
	if index > e.current && e.recordingCurrent() {
		return ErrNavigationBlocked
	}
	e.leave(e.current)
	e.enter(index)
	return nil
}

func (e *Engine) recordingCurrent() bool {
	active, ok := e.recorder.Active()
	return ok && active == e.test.Tasks[e.current].ID
}

func (e *Engine) enter(idx int) {
	e.current = idx
	st := &e.states[idx]
	st.reset()

	task := e.test.Tasks[idx]
	if (e.test.Kind == exam.KindReading || e.test.Kind == exam.KindListening) && task.PreparationSeconds == 0 {
		e.respond(idx)
		return
	}
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
}

func (e *Engine) leave(idx int) {
	st := &e.states[idx]
	qid := e.test.Tasks[idx].ID

	e.phaseClock.Cancel()
	if active, ok := e.recorder.Active(); ok && active == qid {
		e.recorder.StopRecording(qid)
	}
	e.recorder.Pause()

	if answer, ok := e.answers.Get(qid); st.phase == PhaseResponding && ok && (answer.Ready() || answer.Kind == exam.AnswerAudio) {
		st.done = true
	}
	st.reset()
	if st.done {
		st.phase = PhaseDone
	}
	e.hub.BroadcastPhaseChanged(e.taskView(idx))
}

// SaveProgress stores a snapshot now. The outcome arrives as a
// progress_saved or notice event.
func (e *Engine) SaveProgress() error {
	if !e.started {
		return ErrNotStarted
	}
	if e.submitted {
		return submission.ErrAlreadySubmitted
	}
	e.saveProgress("manual", nil)
	return nil
}

// AuthExpired saves progress and the return path before the UI sends the
// user to log in again.
func (e *Engine) AuthExpired() error {
	if !e.started {
		return ErrNotStarted
	}
	e.persistForReauth(func() {
		e.hub.BroadcastReauthRequired(e.opts.ReturnPath)
	})
	return nil
}

// Reauthenticated drops the login bookmark once a fresh credential is in
// place. A failed submission can then be retried.
func (e *Engine) Reauthenticated() error {
	if !e.started {
		return ErrNotStarted
	}

	var err error
	e.sched.Background(func() {
		err = e.store.ClearRedirect(e.ctx)
	}, func() {
		if err != nil {
			e.logger.Warn("clear login bookmark", zap.Error(err))
		}
	})
	e.logger.Info("credential renewed")
	e.hub.BroadcastNotice("info", "reauthenticated", "Signed in again")
	return nil
}

func (e *Engine) snapshot() storage.Snapshot {
	return storage.Snapshot{
		TestID:          e.test.ID,
		Answers:         e.answers.Values(),
		MarkedQuestions: e.markedList(),
		Timestamp:       e.sched.Now(),
	}
}

func (e *Engine) saveProgress(reason string, after func(error)) {
	if e.recovery != nil || e.submitted || e.closed {
		if after != nil {
			after(nil)
		}
		return
	}

	snap := e.snapshot()
	var err error
	e.sched.Background(func() {
		err = e.store.Save(e.ctx, snap)
	}, func() {
		if err != nil {
			e.logger.Warn("save progress", zap.String("reason", reason), zap.Error(err))
			e.hub.BroadcastNotice("warning", "save_failed", "Progress could not be saved")
		} else {
			e.hub.BroadcastProgressSaved(e.test.ID, snap.Timestamp, reason)
		}
		if after != nil {
			after(err)
		}
	})
}

func (e *Engine) persistForReauth(then func()) {
	pending := e.recovery != nil
	snap := e.snapshot()
	path := e.opts.ReturnPath

	var err error
	e.sched.Background(func() {
		if !pending {
			err = e.store.Save(e.ctx, snap)
		}
		err = errors.Join(err, e.store.SetRedirect(e.ctx, path))
	}, func() {
		if err != nil {
			e.logger.Error("persist before re-authentication", zap.Error(err))
		}
		then()
	})
}

// Submit hands the answers to the submission pipeline once the session is
// complete or its time is up. done runs on the scheduler with the result.
func (e *Engine) Submit(done func(submission.Result)) error {
	if !e.started {
		return ErrNotStarted
	}
	if e.submitted {
		return submission.ErrAlreadySubmitted
	}
	if e.submitting {
		return ErrSubmissionInFlight
	}
	if e.recovery != nil {
		return ErrRecoveryPending
	}
	if !e.complete && !e.expired {
		return ErrNotComplete
	}
	e.submit(done)
	return nil
}

func (e *Engine) submit(done func(submission.Result)) {
	e.submitting = true
	e.forceStop()

	e.recorder.Settle(func() {
		req := submission.Request{
			TestID:     e.test.ID,
			Answers:    e.answers.Clone(),
			Marked:     e.markedList(),
			ReturnPath: e.opts.ReturnPath,
			Busy:       e.busy(),
			At:         e.sched.Now(),
		}
		e.logger.Info("submitting", zap.Int("answers", len(req.Answers)))

		var res submission.Result
		e.sched.Background(func() {
			res = e.submitter.Submit(e.ctx, req)
		}, func() {
			e.finishSubmit(res, done)
		})
	})
}

func (e *Engine) finishSubmit(res submission.Result, done func(submission.Result)) {
	e.submitting = false

	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	switch res.Outcome {
	case submission.OutcomeSuccess:
		e.submitted = true
		e.attemptID = res.AttemptID
		e.sessionClock.Cancel()
		e.phaseClock.Cancel()
		if e.autosave != nil {
			e.autosave.Stop()
		}
	case submission.OutcomeNeedsReauth:
		e.hub.BroadcastReauthRequired(e.opts.ReturnPath)
	case submission.OutcomeRetryable:
		e.hub.BroadcastNotice("error", "submission_failed", "Submission failed; your answers are kept, try again")
	}
	e.hub.BroadcastSubmissionResult(string(res.Outcome), res.AttemptID, msg)

	if done != nil {
		done(res)
	}
}

// forceStop ends preparation and recording so nothing is in flight when the
// answers are read.
func (e *Engine) forceStop() {
	e.phaseClock.Cancel()
	st := &e.states[e.current]
	if st.phase == PhasePreparation {
		st.phase = PhaseResponding
		st.remaining = 0
	}
	if active, ok := e.recorder.Active(); ok {
		e.recorder.StopRecording(active)
	}
	e.recorder.Pause()
}

func (e *Engine) busy() bool {
	if _, ok := e.recorder.Active(); ok {
		return true
	}
	for _, st := range e.states {
		if st.phase == PhasePreparation {
			return true
		}
	}
	return false
}

func (e *Engine) expireSession() {
	e.expired = true
	e.logger.Info("session time is up")
	e.hub.BroadcastNotice("info", "session_expired", "Time is up; submitting your answers")
	if e.submitting || e.submitted {
		return
	}
	e.dropRecoveryOffer("session time is up")
	e.submit(nil)
}

// active reports whether the session accepts user actions.
func (e *Engine) active() error {
	switch {
	case !e.started:
		return ErrNotStarted
	case e.closed, e.submitted, e.expired:
		return ErrSessionOver
	case e.submitting:
		return ErrSubmissionInFlight
	}
	return nil
}

// Close cancels every clock and releases the microphone.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.sessionClock.Cancel()
	e.phaseClock.Cancel()
	if e.autosave != nil {
		e.autosave.Stop()
	}
	e.recorder.Close()
	e.cancel()
	e.logger.Info("session closed")
}
