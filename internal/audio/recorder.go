package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sjawhar/exam-runner/internal/clock"
)

// Artifact is one recording for one question.
type Artifact struct {
	ID         string
	QuestionID int

	state      State
	raw        bytes.Buffer
	stream     Stream
	counter    clock.Timer
	seconds    int
	sampleRate int
	wav        []byte
	encoded    string
	err        error
}

func (a *Artifact) State() State { return a.state }

// Seconds is the recorded duration as counted by the recorder itself.
func (a *Artifact) Seconds() int { return a.seconds }

// WAV is the playable form, available once captured.
func (a *Artifact) WAV() []byte { return a.wav }

// Encoded is the transmittable form, available once captured.
func (a *Artifact) Encoded() string { return a.encoded }

func (a *Artifact) Err() error { return a.err }

// Recorder is the capture subsystem. All methods must be called on the
// scheduler thread; device callbacks are posted onto it.
type Recorder struct {
	sched  clock.Scheduler
	device Device
	output Output
	logger *zap.Logger

	handlers    Handlers
	deviceState DeviceState
	artifacts   map[int]*Artifact
	active      *Artifact
	stopping    int
	waiters     []func()
	playback    *Playback
	closed      bool
}

func NewRecorder(sched clock.Scheduler, device Device, output Output, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sched:     sched,
		device:    device,
		output:    output,
		logger:    logger,
		artifacts: make(map[int]*Artifact),
	}
}

func (r *Recorder) SetHandlers(h Handlers) {
	r.handlers = h
}

func (r *Recorder) DeviceState() DeviceState { return r.deviceState }

// RequestAccess asks for microphone permission without blocking the loop.
// done, if set, runs on the loop with the outcome.
func (r *Recorder) RequestAccess(ctx context.Context, done func(error)) {
	if r.deviceState == DeviceRequesting || r.deviceState == DeviceReady {
		if done != nil {
			r.sched.Post(func() { done(nil) })
		}
		return
	}
	if r.device == nil {
		r.setDevice(DeviceDenied, ErrDeviceUnavailable)
		if done != nil {
			r.sched.Post(func() { done(ErrDeviceUnavailable) })
		}
		return
	}

	r.setDevice(DeviceRequesting, nil)

	var err error
	r.sched.Background(func() {
		err = r.device.RequestAccess(ctx)
	}, func() {
		if err != nil {
			if !errors.Is(err, ErrPermissionDenied) {
				err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
			}
			r.logger.Warn("microphone access refused", zap.Error(err))
			r.setDevice(DeviceDenied, err)
		} else {
			r.setDevice(DeviceReady, nil)
		}
		if done != nil {
			done(err)
		}
	})
}

func (r *Recorder) setDevice(state DeviceState, err error) {
	r.deviceState = state
	if r.handlers.OnDevice != nil {
		r.handlers.OnDevice(state, err)
	}
}

// StartRecording opens a new capture for questionID, replacing whatever was
// previously captured for it.
func (r *Recorder) StartRecording(questionID int) (*Artifact, error) {
	if r.closed || r.deviceState != DeviceReady {
		return nil, ErrDeviceUnavailable
	}
	if r.active != nil {
		return nil, ErrAlreadyRecording
	}

	r.discard(questionID)

	a := &Artifact{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		state:      StateRecording,
		sampleRate: r.device.SampleRate(),
	}
	if a.sampleRate <= 0 {
		a.sampleRate = defaultSampleRate
	}

	stream, err := r.device.Open(&artifactSink{recorder: r, artifact: a})
	if err != nil {
		a.state = StateError
		a.err = fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		r.logger.Error("open capture stream failed", zap.Int("question_id", questionID), zap.Error(err))
		return nil, a.err
	}

	a.stream = stream
	a.counter = r.sched.Every(time.Second, func() {
		if r.active != a || a.state != StateRecording {
			return
		}
		a.seconds++
		if r.handlers.OnTick != nil {
			r.handlers.OnTick(questionID, a.seconds)
		}
	})

	r.active = a
	r.artifacts[questionID] = a
	r.logger.Info("recording started", zap.Int("question_id", questionID), zap.String("artifact_id", a.ID))
	return a, nil
}

// StopRecording finalizes the recording for questionID. It does nothing
// unless that question is currently recording.
func (r *Recorder) StopRecording(questionID int) {
	a := r.active
	if a == nil || a.QuestionID != questionID || a.state != StateRecording {
		return
	}

	r.active = nil
	a.counter.Stop()
	r.release(a)
	a.state = StateStopping
	r.stopping++

	// Data the stream delivered before release is queued ahead of this.
	r.sched.Post(func() { r.finalize(a) })
}

func (r *Recorder) finalize(a *Artifact) {
	questionID := a.QuestionID
	if r.artifacts[questionID] != a {
		r.stopping--
		r.flushWaiters()
		return
	}

	pcm := append([]byte(nil), a.raw.Bytes()...)
	a.raw.Reset()
	seconds := a.seconds

	var (
		wav     []byte
		encoded string
		err     error
	)
	r.sched.Background(func() {
		wav, err = pcmToWav(pcm, a.sampleRate)
		if err == nil {
			encoded = Encode(wav, seconds)
		}
	}, func() {
		r.stopping--
		defer r.flushWaiters()

		if r.artifacts[questionID] != a {
			return
		}
		if err != nil {
			r.fail(a, err)
			return
		}

		a.wav = wav
		a.encoded = encoded
		a.state = StateCaptured
		r.logger.Info("recording captured",
			zap.Int("question_id", questionID),
			zap.String("artifact_id", a.ID),
			zap.Int("seconds", seconds))
		if r.handlers.OnCaptured != nil {
			r.handlers.OnCaptured(a)
		}
	})
}

// Recording reports whether questionID is being recorded right now.
func (r *Recorder) Recording(questionID int) bool {
	return r.active != nil && r.active.QuestionID == questionID
}

// Active returns the question being recorded, if any.
func (r *Recorder) Active() (int, bool) {
	if r.active == nil {
		return 0, false
	}
	return r.active.QuestionID, true
}

func (r *Recorder) Artifact(questionID int) (*Artifact, bool) {
	a, ok := r.artifacts[questionID]
	return a, ok
}

// Settle runs fn once no recording is being finalized.
func (r *Recorder) Settle(fn func()) {
	if r.stopping == 0 {
		r.sched.Post(fn)
		return
	}
	r.waiters = append(r.waiters, fn)
}

// Close releases every open stream and stops playback. An in-progress
// recording is dropped.
func (r *Recorder) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.stopPlayback()

	if a := r.active; a != nil {
		r.active = nil
		a.counter.Stop()
		r.release(a)
		a.state = StateError
		a.err = ErrCaptureFailed
	}
}

func (r *Recorder) onData(a *Artifact, pcm []byte) {
	switch {
	case r.active == a && a.state == StateRecording:
	case a.state == StateStopping && r.artifacts[a.QuestionID] == a:
	default:
		return
	}
	a.raw.Write(pcm)
}

func (r *Recorder) onError(a *Artifact, err error) {
	if r.active != a || a.state != StateRecording {
		return
	}
	r.active = nil
	a.counter.Stop()
	r.release(a)
	r.fail(a, err)
}

func (r *Recorder) fail(a *Artifact, err error) {
	a.state = StateError
	a.err = fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	a.raw.Reset()
	if r.artifacts[a.QuestionID] == a {
		delete(r.artifacts, a.QuestionID)
	}
	r.logger.Error("recording failed", zap.Int("question_id", a.QuestionID), zap.Error(err))
	if r.handlers.OnError != nil {
		r.handlers.OnError(a.QuestionID, a.err)
	}
}

func (r *Recorder) discard(questionID int) {
	prev, ok := r.artifacts[questionID]
	if !ok {
		return
	}
	if r.playback != nil && r.playback.artifact == prev {
		r.stopPlayback()
	}
	r.release(prev)
	prev.raw.Reset()
	prev.wav = nil
	prev.encoded = ""
	delete(r.artifacts, questionID)
}

func (r *Recorder) release(a *Artifact) {
	if a.stream == nil {
		return
	}
	if err := a.stream.Close(); err != nil {
		r.logger.Warn("close capture stream", zap.Int("question_id", a.QuestionID), zap.Error(err))
	}
	a.stream = nil
}

func (r *Recorder) flushWaiters() {
	if r.stopping > 0 {
		return
	}
	waiters := r.waiters
	r.waiters = nil
	for _, fn := range waiters {
		r.sched.Post(fn)
	}
}

type artifactSink struct {
	recorder *Recorder
	artifact *Artifact
}

func (s *artifactSink) Data(pcm []byte) {
	buf := append([]byte(nil), pcm...)
	s.recorder.sched.Post(func() { s.recorder.onData(s.artifact, buf) })
}

func (s *artifactSink) Error(err error) {
	s.recorder.sched.Post(func() { s.recorder.onError(s.artifact, err) })
}
