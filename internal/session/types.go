package session

import (
	"context"
	"time"

	"github.com/sjawhar/exam-runner/internal/audio"
	"github.com/sjawhar/exam-runner/internal/storage"
	"github.com/sjawhar/exam-runner/internal/submission"
)

type Recorder interface {
	SetHandlers(h audio.Handlers)
	DeviceState() audio.DeviceState
	RequestAccess(ctx context.Context, done func(error))
	StartRecording(questionID int) (*audio.Artifact, error)
	StopRecording(questionID int)
	Active() (int, bool)
	Artifact(questionID int) (*audio.Artifact, bool)
	Replay(questionID int) error
	Pause()
	Seek(questionID int, offset time.Duration) error
	Settle(fn func())
	Close()
}

type Store interface {
	Save(ctx context.Context, snap storage.Snapshot) error
	Load(ctx context.Context, testID int) (*storage.Snapshot, error)
	Clear(ctx context.Context, testID int) error
	SetRedirect(ctx context.Context, path string) error
	ClearRedirect(ctx context.Context) error
}

type Submitter interface {
	Submit(ctx context.Context, req submission.Request) submission.Result
}

type EventBroadcaster interface {
	BroadcastPhaseChanged(task TaskView)
	BroadcastClockTick(clock string, questionID, remaining int)
	BroadcastRecordingState(questionID int, state string, seconds int)
	BroadcastNotice(level, code, message string)
	BroadcastRecoveryOffered(testID int, savedAt time.Time, answers int)
	BroadcastSessionComplete(testID int)
	BroadcastSubmissionResult(outcome string, attemptID int64, message string)
	BroadcastReauthRequired(returnPath string)
	BroadcastProgressSaved(testID int, savedAt time.Time, reason string)
}

// Clock names carried by clock_tick events.
const (
	ClockSession     = "session"
	ClockPreparation = "preparation"
	ClockResponse    = "response"
)

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastPhaseChanged(TaskView) {}
func (nopBroadcaster) BroadcastClockTick(string, int, int) {}
func (nopBroadcaster) BroadcastRecordingState(int, string, int) {}
func (nopBroadcaster) BroadcastNotice(string, string, string) {}
func (nopBroadcaster) BroadcastRecoveryOffered(int, time.Time, int) {}
func (nopBroadcaster) BroadcastSessionComplete(int) {}
func (nopBroadcaster) BroadcastSubmissionResult(string, int64, string) {}
func (nopBroadcaster) BroadcastReauthRequired(string) {}
func (nopBroadcaster) BroadcastProgressSaved(int, time.Time, string) {}
