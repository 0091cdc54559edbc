package server

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sjawhar/exam-runner/internal/session"
)

// Hub fans events out to every connected WebSocket client. Slow clients
// miss events rather than block the session.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *zap.Logger
	now     func() time.Time
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
			h.logger.Debug("dropping event for slow client")
		}
	}
}

func (h *Hub) BroadcastPhaseChanged(task session.TaskView) {
	h.broadcastEvent(PhaseChangedEvent{
		Event: newEvent("phase_changed", h.now()),
		Task:  task,
	})
}

func (h *Hub) BroadcastClockTick(clock string, questionID, remaining int) {
	h.broadcastEvent(ClockTickEvent{
		Event:      newEvent("clock_tick", h.now()),
		Clock:      clock,
		QuestionID: questionID,
		Remaining:  remaining,
	})
}

func (h *Hub) BroadcastRecordingState(questionID int, state string, seconds int) {
	h.broadcastEvent(RecordingStateEvent{
		Event:      newEvent("recording_state", h.now()),
		QuestionID: questionID,
		State:      state,
		Seconds:    seconds,
	})
}

func (h *Hub) BroadcastNotice(level, code, message string) {
	h.broadcastEvent(NoticeEvent{
		Event:   newEvent("notice", h.now()),
		Level:   level,
		Code:    code,
		Message: message,
	})
}

func (h *Hub) BroadcastRecoveryOffered(testID int, savedAt time.Time, answers int) {
	h.broadcastEvent(RecoveryOfferedEvent{
		Event:   newEvent("recovery_offered", h.now()),
		TestID:  testID,
		SavedAt: savedAt.UTC().Format(time.RFC3339),
		Answers: answers,
	})
}

func (h *Hub) BroadcastSessionComplete(testID int) {
	h.broadcastEvent(SessionCompleteEvent{
		Event:  newEvent("session_complete", h.now()),
		TestID: testID,
	})
}

func (h *Hub) BroadcastSubmissionResult(outcome string, attemptID int64, message string) {
	h.broadcastEvent(SubmissionResultEvent{
		Event:     newEvent("submission_result", h.now()),
		Outcome:   outcome,
		AttemptID: attemptID,
		Message:   message,
	})
}

func (h *Hub) BroadcastReauthRequired(returnPath string) {
	h.broadcastEvent(ReauthRequiredEvent{
		Event:      newEvent("reauth_required", h.now()),
		ReturnPath: returnPath,
	})
}

func (h *Hub) BroadcastProgressSaved(testID int, savedAt time.Time, reason string) {
	h.broadcastEvent(ProgressSavedEvent{
		Event:   newEvent("progress_saved", h.now()),
		TestID:  testID,
		SavedAt: savedAt.UTC().Format(time.RFC3339),
		Reason:  reason,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal error", zap.Error(err))
		return
	}
	h.Broadcast(payload)
}
