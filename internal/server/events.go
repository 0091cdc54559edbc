package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type PhaseChangedEvent struct {
	Event
	Task any `json:"task"`
}

type ClockTickEvent struct {
	Event
	Clock      string `json:"clock"`
	QuestionID int    `json:"question_id,omitempty"`
	Remaining  int    `json:"remaining"`
}

type RecordingStateEvent struct {
	Event
	QuestionID int    `json:"question_id"`
	State      string `json:"state"`
	Seconds    int    `json:"seconds"`
}

type NoticeEvent struct {
	Event
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RecoveryOfferedEvent struct {
	Event
	TestID  int    `json:"test_id"`
	SavedAt string `json:"saved_at"`
	Answers int    `json:"answers"`
}

type SessionCompleteEvent struct {
	Event
	TestID int `json:"test_id"`
}

type SubmissionResultEvent struct {
	Event
	Outcome   string `json:"outcome"`
	AttemptID int64  `json:"attempt_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type ReauthRequiredEvent struct {
	Event
	ReturnPath string `json:"return_path"`
}

type ProgressSavedEvent struct {
	Event
	TestID  int    `json:"test_id"`
	SavedAt string `json:"saved_at"`
	Reason  string `json:"reason"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
