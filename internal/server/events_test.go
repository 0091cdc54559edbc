package server

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventSerialization(t *testing.T) {
	at := time.Unix(1, 0)
	events := []any{
		PhaseChangedEvent{Event: newEvent("phase_changed", at), Task: map[string]any{"question_id": 1}},
		ClockTickEvent{Event: newEvent("clock_tick", at), Clock: "session", Remaining: 30},
		RecordingStateEvent{Event: newEvent("recording_state", at), QuestionID: 1, State: "recording", Seconds: 3},
		NoticeEvent{Event: newEvent("notice", at), Level: "error", Code: "device_denied", Message: "no mic"},
		RecoveryOfferedEvent{Event: newEvent("recovery_offered", at), TestID: 7, SavedAt: at.Format(time.RFC3339), Answers: 2},
		SessionCompleteEvent{Event: newEvent("session_complete", at), TestID: 7},
		SubmissionResultEvent{Event: newEvent("submission_result", at), Outcome: "success", AttemptID: 9},
		ReauthRequiredEvent{Event: newEvent("reauth_required", at), ReturnPath: "/tests/7/take"},
		ProgressSavedEvent{Event: newEvent("progress_saved", at), TestID: 7, SavedAt: at.Format(time.RFC3339), Reason: "autosave"},
		ConnectionEvent{Event: newEvent("connection", at), Connected: true},
	}

	for _, event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		if payload["type"] == nil {
			t.Fatalf("missing type in payload: %s", string(b))
		}
		if payload["version"] != float64(EventVersion) {
			t.Fatalf("expected version %d in payload: %s", EventVersion, string(b))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("missing timestamp in payload: %s", string(b))
		}
	}
}

func TestNewEventDefaultsTimestamp(t *testing.T) {
	ev := newEvent("notice", time.Time{})
	if ev.Timestamp == "" {
		t.Fatal("expected timestamp to be filled in")
	}
	if _, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err != nil {
		t.Fatalf("timestamp is not RFC3339: %v", err)
	}
}
