package session

import (
	"sort"

	"github.com/sjawhar/exam-runner/internal/exam"
)

// TaskView is the read-only projection of one task for the UI.
type TaskView struct {
	Index              int             `json:"index"`
	QuestionID         int             `json:"question_id"`
	Part               int             `json:"part"`
	Prompt             string          `json:"prompt"`
	Phase              string          `json:"phase"`
	Remaining          int             `json:"remaining"`
	TimeUp             bool            `json:"time_up"`
	Done               bool            `json:"done"`
	Completion         exam.Completion `json:"completion"`
	Marked             bool            `json:"marked"`
	Answer             string          `json:"answer,omitempty"`
	WordCount          int             `json:"word_count"`
	MinWords           int             `json:"min_words,omitempty"`
	PreparationSeconds int             `json:"preparation_seconds,omitempty"`
	ResponseSeconds    int             `json:"response_seconds,omitempty"`
	Options            []exam.Option   `json:"options,omitempty"`
	Recording          bool            `json:"recording"`
	RecordingState     string          `json:"recording_state,omitempty"`
	RecordingSeconds   int             `json:"recording_seconds"`
}

// SessionView is the read-only projection of the whole session.
type SessionView struct {
	TestID          int        `json:"test_id"`
	Name            string     `json:"name"`
	Kind            exam.Kind  `json:"kind"`
	Started         bool       `json:"started"`
	Current         int        `json:"current"`
	Remaining       int        `json:"remaining"`
	Device          string     `json:"device"`
	RecoveryPending bool       `json:"recovery_pending"`
	Complete        bool       `json:"complete"`
	Expired         bool       `json:"expired"`
	Submitting      bool       `json:"submitting"`
	Submitted       bool       `json:"submitted"`
	AttemptID       int64      `json:"attempt_id,omitempty"`
	MarkedQuestions []int      `json:"marked_questions"`
	Tasks           []TaskView `json:"tasks"`
}

func (e *Engine) taskView(i int) TaskView {
	task := e.test.Tasks[i]
	st := e.states[i]
	answer, answered := e.answers.Get(task.ID)

	v := TaskView{
		Index:              i,
		QuestionID:         task.ID,
		Part:               task.Part,
		Prompt:             task.Prompt,
		Phase:              st.phase.String(),
		Remaining:          st.remaining,
		TimeUp:             st.timeUp,
		Done:               st.done,
		Completion:         exam.CompletionOf(task, answer, answered),
		Marked:             e.marked[task.ID],
		MinWords:           task.MinWords,
		PreparationSeconds: task.PreparationSeconds,
		ResponseSeconds:    task.ResponseSeconds,
		Options:            task.Options,
	}

	switch answer.Kind {
	case exam.AnswerText:
		v.Answer = answer.Text
		v.WordCount = exam.WordCount(answer.Text)
	case exam.AnswerOption:
		v.Answer = answer.Option
	case exam.AnswerAudio:
		if answer.Audio != nil {
			v.RecordingSeconds = answer.Audio.DurationSeconds
		}
	}

	if a, ok := e.recorder.Artifact(task.ID); ok {
		v.RecordingState = a.State().String()
		v.RecordingSeconds = a.Seconds()
	}
	if active, ok := e.recorder.Active(); ok && active == task.ID {
		v.Recording = true
	}
	return v
}

// View returns a snapshot of the session for rendering.
func (e *Engine) View() SessionView {
	v := SessionView{
		TestID:          e.test.ID,
		Name:            e.test.Name,
		Kind:            e.test.Kind,
		Started:         e.started,
		Current:         e.current,
		Remaining:       e.sessionClock.Remaining(),
		Device:          e.recorder.DeviceState().String(),
		RecoveryPending: e.recovery != nil,
		Complete:        e.complete,
		Expired:         e.expired,
		Submitting:      e.submitting,
		Submitted:       e.submitted,
		AttemptID:       e.attemptID,
		MarkedQuestions: e.markedList(),
		Tasks:           make([]TaskView, len(e.test.Tasks)),
	}
	for i := range e.test.Tasks {
		v.Tasks[i] = e.taskView(i)
	}
	return v
}

func (e *Engine) markedList() []int {
	out := make([]int, 0, len(e.marked))
	for id, on := range e.marked {
		if on {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
