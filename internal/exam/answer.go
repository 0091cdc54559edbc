package exam

import (
	"sort"
	"strings"
	"time"
)

type AnswerKind int

const (
	AnswerText AnswerKind = iota
	AnswerOption
	AnswerAudio
)

// AudioRef points at a captured recording. Encoded is empty while the
// recording that superseded the previous one is still in progress.
type AudioRef struct {
	ArtifactID      string
	DurationSeconds int
	Encoded         string
}

type Answer struct {
	QuestionID int
	Kind       AnswerKind
	Text       string
	Option     string
	Audio      *AudioRef
	UpdatedAt  time.Time
}

// Value is the answer as transmitted and persisted.
func (a Answer) Value() string {
	switch a.Kind {
	case AnswerOption:
		return a.Option
	case AnswerAudio:
		if a.Audio == nil {
			return ""
		}
		return a.Audio.Encoded
	default:
		return a.Text
	}
}

// Ready reports whether the answer carries something submittable.
func (a Answer) Ready() bool {
	return strings.TrimSpace(a.Value()) != ""
}

// Response is one entry of a submission request.
type Response struct {
	QuestionID   int    `json:"questionId"`
	ResponseText string `json:"responseText"`
}

// AnswerSet is the in-memory answer map keyed by question ID.
type AnswerSet map[int]Answer

func (s AnswerSet) Set(a Answer) {
	s[a.QuestionID] = a
}

func (s AnswerSet) Get(questionID int) (Answer, bool) {
	a, ok := s[questionID]
	return a, ok
}

// Clone copies the set so readers can never observe later edits.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for id, a := range s {
		if a.Audio != nil {
			ref := *a.Audio
			a.Audio = &ref
		}
		out[id] = a
	}
	return out
}

// Values returns the ready answers in their persisted string form.
func (s AnswerSet) Values() map[int]string {
	out := make(map[int]string, len(s))
	for id, a := range s {
		if a.Ready() {
			out[id] = a.Value()
		}
	}
	return out
}

// Responses returns the ready answers sorted by question ID.
func (s AnswerSet) Responses() []Response {
	out := make([]Response, 0, len(s))
	for id, a := range s {
		if !a.Ready() {
			continue
		}
		out = append(out, Response{QuestionID: id, ResponseText: a.Value()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// Completion is the progress indicator shown per task.
type Completion string

const (
	Unanswered Completion = "unanswered"
	Incomplete Completion = "incomplete"
	Complete   Completion = "complete"
)

// CompletionOf reports how far the answer satisfies the task.
func CompletionOf(task Task, answer Answer, answered bool) Completion {
	if !answered {
		return Unanswered
	}
	if !answer.Ready() {
		return Incomplete
	}
	if answer.Kind == AnswerText && task.MinWords > 0 && WordCount(answer.Text) < task.MinWords {
		return Incomplete
	}
	return Complete
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}
