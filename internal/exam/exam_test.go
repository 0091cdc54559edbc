package exam

import (
	"errors"
	"strings"
	"testing"
)

func writingTask(minWords int) Task {
	return Task{ID: 11, Part: 2, Order: 1, Prompt: "Describe a city you know well.", MinWords: minWords}
}

func TestCompletionFlipsAtWordLimit(t *testing.T) {
	task := writingTask(150)

	text := strings.TrimSpace(strings.Repeat("word ", 149))
	answer := Answer{QuestionID: task.ID, Kind: AnswerText, Text: text}
	if got := CompletionOf(task, answer, true); got != Incomplete {
		t.Fatalf("expected incomplete at 149 words, got %q", got)
	}

	answer.Text = text + " last"
	if got := CompletionOf(task, answer, true); got != Complete {
		t.Fatalf("expected complete at 150 words, got %q", got)
	}
}

func TestCompletionStates(t *testing.T) {
	task := Task{ID: 3}

	if got := CompletionOf(task, Answer{}, false); got != Unanswered {
		t.Fatalf("expected unanswered, got %q", got)
	}

	pending := Answer{QuestionID: 3, Kind: AnswerAudio, Audio: &AudioRef{ArtifactID: "a"}}
	if got := CompletionOf(task, pending, true); got != Incomplete {
		t.Fatalf("expected pending audio to be incomplete, got %q", got)
	}

	captured := Answer{QuestionID: 3, Kind: AnswerAudio, Audio: &AudioRef{ArtifactID: "a", Encoded: "data:audio/wav;base64,AA=="}}
	if got := CompletionOf(task, captured, true); got != Complete {
		t.Fatalf("expected captured audio to be complete, got %q", got)
	}
}

func TestAnswerSetResponsesSkipPending(t *testing.T) {
	set := AnswerSet{}
	set.Set(Answer{QuestionID: 9, Kind: AnswerOption, Option: "B"})
	set.Set(Answer{QuestionID: 2, Kind: AnswerText, Text: "hello there"})
	set.Set(Answer{QuestionID: 5, Kind: AnswerAudio, Audio: &AudioRef{ArtifactID: "x"}})

	responses := set.Responses()
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %#v", responses)
	}
	if responses[0].QuestionID != 2 || responses[1].QuestionID != 9 {
		t.Fatalf("expected responses sorted by question id, got %#v", responses)
	}
	if responses[1].ResponseText != "B" {
		t.Fatalf("expected option code as response text, got %q", responses[1].ResponseText)
	}

	if _, ok := set.Values()[5]; ok {
		t.Fatal("expected pending audio to be excluded from persisted values")
	}
}

func TestAnswerSetCloneIsIndependent(t *testing.T) {
	set := AnswerSet{}
	set.Set(Answer{QuestionID: 1, Kind: AnswerAudio, Audio: &AudioRef{ArtifactID: "a", Encoded: "x"}})

	clone := set.Clone()
	set[1].Audio.Encoded = "changed"
	set.Set(Answer{QuestionID: 2, Kind: AnswerText, Text: "new"})

	if clone[1].Audio.Encoded != "x" {
		t.Fatalf("expected clone audio ref to be copied, got %q", clone[1].Audio.Encoded)
	}
	if _, ok := clone[2]; ok {
		t.Fatal("expected clone not to see later answers")
	}
}

func TestValidateSortsAndRejectsDuplicates(t *testing.T) {
	test := Test{
		ID:              7,
		Name:            "Speaking mock",
		Kind:            KindSpeaking,
		DurationSeconds: 900,
		Tasks: []Task{
			{ID: 30, Order: 3},
			{ID: 10, Order: 1},
			{ID: 20, Order: 2, PreparationSeconds: 60},
		},
	}
	if err := test.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if test.Tasks[0].ID != 10 || test.Tasks[2].ID != 30 {
		t.Fatalf("expected tasks sorted by order, got %#v", test.Tasks)
	}

	test.Tasks = append(test.Tasks, Task{ID: 10, Order: 4})
	if err := test.Validate(); !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestValidateRejectsBadKind(t *testing.T) {
	test := Test{ID: 1, Name: "x", Kind: "MATHS", Tasks: []Task{{ID: 1}}}
	if err := test.Validate(); err == nil {
		t.Fatal("expected validation error for unknown kind")
	}

	test = Test{ID: 1, Name: "x", Kind: KindReading}
	if err := test.Validate(); err == nil {
		t.Fatal("expected validation error for empty task list")
	}
}

func TestHasOption(t *testing.T) {
	task := Task{ID: 1, Options: []Option{{Code: "A"}, {Code: "B"}}}
	if !task.HasOption("B") || task.HasOption("C") {
		t.Fatal("expected option lookup to match declared codes")
	}
	if !(Task{ID: 2}).HasOption("anything") {
		t.Fatal("expected tasks without options to accept any code")
	}
}
