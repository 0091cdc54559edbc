// Package exam holds the immutable test content and the answers a candidate
// produces for it.
package exam

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindReading   Kind = "READING"
	KindListening Kind = "LISTENING"
	KindWriting   Kind = "WRITING"
	KindSpeaking  Kind = "SPEAKING"
)

// Test is loaded once at session start and never modified afterwards.
type Test struct {
	ID              int    `json:"id" validate:"gt=0"`
	Name            string `json:"name" validate:"required"`
	Kind            Kind   `json:"kind" validate:"oneof=READING LISTENING WRITING SPEAKING"`
	DurationSeconds int    `json:"duration" validate:"gte=0"`
	Tasks           []Task `json:"tasks" validate:"required,min=1,dive"`
}

type Task struct {
	ID                 int      `json:"id" validate:"gt=0"`
	Part               int      `json:"part" validate:"gte=0"`
	Order              int      `json:"order"`
	Prompt             string   `json:"prompt"`
	PreparationSeconds int      `json:"preparationTime" validate:"gte=0"`
	ResponseSeconds    int      `json:"responseTime" validate:"gte=0"`
	MinWords           int      `json:"wordLimit" validate:"gte=0"`
	Options            []Option `json:"options,omitempty" validate:"dive"`
}

type Option struct {
	Code string `json:"code" validate:"required"`
	Text string `json:"text"`
}

var validate = validator.New()

// ErrDuplicateTask is returned by Validate when two tasks share an ID.
var ErrDuplicateTask = errors.New("duplicate task id")

// Validate checks a freshly loaded test and sorts its tasks into
// presentation order.
func (t *Test) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid test %d: %w", t.ID, err)
	}

	seen := make(map[int]struct{}, len(t.Tasks))
	for _, task := range t.Tasks {
		if _, ok := seen[task.ID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateTask, task.ID)
		}
		seen[task.ID] = struct{}{}
	}

	sort.SliceStable(t.Tasks, func(i, j int) bool {
		if t.Tasks[i].Order != t.Tasks[j].Order {
			return t.Tasks[i].Order < t.Tasks[j].Order
		}
		return t.Tasks[i].ID < t.Tasks[j].ID
	})
	return nil
}

// HasSpeaking reports whether the test needs the microphone.
func (t Test) HasSpeaking() bool {
	return t.Kind == KindSpeaking
}

// Task returns the task with the given ID.
func (t Test) Task(id int) (Task, bool) {
	for _, task := range t.Tasks {
		if task.ID == id {
			return task, true
		}
	}
	return Task{}, false
}

// HasOption reports whether code is selectable. Tasks without options
// accept any code.
func (t Task) HasOption(code string) bool {
	if len(t.Options) == 0 {
		return true
	}
	for _, o := range t.Options {
		if o.Code == code {
			return true
		}
	}
	return false
}
