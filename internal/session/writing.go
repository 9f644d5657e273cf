package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/scoring"
)

// WritingState is the state of a writing attempt.
type WritingState string

const (
	WritingIdle       WritingState = "idle"
	WritingTiming     WritingState = "timing"
	WritingSubmitting WritingState = "submitting"
	WritingGraded     WritingState = "graded"
)

// WritingView is a snapshot of the controller.
type WritingView struct {
	State     WritingState           `json:"state"`
	TestID    string                 `json:"testId,omitempty"`
	TaskType  model.TaskType         `json:"taskType,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	Essay     string                 `json:"essay"`
	WordCount int                    `json:"wordCount"`
	Elapsed   time.Duration          `json:"-"`
	Seconds   int                    `json:"elapsedSeconds"`
	Feedback  *model.WritingFeedback `json:"feedback,omitempty"`
}

// Writing runs a timed essay and sends it to the grader.
type Writing struct {
	deps   Deps
	grader Grader

	mu        sync.Mutex
	state     WritingState
	test      *model.PracticeTest
	taskType  model.TaskType
	essay     string
	elapsed   time.Duration
	startedAt time.Time
	feedback  *model.WritingFeedback
}

func NewWriting(deps Deps, grader Grader) *Writing {
	return &Writing{deps: deps.withDefaults(), grader: grader, state: WritingIdle}
}

// SelectTest loads a writing task and resets the essay and timer.
func (w *Writing) SelectTest(ctx context.Context, testID string, task model.TaskType) error {
	if !task.Valid() {
		return model.Invalid("unknown writing task %q", task)
	}
	test, err := w.deps.Tests.FindTest(ctx, model.ModuleWriting, testID)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == WritingSubmitting {
		return fmt.Errorf("select writing test while grading: %w", model.ErrInvalidState)
	}
	w.test = &test
	w.taskType = task
	w.essay = ""
	w.elapsed = 0
	w.feedback = nil
	w.state = WritingIdle
	return nil
}

// Start begins timing.
func (w *Writing) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != WritingIdle || w.test == nil {
		return fmt.Errorf("start writing in state %s: %w", w.state, model.ErrInvalidState)
	}
	w.state = WritingTiming
	w.startedAt = w.deps.Now()
	return nil
}

// Edit replaces the essay text.
func (w *Writing) Edit(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != WritingTiming {
		return fmt.Errorf("edit essay in state %s: %w", w.state, model.ErrInvalidState)
	}
	w.essay = text
	return nil
}

// Elapsed returns time spent in the Timing state.
func (w *Writing) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.elapsedLocked()
}

func (w *Writing) elapsedLocked() time.Duration {
	if w.state == WritingTiming {
		return w.elapsed + w.deps.Now().Sub(w.startedAt)
	}
	return w.elapsed
}

// WordCount returns the number of words in the essay.
func (w *Writing) WordCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(strings.Fields(w.essay))
}

// Submit grades the essay and persists the result. The lock is released
// while the grader runs; edits are refused meanwhile. On failure the timer
// resumes and nothing is persisted.
func (w *Writing) Submit(ctx context.Context) (model.TestResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return model.TestResult{}, err
	}

	w.mu.Lock()
	if w.state != WritingTiming {
		state := w.state
		w.mu.Unlock()
		return model.TestResult{}, fmt.Errorf("submit essay in state %s: %w", state, model.ErrInvalidState)
	}
	if strings.TrimSpace(w.essay) == "" {
		w.mu.Unlock()
		return model.TestResult{}, model.Invalid("essay is empty")
	}
	w.elapsed = w.elapsedLocked()
	w.state = WritingSubmitting
	essay, task := w.essay, w.taskType
	prompt := w.test.Writing.Prompt(task)
	w.mu.Unlock()

	feedback, err := w.grader.GradeWriting(ctx, essay, prompt, task)
	if err == nil && !scoring.IsBand(feedback.OverallBand) {
		err = fmt.Errorf("overall band %v out of range", feedback.OverallBand)
	}
	if err != nil {
		w.resume()
		return model.TestResult{}, fmt.Errorf("%w: %w", model.ErrGradingFailed, err)
	}

	result := model.TestResult{
		ID:      w.deps.NewID(),
		UserID:  uid,
		Date:    w.deps.Now(),
		Module:  model.ModuleWriting,
		Score:   feedback.OverallBand,
		Details: model.WritingDetails{WritingFeedback: feedback, TaskType: task},
	}
	if err := w.deps.Results.SaveResult(ctx, result); err != nil {
		w.resume()
		return model.TestResult{}, fmt.Errorf("save writing result: %w", err)
	}

	w.mu.Lock()
	w.feedback = &feedback
	w.state = WritingGraded
	w.mu.Unlock()
	return result, nil
}

// resume returns from Submitting to Timing.
func (w *Writing) resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = WritingTiming
	w.startedAt = w.deps.Now()
}

// View returns a snapshot of the attempt.
func (w *Writing) View() WritingView {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := WritingView{
		State:     w.state,
		TaskType:  w.taskType,
		Essay:     w.essay,
		WordCount: len(strings.Fields(w.essay)),
		Elapsed:   w.elapsedLocked(),
		Feedback:  w.feedback,
	}
	v.Seconds = int(v.Elapsed / time.Second)
	if w.test != nil {
		v.TestID = w.test.ID
		v.Prompt = w.test.Writing.Prompt(w.taskType)
	}
	return v
}
