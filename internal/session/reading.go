package session

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/scoring"
)

// ReadingState is the state of a reading attempt.
type ReadingState string

const (
	ReadingUnselected        ReadingState = "unselected"
	ReadingInProgress        ReadingState = "in_progress"
	ReadingContentIncomplete ReadingState = "content_incomplete"
	ReadingSubmitted         ReadingState = "submitted"
)

// ReadingView is a snapshot of the controller.
type ReadingView struct {
	State   ReadingState        `json:"state"`
	Test    *model.PracticeTest `json:"test,omitempty"`
	Passage int                 `json:"passage"`
	Answers map[int]string      `json:"answers"`
	Result  *model.TestResult   `json:"result,omitempty"`
}

// Reading runs one reading attempt at a time.
type Reading struct {
	deps Deps

	mu      sync.Mutex
	state   ReadingState
	test    *model.PracticeTest
	answers map[int]string
	passage int
	result  *model.TestResult
}

func NewReading(deps Deps) *Reading {
	return &Reading{deps: deps.withDefaults(), state: ReadingUnselected, answers: map[int]string{}}
}

// SelectTest loads a reading test and starts a fresh attempt. A test without
// exactly three passages is loaded in the ContentIncomplete state.
func (r *Reading) SelectTest(ctx context.Context, testID string) error {
	test, err := r.deps.Tests.FindTest(ctx, model.ModuleReading, testID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.test = &test
	r.answers = map[int]string{}
	r.passage = 0
	r.result = nil
	r.state = ReadingInProgress
	if len(test.Reading.Passages) != model.ReadingPassageCount {
		r.state = ReadingContentIncomplete
	}
	return nil
}

// Answer records the answer for a question. Later answers replace earlier
// ones. It reports false when no attempt is in progress.
func (r *Reading) Answer(questionID int, value string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReadingInProgress {
		return false
	}
	r.answers[questionID] = value
	return true
}

// GoToPassage moves to passage i, clamped to the available passages.
func (r *Reading) GoToPassage(i int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.test == nil || r.test.Reading == nil || len(r.test.Reading.Passages) == 0 {
		return 0
	}
	r.passage = max(0, min(i, len(r.test.Reading.Passages)-1))
	return r.passage
}

// Submit scores the attempt and persists the result. On a storage failure
// the attempt stays in progress so it can be submitted again.
func (r *Reading) Submit(ctx context.Context) (model.TestResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return model.TestResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReadingInProgress {
		return model.TestResult{}, fmt.Errorf("submit reading in state %s: %w", r.state, model.ErrInvalidState)
	}

	raw := RawScore(*r.test.Reading, r.answers)
	result := model.TestResult{
		ID:     r.deps.NewID(),
		UserID: uid,
		Date:   r.deps.Now(),
		Module: model.ModuleReading,
		Score:  scoring.ReadingBand(raw),
		Details: model.ReadingDetails{
			RawScore:       raw,
			TotalQuestions: r.test.Reading.QuestionCount(),
			Answers:        maps.Clone(r.answers),
		},
	}
	if err := r.deps.Results.SaveResult(ctx, result); err != nil {
		return model.TestResult{}, fmt.Errorf("save reading result: %w", err)
	}
	r.result = &result
	r.state = ReadingSubmitted
	return result, nil
}

// View returns a snapshot of the attempt.
func (r *Reading) View() ReadingView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReadingView{
		State:   r.state,
		Test:    r.test,
		Passage: r.passage,
		Answers: maps.Clone(r.answers),
		Result:  r.result,
	}
}

// RawScore counts answers that match the key after trimming and ignoring
// case. Empty answers and empty keys never match.
func RawScore(m model.ReadingModule, answers map[int]string) int {
	raw := 0
	for _, p := range m.Passages {
		for _, q := range p.Questions {
			given := strings.TrimSpace(answers[q.ID])
			key := strings.TrimSpace(q.CorrectAnswer)
			if given == "" || key == "" {
				continue
			}
			if strings.EqualFold(given, key) {
				raw++
			}
		}
	}
	return raw
}
