package gemini

import (
	"testing"

	"github.com/pavelanni/ieltsprep/internal/model"
)

func TestParseTests(t *testing.T) {
	raw := `{"tests": [
		{"id": "ignored", "name": " Test 1 ", "writing": {"task1Prompt": "chart", "task2Prompt": "essay"}, "speaking": {"part2CueCard": "x"}},
		{"name": "Test 2", "writing": {"task1Prompt": "map", "task2Prompt": "opinion"}}
	]}`
	tests, err := ParseTests(raw, model.ModuleWriting)
	if err != nil {
		t.Fatalf("ParseTests: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(tests))
	}
	first := tests[0]
	if first.ID != "" {
		t.Errorf("id should be left for the caller, got %q", first.ID)
	}
	if first.Name != "Test 1" {
		t.Errorf("name = %q", first.Name)
	}
	if first.Writing == nil || first.Writing.Task1Prompt != "chart" {
		t.Errorf("writing not decoded: %+v", first.Writing)
	}
	if first.Speaking != nil {
		t.Error("other modules should be dropped")
	}
}

func TestParseTestsReading(t *testing.T) {
	raw := `{"tests": [{"name": "R", "reading": {"passages": [{"title": "P1", "content": "<p>x</p>", "questions": [{"id": 1, "text": "q", "type": "true_false_not_given", "correctAnswer": "TRUE"}]}]}}]}`
	tests, err := ParseTests(raw, model.ModuleReading)
	if err != nil {
		t.Fatalf("ParseTests: %v", err)
	}
	q := tests[0].Reading.Passages[0].Questions[0]
	if q.ID != 1 || q.Type != model.QuestionTrueFalseNotGiven || q.CorrectAnswer != "TRUE" {
		t.Errorf("unexpected question %+v", q)
	}
}

func TestParseTestsInvalid(t *testing.T) {
	if _, err := ParseTests("not json", model.ModuleSpeaking); err == nil {
		t.Fatal("expected error")
	}
	tests, err := ParseTests(`{}`, model.ModuleSpeaking)
	if err != nil {
		t.Fatalf("ParseTests: %v", err)
	}
	if len(tests) != 0 {
		t.Errorf("expected no tests, got %d", len(tests))
	}
}
