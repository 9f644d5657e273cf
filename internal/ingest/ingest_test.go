package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pavelanni/ieltsprep/internal/model"
)

type fakeExtractor struct {
	tests    []model.PracticeTest
	err      error
	mimeType string
}

func (f *fakeExtractor) ExtractTests(_ context.Context, _ []byte, mimeType string, _ model.TestModule) ([]model.PracticeTest, error) {
	f.mimeType = mimeType
	return f.tests, f.err
}

type fakeBanks struct {
	saved []model.QuestionBank
}

func (f *fakeBanks) SaveBank(_ context.Context, b model.QuestionBank) error {
	f.saved = append(f.saved, b)
	return nil
}

// reading numbers questions 1..N across passages.
func reading(questions ...int) *model.ReadingModule {
	r := &model.ReadingModule{}
	id := 1
	for _, n := range questions {
		p := model.ReadingPassage{}
		for iter := 0; iter < n; iter++ {
			p.Questions = append(p.Questions, model.ReadingQuestion{ID: id})
			id++
		}
		r.Passages = append(r.Passages, p)
	}
	return r
}

// readingPerPassage restarts question numbering in every passage.
func readingPerPassage(questions ...int) *model.ReadingModule {
	r := &model.ReadingModule{}
	for _, n := range questions {
		p := model.ReadingPassage{}
		for i := 0; i < n; i++ {
			p.Questions = append(p.Questions, model.ReadingQuestion{ID: i + 1})
		}
		r.Passages = append(r.Passages, p)
	}
	return r
}

func newService(ex *fakeExtractor, banks *fakeBanks) *Service {
	s := New(ex, banks)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("uuid-%d", n)
	}
	s.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestImportKeepsValidReadingTests(t *testing.T) {
	ex := &fakeExtractor{tests: []model.PracticeTest{
		{Name: "Test 1", Reading: reading(13, 13, 14)},
		{Name: "Test 2", Reading: reading(13, 13)},
		{Name: "Test 3", Reading: reading(13, 13, 13)},
		{Name: "", Reading: reading(14, 13, 13)},
	}}
	banks := &fakeBanks{}
	bank, err := newService(ex, banks).Import(context.Background(), []byte("%PDF"), "Cambridge 18.pdf", model.ModuleReading)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if bank.Name != "Cambridge 18 (Reading)" {
		t.Errorf("bank name = %q", bank.Name)
	}
	if len(bank.Tests) != 2 {
		t.Fatalf("expected 2 valid tests, got %d", len(bank.Tests))
	}
	if bank.Tests[0].ID != "uuid-1" || bank.Tests[1].ID != "uuid-2" || bank.ID != "uuid-3" {
		t.Errorf("unexpected ids: bank %s tests %s %s", bank.ID, bank.Tests[0].ID, bank.Tests[1].ID)
	}
	if bank.Tests[1].Name != "Reading Test 2" {
		t.Errorf("unnamed test got %q", bank.Tests[1].Name)
	}
	if len(banks.saved) != 1 {
		t.Fatalf("expected bank saved once, got %d", len(banks.saved))
	}
	if ex.mimeType != "application/pdf" {
		t.Errorf("mime type = %q", ex.mimeType)
	}
}

func TestImportNothingValid(t *testing.T) {
	ex := &fakeExtractor{tests: []model.PracticeTest{
		{Name: "half", Writing: &model.WritingModule{Task1Prompt: "only task 1"}},
	}}
	banks := &fakeBanks{}
	_, err := newService(ex, banks).Import(context.Background(), []byte("x"), "w.pdf", model.ModuleWriting)
	if !errors.Is(err, model.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if len(banks.saved) != 0 {
		t.Error("nothing should be saved")
	}
}

func TestImportExtractorError(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("quota exceeded")}
	_, err := newService(ex, &fakeBanks{}).Import(context.Background(), []byte("x"), "s.pdf", model.ModuleSpeaking)
	if !errors.Is(err, model.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestImportValidatesInput(t *testing.T) {
	s := newService(&fakeExtractor{}, &fakeBanks{})
	if _, err := s.Import(context.Background(), nil, "a.pdf", model.ModuleReading); !errors.Is(err, model.ErrValidation) {
		t.Errorf("empty file: %v", err)
	}
	if _, err := s.Import(context.Background(), []byte("x"), "a.pdf", "Listening"); !errors.Is(err, model.ErrValidation) {
		t.Errorf("bad module: %v", err)
	}
}

func TestBankName(t *testing.T) {
	tests := []struct {
		file   string
		module model.TestModule
		want   string
	}{
		{"Cambridge 18.pdf", model.ModuleReading, "Cambridge 18 (Reading)"},
		{"uploads/mock.PDF", model.ModuleWriting, "mock (Writing)"},
		{"notes.txt", model.ModuleSpeaking, "notes.txt (Speaking)"},
	}
	for _, tt := range tests {
		if got := BankName(tt.file, tt.module); got != tt.want {
			t.Errorf("BankName(%q) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

func TestUsable(t *testing.T) {
	tests := []struct {
		name   string
		test   model.PracticeTest
		module model.TestModule
		want   bool
	}{
		{"speaking with cue card", model.PracticeTest{Speaking: &model.SpeakingModule{Part2CueCard: "Describe"}}, model.ModuleSpeaking, true},
		{"speaking without cue card", model.PracticeTest{Speaking: &model.SpeakingModule{}}, model.ModuleSpeaking, false},
		{"writing both prompts", model.PracticeTest{Writing: &model.WritingModule{Task1Prompt: "a", Task2Prompt: "b"}}, model.ModuleWriting, true},
		{"wrong module", model.PracticeTest{Writing: &model.WritingModule{Task1Prompt: "a", Task2Prompt: "b"}}, model.ModuleReading, false},
		{"reading numbered 1-40", model.PracticeTest{Reading: reading(13, 13, 14)}, model.ModuleReading, true},
		{"reading numbered per passage", model.PracticeTest{Reading: readingPerPassage(13, 13, 14)}, model.ModuleReading, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Usable(tt.test, tt.module); got != tt.want {
				t.Errorf("Usable = %v, want %v", got, tt.want)
			}
		})
	}
}
