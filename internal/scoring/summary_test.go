package scoring

import (
	"testing"
	"time"

	"github.com/pavelanni/ieltsprep/internal/model"
)

func result(module model.TestModule, score float64, day int) model.TestResult {
	r := model.TestResult{
		ID:     string(module),
		Module: module,
		Score:  score,
		Date:   time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
	}
	switch module {
	case model.ModuleReading:
		r.Details = model.ReadingDetails{}
	case model.ModuleWriting:
		r.Details = model.WritingDetails{}
	case model.ModuleSpeaking:
		r.Details = model.SpeakingDetails{Provisional: true}
	}
	return r
}

func TestSummarize(t *testing.T) {
	// Newest first.
	results := []model.TestResult{
		result(model.ModuleSpeaking, 0, 5),
		result(model.ModuleReading, 8.5, 4),
		result(model.ModuleWriting, 6.0, 3),
		result(model.ModuleReading, 7.0, 2),
	}
	s := Summarize(results)

	if s.Count != 4 {
		t.Errorf("Count = %d, want 4", s.Count)
	}
	if s.Latest[model.ModuleReading] != 8.5 {
		t.Errorf("latest reading = %v, want 8.5", s.Latest[model.ModuleReading])
	}
	if s.Latest[model.ModuleWriting] != 6.0 {
		t.Errorf("latest writing = %v, want 6.0", s.Latest[model.ModuleWriting])
	}
	if _, ok := s.Latest[model.ModuleSpeaking]; ok {
		t.Error("provisional speaking result should not appear in Latest")
	}
	// (8.5 + 6 + 7) / 3 = 7.1666 -> 7.0
	if s.Average != 7.0 {
		t.Errorf("Average = %v, want 7.0", s.Average)
	}
	if len(s.Trend) != 3 {
		t.Fatalf("Trend has %d points, want 3", len(s.Trend))
	}
	if s.Trend[0].Score != 7.0 || s.Trend[2].Score != 8.5 {
		t.Errorf("Trend should be oldest first, got %+v", s.Trend)
	}
}

func TestSummarizeTrendLimit(t *testing.T) {
	var results []model.TestResult
	for day := 28; day > 0; day-- {
		results = append(results, result(model.ModuleReading, 6.0, day))
	}
	s := Summarize(results)
	if len(s.Trend) != TrendSize {
		t.Fatalf("Trend has %d points, want %d", len(s.Trend), TrendSize)
	}
	if s.Trend[TrendSize-1].Date != "2026-01-28" {
		t.Errorf("last trend point = %s, want newest result", s.Trend[TrendSize-1].Date)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 || s.Average != 0 || len(s.Trend) != 0 || len(s.Latest) != 0 {
		t.Errorf("unexpected summary for no results: %+v", s)
	}
}
