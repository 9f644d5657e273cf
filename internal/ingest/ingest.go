// Package ingest turns an uploaded document into a stored question bank.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// Extractor finds practice tests for one module in a document.
type Extractor interface {
	ExtractTests(ctx context.Context, data []byte, mimeType string, module model.TestModule) ([]model.PracticeTest, error)
}

// BankSaver persists a question bank.
type BankSaver interface {
	SaveBank(ctx context.Context, bank model.QuestionBank) error
}

// Service runs the import pipeline.
type Service struct {
	extractor Extractor
	banks     BankSaver
	newID     func() string
	now       func() time.Time
}

func New(extractor Extractor, banks BankSaver) *Service {
	return &Service{extractor: extractor, banks: banks, newID: uuid.NewString, now: time.Now}
}

// Import extracts the tests for module from file, keeps the valid ones and
// saves them as a new bank named after the file.
func (s *Service) Import(ctx context.Context, file []byte, fileName string, module model.TestModule) (model.QuestionBank, error) {
	if !module.Valid() {
		return model.QuestionBank{}, model.Invalid("unknown module %q", module)
	}
	if len(file) == 0 {
		return model.QuestionBank{}, model.Invalid("file %q is empty", fileName)
	}

	extracted, err := s.extractor.ExtractTests(ctx, file, mimeType(fileName), module)
	if err != nil {
		return model.QuestionBank{}, fmt.Errorf("%w: %w", model.ErrExtractionFailed, err)
	}

	var tests []model.PracticeTest
	for i, t := range extracted {
		if !Usable(t, module) {
			slog.Info("skipping extracted test", "file", fileName, "module", module, "index", i, "name", t.Name)
			continue
		}
		t.ID = s.newID()
		if strings.TrimSpace(t.Name) == "" {
			t.Name = fmt.Sprintf("%s Test %d", module, len(tests)+1)
		}
		tests = append(tests, t)
	}
	if len(tests) == 0 {
		return model.QuestionBank{}, fmt.Errorf("%w: no valid %s tests found in %s", model.ErrExtractionFailed, module, fileName)
	}

	bank := model.QuestionBank{
		ID:         s.newID(),
		Name:       BankName(fileName, module),
		UploadedAt: s.now(),
		Tests:      tests,
	}
	if err := s.banks.SaveBank(ctx, bank); err != nil {
		return model.QuestionBank{}, fmt.Errorf("save bank: %w", err)
	}
	slog.Info("imported bank", "id", bank.ID, "name", bank.Name, "tests", len(tests), "extracted", len(extracted))
	return bank, nil
}

// Usable reports whether an extracted test has complete content for module.
func Usable(t model.PracticeTest, module model.TestModule) bool {
	switch module {
	case model.ModuleReading:
		if t.Reading == nil || !t.Reading.Complete() {
			return false
		}
		_, dup := t.Reading.DuplicateQuestionID()
		return !dup
	case model.ModuleWriting:
		return t.Writing != nil &&
			strings.TrimSpace(t.Writing.Task1Prompt) != "" &&
			strings.TrimSpace(t.Writing.Task2Prompt) != ""
	case model.ModuleSpeaking:
		return t.Speaking != nil && strings.TrimSpace(t.Speaking.Part2CueCard) != ""
	}
	return false
}

// BankName names a bank after its source file: "Cambridge 18 (Reading)".
func BankName(fileName string, module model.TestModule) string {
	base := filepath.Base(fileName)
	if strings.EqualFold(filepath.Ext(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	return fmt.Sprintf("%s (%s)", base, module)
}

func mimeType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return "application/pdf"
}
