package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/store"
)

// ContentRepository stores question banks. It never generates ids.
type ContentRepository struct {
	backends *Backends
}

func NewContentRepository(b *Backends) *ContentRepository {
	return &ContentRepository{backends: b}
}

// ListBanks returns all banks, newest first.
func (r *ContentRepository) ListBanks(ctx context.Context) ([]model.QuestionBank, error) {
	return withFallback(ctx, r.backends, "list banks", func(s store.Backend) ([]model.QuestionBank, error) {
		return s.ListBanks(ctx)
	})
}

// SaveBank validates and persists the bank under its id.
func (r *ContentRepository) SaveBank(ctx context.Context, bank model.QuestionBank) error {
	if err := ValidateBank(bank); err != nil {
		return err
	}
	_, err := withFallback(ctx, r.backends, "save bank", func(s store.Backend) (struct{}, error) {
		return struct{}{}, s.PutBank(ctx, bank)
	})
	return err
}

// DeleteTest removes a test from a bank. The bank is deleted with its last
// test. Deleting a missing test or bank is a no-op.
func (r *ContentRepository) DeleteTest(ctx context.Context, bankID, testID string) error {
	_, err := withFallback(ctx, r.backends, "delete test", func(s store.Backend) (struct{}, error) {
		bank, err := s.GetBank(ctx, bankID)
		if err != nil || bank == nil {
			return struct{}{}, err
		}
		kept := slices.DeleteFunc(slices.Clone(bank.Tests), func(t model.PracticeTest) bool {
			return t.ID == testID
		})
		if len(kept) == len(bank.Tests) {
			return struct{}{}, nil
		}
		if len(kept) == 0 {
			return struct{}{}, s.DeleteBank(ctx, bankID)
		}
		bank.Tests = kept
		return struct{}{}, s.PutBank(ctx, *bank)
	})
	return err
}

// ListTestsByModule flattens banks into tests that carry the module, in bank
// order and then test order.
func (r *ContentRepository) ListTestsByModule(ctx context.Context, module model.TestModule) ([]model.TestRef, error) {
	banks, err := r.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	var refs []model.TestRef
	for _, b := range banks {
		for _, t := range b.Tests {
			if t.HasModule(module) {
				refs = append(refs, model.TestRef{BankID: b.ID, BankName: b.Name, Test: t})
			}
		}
	}
	return refs, nil
}

// FindTest returns the test with the given id that carries the module.
func (r *ContentRepository) FindTest(ctx context.Context, module model.TestModule, testID string) (model.PracticeTest, error) {
	refs, err := r.ListTestsByModule(ctx, module)
	if err != nil {
		return model.PracticeTest{}, err
	}
	for _, ref := range refs {
		if ref.Test.ID == testID {
			return ref.Test, nil
		}
	}
	return model.PracticeTest{}, fmt.Errorf("%s test %q: %w", module, testID, model.ErrNotFound)
}

// ValidateBank checks the invariants a stored bank must hold.
func ValidateBank(bank model.QuestionBank) error {
	if bank.ID == "" {
		return model.Invalid("bank has no id")
	}
	if len(bank.Tests) == 0 {
		return model.Invalid("bank %q has no tests", bank.ID)
	}
	seen := make(map[string]bool, len(bank.Tests))
	for i, t := range bank.Tests {
		if t.ID == "" {
			return model.Invalid("bank %q: test %d has no id", bank.ID, i)
		}
		if seen[t.ID] {
			return model.Invalid("bank %q: duplicate test id %q", bank.ID, t.ID)
		}
		seen[t.ID] = true
		if t.Empty() {
			return model.Invalid("bank %q: test %q has no module", bank.ID, t.ID)
		}
		if t.Reading != nil && !t.Reading.Complete() {
			return model.Invalid("bank %q: test %q reading has %d passages and %d questions, want %d and %d",
				bank.ID, t.ID, len(t.Reading.Passages), t.Reading.QuestionCount(),
				model.ReadingPassageCount, model.ReadingQuestionCount)
		}
		if t.Reading != nil {
			if id, dup := t.Reading.DuplicateQuestionID(); dup {
				return model.Invalid("bank %q: test %q reuses question id %d", bank.ID, t.ID, id)
			}
		}
	}
	return nil
}
