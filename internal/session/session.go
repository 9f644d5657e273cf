// Package session holds the per-user state machines for the three test
// modules. Each controller turns a practice attempt into a persisted
// TestResult.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// TestLookup finds test content by module and id.
type TestLookup interface {
	FindTest(ctx context.Context, module model.TestModule, testID string) (model.PracticeTest, error)
}

// ResultSaver persists finished attempts.
type ResultSaver interface {
	SaveResult(ctx context.Context, r model.TestResult) error
}

// Grader scores a writing essay.
type Grader interface {
	GradeWriting(ctx context.Context, essay, prompt string, task model.TaskType) (model.WritingFeedback, error)
}

// Examiner produces the next examiner line of a speaking test.
type Examiner interface {
	Reply(ctx context.Context, transcript []model.SpeakingMessage, utterance string, material *model.SpeakingModule) (string, error)
}

// Deps are the collaborators shared by all controllers.
type Deps struct {
	Tests   TestLookup
	Results ResultSaver
	NewID   func() string
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// userID returns the authenticated user's id from ctx.
func userID(ctx context.Context) (string, error) {
	u := model.UserFromContext(ctx)
	if u == nil || u.ID == "" {
		return "", model.ErrNoUser
	}
	return u.ID, nil
}
