package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Users are created by the identity layer at
// login and are read-only to the rest of the system.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	Avatar string   `json:"avatar,omitempty"`
}

// AuthSession represents a login session (the "current session" record).
type AuthSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// TestModule identifies one of the three IELTS modules.
type TestModule string

const (
	ModuleReading  TestModule = "Reading"
	ModuleWriting  TestModule = "Writing"
	ModuleSpeaking TestModule = "Speaking"
)

// Valid reports whether m is one of the known modules.
func (m TestModule) Valid() bool {
	switch m {
	case ModuleReading, ModuleWriting, ModuleSpeaking:
		return true
	}
	return false
}

// ParseModule accepts a module name in any letter case.
func ParseModule(s string) (TestModule, bool) {
	for _, m := range []TestModule{ModuleReading, ModuleWriting, ModuleSpeaking} {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, true
		}
	}
	return "", false
}

// QuestionBank is a named collection of practice tests produced from one upload.
type QuestionBank struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	UploadedAt time.Time      `json:"uploadedAt"`
	Tests      []PracticeTest `json:"tests"`
}

// PracticeTest bundles at most one module instance per kind.
type PracticeTest struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Reading  *ReadingModule  `json:"reading,omitempty"`
	Writing  *WritingModule  `json:"writing,omitempty"`
	Speaking *SpeakingModule `json:"speaking,omitempty"`
}

// HasModule reports whether the test carries content for m.
func (t PracticeTest) HasModule(m TestModule) bool {
	switch m {
	case ModuleReading:
		return t.Reading != nil
	case ModuleWriting:
		return t.Writing != nil
	case ModuleSpeaking:
		return t.Speaking != nil
	}
	return false
}

// Empty reports whether the test has no module at all.
func (t PracticeTest) Empty() bool {
	return t.Reading == nil && t.Writing == nil && t.Speaking == nil
}

// Reading module shape enforced at ingestion and storage time.
const (
	ReadingPassageCount  = 3
	ReadingQuestionCount = 40
)

// ReadingModule holds the passages of a Reading test.
type ReadingModule struct {
	Passages []ReadingPassage `json:"passages"`
}

// QuestionCount returns the total number of questions across passages.
func (r ReadingModule) QuestionCount() int {
	n := 0
	for _, p := range r.Passages {
		n += len(p.Questions)
	}
	return n
}

// Complete reports whether the module has the full exam shape.
func (r ReadingModule) Complete() bool {
	return len(r.Passages) == ReadingPassageCount && r.QuestionCount() == ReadingQuestionCount
}

// DuplicateQuestionID returns the first question id used more than once
// across passages.
func (r ReadingModule) DuplicateQuestionID() (int, bool) {
	seen := make(map[int]bool, ReadingQuestionCount)
	for _, p := range r.Passages {
		for _, q := range p.Questions {
			if seen[q.ID] {
				return q.ID, true
			}
			seen[q.ID] = true
		}
	}
	return 0, false
}

// ReadingPassage is one passage with its questions. Content is marked-up text.
type ReadingPassage struct {
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Questions []ReadingQuestion `json:"questions"`
}

// QuestionType is the kind of a reading question.
type QuestionType string

const (
	QuestionMultipleChoice    QuestionType = "multiple_choice"
	QuestionTrueFalseNotGiven QuestionType = "true_false_not_given"
	QuestionFillGap           QuestionType = "fill_gap"
	QuestionMatchingHeadings  QuestionType = "matching_headings"
)

// ReadingQuestion is a single question. ID is unique within the test.
type ReadingQuestion struct {
	ID               int          `json:"id"`
	Text             string       `json:"text"`
	Type             QuestionType `json:"type"`
	Options          []string     `json:"options,omitempty"`
	CorrectAnswer    string       `json:"correctAnswer,omitempty"`
	Evidence         string       `json:"evidence,omitempty"`
	GroupInstruction string       `json:"groupInstruction,omitempty"`
}

// WritingModule holds the two writing prompts.
type WritingModule struct {
	Task1Prompt string `json:"task1Prompt"`
	Task2Prompt string `json:"task2Prompt"`
}

// TaskType selects one of the two writing tasks.
type TaskType string

const (
	Task1 TaskType = "Task 1"
	Task2 TaskType = "Task 2"
)

// Prompt returns the prompt for the given task.
func (w WritingModule) Prompt(t TaskType) string {
	if t == Task1 {
		return w.Task1Prompt
	}
	return w.Task2Prompt
}

// SpeakingModule holds the material for a three-part speaking test.
type SpeakingModule struct {
	Part1Topics    []string `json:"part1Topics"`
	Part2CueCard   string   `json:"part2CueCard"`
	Part3Questions []string `json:"part3Questions"`
}

// SpeakerRole is a speaking transcript role.
type SpeakerRole string

const (
	SpeakerExaminer  SpeakerRole = "examiner"
	SpeakerCandidate SpeakerRole = "candidate"
)

// SpeakingMessage is one transcript entry.
type SpeakingMessage struct {
	Role SpeakerRole `json:"role"`
	Text string      `json:"text"`
}

// WritingScores are the four IELTS writing criteria.
type WritingScores struct {
	TaskResponse      float64 `json:"taskResponse"`
	CoherenceCohesion float64 `json:"coherenceCohesion"`
	LexicalResource   float64 `json:"lexicalResource"`
	GrammaticalRange  float64 `json:"grammaticalRange"`
}

// WritingFeedback is what the grading collaborator returns.
type WritingFeedback struct {
	OverallBand     float64       `json:"overallBand"`
	Scores          WritingScores `json:"scores"`
	Feedback        string        `json:"feedback"`
	ImprovementTips []string      `json:"improvementTips"`
}

// TestRef is a flattened view of a test together with its bank.
type TestRef struct {
	BankID   string       `json:"bankId"`
	BankName string       `json:"bankName"`
	Test     PracticeTest `json:"test"`
}

// StorageMode is the configured backend, for display.
type StorageMode string

const (
	StorageRemote StorageMode = "remote"
	StorageLocal  StorageMode = "local"
)
