package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// OpeningLine starts every speaking transcript.
const OpeningLine = "Good afternoon. Can you tell me your full name, please?"

// provisionalAfter is the transcript length beyond which a provisional
// result is recorded.
const provisionalAfter = 10

// SpeakingView is a snapshot of the controller.
type SpeakingView struct {
	TestID     string                  `json:"testId,omitempty"`
	Material   *model.SpeakingModule   `json:"material,omitempty"`
	Transcript []model.SpeakingMessage `json:"transcript"`
	Recorded   bool                    `json:"recorded"`
}

// Speaking runs a turn-taking conversation with the examiner.
type Speaking struct {
	deps     Deps
	examiner Examiner

	mu         sync.Mutex
	testID     string
	material   *model.SpeakingModule
	transcript []model.SpeakingMessage
	recorded   bool
}

func NewSpeaking(deps Deps, examiner Examiner) *Speaking {
	s := &Speaking{deps: deps.withDefaults(), examiner: examiner}
	s.transcript = opening()
	return s
}

func opening() []model.SpeakingMessage {
	return []model.SpeakingMessage{{Role: model.SpeakerExaminer, Text: OpeningLine}}
}

// SelectTest loads the cue-card material and restarts the conversation.
func (s *Speaking) SelectTest(ctx context.Context, testID string) error {
	test, err := s.deps.Tests.FindTest(ctx, model.ModuleSpeaking, testID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testID = test.ID
	s.material = test.Speaking
	s.transcript = opening()
	s.recorded = false
	return nil
}

// SendCandidateTurn appends the candidate's line and the examiner's reply.
// If the examiner fails the transcript is left as it was.
func (s *Speaking) SendCandidateTurn(ctx context.Context, text string) (string, error) {
	uid, err := userID(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.Invalid("empty candidate turn")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.examiner.Reply(ctx, slices.Clone(s.transcript), text, s.material)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrConversationFailed, err)
	}
	s.transcript = append(s.transcript,
		model.SpeakingMessage{Role: model.SpeakerCandidate, Text: text},
		model.SpeakingMessage{Role: model.SpeakerExaminer, Text: reply},
	)

	if len(s.transcript) > provisionalAfter && !s.recorded {
		s.recordProvisional(ctx, uid)
	}
	return reply, nil
}

// recordProvisional persists an ungraded result for the transcript. A failed
// save is retried after the next turn.
func (s *Speaking) recordProvisional(ctx context.Context, uid string) {
	result := model.TestResult{
		ID:     s.deps.NewID(),
		UserID: uid,
		Date:   s.deps.Now(),
		Module: model.ModuleSpeaking,
		Score:  0,
		Details: model.SpeakingDetails{
			Length:      len(s.transcript),
			Provisional: true,
		},
	}
	if err := s.deps.Results.SaveResult(ctx, result); err != nil {
		slog.Warn("save speaking result", "user", uid, "error", err)
		return
	}
	s.recorded = true
}

// Reset restarts the conversation. Results already saved are kept.
func (s *Speaking) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = opening()
	s.recorded = false
}

// Transcript returns a copy of the transcript.
func (s *Speaking) Transcript() []model.SpeakingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

// View returns a snapshot of the conversation.
func (s *Speaking) View() SpeakingView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpeakingView{
		TestID:     s.testID,
		Material:   s.material,
		Transcript: slices.Clone(s.transcript),
		Recorded:   s.recorded,
	}
}
