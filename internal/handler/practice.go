package handler

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/session"
)

func (h *Handler) current(r *http.Request) *workspace {
	return h.workspaces.get(model.UserFromContext(r.Context()).ID)
}

// redactTest hides the answer key and evidence of reading questions.
func redactTest(t model.PracticeTest) model.PracticeTest {
	if t.Reading == nil {
		return t
	}
	reading := model.ReadingModule{Passages: make([]model.ReadingPassage, len(t.Reading.Passages))}
	for i, p := range t.Reading.Passages {
		p.Questions = slices.Clone(p.Questions)
		for j := range p.Questions {
			p.Questions[j].CorrectAnswer = ""
			p.Questions[j].Evidence = ""
		}
		reading.Passages[i] = p
	}
	t.Reading = &reading
	return t
}

func readingView(ws *workspace) session.ReadingView {
	v := ws.reading.View()
	if v.Test != nil && v.State != session.ReadingSubmitted {
		t := redactTest(*v.Test)
		v.Test = &t
	}
	return v
}

type selectRequest struct {
	TestID   string         `json:"testId"`
	TaskType model.TaskType `json:"taskType,omitempty"`
}

func (h *Handler) handleReadingView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, readingView(h.current(r)))
}

func (h *Handler) handleReadingSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	if err := ws.reading.SelectTest(r.Context(), req.TestID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readingView(ws))
}

type answerRequest struct {
	QuestionID int    `json:"questionId"`
	Value      string `json:"value"`
}

func (h *Handler) handleReadingAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	if !ws.reading.Answer(req.QuestionID, req.Value) {
		writeError(w, r, fmt.Errorf("answer question %d: %w", req.QuestionID, model.ErrInvalidState))
		return
	}
	writeJSON(w, http.StatusOK, readingView(ws))
}

type passageRequest struct {
	Index int `json:"index"`
}

func (h *Handler) handleReadingPassage(w http.ResponseWriter, r *http.Request) {
	var req passageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	ws.reading.GoToPassage(req.Index)
	writeJSON(w, http.StatusOK, readingView(ws))
}

func (h *Handler) handleReadingSubmit(w http.ResponseWriter, r *http.Request) {
	ws := h.current(r)
	if _, err := ws.reading.Submit(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readingView(ws))
}

func (h *Handler) handleWritingView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current(r).writing.View())
}

func (h *Handler) handleWritingSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	if err := ws.writing.SelectTest(r.Context(), req.TestID, req.TaskType); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.writing.View())
}

func (h *Handler) handleWritingStart(w http.ResponseWriter, r *http.Request) {
	ws := h.current(r)
	if err := ws.writing.Start(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.writing.View())
}

type essayRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleWritingEdit(w http.ResponseWriter, r *http.Request) {
	var req essayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	if err := ws.writing.Edit(req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.writing.View())
}

func (h *Handler) handleWritingSubmit(w http.ResponseWriter, r *http.Request) {
	if h.deps.Grader == nil {
		writeError(w, r, fmt.Errorf("%w: no grader configured", model.ErrGradingFailed))
		return
	}
	ws := h.current(r)
	if _, err := ws.writing.Submit(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.writing.View())
}

func (h *Handler) handleSpeakingView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current(r).speaking.View())
}

func (h *Handler) handleSpeakingSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	if err := ws.speaking.SelectTest(r.Context(), req.TestID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.speaking.View())
}

type turnRequest struct {
	Text string `json:"text"`
}

type turnResponse struct {
	Reply string `json:"reply"`
	session.SpeakingView
}

func (h *Handler) handleSpeakingTurn(w http.ResponseWriter, r *http.Request) {
	if h.deps.Examiner == nil {
		writeError(w, r, fmt.Errorf("%w: no examiner configured", model.ErrConversationFailed))
		return
	}
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ws := h.current(r)
	reply, err := ws.speaking.SendCandidateTurn(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{Reply: reply, SpeakingView: ws.speaking.View()})
}

func (h *Handler) handleSpeakingReset(w http.ResponseWriter, r *http.Request) {
	ws := h.current(r)
	ws.speaking.Reset()
	writeJSON(w, http.StatusOK, ws.speaking.View())
}
