package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TestResult is one submitted attempt. Results are append-only and never
// mutated after they are persisted.
type TestResult struct {
	ID      string
	UserID  string
	Date    time.Time
	Module  TestModule
	Score   float64
	Details ResultDetails
}

// ResultDetails is the module-specific payload of a result. The concrete type
// is one of ReadingDetails, WritingDetails or SpeakingDetails.
type ResultDetails interface {
	Module() TestModule
}

// ReadingDetails records how a Reading band was reached.
type ReadingDetails struct {
	RawScore       int            `json:"rawScore"`
	TotalQuestions int            `json:"totalQuestions"`
	Answers        map[int]string `json:"answers"`
}

func (ReadingDetails) Module() TestModule { return ModuleReading }

// WritingDetails is the grader's feedback plus the task it was given for.
type WritingDetails struct {
	WritingFeedback
	TaskType TaskType `json:"taskType"`
}

func (WritingDetails) Module() TestModule { return ModuleWriting }

// SpeakingDetails marks a completed speaking session. Provisional results
// carry a zero score that means "ungraded", not a band of 0.
type SpeakingDetails struct {
	Length      int  `json:"length"`
	Provisional bool `json:"provisional"`
}

func (SpeakingDetails) Module() TestModule { return ModuleSpeaking }

// Graded reports whether Score is a real band. Provisional speaking results
// are not.
func (r TestResult) Graded() bool {
	if d, ok := r.Details.(SpeakingDetails); ok && d.Provisional {
		return false
	}
	return true
}

// Valid reports whether t is Task 1 or Task 2.
func (t TaskType) Valid() bool {
	return t == Task1 || t == Task2
}

type resultJSON struct {
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	Date    time.Time       `json:"date"`
	Module  TestModule      `json:"module"`
	Score   float64         `json:"score"`
	Details json.RawMessage `json:"details,omitempty"`
}

// MarshalJSON keeps the flat wire shape of a result with a details object.
func (r TestResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		ID:     r.ID,
		UserID: r.UserID,
		Date:   r.Date,
		Module: r.Module,
		Score:  r.Score,
	}
	if r.Details != nil {
		raw, err := json.Marshal(r.Details)
		if err != nil {
			return nil, err
		}
		out.Details = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes details into the variant selected by module.
func (r *TestResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = TestResult{
		ID:     in.ID,
		UserID: in.UserID,
		Date:   in.Date,
		Module: in.Module,
		Score:  in.Score,
	}
	if len(in.Details) == 0 || string(in.Details) == "null" {
		return nil
	}
	switch in.Module {
	case ModuleReading:
		var d ReadingDetails
		if err := json.Unmarshal(in.Details, &d); err != nil {
			return fmt.Errorf("decode reading details: %w", err)
		}
		r.Details = d
	case ModuleWriting:
		var d WritingDetails
		if err := json.Unmarshal(in.Details, &d); err != nil {
			return fmt.Errorf("decode writing details: %w", err)
		}
		r.Details = d
	case ModuleSpeaking:
		var d SpeakingDetails
		if err := json.Unmarshal(in.Details, &d); err != nil {
			return fmt.Errorf("decode speaking details: %w", err)
		}
		r.Details = d
	default:
		return fmt.Errorf("unknown result module %q", in.Module)
	}
	return nil
}
