package model

import "time"

// ResultsExport is the top-level JSON structure written by the export command.
type ResultsExport struct {
	ExportedAt time.Time     `json:"exported_at"`
	Storage    StorageMode   `json:"storage"`
	Users      []UserResults `json:"users"`
}

// UserResults groups one user's results with their history summary.
type UserResults struct {
	UserID  string                 `json:"user_id"`
	Name    string                 `json:"name"`
	Email   string                 `json:"email"`
	Latest  map[TestModule]float64 `json:"latest"`
	Average float64                `json:"average"`
	Results []TestResult           `json:"results"`
}
