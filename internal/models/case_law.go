package models

import "time"

// CaseLaw is a court precedent summary used for search answers.
type CaseLaw struct {
	ID         string    `json:"id"`
	CaseNumber string    `json:"case_number"`
	Court      string    `json:"court"`
	DecidedAt  time.Time `json:"decided_at"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Keywords   []string  `json:"keywords"`
	Category   string    `json:"category"`
}
