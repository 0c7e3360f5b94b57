package domain

import "time"

type ChatRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	Mode           ChatMode       `json:"mode"`
	GenerationPath GenerationPath `json:"generation"`
	CitationCount  int            `json:"citation_count"`
	CreatedAt      time.Time      `json:"created_at"`
}
