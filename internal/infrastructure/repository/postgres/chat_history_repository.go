package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

type ChatHistoryRepository struct {
	db *sql.DB
}

var _ ports.ChatHistoryStore = (*ChatHistoryRepository)(nil)

func NewChatHistoryRepository(db *sql.DB) *ChatHistoryRepository {
	return &ChatHistoryRepository{db: db}
}

func (r *ChatHistoryRepository) Append(ctx context.Context, rec domain.ChatRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_history (id, user_id, question, answer, mode, generation_path, citation_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, rec.ID, rec.UserID, rec.Question, rec.Answer, string(rec.Mode), string(rec.GenerationPath), rec.CitationCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append chat record: %w", err)
	}
	return nil
}

func (r *ChatHistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ChatRecord, error) {
	if limit <= 0 {
		return []domain.ChatRecord{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, question, answer, mode, generation_path, citation_count, created_at
FROM chat_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatRecord, 0, limit)
	for rows.Next() {
		var rec domain.ChatRecord
		var mode, path string
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Question,
			&rec.Answer,
			&mode,
			&path,
			&rec.CitationCount,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat record: %w", err)
		}
		rec.Mode = domain.ChatMode(mode)
		rec.GenerationPath = domain.GenerationPath(path)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat history: %w", err)
	}
	return out, nil
}
