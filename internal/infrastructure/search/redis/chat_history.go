package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const defaultHistoryPerUser = 500

// ChatHistoryStore keeps one capped JSON list per user, newest at the head.
type ChatHistoryStore struct {
	c       *Client
	perUser int
}

var _ ports.ChatHistoryStore = (*ChatHistoryStore)(nil)

func NewChatHistoryStore(c *Client, perUser int) *ChatHistoryStore {
	if perUser <= 0 {
		perUser = defaultHistoryPerUser
	}
	return &ChatHistoryStore{c: c, perUser: perUser}
}

func (s *ChatHistoryStore) Append(ctx context.Context, rec domain.ChatRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode chat record: %w", err)
	}
	key := chatKeyPrefix + rec.UserID
	b := s.c.client.B()
	results := s.c.client.DoMulti(ctx,
		b.Lpush().Key(key).Element(string(payload)).Build(),
		b.Ltrim().Key(key).Start(0).Stop(int64(s.perUser-1)).Build(),
	)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return domain.WrapError(domain.ErrBackendUnavailable, "append chat history", err)
		}
	}
	return nil
}

func (s *ChatHistoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ChatRecord, error) {
	if limit <= 0 || limit > s.perUser {
		limit = s.perUser
	}
	cmd := s.c.client.B().Lrange().Key(chatKeyPrefix + userID).Start(0).Stop(int64(limit - 1)).Build()
	items, err := s.c.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "list chat history", err)
	}

	out := make([]domain.ChatRecord, 0, len(items))
	for _, item := range items {
		var rec domain.ChatRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			slog.Warn("chat_history_decode_failed", "user_id", userID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
