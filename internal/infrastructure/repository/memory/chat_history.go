package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/kirillkom/loan-rag-assistant/internal/core/domain"
	"github.com/kirillkom/loan-rag-assistant/internal/core/ports"
)

const defaultHistoryPerUser = 500

// ChatHistoryStore keeps the most recent exchanges per user.
type ChatHistoryStore struct {
	mu      sync.RWMutex
	byUser  map[string][]domain.ChatRecord
	perUser int
}

var _ ports.ChatHistoryStore = (*ChatHistoryStore)(nil)

func NewChatHistoryStore(perUser int) *ChatHistoryStore {
	if perUser <= 0 {
		perUser = defaultHistoryPerUser
	}
	return &ChatHistoryStore{byUser: make(map[string][]domain.ChatRecord), perUser: perUser}
}

func (s *ChatHistoryStore) Append(_ context.Context, rec domain.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.byUser[rec.UserID], rec)
	if len(records) > s.perUser {
		records = records[len(records)-s.perUser:]
	}
	s.byUser[rec.UserID] = records
	return nil
}

// ListByUser returns newest first.
func (s *ChatHistoryStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.ChatRecord, error) {
	s.mu.RLock()
	records := append([]domain.ChatRecord(nil), s.byUser[userID]...)
	s.mu.RUnlock()

	slices.Reverse(records)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []domain.ChatRecord{}
	}
	return records, nil
}
