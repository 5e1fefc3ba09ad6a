package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skillsynx/chatrelay/internal/models"
)

type MemoryStorage struct {
	mu          sync.RWMutex
	nextID      int64
	users       map[int64]*models.User
	byExternal  map[string]int64
	transcripts map[int64][]models.ChatMessage
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nextID:      1,
		users:       make(map[int64]*models.User),
		byExternal:  make(map[string]int64),
		transcripts: make(map[int64][]models.ChatMessage),
	}
}

func (s *MemoryStorage) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byExternal[externalID]
	if !exists {
		return nil, ErrUserNotFound
	}

	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStorage) SetUserThread(ctx context.Context, userID int64, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return ErrUserNotFound
	}

	user.ThreadID = threadID
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byExternal[user.ExternalID]; exists {
		return fmt.Errorf("user with external id %q already exists", user.ExternalID)
	}

	user.ID = s.nextID
	s.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	copied := *user
	s.users[user.ID] = &copied
	s.byExternal[user.ExternalID] = user.ID
	return nil
}

func (s *MemoryStorage) AppendMessage(ctx context.Context, userID int64, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID]; !exists {
		return ErrUserNotFound
	}

	s.transcripts[userID] = append(s.transcripts[userID], msg)
	return nil
}

func (s *MemoryStorage) GetTranscript(ctx context.Context, userID int64) (*models.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]models.ChatMessage, len(s.transcripts[userID]))
	copy(messages, s.transcripts[userID])

	return &models.Transcript{
		UserID:   userID,
		Messages: messages,
	}, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
