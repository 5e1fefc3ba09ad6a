package storage

import (
	"context"
	"errors"

	"github.com/skillsynx/chatrelay/internal/models"
)

// ErrUserNotFound is returned when no user record matches the given identity.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory looks up users by their external auth identity and records
// the AI-service thread assigned to them.
type UserDirectory interface {
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	SetUserThread(ctx context.Context, userID int64, threadID string) error
}

// UserSeeder creates user records. The relay never registers users itself;
// the sign-in boundary seeds them through this interface.
type UserSeeder interface {
	CreateUser(ctx context.Context, user *models.User) error
}

// TranscriptStore appends chat turns to a user's ordered transcript,
// creating the transcript if the user has none yet.
type TranscriptStore interface {
	AppendMessage(ctx context.Context, userID int64, msg models.ChatMessage) error
	GetTranscript(ctx context.Context, userID int64) (*models.Transcript, error)
}

type Storage interface {
	UserDirectory
	UserSeeder
	TranscriptStore
	Close() error
}
