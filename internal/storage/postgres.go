package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/lib/pq"
	"github.com/skillsynx/chatrelay/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `
		SELECT id, external_id, name, email, industry, skills, thread_id, created_at, updated_at
		FROM users
		WHERE external_id = $1`

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, query, externalID).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Name,
		&user.Email,
		&user.Industry,
		pq.Array(&user.Skills),
		&user.ThreadID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}

	return user, nil
}

func (s *PostgresStorage) SetUserThread(ctx context.Context, userID int64, threadID string) error {
	query := `
		UPDATE users
		SET thread_id = $1, updated_at = NOW()
		WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, threadID, userID)
	if err != nil {
		return fmt.Errorf("error updating user thread: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CreateUser inserts a user record; the auth flow calls this on first sign-in.
func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (external_id, name, email, industry, skills, thread_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(
		ctx,
		query,
		user.ExternalID,
		user.Name,
		user.Email,
		user.Industry,
		pq.Array(user.Skills),
		user.ThreadID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}

	return nil
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, userID int64, msg models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, userID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("error appending chat message: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetTranscript(ctx context.Context, userID int64) (*models.Transcript, error) {
	query := `
		SELECT role, content, created_at
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying transcript: %w", err)
	}
	defer rows.Close()

	transcript := &models.Transcript{UserID: userID}
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning chat message: %w", err)
		}
		transcript.Messages = append(transcript.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading transcript rows: %w", err)
	}

	return transcript, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
