package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// postgresChatRepository implements ChatRepository on PostgreSQL.
type postgresChatRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresChatRepository creates a repository over the given pool.
func NewPostgresChatRepository(pool *pgxpool.Pool) ChatRepository {
	return &postgresChatRepository{pool: pool}
}

func (r *postgresChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now

	const query = `
		INSERT INTO chats (id, db_type, db_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		chat.ID, chat.DBType, chat.DBName, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (r *postgresChatRepository) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	const query = `
		SELECT id, db_type, db_name, created_at, updated_at
		FROM chats WHERE id = $1`

	var chat models.Chat
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&chat.ID, &chat.DBType, &chat.DBName, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

func (r *postgresChatRepository) ListChats(ctx context.Context) ([]models.Chat, error) {
	const query = `
		SELECT id, db_type, db_name, created_at, updated_at
		FROM chats ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.DBType, &chat.DBName, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}

	return chats, rows.Err()
}

func (r *postgresChatRepository) SaveTurn(ctx context.Context, turn *models.PersistedTurn) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save turn: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertQuery = `
		INSERT INTO chat_messages
			(id, chat_id, query, generated_query, result, explanation, error, is_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, insertQuery,
		turn.ID, turn.ChatID, turn.Query, turn.GeneratedQuery,
		turn.Result, turn.Explanation, turn.Error, turn.IsError, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE chats SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), turn.ChatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *postgresChatRepository) GetTurns(ctx context.Context, chatID uuid.UUID) ([]models.PersistedTurn, error) {
	const query = `
		SELECT id, chat_id, query, generated_query, result, explanation, error, is_error, created_at
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("get turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.PersistedTurn, 0)
	for rows.Next() {
		var turn models.PersistedTurn
		if err := rows.Scan(
			&turn.ID, &turn.ChatID, &turn.Query, &turn.GeneratedQuery,
			&turn.Result, &turn.Explanation, &turn.Error, &turn.IsError, &turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

var _ ChatRepository = (*postgresChatRepository)(nil)
