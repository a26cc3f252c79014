// Package repositories provides chat history persistence. A PostgreSQL
// implementation backs production; an in-memory one serves tests and
// deployments without a history database.
package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// ChatRepository defines chat and turn persistence. Turns are
// append-only; saving a turn touches the parent chat's updated_at so
// listings sort by recency.
type ChatRepository interface {
	// CreateChat registers a new chat for a connection.
	CreateChat(ctx context.Context, chat *models.Chat) error

	// GetChat returns a chat by id, or nil when absent.
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)

	// ListChats returns all chats, most recently updated first.
	ListChats(ctx context.Context) ([]models.Chat, error)

	// SaveTurn appends a completed turn and touches the parent chat.
	SaveTurn(ctx context.Context, turn *models.PersistedTurn) error

	// GetTurns returns a chat's turns in creation order.
	GetTurns(ctx context.Context, chatID uuid.UUID) ([]models.PersistedTurn, error)
}
