package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polyquery/polyquery-engine/pkg/models"
)

// memoryChatRepository is the in-memory ChatRepository. It backs
// deployments without a history database and keeps tests hermetic.
// History is lost on restart.
type memoryChatRepository struct {
	mu    sync.RWMutex
	chats map[uuid.UUID]models.Chat
	turns map[uuid.UUID][]models.PersistedTurn
}

// NewMemoryChatRepository creates an empty in-memory repository.
func NewMemoryChatRepository() ChatRepository {
	return &memoryChatRepository{
		chats: make(map[uuid.UUID]models.Chat),
		turns: make(map[uuid.UUID][]models.PersistedTurn),
	}
}

func (r *memoryChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now

	r.chats[chat.ID] = *chat
	return nil
}

func (r *memoryChatRepository) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[id]
	if !ok {
		return nil, nil
	}
	return &chat, nil
}

func (r *memoryChatRepository) ListChats(ctx context.Context) ([]models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chats := make([]models.Chat, 0, len(r.chats))
	for _, chat := range r.chats {
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (r *memoryChatRepository) SaveTurn(ctx context.Context, turn *models.PersistedTurn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chatID, err := uuid.Parse(turn.ChatID)
	if err != nil {
		return err
	}

	r.turns[chatID] = append(r.turns[chatID], *turn)

	if chat, ok := r.chats[chatID]; ok {
		chat.UpdatedAt = time.Now().UTC()
		r.chats[chatID] = chat
	}
	return nil
}

func (r *memoryChatRepository) GetTurns(ctx context.Context, chatID uuid.UUID) ([]models.PersistedTurn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	turns := r.turns[chatID]
	out := make([]models.PersistedTurn, len(turns))
	copy(out, turns)
	return out, nil
}

var _ ChatRepository = (*memoryChatRepository)(nil)
