package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session is the live binding between one user context and one database
// connection plus its chat history. It is created on a successful
// connection test and destroyed on logout or replacement by a new
// connection; exactly one session is active per user context at a time.
type Session struct {
	ID         uuid.UUID             `json:"id"`
	Descriptor *ConnectionDescriptor `json:"descriptor"`
	Name       string                `json:"name"`
	CreatedAt  time.Time             `json:"created_at"`
}

// NewSession binds a validated descriptor to a fresh session identity.
func NewSession(descriptor *ConnectionDescriptor, name string) *Session {
	return &Session{
		ID:         uuid.New(),
		Descriptor: descriptor,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}
}

// Turn is one question/answer exchange within a session. Turns are
// append-only and immutable once created; a turn is persisted only after
// its terminal outcome is known.
type Turn struct {
	ID             uuid.UUID       `json:"id"`
	ChatID         uuid.UUID       `json:"chat_id"`
	Query          string          `json:"query"`
	GeneratedQuery string          `json:"generated_query,omitempty"`
	Explanation    string          `json:"explanation,omitempty"`
	Result         *ResultEnvelope `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	IsError        bool            `json:"is_error"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PersistedTurn is the storage shape of a turn, kept bit-for-bit
// compatible with the existing chat_messages rows: the result envelope
// is JSON-encoded into the result column and timestamps serialize as
// RFC 3339 strings.
type PersistedTurn struct {
	ID             string `json:"id"`
	ChatID         string `json:"chat_id"`
	Query          string `json:"query"`
	GeneratedQuery string `json:"generated_query"`
	Result         string `json:"result"`
	Explanation    string `json:"explanation"`
	Error          string `json:"error"`
	IsError        bool   `json:"is_error"`
	CreatedAt      string `json:"created_at"`
}

// ToPersisted flattens the turn into its storage shape.
func (t *Turn) ToPersisted() (*PersistedTurn, error) {
	var result string
	if t.Result != nil {
		encoded, err := json.Marshal(t.Result)
		if err != nil {
			return nil, err
		}
		result = string(encoded)
	}

	return &PersistedTurn{
		ID:             t.ID.String(),
		ChatID:         t.ChatID.String(),
		Query:          t.Query,
		GeneratedQuery: t.GeneratedQuery,
		Result:         result,
		Explanation:    t.Explanation,
		Error:          t.Error,
		IsError:        t.IsError,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339Nano),
	}, nil
}

// Chat is the persisted listing entry for a session's history.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	DBType    string    `json:"db_type"`
	DBName    string    `json:"db_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
