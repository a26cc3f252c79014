package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/llm"
	"github.com/polyquery/polyquery-engine/pkg/models"
	"github.com/polyquery/polyquery-engine/pkg/repositories"
	"github.com/polyquery/polyquery-engine/pkg/schemacache"
)

type engineFixture struct {
	engine    *Engine
	connector *datasource.MockConnector
	client    *llm.MockClient
	repo      repositories.ChatRepository
	metrics   *Metrics
}

func newEngineFixture(t *testing.T) *engineFixture {
	return newEngineFixtureWithGenTimeout(t, 0)
}

func newEngineFixtureWithGenTimeout(t *testing.T, genTimeout time.Duration) *engineFixture {
	t.Helper()

	connector := &datasource.MockConnector{
		IntrospectFunc: func(ctx context.Context) (*models.SchemaSnapshot, error) {
			return &models.SchemaSnapshot{
				Family: models.FamilyRelational,
				Entities: []models.SchemaEntity{
					{Kind: models.EntityTable, Name: "users", Fields: []models.FieldDescriptor{
						{Name: "id", DataType: "integer", IsPrimaryKey: true},
						{Name: "email", DataType: "text"},
					}},
				},
				CreatedAt: time.Now().UTC(),
			}, nil
		},
		ExecuteFunc: func(ctx context.Context, query string) (*datasource.RawResult, error) {
			return &datasource.RawResult{
				Columns: []string{"count"},
				Rows:    []map[string]any{{"count": 42}},
			}, nil
		},
	}

	factory := &datasource.MockFactory{
		ConnectFunc: func(ctx context.Context, descriptor *models.ConnectionDescriptor) (datasource.Connector, error) {
			return connector, nil
		},
		ResolveFunc: func(dbType string) (datasource.Info, error) {
			return datasource.Info{Type: dbType, Family: models.FamilyRelational, Dialect: "PostgreSQL"}, nil
		},
	}

	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return `{"query": "SELECT count(*) FROM users", "explanation": "Counts users."}`, nil
	}

	repo := repositories.NewMemoryChatRepository()
	metrics := NopMetrics()

	engine := NewEngine(
		factory,
		schemacache.New(10*time.Minute, zap.NewNop()),
		NewContextBuilder(25, zap.NewNop()),
		NewQueryGenerator(client, genTimeout, zap.NewNop()),
		NewResultNormalizer(500),
		NewCoordinator(time.Second, zap.NewNop()),
		repo,
		metrics,
		zap.NewNop(),
		Options{MaxPromptTurns: 5},
	)

	return &engineFixture{engine: engine, connector: connector, client: client, repo: repo, metrics: metrics}
}

func openTestSession(t *testing.T, f *engineFixture) *models.Session {
	t.Helper()
	descriptor := &models.ConnectionDescriptor{
		Type:   "postgresql",
		Params: map[string]string{"host": "db", "database_name": "app"},
	}
	session, err := f.engine.OpenSession(context.Background(), descriptor, "test")
	require.NoError(t, err)
	return session
}

func TestOpenSessionRegistersChat(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	assert.True(t, f.engine.HasLiveSession(session.ID))
	assert.Equal(t, int64(1), f.connector.TestCalls.Load())

	chat, err := f.repo.GetChat(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Equal(t, "postgresql", chat.DBType)
	assert.Equal(t, "app", chat.DBName)
}

func TestOpenSessionConnectionTestFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.connector.TestFunc = func(ctx context.Context) error {
		return errors.New("password authentication failed")
	}

	descriptor := &models.ConnectionDescriptor{
		Type:   "postgresql",
		Params: map[string]string{"host": "db"},
	}
	_, err := f.engine.OpenSession(context.Background(), descriptor, "test")

	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindConnection))
	assert.Equal(t, int64(1), f.connector.CloseCalls.Load(), "failed session must not leak the handle")
}

func TestProcessQuerySuccessPersistsTurn(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	turn, err := f.engine.ProcessQuery(context.Background(), session.ID, "how many users", false)

	require.NoError(t, err)
	assert.False(t, turn.IsError)
	assert.Equal(t, "SELECT count(*) FROM users", turn.GeneratedQuery)
	require.NotNil(t, turn.Result)
	assert.Equal(t, 1, turn.Result.RowCount)

	persisted, err := f.repo.GetTurns(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "how many users", persisted[0].Query)

	var envelope models.ResultEnvelope
	require.NoError(t, json.Unmarshal([]byte(persisted[0].Result), &envelope))
	assert.Equal(t, 1, envelope.RowCount)
}

func TestProcessQueryGenerationFailurePersistsErrorTurn(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	f.client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return `{"query": "", "explanation": "Nothing in the schema covers that."}`, nil
	}

	turn, err := f.engine.ProcessQuery(context.Background(), session.ID, "what is the weather", false)

	require.NoError(t, err, "pipeline failures come back as error turns, not errors")
	assert.True(t, turn.IsError)
	assert.Contains(t, turn.Error, "generation_error:")
	assert.Nil(t, turn.Result)

	persisted, err := f.repo.GetTurns(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].IsError)
}

func TestProcessQueryGenerationTimeoutFreesSession(t *testing.T) {
	f := newEngineFixtureWithGenTimeout(t, 20*time.Millisecond)
	session := openTestSession(t, f)

	hung := true
	f.client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		if hung {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"query": "SELECT 1", "explanation": "ok"}`, nil
	}

	turn, err := f.engine.ProcessQuery(context.Background(), session.ID, "slow question", false)

	require.NoError(t, err)
	assert.True(t, turn.IsError)
	assert.Contains(t, turn.Error, "timeout_error:")

	hung = false
	turn, err = f.engine.ProcessQuery(context.Background(), session.ID, "follow-up", false)
	require.NoError(t, err)
	assert.False(t, turn.IsError, "a timed-out generation must not wedge the session")
	assert.Equal(t, PhaseIdle, f.engine.SessionPhase(session.ID))
}

func TestProcessQueryCountsOnlyRealSchemaRefreshes(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	for i := 0; i < 3; i++ {
		_, err := f.engine.ProcessQuery(context.Background(), session.ID, "how many users", false)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), f.connector.IntrospectCalls.Load())
	assert.Equal(t, float64(1),
		testutil.ToFloat64(f.metrics.SchemaRefreshes.WithLabelValues("ttl")),
		"cache hits are not introspections")
}

func TestProcessQueryExecutionFailureKind(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	f.connector.ExecuteFunc = func(ctx context.Context, query string) (*datasource.RawResult, error) {
		return nil, errors.New("relation \"users\" does not exist")
	}

	turn, err := f.engine.ProcessQuery(context.Background(), session.ID, "how many users", false)

	require.NoError(t, err)
	assert.True(t, turn.IsError)
	assert.Contains(t, turn.Error, "execution_error:")
	assert.Equal(t, "SELECT count(*) FROM users", turn.GeneratedQuery, "the failed query stays on the turn")
}

func TestProcessQueryBusyRejection(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	inExecute := make(chan struct{})
	releaseExecute := make(chan struct{})
	f.connector.ExecuteFunc = func(ctx context.Context, query string) (*datasource.RawResult, error) {
		close(inExecute)
		<-releaseExecute
		return &datasource.RawResult{}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.engine.ProcessQuery(context.Background(), session.ID, "slow question", false)
	}()

	<-inExecute
	turn, err := f.engine.ProcessQuery(context.Background(), session.ID, "second question", false)
	close(releaseExecute)
	wg.Wait()

	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Nil(t, turn)

	persisted, repoErr := f.repo.GetTurns(context.Background(), session.ID)
	require.NoError(t, repoErr)
	assert.Len(t, persisted, 1, "a busy rejection leaves no trace in history")
}

func TestProcessQueryUnknownSession(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.ProcessQuery(context.Background(), uuid.New(), "question", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProcessQueryHistoryWindow(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	var lastPrompt string
	f.client.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		lastPrompt = prompt
		return `{"query": "SELECT 1", "explanation": "ok"}`, nil
	}

	for i := 0; i < 7; i++ {
		_, err := f.engine.ProcessQuery(context.Background(), session.ID, "question", false)
		require.NoError(t, err)
	}

	// 5-turn window: the prompt for the 7th query carries turns 2-6.
	assert.Equal(t, 5, strings.Count(lastPrompt, "Q: question"))
}

func TestCloseSessionIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	require.NoError(t, f.engine.CloseSession(session.ID))
	assert.False(t, f.engine.HasLiveSession(session.ID))
	assert.Equal(t, int64(1), f.connector.CloseCalls.Load())

	require.NoError(t, f.engine.CloseSession(session.ID), "closing twice is a no-op")
	assert.Equal(t, int64(1), f.connector.CloseCalls.Load())

	_, err := f.engine.ProcessQuery(context.Background(), session.ID, "question", false)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetSchemaInfoForceRefresh(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	_, err := f.engine.GetSchemaInfo(context.Background(), session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.connector.IntrospectCalls.Load())

	_, err = f.engine.GetSchemaInfo(context.Background(), session.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.connector.IntrospectCalls.Load(), "fresh snapshot is served from cache")

	_, err = f.engine.GetSchemaInfo(context.Background(), session.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.connector.IntrospectCalls.Load())
}

func TestLoadChatAfterDisconnect(t *testing.T) {
	f := newEngineFixture(t)
	session := openTestSession(t, f)

	_, err := f.engine.ProcessQuery(context.Background(), session.ID, "how many users", false)
	require.NoError(t, err)

	require.NoError(t, f.engine.CloseSession(session.ID))

	chat, turns, err := f.engine.LoadChat(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, chat)
	assert.Len(t, turns, 1)
	assert.False(t, f.engine.HasLiveSession(session.ID))
}

func TestLoadChatUnknown(t *testing.T) {
	f := newEngineFixture(t)

	chat, turns, err := f.engine.LoadChat(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, chat)
	assert.Nil(t, turns)
}

func TestTestConnectionValidatesDescriptor(t *testing.T) {
	f := newEngineFixture(t)

	err := f.engine.TestConnection(context.Background(), &models.ConnectionDescriptor{})
	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindConnection))
}
