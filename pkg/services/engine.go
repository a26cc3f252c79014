package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/models"
	"github.com/polyquery/polyquery-engine/pkg/prompts"
	"github.com/polyquery/polyquery-engine/pkg/repositories"
	"github.com/polyquery/polyquery-engine/pkg/schemacache"
)

// ErrSessionNotFound is returned for operations on unknown or closed
// sessions.
var ErrSessionNotFound = errors.New("session not found")

// Options bundles the engine's tuning knobs.
type Options struct {
	MaxPromptTurns int
}

// Engine is the top-level query service: it owns sessions, runs the
// generate-execute pipeline and persists chat history.
type Engine struct {
	factory     datasource.ConnectorFactory
	cache       *schemacache.Cache
	builder     *ContextBuilder
	generator   *QueryGenerator
	normalizer  *ResultNormalizer
	coordinator *Coordinator
	repo        repositories.ChatRepository
	metrics     *Metrics
	logger      *zap.Logger
	opts        Options

	mu       sync.RWMutex
	sessions map[uuid.UUID]*liveSession
}

// liveSession binds an open connector to its session and chat.
type liveSession struct {
	session   *models.Session
	connector datasource.Connector
	dialect   string
	chatID    uuid.UUID

	// history holds recent turns for prompt continuity.
	history []prompts.HistoryTurn
}

// NewEngine wires the engine from its collaborators.
func NewEngine(
	factory datasource.ConnectorFactory,
	cache *schemacache.Cache,
	builder *ContextBuilder,
	generator *QueryGenerator,
	normalizer *ResultNormalizer,
	coordinator *Coordinator,
	repo repositories.ChatRepository,
	metrics *Metrics,
	logger *zap.Logger,
	opts Options,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxPromptTurns <= 0 {
		opts.MaxPromptTurns = 5
	}
	return &Engine{
		factory:     factory,
		cache:       cache,
		builder:     builder,
		generator:   generator,
		normalizer:  normalizer,
		coordinator: coordinator,
		repo:        repo,
		metrics:     metrics,
		logger:      logger.Named("engine"),
		opts:        opts,
		sessions:    make(map[uuid.UUID]*liveSession),
	}
}

// TestConnection verifies a descriptor can reach its backend. No handle
// stays open afterwards.
func (e *Engine) TestConnection(ctx context.Context, descriptor *models.ConnectionDescriptor) error {
	if err := descriptor.Validate(); err != nil {
		return engineerrors.Connection(err.Error(), nil)
	}
	return e.factory.Probe(ctx, descriptor)
}

// OpenSession tests the connection, opens a live handle and registers a
// chat for the session's history.
func (e *Engine) OpenSession(ctx context.Context, descriptor *models.ConnectionDescriptor, name string) (*models.Session, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, engineerrors.Connection(err.Error(), nil)
	}

	info, err := e.factory.Resolve(descriptor.Type)
	if err != nil {
		return nil, err
	}
	descriptor.Family = info.Family

	connector, err := e.factory.Connect(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	if err := connector.Test(ctx); err != nil {
		connector.Close()
		return nil, engineerrors.Connection(fmt.Sprintf("connection test for %s failed", descriptor.Type), err)
	}

	session := models.NewSession(descriptor, name)

	chat := &models.Chat{
		ID:     session.ID,
		DBType: descriptor.Type,
		DBName: dbDisplayName(descriptor),
	}
	if err := e.repo.CreateChat(ctx, chat); err != nil {
		connector.Close()
		return nil, engineerrors.Serialization("failed to register chat history", err)
	}

	e.mu.Lock()
	e.sessions[session.ID] = &liveSession{
		session:   session,
		connector: connector,
		dialect:   info.Dialect,
		chatID:    chat.ID,
	}
	e.mu.Unlock()

	e.metrics.ActiveSessions.Inc()
	e.logger.Info("session opened",
		zap.String("session_id", session.ID.String()),
		zap.String("db_type", descriptor.Type))

	return session, nil
}

// CloseSession closes the session's connector and forgets the session.
// Closing an unknown session is a no-op.
func (e *Engine) CloseSession(sessionID uuid.UUID) error {
	e.mu.Lock()
	live, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}

	e.coordinator.Forget(sessionID)
	e.metrics.ActiveSessions.Dec()

	if err := live.connector.Close(); err != nil {
		e.logger.Warn("connector close failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return err
	}

	e.logger.Info("session closed", zap.String("session_id", sessionID.String()))
	return nil
}

// ProcessQuery runs the full pipeline for one question: schema context,
// generation, execution, normalization, persistence. The returned turn
// carries either the result envelope or the classified error; busy
// rejections return ErrSessionBusy without producing a turn.
func (e *Engine) ProcessQuery(ctx context.Context, sessionID uuid.UUID, question string, forceRefresh bool) (*models.Turn, error) {
	live, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	release, err := e.coordinator.Acquire(sessionID)
	if err != nil {
		e.metrics.BusyRejections.Inc()
		return nil, err
	}
	defer release()

	start := time.Now()
	turn, pipelineErr := e.runPipeline(ctx, live, question, forceRefresh)
	e.observeOutcome(live, turn, time.Since(start))

	if err := e.persistTurn(ctx, turn); err != nil {
		e.logger.Error("failed to persist turn",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
	}

	if pipelineErr == nil {
		e.rememberTurn(live, question, turn.GeneratedQuery)
	}

	return turn, nil
}

// runPipeline produces a completed turn. Failures become error turns
// with the taxonomy kind embedded in the message.
func (e *Engine) runPipeline(ctx context.Context, live *liveSession, question string, forceRefresh bool) (*models.Turn, error) {
	turn := &models.Turn{
		ID:        uuid.New(),
		ChatID:    live.chatID,
		Query:     question,
		CreatedAt: time.Now().UTC(),
	}
	descriptor := live.session.Descriptor

	e.coordinator.SetPhase(live.session.ID, PhaseGenerating)

	trigger := "ttl"
	if forceRefresh {
		trigger = "forced"
	}

	snapshot, refreshed, err := e.cache.GetOrRefresh(ctx, descriptor.Fingerprint(), live.connector, forceRefresh)
	if err != nil {
		e.metrics.SchemaRefreshes.WithLabelValues("failed").Inc()
		return failTurn(turn, err), err
	}
	if refreshed {
		e.metrics.SchemaRefreshes.WithLabelValues(trigger).Inc()
	}

	entities := e.builder.Build(question, snapshot)

	genStart := time.Now()
	generated, err := e.generator.Generate(ctx, descriptor.Type, live.dialect, question, entities, e.recentHistory(live), snapshot.Partial)
	e.metrics.QueryDuration.WithLabelValues("generate").Observe(time.Since(genStart).Seconds())
	if err != nil {
		return failTurn(turn, err), err
	}
	turn.GeneratedQuery = generated.Query
	turn.Explanation = generated.Explanation

	e.coordinator.SetPhase(live.session.ID, PhaseExecuting)

	execStart := time.Now()
	raw, err := e.coordinator.ExecuteWithTimeout(ctx, live.connector, generated.Query)
	e.metrics.QueryDuration.WithLabelValues("execute").Observe(time.Since(execStart).Seconds())
	if err != nil {
		return failTurn(turn, err), err
	}

	turn.Result = e.normalizer.Normalize(raw)
	return turn, nil
}

// failTurn records a classified error on the turn.
func failTurn(turn *models.Turn, err error) *models.Turn {
	record := engineerrors.ToRecord(engineerrors.Classify(err))
	turn.IsError = true
	turn.Error = fmt.Sprintf("%s: %s", record.Kind, record.Message)
	return turn
}

func (e *Engine) observeOutcome(live *liveSession, turn *models.Turn, elapsed time.Duration) {
	outcome := "success"
	if turn.IsError {
		outcome = "error"
	}
	e.metrics.QueriesTotal.WithLabelValues(live.session.Descriptor.Type, outcome).Inc()
	e.metrics.QueryDuration.WithLabelValues("total").Observe(elapsed.Seconds())
}

func (e *Engine) persistTurn(ctx context.Context, turn *models.Turn) error {
	persisted, err := turn.ToPersisted()
	if err != nil {
		return engineerrors.Serialization("failed to encode turn", err)
	}
	return e.repo.SaveTurn(ctx, persisted)
}

// rememberTurn appends to the in-memory history window used for
// follow-up prompts.
func (e *Engine) rememberTurn(live *liveSession, question, query string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live.history = append(live.history, prompts.HistoryTurn{Question: question, Query: query})
	if len(live.history) > e.opts.MaxPromptTurns {
		live.history = live.history[len(live.history)-e.opts.MaxPromptTurns:]
	}
}

func (e *Engine) recentHistory(live *liveSession) []prompts.HistoryTurn {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]prompts.HistoryTurn, len(live.history))
	copy(out, live.history)
	return out
}

// GetSchemaInfo returns the session's schema snapshot, refreshing when
// stale or when force is set.
func (e *Engine) GetSchemaInfo(ctx context.Context, sessionID uuid.UUID, force bool) (*models.SchemaSnapshot, error) {
	live, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	snapshot, _, err := e.cache.GetOrRefresh(ctx, live.session.Descriptor.Fingerprint(), live.connector, force)
	return snapshot, err
}

// GetChatHistory returns the session's persisted turns.
func (e *Engine) GetChatHistory(ctx context.Context, sessionID uuid.UUID) ([]models.PersistedTurn, error) {
	live, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.repo.GetTurns(ctx, live.chatID)
}

// ListChats returns all persisted chats, most recent first.
func (e *Engine) ListChats(ctx context.Context) ([]models.Chat, error) {
	return e.repo.ListChats(ctx)
}

// LoadChat returns a past chat and its turns. The chat may belong to a
// connection that is no longer live; callers surface that the
// connection must be re-established before new queries run.
func (e *Engine) LoadChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, []models.PersistedTurn, error) {
	chat, err := e.repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if chat == nil {
		return nil, nil, nil
	}

	turns, err := e.repo.GetTurns(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	return chat, turns, nil
}

// SessionPhase reports where a session is in the pipeline.
func (e *Engine) SessionPhase(sessionID uuid.UUID) Phase {
	return e.coordinator.Phase(sessionID)
}

// HasLiveSession reports whether a chat's session is still connected.
func (e *Engine) HasLiveSession(sessionID uuid.UUID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.sessions[sessionID]
	return ok
}

func (e *Engine) lookup(sessionID uuid.UUID) (*liveSession, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	live, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return live, nil
}

// dbDisplayName picks the human-readable database name for listings.
func dbDisplayName(descriptor *models.ConnectionDescriptor) string {
	if name := descriptor.FirstParam("database_name", "db_name", "database", "path_to_database_file", "org"); name != "" {
		return name
	}
	return descriptor.Type
}
