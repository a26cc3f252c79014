package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/adapters/datasource"
	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
)

// ErrSessionBusy is returned when a query arrives while the session is
// still processing a previous one. Queries are rejected rather than
// queued so the caller can tell the user immediately.
var ErrSessionBusy = errors.New("session is busy processing another query")

// Phase is a session's position in the query pipeline.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseExecuting  Phase = "executing"
)

// Coordinator enforces at-most-one in-flight query per session and
// bounds execution time. Sessions are independent: one session's
// long-running query never blocks another's.
type Coordinator struct {
	execTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	phases map[uuid.UUID]Phase
}

// NewCoordinator creates a coordinator with the given execution
// timeout.
func NewCoordinator(execTimeout time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		execTimeout: execTimeout,
		logger:      logger.Named("coordinator"),
		phases:      make(map[uuid.UUID]Phase),
	}
}

// Acquire claims the session for one pipeline run. It returns
// ErrSessionBusy when a run is already in flight. The returned release
// function must be called on every exit path.
func (c *Coordinator) Acquire(sessionID uuid.UUID) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if phase, ok := c.phases[sessionID]; ok && phase != PhaseIdle {
		return nil, ErrSessionBusy
	}
	c.phases[sessionID] = PhaseGenerating

	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.phases[sessionID] = PhaseIdle
	}
	return release, nil
}

// SetPhase records a phase transition for an acquired session.
func (c *Coordinator) SetPhase(sessionID uuid.UUID, phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases[sessionID] = phase
}

// Phase reports the session's current phase.
func (c *Coordinator) Phase(sessionID uuid.UUID) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	if phase, ok := c.phases[sessionID]; ok {
		return phase
	}
	return PhaseIdle
}

// Forget drops the session's phase tracking after the session closes.
func (c *Coordinator) Forget(sessionID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.phases, sessionID)
}

type execOutcome struct {
	result *datasource.RawResult
	err    error
}

// ExecuteWithTimeout runs the query under the coordinator's execution
// deadline. On timeout the adapter call is detached: its goroutine
// finishes in the background against the cancelled context while the
// caller gets a timeout error immediately. The session is released only
// after the caller's pipeline completes, so a detached query cannot
// corrupt a later one.
func (c *Coordinator) ExecuteWithTimeout(ctx context.Context, connector datasource.Connector, query string) (*datasource.RawResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.execTimeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		result, err := connector.Execute(execCtx, query)
		done <- execOutcome{result: result, err: err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			if execCtx.Err() == context.DeadlineExceeded {
				return nil, engineerrors.Timeout("query execution timed out", outcome.err)
			}
			return nil, engineerrors.Execution("query execution failed", outcome.err)
		}
		return outcome.result, nil

	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn("query execution timed out, detaching",
				zap.Duration("timeout", c.execTimeout))
			return nil, engineerrors.Timeout("query execution timed out", execCtx.Err())
		}
		return nil, engineerrors.Execution("query execution cancelled", execCtx.Err())
	}
}
