package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/llm"
	"github.com/polyquery/polyquery-engine/pkg/prompts"
)

func TestGenerateParsesModelOutput(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		assert.Contains(t, prompt, "how many users")
		assert.Equal(t, prompts.QueryGenerationSystem, systemMessage)
		return "```json\n{\"query\": \"SELECT count(*) FROM users\", \"explanation\": \"Counts all users.\"}\n```", nil
	}

	generator := NewQueryGenerator(mock, 0, zap.NewNop())
	out, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "how many users", nil, nil, false)

	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM users", out.Query)
	assert.Equal(t, "Counts all users.", out.Explanation)
	assert.Equal(t, 1, mock.GenerateResponseCalls)
}

func TestGenerateRetriesTransientFailureOnce(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		if mock.GenerateResponseCalls == 1 {
			return "", llm.NewError(llm.ErrorTypeEndpoint, "request timeout", true, nil)
		}
		return `{"query": "SELECT 1", "explanation": "ok"}`, nil
	}

	generator := NewQueryGenerator(mock, 0, zap.NewNop())
	out, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "ping", nil, nil, false)

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out.Query)
	assert.Equal(t, 2, mock.GenerateResponseCalls)
}

func TestGenerateDoesNotRetryPermanentFailure(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
	}

	generator := NewQueryGenerator(mock, 0, zap.NewNop())
	_, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "ping", nil, nil, false)

	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindGeneration))
	assert.Equal(t, 1, mock.GenerateResponseCalls, "auth failures are not retryable")
}

func TestGenerateMalformedOutputFailsFast(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return "Sure! The query you want is SELECT 1.", nil
	}

	generator := NewQueryGenerator(mock, 0, zap.NewNop())
	_, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "ping", nil, nil, false)

	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindGeneration))
	assert.Contains(t, err.Error(), "malformed")
	assert.Equal(t, 1, mock.GenerateResponseCalls)
}

func TestGenerateTimesOutHungProvider(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	generator := NewQueryGenerator(mock, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	_, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "ping", nil, nil, false)

	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindTimeout))
	assert.Less(t, time.Since(start), 500*time.Millisecond, "the caller gets the timeout promptly")
}

func TestGenerateCallerCancellationIsNotTimeout(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	generator := NewQueryGenerator(mock, time.Second, zap.NewNop())
	_, err := generator.Generate(ctx, "postgresql", "PostgreSQL", "ping", nil, nil, false)

	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindGeneration))
}

func TestGenerateRefusalSurfacesExplanation(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return `{"query": "", "explanation": "The schema has no table about weather."}`, nil
	}

	generator := NewQueryGenerator(mock, 0, zap.NewNop())
	_, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "what is the weather", nil, nil, false)

	require.Error(t, err)
	assert.True(t, engineerrors.IsKind(err, engineerrors.KindGeneration))
	assert.Contains(t, err.Error(), "no table about weather")
	assert.Equal(t, 1, mock.GenerateResponseCalls, "refusals are not retried")
}

func TestGenerateRefusalWithoutExplanation(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
		return `{"query": "   ", "explanation": ""}`, nil
	}

	generator := NewQueryGenerator(mock, 0, zap.NewNop())
	_, err := generator.Generate(context.Background(), "postgresql", "PostgreSQL", "gibberish", nil, nil, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not produce a query")
}
