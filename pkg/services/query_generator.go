package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/llm"
	"github.com/polyquery/polyquery-engine/pkg/prompts"
	"github.com/polyquery/polyquery-engine/pkg/retry"
)

// generationTemperature keeps output deterministic enough that the same
// question against the same schema produces comparable queries.
const generationTemperature = 0.1

// defaultGenerationTimeout caps the model call when no budget is
// configured. A hung provider must not hold the session open forever.
const defaultGenerationTimeout = 60 * time.Second

// GeneratedQuery is the parsed model output.
type GeneratedQuery struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

// QueryGenerator turns a question plus schema context into a native
// query via the language model. Transient provider failures are retried
// exactly once; refusals and malformed output fail immediately since
// repeating the identical request cannot fix them.
type QueryGenerator struct {
	client  llm.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueryGenerator creates a generator over the given client. A
// non-positive timeout falls back to the default budget.
func NewQueryGenerator(client llm.Client, timeout time.Duration, logger *zap.Logger) *QueryGenerator {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryGenerator{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("generator"),
	}
}

// Generate produces a query for the question. The model call runs under
// the generator's timeout; exceeding it is a timeout-kind error, every
// other failure is generation-kind.
func (g *QueryGenerator) Generate(ctx context.Context, dbType, dialect, question string, entities []prompts.PromptEntity, history []prompts.HistoryTurn, partial bool) (*GeneratedQuery, error) {
	prompt := prompts.BuildQueryGenerationPrompt(dbType, dialect, question, entities, history, partial)

	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var response string
	err := retry.DoIfRetryable(genCtx, retry.SingleRetryConfig(), func() error {
		var callErr error
		response, callErr = g.client.GenerateResponse(genCtx, prompt, prompts.QueryGenerationSystem, generationTemperature)
		return callErr
	})
	if err != nil {
		if genCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			g.logger.Warn("model call exceeded its budget",
				zap.Duration("timeout", g.timeout))
			return nil, engineerrors.Timeout("query generation timed out", err)
		}
		return nil, engineerrors.Generation("query generation failed", err)
	}

	generated, err := llm.ParseJSONResponse[GeneratedQuery](response)
	if err != nil {
		g.logger.Warn("model returned unparseable output",
			zap.String("model", g.client.GetModel()),
			zap.Int("response_len", len(response)))
		return nil, engineerrors.Generation("model returned malformed output", err)
	}

	generated.Query = strings.TrimSpace(generated.Query)
	if generated.Query == "" {
		// The model declined. Its explanation says why, which is more
		// useful to surface than a generic failure.
		msg := strings.TrimSpace(generated.Explanation)
		if msg == "" {
			msg = "model could not produce a query for this question"
		}
		return nil, engineerrors.Generation(msg, nil)
	}

	g.logger.Debug("query generated",
		zap.String("db_type", dbType),
		zap.Int("query_len", len(generated.Query)))

	return &generated, nil
}
