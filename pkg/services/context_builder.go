package services

import (
	"regexp"
	"sort"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/polyquery/polyquery-engine/pkg/models"
	"github.com/polyquery/polyquery-engine/pkg/prompts"
)

// identifierPattern is the shape a schema identifier must have to enter
// a prompt. Colons, asterisks and parens appear in key-value pattern
// names; quotes, semicolons and control bytes do not belong in any
// identifier and get the name dropped rather than escaped.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.$\-/:*() ]{1,64}$`)

var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// ContextBuilder selects which schema entities go into the generation
// prompt. Large databases do not fit in a prompt, so entities whose
// names overlap the question are preferred; when nothing overlaps, the
// first entities up to the budget are taken so generation still has
// structure to work with.
type ContextBuilder struct {
	maxEntities int
	logger      *zap.Logger
}

// NewContextBuilder creates a builder with the given entity budget.
func NewContextBuilder(maxEntities int, logger *zap.Logger) *ContextBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextBuilder{
		maxEntities: maxEntities,
		logger:      logger.Named("context"),
	}
}

// Build returns the prompt entities for a question against a snapshot.
func (b *ContextBuilder) Build(question string, snapshot *models.SchemaSnapshot) []prompts.PromptEntity {
	safe := b.screenEntities(snapshot.Entities)
	selected := b.selectEntities(question, safe)

	result := make([]prompts.PromptEntity, 0, len(selected))
	for _, entity := range selected {
		result = append(result, prompts.PromptEntity{
			Kind:       entity.Kind,
			Name:       entity.Name,
			Inferred:   entity.Inferred,
			StartLabel: entity.StartLabel,
			EndLabel:   entity.EndLabel,
			Fields:     entity.Fields,
		})
	}
	return result
}

// screenEntities drops entities and fields whose identifiers fail the
// shape check or trip SQL injection detection. Schema names come from
// the connected database, which is untrusted input to the prompt.
func (b *ContextBuilder) screenEntities(entities []models.SchemaEntity) []models.SchemaEntity {
	safe := make([]models.SchemaEntity, 0, len(entities))

	for _, entity := range entities {
		if !safeIdentifier(entity.Name) {
			b.logger.Warn("dropping entity with unsafe name", zap.String("kind", string(entity.Kind)))
			continue
		}

		fields := make([]models.FieldDescriptor, 0, len(entity.Fields))
		for _, field := range entity.Fields {
			if !safeIdentifier(field.Name) {
				b.logger.Warn("dropping field with unsafe name", zap.String("entity", entity.Name))
				continue
			}
			fields = append(fields, field)
		}

		entity.Fields = fields
		safe = append(safe, entity)
	}

	return safe
}

func safeIdentifier(name string) bool {
	if !identifierPattern.MatchString(name) {
		return false
	}
	if isSQLi, _ := libinjection.IsSQLi(name); isSQLi {
		return false
	}
	return true
}

type scoredEntity struct {
	entity models.SchemaEntity
	score  int
}

// selectEntities ranks entities by name overlap with the question.
// Question tokens are singularized so "users" matches a "user" table
// and vice versa.
func (b *ContextBuilder) selectEntities(question string, entities []models.SchemaEntity) []models.SchemaEntity {
	if len(entities) <= b.maxEntities {
		return entities
	}

	tokens := questionTokens(question)

	scored := make([]scoredEntity, 0, len(entities))
	anyMatch := false
	for _, entity := range entities {
		s := scoreEntity(entity, tokens)
		if s > 0 {
			anyMatch = true
		}
		scored = append(scored, scoredEntity{entity: entity, score: s})
	}

	if !anyMatch {
		return entities[:b.maxEntities]
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].entity.Name < scored[j].entity.Name
	})

	selected := make([]models.SchemaEntity, 0, b.maxEntities)
	for _, se := range scored[:b.maxEntities] {
		selected = append(selected, se.entity)
	}
	return selected
}

// questionTokens lowercases and splits the question, keeping both each
// token and its singular form.
func questionTokens(question string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenSplitPattern.Split(strings.ToLower(question), -1) {
		if len(tok) < 3 {
			continue
		}
		tokens[tok] = true
		tokens[inflection.Singular(tok)] = true
	}
	return tokens
}

// scoreEntity counts overlaps between question tokens and the entity's
// name and field names. Entity name matches weigh more than field
// matches.
func scoreEntity(entity models.SchemaEntity, tokens map[string]bool) int {
	score := 0

	for _, part := range nameParts(entity.Name) {
		if tokens[part] {
			score += 3
		}
	}
	for _, field := range entity.Fields {
		for _, part := range nameParts(field.Name) {
			if tokens[part] {
				score++
			}
		}
	}

	return score
}

func nameParts(name string) []string {
	lower := strings.ToLower(name)
	parts := tokenSplitPattern.Split(lower, -1)

	out := make([]string, 0, len(parts)*2)
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
		if singular := inflection.Singular(p); singular != p {
			out = append(out, singular)
		}
	}
	return out
}
