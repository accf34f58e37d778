package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Effect is the canonical direction of a causal claim.
// These values must match the database enum interaction_effect.
type Effect string

const (
	EffectIncrease Effect = "increase"
	EffectDecrease Effect = "decrease"
)

// Symbol returns "+" or "-".
func (e Effect) Symbol() string {
	switch e {
	case EffectIncrease:
		return "+"
	case EffectDecrease:
		return "-"
	}
	return "?"
}

var effectAliases = map[string]Effect{
	"+":         EffectIncrease,
	"increase":  EffectIncrease,
	"increases": EffectIncrease,
	"up":        EffectIncrease,
	"positive":  EffectIncrease,
	"pos":       EffectIncrease,
	"inc":       EffectIncrease,
	"-":         EffectDecrease,
	"decrease":  EffectDecrease,
	"decreases": EffectDecrease,
	"down":      EffectDecrease,
	"negative":  EffectDecrease,
	"neg":       EffectDecrease,
	"dec":       EffectDecrease,
}

// NormalizeEffect maps free effect text to its canonical Effect.
// Matching is case-insensitive. Text outside the alias table yields
// ErrUnrecognizedEffect and the caller must not store the claim.
func NormalizeEffect(text string) (Effect, error) {
	if e, ok := effectAliases[strings.ToLower(text)]; ok {
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedEffect, text)
}

// MatchesTopic reports whether a claim names the topic exactly as its
// independent or dependent variable. Comparison is case-sensitive with no
// trimming.
func MatchesTopic(topic, iv, dv string) bool {
	return iv == topic || dv == topic
}

// Claim is a raw (iv, dv, effect) tuple proposed by the extractor, before
// normalization and the topic-match filter.
type Claim struct {
	IV     string `json:"iv"`
	DV     string `json:"dv"`
	Effect string `json:"effect"`
}

// Interaction is a stored causal claim. Immutable once persisted.
type Interaction struct {
	ID                  uuid.UUID `json:"id"`
	JobID               uuid.UUID `json:"job_id"`
	WorkspaceID         uuid.UUID `json:"workspace_id"`
	IndependentVariable string    `json:"independent_variable"`
	DependentVariable   string    `json:"dependent_variable"`
	Effect              Effect    `json:"effect"`
	Reference           string    `json:"reference"`
	DatePublished       string    `json:"date_published,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// String renders the interaction as "iv -> dv (+)".
func (i Interaction) String() string {
	return fmt.Sprintf("%s -> %s (%s)", i.IndependentVariable, i.DependentVariable, i.Effect.Symbol())
}

// InteractionFilter selects interactions by job or by workspace.
// At least one of JobID or WorkspaceID must be set.
type InteractionFilter struct {
	JobID       *uuid.UUID
	WorkspaceID *uuid.UUID
	Limit       int
	Offset      int
}
