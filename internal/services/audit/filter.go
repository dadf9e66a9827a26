package audit

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-bexpr"

	"github.com/darkauth/darkauth/internal/db/models"
)

// filterCache stores compiled evaluators keyed by expression text. Admin UIs
// tend to re-issue the same handful of filters.
var filterCache = &sync.Map{}

// Filter matches audit entries against a go-bexpr expression, for example
// `EventType == "user.login" and Success == false`.
type Filter struct {
	evaluator *bexpr.Evaluator
}

// NewFilter compiles expr, reusing a cached evaluator when available.
func NewFilter(expr string) (*Filter, error) {
	if cached, ok := filterCache.Load(expr); ok {
		return &Filter{evaluator: cached.(*bexpr.Evaluator)}, nil
	}
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	filterCache.Store(expr, evaluator)
	return &Filter{evaluator: evaluator}, nil
}

// Match reports whether the entry satisfies the expression. Evaluation errors
// (unknown field, type mismatch) exclude the entry.
func (f *Filter) Match(entry *models.AuditLog) bool {
	matches, err := f.evaluator.Evaluate(entry)
	if err != nil {
		return false
	}
	return matches
}
