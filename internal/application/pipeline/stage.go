package pipeline

import (
	"context"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// StageResult is what a request-phase stage hands back. A non-nil
// Response short-circuits the pipeline: remaining stages and the
// network dispatch are skipped and the response is returned as-is.
type StageResult struct {
	Response *domain.Response
}

// Stage is one named request-phase step. Stages run in the order they
// are registered; the ordering and the short-circuit contract are
// explicit here rather than implicit in interceptor call order.
type Stage struct {
	Name string
	Run  func(ctx context.Context, req *domain.RequestContext) (*StageResult, error)
}
