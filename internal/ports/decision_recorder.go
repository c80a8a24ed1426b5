package ports

import (
	"context"

	"github.com/bnema/slotwall/internal/domain"
)

// DecisionRecorder stores admission decisions. Callers treat errors as best
// effort and never fail an allocation because of them.
type DecisionRecorder interface {
	Record(ctx context.Context, decision domain.Decision) error
}

// ManualViewLimiter throttles manual view requests per requester.
type ManualViewLimiter interface {
	Allow(requester string) bool
}
