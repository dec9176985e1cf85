package instance

import (
	"context"
	"time"

	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/summary"
)

type Source interface {
	// FetchSummary returns the current summary of k. A zero date asks the
	// API for today.
	FetchSummary(ctx context.Context, k kind.Kind, date time.Time) (summary.Summary, error)
}
