package instance

import (
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
	"github.com/stepcord/stepcord/internal/summary"
)

type Overlay interface {
	// Write renders s for k. Kinds without an output path are skipped.
	Write(k kind.Kind, s summary.Summary, st status.Status) error
}
