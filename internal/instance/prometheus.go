package instance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stepcord/stepcord/internal/kind"
)

type Prometheus interface {
	Register(r prometheus.Registerer)

	Tick(k kind.Kind, result string)
	FetchFailure(k kind.Kind)
	PublishFailure(k kind.Kind)
	ClearFailure(k kind.Kind)
	RunEnded(result string)
	SetSessions(n int)
	SetActive(k kind.Kind, idle bool)
}
