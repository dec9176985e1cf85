package instance

import (
	"time"

	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
)

type Heartbeat interface {
	SetRun(run RunInfo)
	Run() RunInfo
	RecordPublish(k kind.Kind, st status.Status)
	RecordFailure(k kind.Kind, reason string)
	Snapshot() HeartbeatSnapshot
	Healthy() bool
}

type RunInfo struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Sessions []string  `json:"sessions"`
	Active   string    `json:"active,omitempty"`
	Idle     bool      `json:"idle"`
	Restarts int       `json:"restarts"`
}

type KindBeat struct {
	Kind     string    `json:"kind"`
	Title    string    `json:"title,omitempty"`
	Subtitle string    `json:"subtitle,omitempty"`
	Failure  string    `json:"failure,omitempty"`
	At       time.Time `json:"at"`
}

type HeartbeatSnapshot struct {
	Run   RunInfo    `json:"run"`
	Kinds []KindBeat `json:"kinds"`
}
