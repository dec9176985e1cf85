package instance

type Instances struct {
	Source     Source
	Presence   Presence
	Overlay    Overlay
	Heartbeat  Heartbeat
	Prometheus Prometheus
	Toggles    Toggles
}
