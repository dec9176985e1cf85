package heartbeat

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
)

type Options struct {
	// TTL is how long a publish or failure keeps counting as recent.
	TTL time.Duration
	Now func() time.Time
}

// Instance keeps what the health endpoints report: the current scheduler run
// and the latest outcome per kind, which expires after TTL.
type Instance struct {
	beats *cache.Cache
	ttl   time.Duration
	now   func() time.Time

	mtx sync.RWMutex
	run instance.RunInfo
}

func New(o Options) instance.Heartbeat {
	if o.TTL == 0 {
		o.TTL = 5 * time.Minute
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	return &Instance{
		beats: cache.New(o.TTL, o.TTL*2),
		ttl:   o.TTL,
		now:   o.Now,
	}
}

func (i *Instance) SetRun(run instance.RunInfo) {
	i.mtx.Lock()
	defer i.mtx.Unlock()

	i.run = run
}

func (i *Instance) Run() instance.RunInfo {
	i.mtx.RLock()
	defer i.mtx.RUnlock()

	run := i.run
	run.Sessions = append([]string(nil), i.run.Sessions...)

	return run
}

func (i *Instance) RecordPublish(k kind.Kind, st status.Status) {
	i.beats.SetDefault(k.String(), instance.KindBeat{
		Kind:     k.String(),
		Title:    st.Title,
		Subtitle: st.Subtitle,
		At:       i.now(),
	})

	i.mtx.Lock()
	i.run.Active = k.String()
	i.mtx.Unlock()
}

func (i *Instance) RecordFailure(k kind.Kind, reason string) {
	i.beats.SetDefault(k.String(), instance.KindBeat{
		Kind:    k.String(),
		Failure: reason,
		At:      i.now(),
	})
}

func (i *Instance) Snapshot() instance.HeartbeatSnapshot {
	snap := instance.HeartbeatSnapshot{
		Run:   i.Run(),
		Kinds: []instance.KindBeat{},
	}

	for _, item := range i.beats.Items() {
		if b, ok := item.Object.(instance.KindBeat); ok {
			snap.Kinds = append(snap.Kinds, b)
		}
	}

	sort.Slice(snap.Kinds, func(a, b int) bool {
		return snap.Kinds[a].Kind < snap.Kinds[b].Kind
	})

	return snap
}

// Healthy reports whether a run is in place and, once it has been up longer
// than TTL, whether anything was published within TTL. Idle runs are healthy.
func (i *Instance) Healthy() bool {
	run := i.Run()

	if run.ID == "" {
		return false
	}

	if run.Idle {
		return true
	}

	if len(run.Sessions) == 0 {
		return false
	}

	if i.now().Sub(run.Started) < i.ttl {
		return true
	}

	for _, item := range i.beats.Items() {
		if b, ok := item.Object.(instance.KindBeat); ok && b.Failure == "" {
			return true
		}
	}

	return false
}
