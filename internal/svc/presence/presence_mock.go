package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/stepcord/stepcord/internal/configure"
	"github.com/stepcord/stepcord/internal/instance"
	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/status"
)

// MockBehavior scripts how sessions of one kind fail. Counters are consumed
// across sessions, so a failure scripted once survives a rebuild only once.
type MockBehavior struct {
	BuildErr      error
	ConnectErr    error
	PublishErr    error
	PublishFails  int
	PublishPanics int
	ClearErr      error
	DegradedPanic bool
}

// MockInstance is a presence factory whose sessions record every call and
// track which kinds currently show a status.
type MockInstance struct {
	mtx       sync.Mutex
	behaviors map[kind.Kind]*MockBehavior
	calls     []string
	visible   map[kind.Kind]status.Status
	sessions  []*MockSession
}

func NewMock() *MockInstance {
	return &MockInstance{
		behaviors: make(map[kind.Kind]*MockBehavior),
		visible:   make(map[kind.Kind]status.Status),
	}
}

func (m *MockInstance) Behave(k kind.Kind, b *MockBehavior) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.behaviors[k] = b
}

func (m *MockInstance) NewSession(k kind.Kind, mc configure.MetricConfig) (instance.Session, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls = append(m.calls, "build "+k.String())

	if b := m.behaviors[k]; b != nil && b.BuildErr != nil {
		return nil, b.BuildErr
	}

	s := &MockSession{parent: m, kind: k}
	m.sessions = append(m.sessions, s)

	return s, nil
}

// Calls returns the ordered call log ("publish steps", "clear water", ...).
func (m *MockInstance) Calls() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	out := make([]string, len(m.calls))
	copy(out, m.calls)

	return out
}

func (m *MockInstance) ResetCalls() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls = nil
}

// Visible returns the kinds currently showing a status.
func (m *MockInstance) Visible() map[kind.Kind]status.Status {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	out := make(map[kind.Kind]status.Status, len(m.visible))
	for k, v := range m.visible {
		out[k] = v
	}

	return out
}

func (m *MockInstance) Sessions() []*MockSession {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	out := make([]*MockSession, len(m.sessions))
	copy(out, m.sessions)

	return out
}

type MockSession struct {
	parent *MockInstance
	kind   kind.Kind
	state  instance.SessionState
	closed bool
}

func (s *MockSession) Kind() kind.Kind {
	return s.kind
}

func (s *MockSession) State() instance.SessionState {
	s.parent.mtx.Lock()
	defer s.parent.mtx.Unlock()

	return s.state
}

func (s *MockSession) Closed() bool {
	s.parent.mtx.Lock()
	defer s.parent.mtx.Unlock()

	return s.closed
}

func (s *MockSession) Connect(ctx context.Context) error {
	m := s.parent
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls = append(m.calls, "connect "+s.kind.String())

	if b := m.behaviors[s.kind]; b != nil && b.ConnectErr != nil {
		return b.ConnectErr
	}

	s.state = instance.SessionConnected

	return nil
}

func (s *MockSession) Publish(ctx context.Context, st status.Status) error {
	m := s.parent
	m.mtx.Lock()

	degraded := st.Start.IsZero()
	m.calls = append(m.calls, "publish "+s.kind.String())

	b := m.behaviors[s.kind]
	if b != nil {
		if degraded && b.DegradedPanic {
			m.mtx.Unlock()
			panic(fmt.Sprintf("mock %s: socket is not connected", s.kind))
		}

		if b.PublishPanics > 0 {
			b.PublishPanics--
			m.mtx.Unlock()
			panic(fmt.Sprintf("mock %s: socket is not connected", s.kind))
		}

		if b.PublishFails > 0 {
			b.PublishFails--
			m.mtx.Unlock()

			return &ChannelError{Code: 1000, Message: "mock publish failure"}
		}

		if b.PublishErr != nil {
			m.mtx.Unlock()
			return b.PublishErr
		}
	}

	if s.state != instance.SessionConnected {
		m.mtx.Unlock()
		return ErrNotConnected
	}

	m.visible[s.kind] = st
	m.mtx.Unlock()

	return nil
}

func (s *MockSession) Clear(ctx context.Context) error {
	m := s.parent
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls = append(m.calls, "clear "+s.kind.String())

	if b := m.behaviors[s.kind]; b != nil && b.ClearErr != nil {
		return b.ClearErr
	}

	delete(m.visible, s.kind)

	return nil
}

func (s *MockSession) Close() error {
	m := s.parent
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.calls = append(m.calls, "close "+s.kind.String())
	s.closed = true
	s.state = instance.SessionDisconnected
	delete(m.visible, s.kind)

	return nil
}
