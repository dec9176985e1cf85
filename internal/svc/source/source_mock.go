package source

import (
	"context"
	"sync"
	"time"

	"github.com/stepcord/stepcord/internal/kind"
	"github.com/stepcord/stepcord/internal/summary"
)

type mockResult struct {
	summary summary.Summary
	err     error
}

// MockInstance serves queued results per kind. When a queue is empty it
// answers with a fixed summary.
type MockInstance struct {
	mtx     sync.Mutex
	queues  map[kind.Kind][]mockResult
	fetches []kind.Kind
}

func NewMock() *MockInstance {
	return &MockInstance{
		queues: make(map[kind.Kind][]mockResult),
	}
}

func (m *MockInstance) Succeed(k kind.Kind, s summary.Summary) {
	s.Kind = k

	m.mtx.Lock()
	m.queues[k] = append(m.queues[k], mockResult{summary: s})
	m.mtx.Unlock()
}

func (m *MockInstance) Fail(k kind.Kind, err error) {
	m.mtx.Lock()
	m.queues[k] = append(m.queues[k], mockResult{err: err})
	m.mtx.Unlock()
}

// Fetches returns the kinds fetched so far, in order.
func (m *MockInstance) Fetches() []kind.Kind {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	out := make([]kind.Kind, len(m.fetches))
	copy(out, m.fetches)

	return out
}

func (m *MockInstance) FetchSummary(ctx context.Context, k kind.Kind, date time.Time) (summary.Summary, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.fetches = append(m.fetches, k)

	q := m.queues[k]
	if len(q) == 0 {
		return summary.Summary{Kind: k, Daily: 12345, Monthly: 654321, Yearly: 7890123}, nil
	}

	m.queues[k] = q[1:]

	return q[0].summary, q[0].err
}
