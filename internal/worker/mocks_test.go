package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/battlelab/matchup/internal/models"
)

var (
	_ driver.Conn  = (*MockClickHouseConn)(nil)
	_ driver.Batch = (*MockBatch)(nil)
)

// MockClickHouseConn implements driver.Conn for testing
type MockClickHouseConn struct {
	driver.Conn
	Queries []string
	Batches []*MockBatch
	ExecErr error
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	m.Queries = append(m.Queries, query)
	b := &MockBatch{}
	m.Batches = append(m.Batches, b)
	return b, nil
}

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	m.Queries = append(m.Queries, query)
	return m.ExecErr
}

// MockBatch implements driver.Batch
type MockBatch struct {
	driver.Batch
	Appended [][]interface{}
	Sent     bool
	Aborted  bool
}

func (m *MockBatch) Append(v ...interface{}) error {
	m.Appended = append(m.Appended, v)
	return nil
}

func (m *MockBatch) Send() error {
	m.Sent = true
	return nil
}

func (m *MockBatch) Abort() error {
	m.Aborted = true
	return nil
}

func (m *MockBatch) Rows() int {
	return len(m.Appended)
}

func (m *MockBatch) IsSent() bool {
	return m.Sent
}

// MemorySink collects every example it is given.
type MemorySink struct {
	mu       sync.Mutex
	Examples []models.Example
	Batches  []int
	FailOn   int
}

var errSinkFailed = errors.New("sink failed")

func (m *MemorySink) Write(ctx context.Context, shard int, batch []models.Example) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, len(batch))
	if m.FailOn > 0 && len(m.Batches) >= m.FailOn {
		return errSinkFailed
	}
	m.Examples = append(m.Examples, batch...)
	return nil
}

func (m *MemorySink) Close() error { return nil }
